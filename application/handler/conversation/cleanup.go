package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/application/service"
	"github.com/codelore/codelore/domain/task"
)

// Cleanup permanently removes archived and deleted conversations past the
// retention window. Each sweep removes at most one batch; the periodic
// scheduler picks up the remainder on the next tick.
type Cleanup struct {
	conversations  *service.Conversations
	trackerFactory handler.TrackerFactory
	logger         *slog.Logger
}

// NewCleanup creates a new Cleanup handler.
func NewCleanup(
	conversations *service.Conversations,
	trackerFactory handler.TrackerFactory,
	logger *slog.Logger,
) *Cleanup {
	return &Cleanup{
		conversations:  conversations,
		trackerFactory: trackerFactory,
		logger:         logger,
	}
}

// Execute processes the cleanup sweep.
func (h *Cleanup) Execute(ctx context.Context, _ map[string]any) error {
	tracker := h.trackerFactory.ForOperation(
		task.OperationCleanupConversations,
		task.TrackableTypeConversation,
		0,
	)

	removed, err := h.conversations.CleanupExpired(ctx)
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("cleanup expired conversations: %w", err)
	}

	if removed == 0 {
		tracker.Skip(ctx, "No expired conversations to remove")
		return nil
	}
	h.logger.Info("expired conversations removed", slog.Int("count", removed))
	tracker.Complete(ctx)
	return nil
}
