// Package conversation provides the maintenance task handlers that keep
// the conversation store within its retention policy.
package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/application/service"
	"github.com/codelore/codelore/domain/task"
)

// Archive moves idle active conversations to archived across all users.
// The sweep payload carries no conversation id, so the tracker reports
// fleet-wide progress.
type Archive struct {
	conversations  *service.Conversations
	trackerFactory handler.TrackerFactory
	logger         *slog.Logger
}

// NewArchive creates a new Archive handler.
func NewArchive(
	conversations *service.Conversations,
	trackerFactory handler.TrackerFactory,
	logger *slog.Logger,
) *Archive {
	return &Archive{
		conversations:  conversations,
		trackerFactory: trackerFactory,
		logger:         logger,
	}
}

// Execute processes the archive sweep.
func (h *Archive) Execute(ctx context.Context, _ map[string]any) error {
	tracker := h.trackerFactory.ForOperation(
		task.OperationArchiveConversations,
		task.TrackableTypeConversation,
		0,
	)

	archived, err := h.conversations.ArchiveIdle(ctx, "")
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("archive idle conversations: %w", err)
	}

	if archived == 0 {
		tracker.Skip(ctx, "No idle conversations to archive")
		return nil
	}
	h.logger.Info("idle conversations archived", slog.Int64("count", archived))
	tracker.Complete(ctx)
	return nil
}
