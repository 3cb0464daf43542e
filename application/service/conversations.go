package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codelore/codelore/domain/conversation"
	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/internal/config"
)

// Conversations manages the conversation lifecycle: creation under the
// per-user cap, message appends under the per-conversation cap, soft
// deletion, search, and the maintenance operations the cleanup tasks run.
type Conversations struct {
	store  conversation.Store
	cfg    config.ConversationConfig
	logger *slog.Logger
}

// NewConversations creates a Conversations service.
func NewConversations(store conversation.Store, cfg config.ConversationConfig, logger *slog.Logger) *Conversations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversations{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// Create starts a conversation for a user. Users at their active
// conversation cap are refused until they archive or delete one.
func (s *Conversations) Create(ctx context.Context, userID, title string, scope conversation.Context) (conversation.Conversation, error) {
	active, err := s.store.ByUser(ctx, userID, conversation.WithStatus(conversation.StatusActive))
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("count active conversations: %w", err)
	}
	if len(active) >= s.cfg.MaxPerUser() {
		return conversation.Conversation{}, fault.Newf(fault.KindQuotaExceeded,
			"user %s has reached the limit of %d active conversations", userID, s.cfg.MaxPerUser())
	}

	conv, err := conversation.NewConversation(userID, title, scope)
	if err != nil {
		return conversation.Conversation{}, err
	}
	conv = conv.WithMessageLimit(s.cfg.MaxMessages())

	return s.store.Save(ctx, conv)
}

// Get returns a conversation with its messages.
func (s *Conversations) Get(ctx context.Context, id string) (conversation.Conversation, error) {
	return s.store.ByID(ctx, id)
}

// ListForUser returns a user's conversations, newest activity first.
func (s *Conversations) ListForUser(ctx context.Context, userID string, options ...repo.Option) ([]conversation.Conversation, error) {
	return s.store.ByUser(ctx, userID, options...)
}

// ListForRepositories returns conversations scoped to any of the given
// repositories.
func (s *Conversations) ListForRepositories(ctx context.Context, repositoryIDs []int64) ([]conversation.Conversation, error) {
	return s.store.ByRepositories(ctx, repositoryIDs)
}

// Append adds a message to a conversation and persists the result. The
// aggregate rejects appends once the configured message cap is reached.
func (s *Conversations) Append(ctx context.Context, conversationID string, msg conversation.Message) (conversation.Conversation, error) {
	conv, err := s.store.ByID(ctx, conversationID)
	if err != nil {
		return conversation.Conversation{}, err
	}
	conv = conv.WithMessageLimit(s.cfg.MaxMessages())

	conv, err = conv.AddMessage(msg)
	if err != nil {
		return conversation.Conversation{}, err
	}
	return s.store.Save(ctx, conv)
}

// Archive moves a conversation out of the active set.
func (s *Conversations) Archive(ctx context.Context, id string) (conversation.Conversation, error) {
	return s.transition(ctx, id, conversation.Conversation.Archive)
}

// Reactivate returns an archived conversation to the active set.
func (s *Conversations) Reactivate(ctx context.Context, id string) (conversation.Conversation, error) {
	return s.transition(ctx, id, conversation.Conversation.Reactivate)
}

// Delete soft-deletes a conversation. The record survives until the
// retention sweep removes it.
func (s *Conversations) Delete(ctx context.Context, id string) error {
	_, err := s.transition(ctx, id, conversation.Conversation.MarkDeleted)
	return err
}

// Search matches a term against a user's conversation titles and message
// content.
func (s *Conversations) Search(ctx context.Context, term, userID string, options ...repo.Option) ([]conversation.Conversation, error) {
	return s.store.Search(ctx, term, userID, options...)
}

// Statistics summarizes stored conversations.
func (s *Conversations) Statistics(ctx context.Context, query conversation.StatisticsQuery) (conversation.Statistics, error) {
	return s.store.Statistics(ctx, query)
}

// ArchiveIdle archives active conversations that have been idle longer
// than the auto-archive window, returning how many were archived. An
// empty userID archives across all users.
func (s *Conversations) ArchiveIdle(ctx context.Context, userID string) (int64, error) {
	days := int(s.cfg.AutoArchiveAfter().Hours() / 24)
	if days < 1 {
		days = 1
	}
	return s.store.BulkArchive(ctx, userID, days)
}

// CleanupExpired permanently removes archived and deleted conversations
// past the retention window, up to the configured batch size. It returns
// how many were removed.
func (s *Conversations) CleanupExpired(ctx context.Context) (int, error) {
	expired, err := s.store.ForCleanup(ctx, s.cfg.RetentionDays(), s.cfg.CleanupBatchSize())
	if err != nil {
		return 0, fmt.Errorf("find expired conversations: %w", err)
	}

	removed := 0
	for _, conv := range expired {
		if err := s.store.Delete(ctx, conv.ID()); err != nil {
			return removed, fmt.Errorf("delete conversation %s: %w", conv.ID(), err)
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("expired conversations removed",
			slog.Int("count", removed),
			slog.Int("retention_days", s.cfg.RetentionDays()),
		)
	}
	return removed, nil
}

func (s *Conversations) transition(
	ctx context.Context,
	id string,
	step func(conversation.Conversation) (conversation.Conversation, error),
) (conversation.Conversation, error) {
	conv, err := s.store.ByID(ctx, id)
	if err != nil {
		return conversation.Conversation{}, err
	}
	conv, err = step(conv)
	if err != nil {
		return conversation.Conversation{}, err
	}
	return s.store.Save(ctx, conv)
}
