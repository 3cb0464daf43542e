package conversation

import (
	"context"
	"time"

	"github.com/codelore/codelore/domain/repo"
)

// StatisticsQuery narrows a statistics request. Zero values mean
// unconstrained.
type StatisticsQuery struct {
	UserID string
	From   time.Time
	To     time.Time
}

// Statistics summarizes stored conversations.
type Statistics struct {
	TotalConversations  int64
	ByStatus            map[Status]int64
	TotalMessages       int64
	AverageMessageCount float64
	ActiveDays          int64
	FirstActivityAt     time.Time
	LastActivityAt      time.Time
}

// Store defines persistence for conversations and their messages. Saving a
// conversation persists its messages in append order.
type Store interface {
	Save(ctx context.Context, conv Conversation) (Conversation, error)
	ByID(ctx context.Context, id string) (Conversation, error)
	ByUser(ctx context.Context, userID string, options ...repo.Option) ([]Conversation, error)
	ByRepositories(ctx context.Context, repositoryIDs []int64, options ...repo.Option) ([]Conversation, error)
	Delete(ctx context.Context, id string) error

	// Search matches term against conversation titles and message content
	// for one user.
	Search(ctx context.Context, term, userID string, options ...repo.Option) ([]Conversation, error)

	// ForCleanup returns archived or deleted conversations whose last
	// activity is older than the retention window.
	ForCleanup(ctx context.Context, retentionDays, limit int) ([]Conversation, error)

	Statistics(ctx context.Context, query StatisticsQuery) (Statistics, error)

	// BulkArchive archives active conversations idle for more than
	// olderThanDays and returns how many were archived. An empty userID
	// archives across all users.
	BulkArchive(ctx context.Context, userID string, olderThanDays int) (int64, error)
}
