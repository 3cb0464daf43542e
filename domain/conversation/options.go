package conversation

import (
	"time"

	"github.com/codelore/codelore/domain/repo"
)

// WithStatus filters conversations by lifecycle status.
func WithStatus(status Status) repo.Option {
	return repo.WithCondition("status", string(status))
}

// WithStatusIn filters conversations by any of the given statuses.
func WithStatusIn(statuses ...Status) repo.Option {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return repo.WithConditionIn("status", values)
}

// WithUserID filters conversations by owning user.
func WithUserID(userID string) repo.Option {
	return repo.WithCondition("user_id", userID)
}

// WithActivityBefore filters conversations whose last activity is older
// than the given time.
func WithActivityBefore(cutoff time.Time) repo.Option {
	return repo.WithWhere("last_activity_at < ?", cutoff)
}
