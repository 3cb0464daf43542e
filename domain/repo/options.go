package repo

import "time"

// WithRepositoryID filters by the "repository_id" column.
func WithRepositoryID(id int64) Option {
	return WithCondition("repository_id", id)
}

// WithRepositoryIDIn filters by the "repository_id" column using IN.
func WithRepositoryIDIn(ids []int64) Option {
	return WithConditionIn("repository_id", ids)
}

// WithFullName filters by the "full_name" column (owner/name).
func WithFullName(fullName string) Option {
	return WithCondition("full_name", fullName)
}

// WithURL filters by the "url" column.
func WithURL(url string) Option {
	return WithCondition("url", url)
}

// WithStatus filters by the "status" column.
func WithStatus(status Status) Option {
	return WithCondition("status", string(status))
}

// WithStatusIn filters by the "status" column using IN.
func WithStatusIn(statuses []Status) Option {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return WithConditionIn("status", values)
}

// WithName filters by the "name" column.
func WithName(name string) Option {
	return WithCondition("name", name)
}

// WithDefault filters for the default branch (is_default = true).
func WithDefault() Option {
	return WithCondition("is_default", true)
}

// WithSHA filters by the "sha" column.
func WithSHA(sha string) Option {
	return WithCondition("sha", sha)
}

// WithReindexDueBefore filters repositories whose last successful index run
// finished before the given time (or that have never been indexed).
func WithReindexDueBefore(t time.Time) Option {
	return WithWhere("last_indexed_at IS NULL OR last_indexed_at < ?", t)
}
