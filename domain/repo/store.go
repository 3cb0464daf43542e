package repo

import "context"

// Store persists repository aggregates.
type Store interface {
	// Save inserts or updates a repository, returning it with its
	// identifier populated.
	Save(ctx context.Context, repository Repository) (Repository, error)

	// Find retrieves repositories matching the given options.
	Find(ctx context.Context, options ...Option) ([]Repository, error)

	// FindOne retrieves a single repository matching the given options.
	FindOne(ctx context.Context, options ...Option) (Repository, error)

	// Exists checks whether any repository matches the given options.
	Exists(ctx context.Context, options ...Option) (bool, error)

	// Count returns the number of matching repositories.
	Count(ctx context.Context, options ...Option) (int64, error)

	// DeleteBy removes repositories matching the given options.
	DeleteBy(ctx context.Context, options ...Option) error
}

// BranchStore persists branch records.
type BranchStore interface {
	// ReplaceForRepository swaps the branch set of a repository.
	ReplaceForRepository(ctx context.Context, repositoryID int64, branches []Branch) ([]Branch, error)

	// Find retrieves branches matching the given options.
	Find(ctx context.Context, options ...Option) ([]Branch, error)

	// DeleteBy removes branches matching the given options.
	DeleteBy(ctx context.Context, options ...Option) error
}

// CommitStore persists commit records.
type CommitStore interface {
	// SaveAll upserts commits by (repository_id, sha).
	SaveAll(ctx context.Context, commits []Commit) ([]Commit, error)

	// Find retrieves commits matching the given options.
	Find(ctx context.Context, options ...Option) ([]Commit, error)

	// DeleteBy removes commits matching the given options.
	DeleteBy(ctx context.Context, options ...Option) error
}
