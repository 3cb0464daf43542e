package docs

import (
	"context"

	"github.com/codelore/codelore/domain/repo"
)

// Store persists documentation aggregates with their sections.
type Store interface {
	// Save inserts or updates documentation and its sections, returning
	// it with identifiers populated.
	Save(ctx context.Context, documentation Documentation) (Documentation, error)

	// Find retrieves documentation matching the given options.
	Find(ctx context.Context, options ...repo.Option) ([]Documentation, error)

	// FindOne retrieves a single documentation matching the given options.
	FindOne(ctx context.Context, options ...repo.Option) (Documentation, error)

	// ForRepository retrieves the documentation of a repository.
	ForRepository(ctx context.Context, repositoryID int64) (Documentation, error)

	// DeleteBy removes documentation matching the given options.
	DeleteBy(ctx context.Context, options ...repo.Option) error
}
