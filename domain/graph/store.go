package graph

import (
	"context"

	"github.com/codelore/codelore/domain/entity"
	"github.com/codelore/codelore/domain/repo"
)

// Store persists knowledge-graph aggregates.
type Store interface {
	// Save inserts or updates a graph, returning it with its identifier
	// populated.
	Save(ctx context.Context, g KnowledgeGraph) (KnowledgeGraph, error)

	// Find retrieves graphs matching the given options.
	Find(ctx context.Context, options ...repo.Option) ([]KnowledgeGraph, error)

	// FindOne retrieves a single graph matching the given options.
	FindOne(ctx context.Context, options ...repo.Option) (KnowledgeGraph, error)

	// ForRepository retrieves the graph covering a repository, if any.
	ForRepository(ctx context.Context, repositoryID int64) (KnowledgeGraph, error)

	// DeleteBy removes graphs matching the given options.
	DeleteBy(ctx context.Context, options ...repo.Option) error
}

// EntityStore persists code entities keyed by their stable ids.
type EntityStore interface {
	// UpsertAll writes entities idempotently; an unchanged entity is a
	// no-op. Embedding vectors are managed through SaveVectors and
	// survive re-upserts.
	UpsertAll(ctx context.Context, entities []entity.CodeEntity) error

	// SaveVectors stores embedding vectors keyed by entity id.
	SaveVectors(ctx context.Context, vectors map[string][]float64) error

	// Find retrieves entities matching the given options.
	Find(ctx context.Context, options ...repo.Option) ([]entity.CodeEntity, error)

	// ByID retrieves one entity by stable id.
	ByID(ctx context.Context, entityID string) (entity.CodeEntity, error)

	// Count returns the number of live entities matching the options.
	Count(ctx context.Context, options ...repo.Option) (int64, error)

	// Tombstone marks every entity of the repository that is not in the
	// live id set as deleted, returning how many were tombstoned.
	Tombstone(ctx context.Context, repositoryID int64, liveIDs []string) (int64, error)

	// DeleteBy removes entities matching the given options.
	DeleteBy(ctx context.Context, options ...repo.Option) error
}

// RelationshipStore persists typed edges between entities.
type RelationshipStore interface {
	// UpsertAll writes relationships idempotently keyed by
	// (source, target, type).
	UpsertAll(ctx context.Context, relationships []entity.CodeRelationship) error

	// Find retrieves relationships matching the given options.
	Find(ctx context.Context, options ...repo.Option) ([]entity.CodeRelationship, error)

	// Count returns the number of matching relationships.
	Count(ctx context.Context, options ...repo.Option) (int64, error)

	// Neighborhood walks edges breadth-first from an entity up to depth
	// hops and returns the edges discovered.
	Neighborhood(ctx context.Context, entityID string, depth int) ([]entity.CodeRelationship, error)

	// PruneDangling removes edges that reference a tombstoned entity,
	// returning how many were removed.
	PruneDangling(ctx context.Context) (int64, error)

	// DeleteBy removes relationships matching the given options.
	DeleteBy(ctx context.Context, options ...repo.Option) error
}

// PatternStore persists detected architectural patterns.
type PatternStore interface {
	// UpsertAll writes patterns idempotently keyed by stable pattern id.
	UpsertAll(ctx context.Context, patterns []entity.ArchitecturalPattern) error

	// Find retrieves patterns matching the given options.
	Find(ctx context.Context, options ...repo.Option) ([]entity.ArchitecturalPattern, error)

	// Count returns the number of matching patterns.
	Count(ctx context.Context, options ...repo.Option) (int64, error)

	// PruneStale removes the repository's patterns that are not in the
	// live id set, returning how many were removed.
	PruneStale(ctx context.Context, repositoryID int64, liveIDs []string) (int64, error)

	// DeleteBy removes patterns matching the given options.
	DeleteBy(ctx context.Context, options ...repo.Option) error
}

// Stores bundles the four graph persistence contracts the way the builder
// consumes them.
type Stores struct {
	Graphs        Store
	Entities      EntityStore
	Relationships RelationshipStore
	Patterns      PatternStore
}
