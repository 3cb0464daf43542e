// Package graph defines the knowledge-graph aggregate spanning one or more
// repositories and the store contracts for its entities, relationships, and
// patterns.
package graph

import (
	"time"

	"github.com/codelore/codelore/domain/fault"
)

// Statistics summarizes a built graph.
type Statistics struct {
	EntityCount       int64
	RelationshipCount int64
	PatternCount      int64
	BuiltAt           time.Time
	BuildDuration     time.Duration
}

// KnowledgeGraph is the aggregate tracking graph builds over a distinct,
// non-empty set of repositories.
type KnowledgeGraph struct {
	id            int64
	repositoryIDs []int64
	status        Status
	stats         Statistics
	metadata      map[string]string
	createdAt     time.Time
	updatedAt     time.Time
}

// NewKnowledgeGraph creates a graph in the NotBuilt state over the given
// repositories. IDs must be non-empty and distinct.
func NewKnowledgeGraph(repositoryIDs []int64) (KnowledgeGraph, error) {
	if len(repositoryIDs) == 0 {
		return KnowledgeGraph{}, fault.Validation("knowledge graph requires at least one repository")
	}
	seen := make(map[int64]struct{}, len(repositoryIDs))
	for _, id := range repositoryIDs {
		if _, dup := seen[id]; dup {
			return KnowledgeGraph{}, fault.Validationf("knowledge graph repository ids contain duplicate %d", id)
		}
		seen[id] = struct{}{}
	}

	now := time.Now().UTC()
	ids := make([]int64, len(repositoryIDs))
	copy(ids, repositoryIDs)
	return KnowledgeGraph{
		repositoryIDs: ids,
		status:        StatusNotBuilt,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// ReconstructKnowledgeGraph rebuilds a graph from persistence.
func ReconstructKnowledgeGraph(
	id int64,
	repositoryIDs []int64,
	status Status,
	stats Statistics,
	metadata map[string]string,
	createdAt time.Time,
	updatedAt time.Time,
) KnowledgeGraph {
	ids := make([]int64, len(repositoryIDs))
	copy(ids, repositoryIDs)
	var meta map[string]string
	if metadata != nil {
		meta = make(map[string]string, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
	}
	return KnowledgeGraph{
		id:            id,
		repositoryIDs: ids,
		status:        status,
		stats:         stats,
		metadata:      meta,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

// ID returns the database identifier (0 until first save).
func (g KnowledgeGraph) ID() int64 { return g.id }

// RepositoryIDs returns a copy of the covered repository ids.
func (g KnowledgeGraph) RepositoryIDs() []int64 {
	ids := make([]int64, len(g.repositoryIDs))
	copy(ids, g.repositoryIDs)
	return ids
}

// Covers reports whether the graph includes the repository.
func (g KnowledgeGraph) Covers(repositoryID int64) bool {
	for _, id := range g.repositoryIDs {
		if id == repositoryID {
			return true
		}
	}
	return false
}

// Status returns the build state.
func (g KnowledgeGraph) Status() Status { return g.status }

// Statistics returns the last build statistics.
func (g KnowledgeGraph) Statistics() Statistics { return g.stats }

// Metadata returns a copy of build metadata.
func (g KnowledgeGraph) Metadata() map[string]string {
	if g.metadata == nil {
		return nil
	}
	out := make(map[string]string, len(g.metadata))
	for k, v := range g.metadata {
		out[k] = v
	}
	return out
}

// CreatedAt returns when the graph was registered.
func (g KnowledgeGraph) CreatedAt() time.Time { return g.createdAt }

// UpdatedAt returns the last mutation time.
func (g KnowledgeGraph) UpdatedAt() time.Time { return g.updatedAt }

// WithID returns a copy with the database identifier set.
func (g KnowledgeGraph) WithID(id int64) KnowledgeGraph {
	g.id = id
	return g
}

// Transition advances the build state along an allowed edge.
func (g KnowledgeGraph) Transition(next Status) (KnowledgeGraph, error) {
	status, err := g.status.TransitionTo(next)
	if err != nil {
		return g, err
	}
	g.status = status
	g.updatedAt = time.Now().UTC()
	return g, nil
}

// WithStatistics returns a copy carrying fresh build statistics.
func (g KnowledgeGraph) WithStatistics(stats Statistics) KnowledgeGraph {
	g.stats = stats
	g.updatedAt = time.Now().UTC()
	return g
}

// WithMetadata returns a copy with one metadata key set.
func (g KnowledgeGraph) WithMetadata(key, value string) KnowledgeGraph {
	meta := make(map[string]string, len(g.metadata)+1)
	for k, v := range g.metadata {
		meta[k] = v
	}
	meta[key] = value
	g.metadata = meta
	g.updatedAt = time.Now().UTC()
	return g
}
