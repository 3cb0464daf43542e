package service

import (
	"context"
	"testing"

	"github.com/codelore/codelore/domain/graph"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/infrastructure/persistence"
	"github.com/codelore/codelore/infrastructure/provider"
	"github.com/codelore/codelore/internal/config"
	"github.com/codelore/codelore/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scopedSearcher honors the repository filter, so per-repository
// retrievals see only their own candidates.
type scopedSearcher struct {
	candidates []search.Candidate
}

func (f *scopedSearcher) Search(_ context.Context, query search.Query) ([]search.Candidate, error) {
	var matched []search.Candidate
	for _, c := range f.candidates {
		if query.Filters().Matches(c.Document()) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

func newRetrieval(t *testing.T, searcher CandidateSearcher, generator provider.TextGenerator) *Retrieval {
	t.Helper()
	db := testdb.New(t)
	stores := graph.Stores{
		Graphs:        persistence.NewGraphStore(db),
		Entities:      persistence.NewEntityStore(db),
		Relationships: persistence.NewRelationshipStore(db),
		Patterns:      persistence.NewPatternStore(db),
	}
	return NewRetrieval(searcher, stores, generator, config.NewChatConfig(), testLogger())
}

func TestRetrieval_BuildCrossRepositoryContext(t *testing.T) {
	ctx := context.Background()
	searcher := &scopedSearcher{candidates: []search.Candidate{
		chunkCandidate(t, "1:auth/session.go:1-10", 1, "auth/session.go", "type Session struct{}", 0.9),
		chunkCandidate(t, "2:auth/token.go:1-10", 2, "auth/token.go", "type Token struct{}", 0.8),
	}}
	generator := &scriptedGenerator{responses: []string{
		`{"common_patterns": "Both keep auth state in a dedicated package.", "differences": "Repository 1 uses sessions, repository 2 uses tokens."}`,
	}}
	retrieval := newRetrieval(t, searcher, generator)

	cc, err := retrieval.BuildCrossRepositoryContext(ctx, "how is auth state kept?",
		search.IntentExplainConcept, []int64{1, 2}, 5)
	require.NoError(t, err)

	require.Len(t, cc.Results, 2)
	require.Len(t, cc.ByRepository, 2)
	assert.Len(t, cc.ByRepository[1], 1)
	assert.Len(t, cc.ByRepository[2], 1)
	assert.Contains(t, cc.CommonPatterns, "dedicated package")
	assert.Contains(t, cc.Differences, "tokens")
}

func TestRetrieval_BuildCrossRepositoryContextWithoutGenerator(t *testing.T) {
	ctx := context.Background()
	searcher := &scopedSearcher{candidates: []search.Candidate{
		chunkCandidate(t, "1:a.go:1-10", 1, "a.go", "package a", 0.9),
		chunkCandidate(t, "2:b.go:1-10", 2, "b.go", "package b", 0.8),
	}}
	retrieval := newRetrieval(t, searcher, nil)

	cc, err := retrieval.BuildCrossRepositoryContext(ctx, "compare", search.IntentExplainConcept, []int64{1, 2}, 5)
	require.NoError(t, err)
	assert.Len(t, cc.Results, 2)
	assert.Empty(t, cc.CommonPatterns)
	assert.Empty(t, cc.Differences)
}

func TestRetrieval_BuildCrossRepositoryContextSurvivesSummaryFailure(t *testing.T) {
	ctx := context.Background()
	searcher := &scopedSearcher{candidates: []search.Candidate{
		chunkCandidate(t, "1:a.go:1-10", 1, "a.go", "package a", 0.9),
		chunkCandidate(t, "2:b.go:1-10", 2, "b.go", "package b", 0.8),
	}}
	generator := &scriptedGenerator{responses: []string{"not json"}}
	retrieval := newRetrieval(t, searcher, generator)

	cc, err := retrieval.BuildCrossRepositoryContext(ctx, "compare", search.IntentExplainConcept, []int64{1, 2}, 5)
	require.NoError(t, err)
	assert.Len(t, cc.Results, 2)
	assert.Empty(t, cc.CommonPatterns)
}
