package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder maps keywords to axis-aligned vectors so similarity ranking
// is exact in tests. failCalls makes the first n Embed calls fail.
type stubEmbedder struct {
	calls     int
	failCalls int
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	e.calls++
	if e.calls <= e.failCalls {
		return nil, errors.New("embedding provider unavailable")
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = stubVector(text)
	}
	return out, nil
}

func stubVector(text string) []float64 {
	switch {
	case strings.Contains(text, "auth"):
		return []float64{1, 0, 0}
	case strings.Contains(text, "billing"):
		return []float64{0, 1, 0}
	default:
		return []float64{0, 0, 1}
	}
}

func vectorDoc(t *testing.T, id string, repositoryID int64, content string) search.Document {
	t.Helper()
	doc, err := search.NewDocument(id, repositoryID, search.KindCodeChunk, content)
	require.NoError(t, err)
	return doc
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1.0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1.0},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0.0},
		{"scaled", []float64{1, 2}, []float64{2, 4}, 1.0},
		{"length mismatch", []float64{1, 2}, []float64{1, 2, 3}, 0.0},
		{"zero vector", []float64{0, 0}, []float64{1, 2}, 0.0},
		{"empty", nil, nil, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestTopKSimilar(t *testing.T) {
	vectors := []StoredVector{
		NewStoredVector("far", []float64{0, 1, 0}),
		NewStoredVector("exact", []float64{1, 0, 0}),
		NewStoredVector("close", []float64{1, 0.2, 0}),
	}

	matches := TopKSimilar([]float64{1, 0, 0}, vectors, 2)
	require.Len(t, matches, 2)
	assert.Equal(t, "exact", matches[0].DocumentID())
	assert.Equal(t, "close", matches[1].DocumentID())
	assert.InDelta(t, 1.0, matches[0].Similarity(), 1e-9)

	assert.Empty(t, TopKSimilar([]float64{1, 0, 0}, nil, 2))
	assert.Empty(t, TopKSimilar([]float64{1, 0, 0}, vectors, 0))
	assert.Len(t, TopKSimilar([]float64{1, 0, 0}, vectors, 10), 3)
}

func TestTopKSimilarFiltered(t *testing.T) {
	vectors := []StoredVector{
		NewStoredVector("exact", []float64{1, 0, 0}),
		NewStoredVector("close", []float64{1, 0.2, 0}),
	}

	matches := TopKSimilarFiltered([]float64{1, 0, 0}, vectors, 5,
		map[string]struct{}{"close": {}})
	require.Len(t, matches, 1)
	assert.Equal(t, "close", matches[0].DocumentID())

	// An empty allow set means unrestricted.
	matches = TopKSimilarFiltered([]float64{1, 0, 0}, vectors, 5, nil)
	assert.Len(t, matches, 2)
}

func TestSQLiteVectorStore_IndexAndFind(t *testing.T) {
	db := newTestDB(t)
	embedder := &stubEmbedder{}
	store := NewSQLiteVectorStore(db, embedder, nil)
	ctx := context.Background()

	err := store.Index(ctx, search.NewIndexRequest([]search.Document{
		vectorDoc(t, "chunk-auth", 1, "auth middleware checks the session"),
		vectorDoc(t, "chunk-billing", 1, "billing cycle runs nightly"),
		vectorDoc(t, "chunk-other", 2, "parses configuration"),
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls)

	results, err := store.Find(ctx, search.WithQuery("auth"), search.WithTopK(2))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "chunk-auth", results[0].DocumentID())
	assert.InDelta(t, 1.0, results[0].Score(), 1e-9)
	assert.Greater(t, results[0].Score(), results[1].Score())
}

func TestSQLiteVectorStore_FindWithPrecomputedEmbedding(t *testing.T) {
	db := newTestDB(t)
	embedder := &stubEmbedder{}
	store := NewSQLiteVectorStore(db, embedder, nil)
	ctx := context.Background()

	err := store.Index(ctx, search.NewIndexRequest([]search.Document{
		vectorDoc(t, "chunk-billing", 1, "billing cycle runs nightly"),
	}))
	require.NoError(t, err)

	results, err := store.Find(ctx, search.WithEmbedding([]float64{0, 1, 0}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chunk-billing", results[0].DocumentID())

	// The pre-computed vector bypasses the embedder.
	assert.Equal(t, 1, embedder.calls)
}

func TestSQLiteVectorStore_FindFilters(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLiteVectorStore(db, &stubEmbedder{}, nil)
	ctx := context.Background()

	err := store.Index(ctx, search.NewIndexRequest([]search.Document{
		vectorDoc(t, "chunk-1", 1, "auth handler"),
		vectorDoc(t, "chunk-2", 2, "auth checker"),
	}))
	require.NoError(t, err)

	results, err := store.Find(ctx,
		search.WithQuery("auth"),
		search.WithFilters(search.NewFilters(search.WithRepositories(2))),
	)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chunk-2", results[0].DocumentID())

	// Restricting to explicit document ids prunes candidates before ranking.
	results, err = store.Find(ctx,
		search.WithQuery("auth"),
		search.WithDocumentIDs([]string{"chunk-1"}),
	)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chunk-1", results[0].DocumentID())
}

func TestSQLiteVectorStore_HasEmbeddings(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLiteVectorStore(db, &stubEmbedder{}, nil)
	ctx := context.Background()

	err := store.Index(ctx, search.NewIndexRequest([]search.Document{
		vectorDoc(t, "chunk-1", 1, "auth handler"),
	}))
	require.NoError(t, err)

	coverage, err := store.HasEmbeddings(ctx, []string{"chunk-1", "chunk-2"})
	require.NoError(t, err)
	assert.True(t, coverage["chunk-1"])
	assert.False(t, coverage["chunk-2"])
}

func TestSQLiteVectorStore_IndexContinuesPastFailedBatch(t *testing.T) {
	db := newTestDB(t)
	// The first Embed call fails; documents beyond the first batch still
	// get indexed.
	embedder := &stubEmbedder{failCalls: 1}
	store := NewSQLiteVectorStore(db, embedder, nil)
	ctx := context.Background()

	docs := make([]search.Document, embedBatchSize+1)
	for i := range docs {
		docs[i] = vectorDoc(t, fmt.Sprintf("chunk-%d", i), 1, fmt.Sprintf("auth handler %d", i))
	}

	var failures [][2]int
	var progressCalls [][2]int
	err := store.Index(ctx, search.NewIndexRequest(docs),
		search.WithBatchError(func(start, end int, err error) {
			failures = append(failures, [2]int{start, end})
			assert.Error(t, err)
		}),
		search.WithProgress(func(completed, total int) {
			progressCalls = append(progressCalls, [2]int{completed, total})
		}),
	)
	require.NoError(t, err)

	require.Len(t, failures, 1)
	assert.Equal(t, [2]int{0, embedBatchSize}, failures[0])
	require.Len(t, progressCalls, 1)
	assert.Equal(t, [2]int{1, embedBatchSize + 1}, progressCalls[0])

	coverage, err := store.HasEmbeddings(ctx, []string{"chunk-0", fmt.Sprintf("chunk-%d", embedBatchSize)})
	require.NoError(t, err)
	assert.False(t, coverage["chunk-0"])
	assert.True(t, coverage[fmt.Sprintf("chunk-%d", embedBatchSize)])
}

func TestSQLiteVectorStore_IndexFailsWhenEverythingFails(t *testing.T) {
	db := newTestDB(t)
	embedder := &stubEmbedder{failCalls: 100}
	store := NewSQLiteVectorStore(db, embedder, nil)

	err := store.Index(context.Background(), search.NewIndexRequest([]search.Document{
		vectorDoc(t, "chunk-1", 1, "auth handler"),
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding provider unavailable")
}

func TestSQLiteVectorStore_DeleteBy(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLiteVectorStore(db, &stubEmbedder{}, nil)
	ctx := context.Background()

	err := store.Index(ctx, search.NewIndexRequest([]search.Document{
		vectorDoc(t, "chunk-1", 1, "auth handler"),
		vectorDoc(t, "chunk-2", 2, "billing job"),
	}))
	require.NoError(t, err)

	require.NoError(t, store.DeleteBy(ctx, repo.WithRepositoryID(1)))

	coverage, err := store.HasEmbeddings(ctx, []string{"chunk-1", "chunk-2"})
	require.NoError(t, err)
	assert.False(t, coverage["chunk-1"])
	assert.True(t, coverage["chunk-2"])
}
