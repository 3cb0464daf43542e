package ingestion

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/codelore/codelore/application/service"
	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/graph"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/infrastructure/persistence"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/internal/config"
	"github.com/codelore/codelore/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records every batch it is asked to embed. failures
// injects that many failing calls before embedding succeeds.
type countingEmbedder struct {
	batches  [][]string
	calls    int
	failures int
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	e.calls++
	if e.failures > 0 {
		e.failures--
		return nil, fault.New(fault.KindRateLimited, "embedding quota throttled")
	}
	e.batches = append(e.batches, texts)
	vectors := make([][]float64, len(texts))
	for i := range texts {
		vectors[i] = []float64{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

// savedVectors records the vector maps persisted through the entity store.
type vectorRecordingStore struct {
	graph.EntityStore
	saved []map[string][]float64
}

func (s *vectorRecordingStore) SaveVectors(ctx context.Context, vectors map[string][]float64) error {
	copied := make(map[string][]float64, len(vectors))
	for id, v := range vectors {
		copied[id] = v
	}
	s.saved = append(s.saved, copied)
	return s.EntityStore.SaveVectors(ctx, vectors)
}

// manyFuncsSource parses into well over one embedding batch of entities.
func manyFuncsSource() string {
	var b strings.Builder
	b.WriteString("package widgets\n")
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&b, "\nfunc Widget%d() int {\n\treturn %d\n}\n", i, i)
	}
	return b.String()
}

type extractHarness struct {
	handler  *ExtractEntities
	repos    repo.Store
	stores   graph.Stores
	recorder *vectorRecordingStore
	embedder *countingEmbedder
	repoID   int64
	factory  *fakeTrackerFactory
}

func newExtractHarness(t *testing.T, embedder *countingEmbedder) *extractHarness {
	t.Helper()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	recorder := &vectorRecordingStore{EntityStore: persistence.NewEntityStore(db)}
	stores := graph.Stores{
		Graphs:        persistence.NewGraphStore(db),
		Entities:      recorder,
		Relationships: persistence.NewRelationshipStore(db),
		Patterns:      persistence.NewPatternStore(db),
	}

	host := newFakeHost()
	host.files = map[string]string{"widgets.go": manyFuncsSource()}
	host.inventory = source.Inventory{
		Digest: "digest-embed",
		Files:  []source.FileRecord{{Path: "widgets.go", Size: 900}},
	}

	builder := service.NewGraphBuilder(stores, repos, host, config.NewGraphConfig(), testLogger())
	repository := savedRepository(t, repos, repo.StatusAnalyzing)
	factory := &fakeTrackerFactory{}

	h := NewExtractEntities(repos, builder, stores, embedder, source.Credential{},
		&capturePublisher{}, factory, testLogger()).
		WithRetryPolicy(fastPolicy(3))
	return &extractHarness{
		handler:  h,
		repos:    repos,
		stores:   stores,
		recorder: recorder,
		embedder: embedder,
		repoID:   repository.ID(),
		factory:  factory,
	}
}

func TestExtractEntities_EmbedsContentInBatches(t *testing.T) {
	ctx := context.Background()
	embedder := &countingEmbedder{}
	h := newExtractHarness(t, embedder)

	require.NoError(t, h.handler.Execute(ctx, map[string]any{"repository_id": h.repoID}))

	entities, err := h.stores.Entities.Find(ctx, repo.WithRepositoryID(h.repoID))
	require.NoError(t, err)
	require.Greater(t, len(entities), config.DefaultEmbeddingBatchSize)

	// Every entity was embedded, no batch exceeded the configured size.
	embeddedTexts := 0
	for _, batch := range embedder.batches {
		assert.LessOrEqual(t, len(batch), config.DefaultEmbeddingBatchSize)
		embeddedTexts += len(batch)
	}
	assert.Equal(t, len(entities), embeddedTexts)
	assert.GreaterOrEqual(t, len(embedder.batches), 2)

	persisted := make(map[string]struct{})
	for _, saved := range h.recorder.saved {
		for id := range saved {
			persisted[id] = struct{}{}
		}
	}
	for _, e := range entities {
		assert.Contains(t, persisted, e.EntityID())
	}
	assert.True(t, h.factory.last.complete)
}

func TestExtractEntities_RetriesEmbeddingFailures(t *testing.T) {
	ctx := context.Background()
	embedder := &countingEmbedder{failures: 1}
	h := newExtractHarness(t, embedder)

	require.NoError(t, h.handler.Execute(ctx, map[string]any{"repository_id": h.repoID}))

	// The first call failed and was retried; every batch still landed.
	assert.Equal(t, len(embedder.batches)+1, embedder.calls)
	assert.NotEmpty(t, h.recorder.saved)
}

func TestExtractEntities_SurvivesEmbeddingOutage(t *testing.T) {
	ctx := context.Background()
	embedder := &countingEmbedder{failures: 1000}
	h := newExtractHarness(t, embedder)

	// Embedding is enrichment: extraction completes without vectors.
	require.NoError(t, h.handler.Execute(ctx, map[string]any{"repository_id": h.repoID}))

	entities, err := h.stores.Entities.Find(ctx, repo.WithRepositoryID(h.repoID))
	require.NoError(t, err)
	assert.NotEmpty(t, entities)
	assert.Empty(t, h.recorder.saved)
	assert.True(t, h.factory.last.complete)
}

func TestExtractEntities_NilEmbedderSkipsVectors(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	recorder := &vectorRecordingStore{EntityStore: persistence.NewEntityStore(db)}
	stores := graph.Stores{
		Graphs:        persistence.NewGraphStore(db),
		Entities:      recorder,
		Relationships: persistence.NewRelationshipStore(db),
		Patterns:      persistence.NewPatternStore(db),
	}
	host := newFakeHost()
	builder := service.NewGraphBuilder(stores, repos, host, config.NewGraphConfig(), testLogger())
	repository := savedRepository(t, repos, repo.StatusAnalyzing)
	factory := &fakeTrackerFactory{}

	h := NewExtractEntities(repos, builder, stores, nil, source.Credential{},
		&capturePublisher{}, factory, testLogger())
	require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": repository.ID()}))

	assert.Empty(t, recorder.saved)
	assert.True(t, factory.last.complete)
}
