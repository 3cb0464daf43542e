package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/infrastructure/index"
	"github.com/codelore/codelore/infrastructure/persistence"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/internal/config"
	"github.com/codelore/codelore/internal/database"
	"github.com/codelore/codelore/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flatEmbedder returns the same vector for every text; similarity does
// not matter here, only that indexing succeeds.
type flatEmbedder struct{}

func (flatEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

func newTestIndexer(t *testing.T, db database.Database) *index.Indexer {
	t.Helper()
	lexical, err := persistence.NewLexicalStore(db, nil)
	require.NoError(t, err)
	vector := persistence.NewSQLiteVectorStore(db, flatEmbedder{}, nil)
	documents := persistence.NewSearchDocumentStore(db)
	return index.NewIndexer(lexical, vector, documents, config.NewIndexingConfig(), nil)
}

func TestIndexContent_IndexesAndPrunes(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	indexer := newTestIndexer(t, db)
	host := newFakeHost()
	// An oversize file never reaches the indexer.
	host.inventory.Files = append(host.inventory.Files,
		source.FileRecord{Path: "big/blob.go", Size: source.MaxFileBytes + 1})
	bus := &capturePublisher{}
	factory := &fakeTrackerFactory{}

	repository := savedRepository(t, repos, repo.StatusAnalyzing)

	// A chunk for a file no longer in the inventory must be pruned.
	_, err := indexer.IndexFile(ctx, repository.ID(), "gone.go", "Go", "package gone\n")
	require.NoError(t, err)

	h := NewIndexContent(repos, host, indexer, source.Credential{}, bus, factory, testLogger())
	require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": repository.ID()}))

	updated, err := repos.FindOne(ctx, repo.WithID(repository.ID()))
	require.NoError(t, err)
	assert.Equal(t, repo.StatusReady, updated.Status())
	assert.False(t, updated.LastIndexedAt().IsZero())

	results, err := indexer.Search(ctx, search.NewQuery("widget", search.TypeLexical,
		search.NewFilters(search.WithRepositories(repository.ID())), 10))
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	for _, candidate := range results {
		assert.NotEqual(t, "gone.go", candidate.Document().Path())
		assert.NotEqual(t, "big/blob.go", candidate.Document().Path())
	}

	assert.Len(t, bus.ofType(event.TypeRepositoryReady), 1)
	changes := bus.ofType(event.TypeRepositoryStatusChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, repo.StatusReady.String(), changes[0].(event.RepositoryStatusChanged).To)
	assert.True(t, factory.last.complete)
}

// flakyReadHost fails a number of ReadFile calls before delegating to the
// canned host.
type flakyReadHost struct {
	*fakeHost
	failures  int
	readCalls int
	readErr   error
}

func (f *flakyReadHost) ReadFile(ctx context.Context, repository repo.Repository, branch, path string, cred source.Credential) ([]byte, error) {
	f.readCalls++
	if f.failures > 0 {
		f.failures--
		return nil, f.readErr
	}
	return f.fakeHost.ReadFile(ctx, repository, branch, path, cred)
}

func TestIndexContent_RetriesTransientReads(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	host := &flakyReadHost{
		fakeHost: newFakeHost(),
		failures: 2,
		readErr:  fault.New(fault.KindRateLimited, "abuse detection triggered").WithRetryAfter(time.Millisecond),
	}
	bus := &capturePublisher{}
	factory := &fakeTrackerFactory{}

	repository := savedRepository(t, repos, repo.StatusAnalyzing)

	h := NewIndexContent(repos, host, newTestIndexer(t, db), source.Credential{}, bus, factory, testLogger()).
		WithRetryPolicy(fastPolicy(3))
	require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": repository.ID()}))

	updated, err := repos.FindOne(ctx, repo.WithID(repository.ID()))
	require.NoError(t, err)
	assert.Equal(t, repo.StatusReady, updated.Status())
	// Two files indexed plus the two injected failures.
	assert.Equal(t, 4, host.readCalls)
}

func TestIndexContent_ExhaustedReadsFailRepository(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	host := &flakyReadHost{
		fakeHost: newFakeHost(),
		failures: 1000,
		readErr:  fault.New(fault.KindSourceUnavailable, "host under maintenance"),
	}
	bus := &capturePublisher{}
	factory := &fakeTrackerFactory{}

	repository := savedRepository(t, repos, repo.StatusAnalyzing)

	h := NewIndexContent(repos, host, newTestIndexer(t, db), source.Credential{}, bus, factory, testLogger()).
		WithRetryPolicy(fastPolicy(2))
	err := h.Execute(ctx, map[string]any{"repository_id": repository.ID()})
	require.Error(t, err)

	// The first file burned the whole budget before the repository failed.
	assert.Equal(t, 2, host.readCalls)
	updated, err := repos.FindOne(ctx, repo.WithID(repository.ID()))
	require.NoError(t, err)
	assert.Equal(t, repo.StatusError, updated.Status())
	assert.NotEmpty(t, factory.last.failed)
}

func TestIndexContent_SkipsWhenNotAnalyzing(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	bus := &capturePublisher{}
	factory := &fakeTrackerFactory{}

	repository := savedRepository(t, repos, repo.StatusReady)

	h := NewIndexContent(repos, newFakeHost(), newTestIndexer(t, db), source.Credential{}, bus, factory, testLogger())
	require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": repository.ID()}))

	assert.NotEmpty(t, factory.last.skipped)
	assert.Empty(t, bus.events)
}
