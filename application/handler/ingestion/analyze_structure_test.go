package ingestion

import (
	"context"
	"testing"

	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/infrastructure/analyzer"
	"github.com/codelore/codelore/infrastructure/persistence"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeStructure_ProfilesRepository(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	host := newFakeHost()
	bus := &capturePublisher{}
	factory := &fakeTrackerFactory{}

	repository := savedRepository(t, repos, repo.StatusConnected)

	h := NewAnalyzeStructure(repos, analyzer.NewAnalyzer(host, testLogger()), source.Credential{}, bus, factory, testLogger())
	require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": repository.ID()}))

	updated, err := repos.FindOne(ctx, repo.WithID(repository.ID()))
	require.NoError(t, err)
	assert.Equal(t, repo.StatusAnalyzing, updated.Status())
	assert.Equal(t, 2, updated.Statistics().FileCount())
	assert.Equal(t, "Go", updated.Statistics().PrimaryLanguage())
	assert.Equal(t, "digest-1", updated.InventoryDigest())

	changes := bus.ofType(event.TypeRepositoryStatusChanged)
	require.Len(t, changes, 1)
	change := changes[0].(event.RepositoryStatusChanged)
	assert.Equal(t, repo.StatusConnected.String(), change.From)
	assert.Equal(t, repo.StatusAnalyzing.String(), change.To)
	assert.True(t, factory.last.complete)
}

func TestAnalyzeStructure_SkipsUnconnected(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	factory := &fakeTrackerFactory{}

	repository := savedRepository(t, repos, repo.StatusConnecting)

	h := NewAnalyzeStructure(repos, analyzer.NewAnalyzer(newFakeHost(), testLogger()), source.Credential{}, &capturePublisher{}, factory, testLogger())
	require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": repository.ID()}))

	assert.NotEmpty(t, factory.last.skipped)
}
