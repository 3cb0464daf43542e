package repository

import (
	"context"
	"testing"
	"time"

	"github.com/codelore/codelore/application/service"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/analyzer"
	"github.com/codelore/codelore/infrastructure/persistence"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/internal/config"
	"github.com/codelore/codelore/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOperations(t *testing.T, queue *service.Queue) []task.Operation {
	t.Helper()
	tasks, err := queue.List(context.Background(), nil)
	require.NoError(t, err)
	ops := make([]task.Operation, 0, len(tasks))
	for _, pending := range tasks {
		ops = append(ops, pending.Operation())
	}
	return ops
}

func TestRefresh_SkipsUnchangedRepository(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	queue := service.NewQueue(persistence.NewTaskStore(db), testLogger())
	host := newFakeHost()
	factory := &fakeTrackerFactory{}

	// Indexed after the head commit, with a matching inventory digest.
	repository := readyRepository(t, repos, "digest-1", time.Now().Add(-time.Hour))

	h := NewRefresh(repos, analyzer.NewAnalyzer(host, testLogger()), queue,
		config.NewIngestionConfig(), config.NewDocsConfig(), source.Credential{}, factory, testLogger())
	require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": repository.ID()}))

	assert.NotEmpty(t, factory.last.skipped)
	assert.Empty(t, pendingOperations(t, queue))
}

func TestRefresh_EnqueuesReindexWhenChanged(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	queue := service.NewQueue(persistence.NewTaskStore(db), testLogger())
	host := newFakeHost()
	factory := &fakeTrackerFactory{}

	// The head commit postdates the last index run.
	repository := readyRepository(t, repos, "digest-1", time.Now().Add(-72*time.Hour))

	h := NewRefresh(repos, analyzer.NewAnalyzer(host, testLogger()), queue,
		config.NewIngestionConfig(), config.NewDocsConfig(), source.Credential{}, factory, testLogger())
	require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": repository.ID()}))

	ops := pendingOperations(t, queue)
	assert.Contains(t, ops, task.OperationAnalyzeStructure)
	assert.NotContains(t, ops, task.OperationConnectRepository)
	assert.True(t, factory.last.complete)
}

func TestRefresh_SkipsNonReadyRepository(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	queue := service.NewQueue(persistence.NewTaskStore(db), testLogger())
	factory := &fakeTrackerFactory{}

	repository, err := repo.NewRepository("https://github.com/acme/widgets")
	require.NoError(t, err)
	repository, err = repos.Save(ctx, repository)
	require.NoError(t, err)

	h := NewRefresh(repos, analyzer.NewAnalyzer(newFakeHost(), testLogger()), queue,
		config.NewIngestionConfig(), config.NewDocsConfig(), source.Credential{}, factory, testLogger())
	require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": repository.ID()}))

	assert.NotEmpty(t, factory.last.skipped)
	assert.Empty(t, pendingOperations(t, queue))
}
