package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/persistence"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/internal/retry"
	"github.com/codelore/codelore/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeTracker records the terminal call so tests can assert how a handler
// finished.
type fakeTracker struct {
	skipped  string
	failed   string
	complete bool
}

func (f *fakeTracker) SetTotal(_ context.Context, _ int)             {}
func (f *fakeTracker) SetCurrent(_ context.Context, _ int, _ string) {}
func (f *fakeTracker) Skip(_ context.Context, reason string)         { f.skipped = reason }
func (f *fakeTracker) Fail(_ context.Context, reason string)         { f.failed = reason }
func (f *fakeTracker) Complete(_ context.Context)                    { f.complete = true }

type fakeTrackerFactory struct {
	last *fakeTracker
}

func (f *fakeTrackerFactory) ForOperation(_ task.Operation, _ task.TrackableType, _ int64) handler.Tracker {
	f.last = &fakeTracker{}
	return f.last
}

// capturePublisher records every published event for inspection.
type capturePublisher struct {
	events []event.Event
}

func (c *capturePublisher) Publish(_ context.Context, events ...event.Event) {
	c.events = append(c.events, events...)
}

func (c *capturePublisher) ofType(typ string) []event.Event {
	var matched []event.Event
	for _, ev := range c.events {
		if ev.EventType() == typ {
			matched = append(matched, ev)
		}
	}
	return matched
}

// fakeHost is a canned source adapter. It also implements
// source.InventorySource so the analyzer and content indexing can run
// against it. accessFailures injects that many failing ValidateAccess
// calls before the canned answer takes over.
type fakeHost struct {
	accessible     bool
	accessErr      error
	accessFailures int
	accessCalls    int
	meta           repo.RemoteMetadata
	branches       []string
	commits        []repo.Commit
	inventory      source.Inventory
	files          map[string]string
}

func (f *fakeHost) ValidateAccess(_ context.Context, _ string, _ source.Credential) (bool, error) {
	f.accessCalls++
	if f.accessFailures > 0 {
		f.accessFailures--
		return false, f.accessErr
	}
	return f.accessible, nil
}

func (f *fakeHost) ConnectRepository(_ context.Context, _ string, _ source.Credential) (repo.RemoteMetadata, error) {
	return f.meta, nil
}

func (f *fakeHost) ListBranches(_ context.Context, repository repo.Repository, _ source.Credential) ([]repo.Branch, error) {
	var branches []repo.Branch
	for _, name := range f.branches {
		branch, err := repo.NewBranch(repository.ID(), name, name == f.meta.DefaultBranch)
		if err != nil {
			return nil, err
		}
		branches = append(branches, branch)
	}
	return branches, nil
}

func (f *fakeHost) ListCommits(_ context.Context, repository repo.Repository, _ string, limit int, _ source.Credential) ([]repo.Commit, error) {
	var commits []repo.Commit
	for _, c := range f.commits {
		commit, err := repo.NewCommit(repository.ID(), c.SHA(), c.Message(), c.Author(), c.AuthoredAt())
		if err != nil {
			return nil, err
		}
		commits = append(commits, commit)
	}
	if limit > 0 && limit < len(commits) {
		return commits[:limit], nil
	}
	return commits, nil
}

func (f *fakeHost) AnalyzeStructure(_ context.Context, _ repo.Repository, _ string, _ source.Credential) (repo.Statistics, error) {
	return f.inventory.Statistics, nil
}

func (f *fakeHost) ReadFile(_ context.Context, _ repo.Repository, _, path string, _ source.Credential) ([]byte, error) {
	content, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return []byte(content), nil
}

func (f *fakeHost) Inventory(_ context.Context, _ repo.Repository, _ string, _ source.Credential) (source.Inventory, error) {
	return f.inventory, nil
}

func newFakeHost() *fakeHost {
	goStats := repo.ComputeStatistics(map[string]repo.LanguageStat{
		"Go": {FileCount: 2, LineCount: 120},
	})
	commit, _ := repo.NewCommit(0, "abc1234def", "initial commit", "dev", time.Now().Add(-time.Hour))
	return &fakeHost{
		accessible: true,
		meta: repo.RemoteMetadata{
			Owner:         "acme",
			Name:          "widgets",
			Description:   "widget service",
			DefaultBranch: "main",
		},
		branches: []string{"main", "develop"},
		commits:  []repo.Commit{commit},
		inventory: source.Inventory{
			Statistics: goStats,
			Digest:     "digest-1",
			Files: []source.FileRecord{
				{Path: "main.go", Size: 140},
				{Path: "internal/widget/widget.go", Size: 512},
			},
		},
		files: map[string]string{
			"main.go":                   "package main\n\nfunc main() {}\n",
			"internal/widget/widget.go": "package widget\n\ntype Widget struct{}\n",
		},
	}
}

func savedRepository(t *testing.T, repos repo.Store, status repo.Status) repo.Repository {
	t.Helper()
	repository, err := repo.NewRepository("https://github.com/acme/widgets")
	require.NoError(t, err)
	for _, next := range pathTo(status) {
		repository, err = repository.Transition(next)
		require.NoError(t, err)
	}
	repository, err = repos.Save(context.Background(), repository)
	require.NoError(t, err)
	return repository
}

// pathTo returns the transitions from the initial Connecting state to the
// wanted status.
func pathTo(status repo.Status) []repo.Status {
	switch status {
	case repo.StatusConnected:
		return []repo.Status{repo.StatusConnected}
	case repo.StatusAnalyzing:
		return []repo.Status{repo.StatusConnected, repo.StatusAnalyzing}
	case repo.StatusReady:
		return []repo.Status{repo.StatusConnected, repo.StatusAnalyzing, repo.StatusReady}
	default:
		return nil
	}
}

func TestConnect_HappyPath(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	branches := persistence.NewBranchStore(db)
	commits := persistence.NewCommitStore(db)
	host := newFakeHost()
	bus := &capturePublisher{}
	factory := &fakeTrackerFactory{}

	repository := savedRepository(t, repos, repo.StatusConnecting)

	h := NewConnect(repos, branches, commits, host, source.Credential{}, bus, factory, testLogger())
	err := h.Execute(ctx, map[string]any{"repository_id": repository.ID()})
	require.NoError(t, err)

	updated, err := repos.FindOne(ctx, repo.WithID(repository.ID()))
	require.NoError(t, err)
	assert.Equal(t, repo.StatusConnected, updated.Status())
	assert.Equal(t, "main", updated.DefaultBranch())
	assert.Equal(t, "widget service", updated.Description())

	stored, err := branches.Find(ctx, repo.WithRepositoryID(repository.ID()))
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	history, err := commits.Find(ctx, repo.WithRepositoryID(repository.ID()))
	require.NoError(t, err)
	assert.Len(t, history, 1)

	changes := bus.ofType(event.TypeRepositoryStatusChanged)
	require.Len(t, changes, 1)
	change := changes[0].(event.RepositoryStatusChanged)
	assert.Equal(t, repo.StatusConnecting.String(), change.From)
	assert.Equal(t, repo.StatusConnected.String(), change.To)
	assert.True(t, factory.last.complete)
}

func TestConnect_AccessDenied(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	host := newFakeHost()
	host.accessible = false
	bus := &capturePublisher{}
	factory := &fakeTrackerFactory{}

	repository := savedRepository(t, repos, repo.StatusConnecting)

	h := NewConnect(repos, persistence.NewBranchStore(db), persistence.NewCommitStore(db), host, source.Credential{}, bus, factory, testLogger())
	err := h.Execute(ctx, map[string]any{"repository_id": repository.ID()})
	require.Error(t, err)

	updated, err := repos.FindOne(ctx, repo.WithID(repository.ID()))
	require.NoError(t, err)
	assert.Equal(t, repo.StatusError, updated.Status())
	assert.NotEmpty(t, updated.LastError())

	require.Len(t, bus.ofType(event.TypeRepositoryDiagnostic), 1)
	assert.NotEmpty(t, factory.last.failed)
}

// fastPolicy keeps retry waits out of the test runtime.
func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestConnect_RetriesTransientFault(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	host := newFakeHost()
	host.accessFailures = 2
	host.accessErr = fault.New(fault.KindSourceUnavailable, "host under maintenance")
	bus := &capturePublisher{}
	factory := &fakeTrackerFactory{}

	repository := savedRepository(t, repos, repo.StatusConnecting)

	h := NewConnect(repos, persistence.NewBranchStore(db), persistence.NewCommitStore(db), host, source.Credential{}, bus, factory, testLogger()).
		WithRetryPolicy(fastPolicy(3))
	require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": repository.ID()}))

	assert.Equal(t, 3, host.accessCalls)
	updated, err := repos.FindOne(ctx, repo.WithID(repository.ID()))
	require.NoError(t, err)
	assert.Equal(t, repo.StatusConnected, updated.Status())
	assert.True(t, factory.last.complete)
}

func TestConnect_ExhaustedRetriesFailRepository(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	host := newFakeHost()
	host.accessFailures = 10
	host.accessErr = fault.New(fault.KindRateLimited, "secondary rate limit")
	bus := &capturePublisher{}
	factory := &fakeTrackerFactory{}

	repository := savedRepository(t, repos, repo.StatusConnecting)

	h := NewConnect(repos, persistence.NewBranchStore(db), persistence.NewCommitStore(db), host, source.Credential{}, bus, factory, testLogger()).
		WithRetryPolicy(fastPolicy(3))
	err := h.Execute(ctx, map[string]any{"repository_id": repository.ID()})
	require.Error(t, err)

	assert.Equal(t, 3, host.accessCalls)
	updated, err := repos.FindOne(ctx, repo.WithID(repository.ID()))
	require.NoError(t, err)
	assert.Equal(t, repo.StatusError, updated.Status())
	assert.Contains(t, updated.LastError(), "rate")
}

func TestConnect_PermanentFaultNotRetried(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	host := newFakeHost()
	host.accessFailures = 10
	host.accessErr = fault.New(fault.KindPermanentDependency, "repository was deleted")
	bus := &capturePublisher{}
	factory := &fakeTrackerFactory{}

	repository := savedRepository(t, repos, repo.StatusConnecting)

	h := NewConnect(repos, persistence.NewBranchStore(db), persistence.NewCommitStore(db), host, source.Credential{}, bus, factory, testLogger()).
		WithRetryPolicy(fastPolicy(3))
	err := h.Execute(ctx, map[string]any{"repository_id": repository.ID()})
	require.Error(t, err)

	assert.Equal(t, 1, host.accessCalls)
	updated, err := repos.FindOne(ctx, repo.WithID(repository.ID()))
	require.NoError(t, err)
	assert.Equal(t, repo.StatusError, updated.Status())
}

func TestConnect_SkipsAlreadyConnected(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	bus := &capturePublisher{}
	factory := &fakeTrackerFactory{}

	repository := savedRepository(t, repos, repo.StatusConnected)

	h := NewConnect(repos, persistence.NewBranchStore(db), persistence.NewCommitStore(db), newFakeHost(), source.Credential{}, bus, factory, testLogger())
	err := h.Execute(ctx, map[string]any{"repository_id": repository.ID()})
	require.NoError(t, err)

	assert.NotEmpty(t, factory.last.skipped)
	assert.Empty(t, bus.events)
}
