package docs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/domain/docs"
	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/analyzer"
	"github.com/codelore/codelore/infrastructure/persistence"
	"github.com/codelore/codelore/infrastructure/provider"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/internal/config"
	"github.com/codelore/codelore/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

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

// cannedGenerator returns the same body for every request and counts
// calls.
type cannedGenerator struct {
	body  string
	calls int
}

func (g *cannedGenerator) Generate(_ context.Context, _ provider.ChatRequest) (provider.ChatResponse, error) {
	g.calls++
	return provider.NewChatResponse(g.body, "canned", provider.Usage{}), nil
}

func (g *cannedGenerator) Stream(ctx context.Context, req provider.ChatRequest, emit provider.StreamFunc) (provider.ChatResponse, error) {
	resp, err := g.Generate(ctx, req)
	if err != nil {
		return provider.ChatResponse{}, err
	}
	if err := emit(resp.Content()); err != nil {
		return provider.ChatResponse{}, err
	}
	return resp, nil
}

type fakeSearcher struct {
	candidates []search.Candidate
}

func (f *fakeSearcher) Search(context.Context, search.Query) ([]search.Candidate, error) {
	return f.candidates, nil
}

// inventorySource is a minimal analyzer source: a fixed inventory and no
// readable manifests.
type inventorySource struct {
	inventory source.Inventory
}

func (s *inventorySource) ValidateAccess(_ context.Context, _ string, _ source.Credential) (bool, error) {
	return true, nil
}

func (s *inventorySource) ConnectRepository(_ context.Context, _ string, _ source.Credential) (repo.RemoteMetadata, error) {
	return repo.RemoteMetadata{}, nil
}

func (s *inventorySource) ListBranches(_ context.Context, _ repo.Repository, _ source.Credential) ([]repo.Branch, error) {
	return nil, nil
}

func (s *inventorySource) ListCommits(_ context.Context, _ repo.Repository, _ string, _ int, _ source.Credential) ([]repo.Commit, error) {
	return nil, nil
}

func (s *inventorySource) AnalyzeStructure(_ context.Context, _ repo.Repository, _ string, _ source.Credential) (repo.Statistics, error) {
	return s.inventory.Statistics, nil
}

func (s *inventorySource) ReadFile(_ context.Context, _ repo.Repository, _, path string, _ source.Credential) ([]byte, error) {
	return nil, fmt.Errorf("no such file: %s", path)
}

func (s *inventorySource) Inventory(_ context.Context, _ repo.Repository, _ string, _ source.Credential) (source.Inventory, error) {
	return s.inventory, nil
}

func newInventorySource() *inventorySource {
	return &inventorySource{
		inventory: source.Inventory{
			Statistics: repo.ComputeStatistics(map[string]repo.LanguageStat{
				"go": {FileCount: 3, LineCount: 300},
			}),
			Digest: "digest-1",
			Files: []source.FileRecord{
				{Path: "main.go", Size: 120},
				{Path: "server/server.go", Size: 800},
				{Path: "server/server_test.go", Size: 400},
			},
		},
	}
}

func readyRepository(t *testing.T, repos repo.Store) repo.Repository {
	t.Helper()
	repository, err := repo.NewRepository("https://github.com/acme/widgets")
	require.NoError(t, err)
	for _, next := range []repo.Status{repo.StatusConnected, repo.StatusAnalyzing, repo.StatusReady} {
		repository, err = repository.Transition(next)
		require.NoError(t, err)
	}
	repository, err = repos.Save(context.Background(), repository)
	require.NoError(t, err)
	return repository
}

// passingContent is long enough for the length gate and carries no
// top-level heading.
var passingContent = strings.Repeat("This service shards widget state across workers. ", 4)

func docAt(t *testing.T, store docs.Store, repositoryID int64, statuses ...docs.Status) docs.Documentation {
	t.Helper()
	d, err := docs.NewDocumentation(repositoryID, "acme/widgets")
	require.NoError(t, err)
	for _, next := range statuses {
		d, err = d.Transition(next)
		require.NoError(t, err)
	}
	d, err = store.Save(context.Background(), d)
	require.NoError(t, err)
	return d
}

func TestAnalyze_PlansSections(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	store := persistence.NewDocsStore(db)
	bus := &capturePublisher{}
	factory := &fakeTrackerFactory{}

	repository := readyRepository(t, repos)

	h := NewAnalyze(store, repos, analyzer.NewAnalyzer(newInventorySource(), testLogger()), source.Credential{}, bus, factory, testLogger())
	require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": repository.ID()}))

	d, err := store.ForRepository(ctx, repository.ID())
	require.NoError(t, err)
	assert.Equal(t, docs.StatusAnalyzing, d.Status())

	plan := d.Plan()
	assert.NotEmpty(t, plan)
	// The inventory carries a test file, so the plan includes testing.
	assert.Contains(t, plan, docs.SectionTesting)
	assert.NotEmpty(t, d.Metadata()[metadataGenerationStarted])

	require.Len(t, bus.ofType(event.TypeDocumentationStatusChanged), 1)
	assert.True(t, factory.last.complete)
}

func TestGenerateSections_FillsOnlyMissing(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	store := persistence.NewDocsStore(db)
	factory := &fakeTrackerFactory{}

	repository := readyRepository(t, repos)

	plan := []docs.SectionType{docs.SectionOverview, docs.SectionUsage, docs.SectionTesting}
	d := docAt(t, store, repository.ID(), docs.StatusAnalyzing)
	existing, err := docs.NewSection(docs.SectionOverview, "Overview", "Already written overview. "+passingContent, docs.CanonicalRank(docs.SectionOverview))
	require.NoError(t, err)
	d, err = d.AddSection(existing)
	require.NoError(t, err)
	d = d.WithMetadata(docs.MetadataPlannedSections, docs.FormatPlan(plan))
	d, err = store.Save(ctx, d)
	require.NoError(t, err)

	evidence, err := search.NewDocument("1:server/server.go:1-10", repository.ID(), search.KindCodeChunk, "func Serve() {}")
	require.NoError(t, err)
	searcher := &fakeSearcher{candidates: []search.Candidate{
		search.NewCandidate(evidence.WithPath("server/server.go").WithLines(1, 10), 0.9, 0.9),
	}}
	generator := &cannedGenerator{body: passingContent}

	h := NewGenerateSections(store, repos, searcher, generator, config.NewDocsConfig(), &capturePublisher{}, factory, testLogger())
	require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": repository.ID()}))

	d, err = store.ForRepository(ctx, repository.ID())
	require.NoError(t, err)
	assert.Equal(t, docs.StatusGeneratingContent, d.Status())
	for _, typ := range plan {
		assert.True(t, d.HasSection(typ), "missing section %s", typ)
	}

	// Only the two missing sections hit the generator.
	assert.Equal(t, 2, generator.calls)
	overview, ok := d.SectionByType(docs.SectionOverview)
	require.True(t, ok)
	assert.Contains(t, overview.Content(), "Already written overview.")

	generated, ok := d.SectionByType(docs.SectionUsage)
	require.True(t, ok)
	assert.NotEmpty(t, generated.CodeReferences())
}

// erroringGenerator fails every request with the configured error.
type erroringGenerator struct {
	err error
}

func (g *erroringGenerator) Generate(context.Context, provider.ChatRequest) (provider.ChatResponse, error) {
	return provider.ChatResponse{}, g.err
}

func (g *erroringGenerator) Stream(context.Context, provider.ChatRequest, provider.StreamFunc) (provider.ChatResponse, error) {
	return provider.ChatResponse{}, g.err
}

func TestGenerateSections_RecordsQuotaFailure(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	store := persistence.NewDocsStore(db)
	factory := &fakeTrackerFactory{}

	repository := readyRepository(t, repos)

	plan := []docs.SectionType{docs.SectionOverview, docs.SectionUsage}
	d := docAt(t, store, repository.ID(), docs.StatusAnalyzing)
	d = d.WithMetadata(docs.MetadataPlannedSections, docs.FormatPlan(plan))
	_, err := store.Save(ctx, d)
	require.NoError(t, err)

	generator := &erroringGenerator{err: fault.New(fault.KindQuotaExceeded, "daily token budget exhausted")}
	h := NewGenerateSections(store, repos, &fakeSearcher{}, generator, config.NewDocsConfig(), &capturePublisher{}, factory, testLogger())
	execErr := h.Execute(ctx, map[string]any{"repository_id": repository.ID()})
	require.Error(t, execErr)

	d, err = store.ForRepository(ctx, repository.ID())
	require.NoError(t, err)
	assert.Equal(t, docs.StatusError, d.Status())
	assert.Contains(t, d.ErrorMessage(), "quota_exceeded")
	assert.Contains(t, d.ErrorMessage(), "daily token budget exhausted")
	assert.Equal(t, fault.KindQuotaExceeded, fault.KindOf(execErr))
}

// gateGenerator blocks each call until a second one is in flight, so the
// test fails rather than hangs when generation is sequential.
type gateGenerator struct {
	body string

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	arrived     chan struct{}
}

func newGateGenerator(body string) *gateGenerator {
	return &gateGenerator{body: body, arrived: make(chan struct{})}
}

func (g *gateGenerator) Generate(context.Context, provider.ChatRequest) (provider.ChatResponse, error) {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	if g.inFlight == 2 {
		close(g.arrived)
	}
	g.mu.Unlock()

	select {
	case <-g.arrived:
	case <-time.After(2 * time.Second):
	}

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	return provider.NewChatResponse(g.body, "gated", provider.Usage{}), nil
}

func (g *gateGenerator) Stream(ctx context.Context, req provider.ChatRequest, emit provider.StreamFunc) (provider.ChatResponse, error) {
	return g.Generate(ctx, req)
}

func TestGenerateSections_RunsSectionsConcurrently(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	repos := persistence.NewRepositoryStore(db)
	store := persistence.NewDocsStore(db)
	factory := &fakeTrackerFactory{}

	repository := readyRepository(t, repos)

	plan := []docs.SectionType{docs.SectionOverview, docs.SectionUsage, docs.SectionTesting}
	d := docAt(t, store, repository.ID(), docs.StatusAnalyzing)
	d = d.WithMetadata(docs.MetadataPlannedSections, docs.FormatPlan(plan))
	_, err := store.Save(ctx, d)
	require.NoError(t, err)

	generator := newGateGenerator(passingContent)
	cfg := config.NewDocsConfig().WithMaxConcurrent(2)
	h := NewGenerateSections(store, repos, &fakeSearcher{}, generator, cfg, &capturePublisher{}, factory, testLogger())
	require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": repository.ID()}))

	assert.Equal(t, 2, generator.maxInFlight)

	d, err = store.ForRepository(ctx, repository.ID())
	require.NoError(t, err)
	for _, typ := range plan {
		assert.True(t, d.HasSection(typ), "missing section %s", typ)
	}
}

func TestFinalize_CompletesAndBumpsVersion(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	store := persistence.NewDocsStore(db)
	bus := &capturePublisher{}
	factory := &fakeTrackerFactory{}

	plan := []docs.SectionType{docs.SectionOverview, docs.SectionUsage}
	d := docAt(t, store, 7, docs.StatusAnalyzing, docs.StatusGeneratingContent, docs.StatusIndexing)
	for _, typ := range plan {
		section, err := docs.NewSection(typ, typ.Title(), passingContent, docs.CanonicalRank(typ))
		require.NoError(t, err)
		section = section.WithCodeReferences([]docs.CodeReference{{
			FilePath:      "main.go",
			CodeSnippet:   "func main() {}",
			ReferenceType: "excerpt",
			StartLine:     1,
			EndLine:       3,
		}})
		d, err = d.AddSection(section)
		require.NoError(t, err)
	}
	d = d.
		WithMetadata(docs.MetadataPlannedSections, docs.FormatPlan(plan)).
		WithMetadata(metadataGenerationStarted, time.Now().UTC().Add(-time.Minute).Format(time.RFC3339))
	d, err := store.Save(ctx, d)
	require.NoError(t, err)

	h := NewFinalize(store, nil, config.NewDocsConfig(), bus, factory, testLogger())
	require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": int64(7)}))

	d, err = store.ForRepository(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, docs.StatusCompleted, d.Status())
	assert.Equal(t, "1.0.1", d.Version().String())
	assert.Greater(t, d.Statistics().WordCount, 0)

	completions := bus.ofType(event.TypeDocumentationCompleted)
	require.Len(t, completions, 1)
	completed := completions[0].(event.DocumentationCompleted)
	assert.Equal(t, "1.0.1", completed.Version)
	assert.Greater(t, completed.QualityScore, 0.0)
	assert.True(t, factory.last.complete)
}

// finalizeReady builds documentation that scores a perfect structural
// quality: full coverage, fitting lengths, and referenced sections.
func finalizeReady(t *testing.T, store docs.Store, repositoryID int64) {
	t.Helper()
	ctx := context.Background()
	plan := []docs.SectionType{docs.SectionOverview, docs.SectionUsage}
	d := docAt(t, store, repositoryID, docs.StatusAnalyzing, docs.StatusGeneratingContent, docs.StatusIndexing)
	for _, typ := range plan {
		section, err := docs.NewSection(typ, typ.Title(), passingContent, docs.CanonicalRank(typ))
		require.NoError(t, err)
		section = section.WithCodeReferences([]docs.CodeReference{{
			FilePath:      "main.go",
			CodeSnippet:   "func main() {}",
			ReferenceType: "excerpt",
			StartLine:     1,
			EndLine:       3,
		}})
		d, err = d.AddSection(section)
		require.NoError(t, err)
	}
	d = d.
		WithMetadata(docs.MetadataPlannedSections, docs.FormatPlan(plan)).
		WithMetadata(metadataGenerationStarted, time.Now().UTC().Add(-time.Minute).Format(time.RFC3339))
	_, err := store.Save(ctx, d)
	require.NoError(t, err)
}

func completedScore(t *testing.T, bus *capturePublisher) float64 {
	t.Helper()
	completions := bus.ofType(event.TypeDocumentationCompleted)
	require.Len(t, completions, 1)
	return completions[0].(event.DocumentationCompleted).QualityScore
}

func TestFinalize_ConsistencySelfCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("model verdicts replace the structural check", func(t *testing.T) {
		db := testdb.New(t)
		store := persistence.NewDocsStore(db)
		bus := &capturePublisher{}
		finalizeReady(t, store, 21)

		generator := &cannedGenerator{body: `{"verdicts": {"overview": false, "usage": false}}`}
		h := NewFinalize(store, generator, config.NewDocsConfig(), bus, &fakeTrackerFactory{}, testLogger())
		require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": int64(21)}))

		assert.Equal(t, 1, generator.calls)
		// All-false verdicts zero the consistency component; the other
		// components still carry the run past the gate.
		assert.InDelta(t, 0.8, completedScore(t, bus), 0.001)
	})

	t.Run("unusable verdict leaves the structural check standing", func(t *testing.T) {
		db := testdb.New(t)
		store := persistence.NewDocsStore(db)
		bus := &capturePublisher{}
		finalizeReady(t, store, 22)

		generator := &cannedGenerator{body: "not a verdict"}
		h := NewFinalize(store, generator, config.NewDocsConfig(), bus, &fakeTrackerFactory{}, testLogger())
		require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": int64(22)}))

		assert.InDelta(t, 1.0, completedScore(t, bus), 0.001)
	})

	t.Run("no generator keeps the structural check", func(t *testing.T) {
		db := testdb.New(t)
		store := persistence.NewDocsStore(db)
		bus := &capturePublisher{}
		finalizeReady(t, store, 23)

		h := NewFinalize(store, nil, config.NewDocsConfig(), bus, &fakeTrackerFactory{}, testLogger())
		require.NoError(t, h.Execute(ctx, map[string]any{"repository_id": int64(23)}))

		assert.InDelta(t, 1.0, completedScore(t, bus), 0.001)
	})
}

func TestFinalize_FailsBelowQualityGate(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	store := persistence.NewDocsStore(db)
	bus := &capturePublisher{}
	factory := &fakeTrackerFactory{}

	plan := []docs.SectionType{docs.SectionOverview, docs.SectionUsage, docs.SectionTesting}
	d := docAt(t, store, 9, docs.StatusAnalyzing, docs.StatusGeneratingContent, docs.StatusIndexing)
	// One short, unreferenced section out of three planned.
	section, err := docs.NewSection(docs.SectionOverview, "Overview", "Too short to pass quality checks.", 0)
	require.NoError(t, err)
	d, err = d.AddSection(section)
	require.NoError(t, err)
	d = d.WithMetadata(docs.MetadataPlannedSections, docs.FormatPlan(plan))
	_, err = store.Save(ctx, d)
	require.NoError(t, err)

	h := NewFinalize(store, nil, config.NewDocsConfig(), bus, factory, testLogger())
	err = h.Execute(ctx, map[string]any{"repository_id": int64(9)})
	require.Error(t, err)

	d, err = store.ForRepository(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, docs.StatusError, d.Status())
	assert.NotEmpty(t, d.ErrorMessage())
	assert.NotEmpty(t, factory.last.failed)
}
