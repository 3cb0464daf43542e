package service

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelore/codelore/domain/entity"
	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/graph"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/infrastructure/persistence"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/internal/config"
	"github.com/codelore/codelore/internal/testdb"
)

// fakeGraphSource serves an in-memory file tree through the source adapter
// contract.
type fakeGraphSource struct {
	files  map[string]string
	invErr error
}

func (f *fakeGraphSource) ValidateAccess(_ context.Context, _ string, _ source.Credential) (bool, error) {
	return true, nil
}

func (f *fakeGraphSource) ConnectRepository(_ context.Context, _ string, _ source.Credential) (repo.RemoteMetadata, error) {
	return repo.RemoteMetadata{}, nil
}

func (f *fakeGraphSource) ListBranches(_ context.Context, _ repo.Repository, _ source.Credential) ([]repo.Branch, error) {
	return nil, nil
}

func (f *fakeGraphSource) ListCommits(_ context.Context, _ repo.Repository, _ string, _ int, _ source.Credential) ([]repo.Commit, error) {
	return nil, nil
}

func (f *fakeGraphSource) AnalyzeStructure(_ context.Context, _ repo.Repository, _ string, _ source.Credential) (repo.Statistics, error) {
	return repo.Statistics{}, nil
}

func (f *fakeGraphSource) ReadFile(_ context.Context, _ repo.Repository, _, path string, _ source.Credential) ([]byte, error) {
	content, ok := f.files[path]
	if !ok {
		return nil, fault.NotFoundf("file %s not in tree", path)
	}
	return []byte(content), nil
}

func (f *fakeGraphSource) Inventory(_ context.Context, _ repo.Repository, _ string, _ source.Credential) (source.Inventory, error) {
	if f.invErr != nil {
		return source.Inventory{}, f.invErr
	}
	records := make([]source.FileRecord, 0, len(f.files))
	for path, content := range f.files {
		records = append(records, source.FileRecord{Path: path, Size: int64(len(content))})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return source.Inventory{Files: records}, nil
}

// ledgerSource parses into four entities (module, struct, method, function)
// with a composition edge and an intra-file call edge. The fmt import and
// call stay unresolved and drop below the confidence floor.
const ledgerSource = `package ledger

import "fmt"

type Ledger struct {
	total int
}

func (l *Ledger) Credit(n int) int {
	l.total += n
	return l.total
}

func Balance(entries []int) int {
	ledger := &Ledger{}
	for _, e := range entries {
		if e > 0 {
			ledger.Credit(e)
		}
	}
	fmt.Println(ledger.total)
	return ledger.total
}
`

// reportSource calls Balance, which only the cross-file linker can resolve.
const reportSource = `package ledger

func Summary() int {
	return Balance([]int{1, 2})
}
`

type graphHarness struct {
	builder *GraphBuilder
	stores  graph.Stores
	source  *fakeGraphSource
	repoID  int64
}

func newGraphHarness(t *testing.T, files map[string]string) *graphHarness {
	t.Helper()
	db := testdb.New(t)
	stores := graph.Stores{
		Graphs:        persistence.NewGraphStore(db),
		Entities:      persistence.NewEntityStore(db),
		Relationships: persistence.NewRelationshipStore(db),
		Patterns:      persistence.NewPatternStore(db),
	}
	repos := persistence.NewRepositoryStore(db)

	repository, err := repo.NewRepository("https://github.com/acme/payments")
	require.NoError(t, err)
	repository, err = repos.Save(context.Background(), repository)
	require.NoError(t, err)

	src := &fakeGraphSource{files: files}
	return &graphHarness{
		builder: NewGraphBuilder(stores, repos, src, config.NewGraphConfig(), nil),
		stores:  stores,
		source:  src,
		repoID:  repository.ID(),
	}
}

func (h *graphHarness) liveEntityIDs(t *testing.T) []string {
	t.Helper()
	entities, err := h.stores.Entities.Find(context.Background(), repo.WithRepositoryID(h.repoID))
	require.NoError(t, err)
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.EntityID()
	}
	sort.Strings(ids)
	return ids
}

func TestGraphBuilder_BuildWalksToComplete(t *testing.T) {
	h := newGraphHarness(t, map[string]string{"ledger/ledger.go": ledgerSource})
	ctx := context.Background()

	g, err := h.builder.BuildForRepository(ctx, h.repoID, source.Credential{})
	require.NoError(t, err)
	assert.Equal(t, graph.StatusComplete, g.Status())

	stats := g.Statistics()
	assert.Equal(t, int64(4), stats.EntityCount)
	assert.Equal(t, int64(2), stats.RelationshipCount)
	assert.Equal(t, int64(0), stats.PatternCount)
	assert.False(t, stats.BuiltAt.IsZero())

	entityCount, err := h.stores.Entities.Count(ctx, repo.WithRepositoryID(h.repoID))
	require.NoError(t, err)
	assert.Equal(t, int64(4), entityCount)

	// The unresolved fmt import and fmt.Println call fall below the
	// confidence floor and are never persisted.
	relCount, err := h.stores.Relationships.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), relCount)

	persisted, err := h.stores.Graphs.ForRepository(ctx, h.repoID)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusComplete, persisted.Status())
	assert.Equal(t, stats.EntityCount, persisted.Statistics().EntityCount)
}

func TestGraphBuilder_BuildOnCompleteGraphRejected(t *testing.T) {
	h := newGraphHarness(t, map[string]string{"ledger/ledger.go": ledgerSource})
	ctx := context.Background()

	g, err := h.builder.BuildForRepository(ctx, h.repoID, source.Credential{})
	require.NoError(t, err)

	_, err = h.builder.Build(ctx, g.ID(), source.Credential{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindInvalidTransition))

	persisted, err := h.stores.Graphs.ForRepository(ctx, h.repoID)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusComplete, persisted.Status())
}

func TestGraphBuilder_RebuildIsIdempotent(t *testing.T) {
	h := newGraphHarness(t, map[string]string{
		"ledger/ledger.go": ledgerSource,
		"ledger/report.go": reportSource,
	})
	ctx := context.Background()

	first, err := h.builder.BuildForRepository(ctx, h.repoID, source.Credential{})
	require.NoError(t, err)
	assert.Equal(t, int64(6), first.Statistics().EntityCount)
	// Two intra-file edges plus the cross-file Summary -> Balance call.
	assert.Equal(t, int64(3), first.Statistics().RelationshipCount)
	firstIDs := h.liveEntityIDs(t)

	require.NoError(t, h.builder.MarkUpdateRequired(ctx, h.repoID))
	second, err := h.builder.Build(ctx, first.ID(), source.Credential{})
	require.NoError(t, err)

	assert.Equal(t, graph.StatusComplete, second.Status())
	assert.Equal(t, first.Statistics().EntityCount, second.Statistics().EntityCount)
	assert.Equal(t, first.Statistics().RelationshipCount, second.Statistics().RelationshipCount)
	assert.Equal(t, firstIDs, h.liveEntityIDs(t))
}

func TestGraphBuilder_RemovedFileTombstonesEntitiesAndPrunesEdges(t *testing.T) {
	h := newGraphHarness(t, map[string]string{
		"ledger/ledger.go": ledgerSource,
		"ledger/report.go": reportSource,
	})
	ctx := context.Background()

	g, err := h.builder.BuildForRepository(ctx, h.repoID, source.Credential{})
	require.NoError(t, err)
	assert.Equal(t, int64(6), g.Statistics().EntityCount)
	assert.Equal(t, int64(3), g.Statistics().RelationshipCount)

	delete(h.source.files, "ledger/report.go")
	require.NoError(t, h.builder.MarkUpdateRequired(ctx, h.repoID))

	g, err = h.builder.Build(ctx, g.ID(), source.Credential{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), g.Statistics().EntityCount)
	assert.Equal(t, int64(2), g.Statistics().RelationshipCount)

	entityCount, err := h.stores.Entities.Count(ctx, repo.WithRepositoryID(h.repoID))
	require.NoError(t, err)
	assert.Equal(t, int64(4), entityCount)

	// The Summary -> Balance edge referenced a tombstoned entity and was
	// pruned with it.
	relCount, err := h.stores.Relationships.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), relCount)
}

func TestGraphBuilder_ExtractionFailureMovesGraphToError(t *testing.T) {
	h := newGraphHarness(t, map[string]string{"ledger/ledger.go": ledgerSource})
	ctx := context.Background()

	h.source.invErr = fault.New(fault.KindSourceUnavailable, "host unreachable")

	_, err := h.builder.BuildForRepository(ctx, h.repoID, source.Credential{})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindSourceUnavailable))

	persisted, err := h.stores.Graphs.ForRepository(ctx, h.repoID)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusError, persisted.Status())
	assert.Contains(t, persisted.Metadata()["last_error"], "extract repository")

	// The Error state is recoverable: the next build starts over.
	h.source.invErr = nil
	g, err := h.builder.BuildForRepository(ctx, h.repoID, source.Credential{})
	require.NoError(t, err)
	assert.Equal(t, graph.StatusComplete, g.Status())
}

func TestGraphBuilder_EnsureGraphReusesExisting(t *testing.T) {
	h := newGraphHarness(t, map[string]string{"ledger/ledger.go": ledgerSource})
	ctx := context.Background()

	first, err := h.builder.EnsureGraph(ctx, []int64{h.repoID})
	require.NoError(t, err)
	assert.NotZero(t, first.ID())
	assert.Equal(t, graph.StatusNotBuilt, first.Status())

	second, err := h.builder.EnsureGraph(ctx, []int64{h.repoID})
	require.NoError(t, err)
	assert.Equal(t, first.ID(), second.ID())

	// A graph over a superset of repositories is a different graph.
	wider, err := h.builder.EnsureGraph(ctx, []int64{h.repoID, 999})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), wider.ID())
}

func TestGraphBuilder_MarkUpdateRequiredOnlyFlagsCompleteGraphs(t *testing.T) {
	h := newGraphHarness(t, map[string]string{"ledger/ledger.go": ledgerSource})
	ctx := context.Background()

	// No graph at all is fine.
	require.NoError(t, h.builder.MarkUpdateRequired(ctx, h.repoID))

	g, err := h.builder.EnsureGraph(ctx, []int64{h.repoID})
	require.NoError(t, err)
	require.NoError(t, h.builder.MarkUpdateRequired(ctx, h.repoID))

	persisted, err := h.stores.Graphs.ForRepository(ctx, h.repoID)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusNotBuilt, persisted.Status())

	_, err = h.builder.Build(ctx, g.ID(), source.Credential{})
	require.NoError(t, err)
	require.NoError(t, h.builder.MarkUpdateRequired(ctx, h.repoID))

	persisted, err = h.stores.Graphs.ForRepository(ctx, h.repoID)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusUpdateRequired, persisted.Status())
}

func TestGraphBuilder_NeighborhoodClampsDepth(t *testing.T) {
	h := newGraphHarness(t, nil)
	ctx := context.Background()

	chain := []string{"n1", "n2", "n3", "n4", "n5"}
	edges := make([]entity.CodeRelationship, 0, len(chain)-1)
	for i := 0; i < len(chain)-1; i++ {
		rel, err := entity.NewRelationship(chain[i], chain[i+1], entity.RelCalls, 1.0, 90)
		require.NoError(t, err)
		edges = append(edges, rel)
	}
	require.NoError(t, h.stores.Relationships.UpsertAll(ctx, edges))

	// Out-of-range depths clamp to the configured maximum of three hops.
	for _, depth := range []int{0, -1, 10} {
		found, err := h.builder.Neighborhood(ctx, "n1", depth)
		require.NoError(t, err)
		assert.Len(t, found, 3, "depth %d", depth)
	}

	found, err := h.builder.Neighborhood(ctx, "n1", 2)
	require.NoError(t, err)
	assert.Len(t, found, 2)
}
