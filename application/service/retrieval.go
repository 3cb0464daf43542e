package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/codelore/codelore/domain/conversation"
	"github.com/codelore/codelore/domain/entity"
	"github.com/codelore/codelore/domain/graph"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/infrastructure/provider"
	"github.com/codelore/codelore/internal/config"
)

// maxRetrievalK caps how many raw candidates one retrieval fetches
// before reranking.
const maxRetrievalK = 50

// graphSeedLimit is how many top candidates seed graph expansion, and
// graphNeighborLimit how many neighbors each seed may contribute.
const (
	graphSeedLimit     = 3
	graphNeighborLimit = 5
)

// crossRepoFanout is how many repositories a cross-repository retrieval
// queries concurrently.
const crossRepoFanout = 4

// crossRepoExcerptBytes caps how much of each result feeds the
// comparative summary prompt.
const crossRepoExcerptBytes = 600

const crossRepoPrompt = `You are comparing evidence retrieved from several code repositories for
the question below. Identify what the repositories have in common and
where they differ. Respond with a JSON object only:
{"common_patterns": "...", "differences": "..."}

Question: %s

%s`

// CandidateSearcher performs hybrid index search and returns unranked
// candidates with their raw store scores.
type CandidateSearcher interface {
	Search(ctx context.Context, query search.Query) ([]search.Candidate, error)
}

// Retrieval answers "what is relevant to this query" across the hybrid
// index and the knowledge graph. Results are reranked by intent before
// they reach prompt assembly.
type Retrieval struct {
	index     CandidateSearcher
	stores    graph.Stores
	ranker    search.Ranker
	generator provider.TextGenerator
	cfg       config.ChatConfig
	logger    *slog.Logger
}

// NewRetrieval creates a Retrieval service. generator may be nil, in which
// case cross-repository contexts carry results without a comparative
// summary.
func NewRetrieval(index CandidateSearcher, stores graph.Stores, generator provider.TextGenerator, cfg config.ChatConfig, logger *slog.Logger) *Retrieval {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrieval{
		index:     index,
		stores:    stores,
		ranker:    search.NewRanker(),
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Retrieve runs hybrid search scoped by the conversation context and
// reranks the candidates by intent. It over-fetches double the requested
// size so reranking has room to reorder, capped at a fixed ceiling.
// Architectural and implementation queries additionally fold in evidence
// from the knowledge graph.
func (s *Retrieval) Retrieve(
	ctx context.Context,
	text string,
	intent search.Intent,
	scope conversation.Context,
	maxResults int,
) ([]search.RankedResult, error) {
	if maxResults <= 0 {
		maxResults = s.cfg.MaxContextItems()
	}
	k := maxResults * 2
	if k > maxRetrievalK {
		k = maxRetrievalK
	}

	var opts []search.FiltersOption
	if scope.ScopedTo() {
		opts = append(opts, search.WithRepositories(scope.RepositoryIDs...))
	}
	query := search.NewQuery(text, search.TypeHybrid, search.NewFilters(opts...), k)

	candidates, err := s.index.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	if intent == search.IntentArchitecturalQuery || intent == search.IntentFindImplementation {
		extra, err := s.graphEvidence(ctx, intent, candidates, scope)
		if err != nil {
			// Graph evidence is additive; retrieval still answers from
			// the index alone.
			s.logger.Warn("graph evidence unavailable",
				slog.String("intent", intent.String()),
				slog.String("error", err.Error()),
			)
		} else {
			candidates = mergeCandidates(candidates, extra)
		}
	}

	return s.ranker.RankTopK(intent, candidates, maxResults), nil
}

// RetrieveAcross runs the same retrieval independently per repository and
// interleaves the results, so one large repository cannot crowd out the
// others. The total is capped at three times the per-repository size.
func (s *Retrieval) RetrieveAcross(
	ctx context.Context,
	text string,
	intent search.Intent,
	repositoryIDs []int64,
	perRepo int,
) ([]search.RankedResult, error) {
	if len(repositoryIDs) == 0 {
		return nil, nil
	}
	if perRepo <= 0 {
		perRepo = s.cfg.MaxContextItems()
	}

	perRepoResults := make([][]search.RankedResult, len(repositoryIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(crossRepoFanout)
	for i, repositoryID := range repositoryIDs {
		g.Go(func() error {
			scope := conversation.Context{RepositoryIDs: []int64{repositoryID}}
			ranked, err := s.Retrieve(gctx, text, intent, scope, perRepo)
			if err != nil {
				return fmt.Errorf("repository %d: %w", repositoryID, err)
			}
			mu.Lock()
			perRepoResults[i] = ranked
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := perRepo * 3
	var merged []search.RankedResult
	for round := 0; len(merged) < total; round++ {
		added := false
		for _, results := range perRepoResults {
			if round < len(results) && len(merged) < total {
				merged = append(merged, results[round])
				added = true
			}
		}
		if !added {
			break
		}
	}
	return merged, nil
}

// CrossRepositoryContext is the outcome of a cross-repository retrieval:
// the interleaved results, the same results grouped per repository, and a
// comparative summary of what the repositories share and where they
// diverge.
type CrossRepositoryContext struct {
	Results        []search.RankedResult
	ByRepository   map[int64][]search.RankedResult
	CommonPatterns string
	Differences    string
}

// BuildCrossRepositoryContext retrieves across the given repositories and
// summarizes the evidence comparatively. Summary failures degrade to a
// context without the comparison rather than failing the retrieval.
func (s *Retrieval) BuildCrossRepositoryContext(
	ctx context.Context,
	text string,
	intent search.Intent,
	repositoryIDs []int64,
	perRepo int,
) (CrossRepositoryContext, error) {
	results, err := s.RetrieveAcross(ctx, text, intent, repositoryIDs, perRepo)
	if err != nil {
		return CrossRepositoryContext{}, err
	}

	cc := CrossRepositoryContext{
		Results:      results,
		ByRepository: make(map[int64][]search.RankedResult),
	}
	for _, r := range results {
		id := r.Document().RepositoryID()
		cc.ByRepository[id] = append(cc.ByRepository[id], r)
	}

	if s.generator == nil || len(cc.ByRepository) < 2 {
		return cc, nil
	}

	common, differences, err := s.compareRepositories(ctx, text, cc.ByRepository)
	if err != nil {
		s.logger.Warn("cross-repository comparison unavailable",
			slog.String("error", err.Error()),
		)
		return cc, nil
	}
	cc.CommonPatterns = common
	cc.Differences = differences
	return cc, nil
}

func (s *Retrieval) compareRepositories(ctx context.Context, text string, byRepo map[int64][]search.RankedResult) (string, string, error) {
	ids := make([]int64, 0, len(byRepo))
	for id := range byRepo {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "Repository %d:\n", id)
		for _, r := range byRepo[id] {
			doc := r.Document()
			excerpt := doc.Content()
			if len(excerpt) > crossRepoExcerptBytes {
				excerpt = excerpt[:crossRepoExcerptBytes]
			}
			fmt.Fprintf(&b, "--- %s ---\n%s\n", doc.Path(), excerpt)
		}
		b.WriteString("\n")
	}

	req := provider.NewChatRequest(
		provider.UserMessage(fmt.Sprintf(crossRepoPrompt, text, b.String())),
	).WithTemperature(0)

	resp, err := s.generator.Generate(ctx, req)
	if err != nil {
		return "", "", fmt.Errorf("compare repositories: %w", err)
	}

	var parsed struct {
		CommonPatterns string `json:"common_patterns"`
		Differences    string `json:"differences"`
	}
	raw := provider.ExtractJSON(resp.Content())
	if raw == "" || json.Unmarshal([]byte(raw), &parsed) != nil {
		return "", "", fmt.Errorf("compare repositories: unusable response")
	}
	return strings.TrimSpace(parsed.CommonPatterns), strings.TrimSpace(parsed.Differences), nil
}

// graphEvidence expands top candidates through the knowledge graph. For
// implementation queries it follows relationships from entities in the
// candidate files; for architectural queries it adds detected patterns
// as synthetic evidence.
func (s *Retrieval) graphEvidence(
	ctx context.Context,
	intent search.Intent,
	candidates []search.Candidate,
	scope conversation.Context,
) ([]search.Candidate, error) {
	if intent == search.IntentArchitecturalQuery {
		return s.patternEvidence(ctx, candidates, scope)
	}
	return s.neighborEvidence(ctx, candidates)
}

func (s *Retrieval) neighborEvidence(ctx context.Context, candidates []search.Candidate) ([]search.Candidate, error) {
	var evidence []search.Candidate
	seen := make(map[string]struct{})

	seeds := topCodeChunks(candidates, graphSeedLimit)
	for _, seed := range seeds {
		entities, err := s.stores.Entities.Find(ctx,
			repo.WithCondition("repository_id", seed.RepositoryID()),
			repo.WithCondition("file_path", seed.Path()),
		)
		if err != nil {
			return nil, fmt.Errorf("entities for %s: %w", seed.Path(), err)
		}
		if len(entities) == 0 {
			continue
		}

		edges, err := s.stores.Relationships.Neighborhood(ctx, entities[0].EntityID(), 1)
		if err != nil {
			return nil, fmt.Errorf("neighborhood of %s: %w", entities[0].EntityID(), err)
		}

		added := 0
		for _, edge := range edges {
			if added >= graphNeighborLimit {
				break
			}
			neighborID := edge.TargetID()
			if neighborID == entities[0].EntityID() {
				neighborID = edge.SourceID()
			}
			if _, dup := seen[neighborID]; dup {
				continue
			}
			seen[neighborID] = struct{}{}

			neighbor, err := s.stores.Entities.ByID(ctx, neighborID)
			if err != nil {
				continue
			}
			doc, err := entityDocument(neighbor)
			if err != nil {
				continue
			}
			evidence = append(evidence, search.NewCandidate(doc, edge.Confidence(), 0))
			added++
		}
	}
	return evidence, nil
}

func (s *Retrieval) patternEvidence(ctx context.Context, candidates []search.Candidate, scope conversation.Context) ([]search.Candidate, error) {
	repositoryIDs := scope.RepositoryIDs
	if len(repositoryIDs) == 0 {
		repositoryIDs = candidateRepositories(candidates)
	}
	if len(repositoryIDs) == 0 {
		return nil, nil
	}

	patterns, err := s.stores.Patterns.Find(ctx, repo.WithConditionIn("repository_id", repositoryIDs))
	if err != nil {
		return nil, fmt.Errorf("patterns: %w", err)
	}

	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Confidence() > patterns[j].Confidence()
	})

	var evidence []search.Candidate
	for _, p := range patterns {
		if len(evidence) >= graphNeighborLimit {
			break
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Detected architectural pattern: %s (%s, confidence %.2f).\n",
			p.Name(), p.Category(), p.Confidence())
		for role, name := range p.Participants() {
			fmt.Fprintf(&b, "- %s: %s\n", name, role)
		}
		doc, err := search.NewDocument("pattern:"+p.PatternID(), p.RepositoryID(), search.KindDocSection, b.String())
		if err != nil {
			continue
		}
		doc = doc.WithTitle(p.Name())
		evidence = append(evidence, search.NewCandidate(doc, p.Confidence(), 0))
	}
	return evidence, nil
}

func topCodeChunks(candidates []search.Candidate, limit int) []search.Document {
	ordered := make([]search.Candidate, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool {
		return maxScore(ordered[i]) > maxScore(ordered[j])
	})

	var seeds []search.Document
	seenPaths := make(map[string]struct{})
	for _, c := range ordered {
		if len(seeds) >= limit {
			break
		}
		doc := c.Document()
		if doc.Kind() != search.KindCodeChunk || doc.Path() == "" {
			continue
		}
		if _, dup := seenPaths[doc.Path()]; dup {
			continue
		}
		seenPaths[doc.Path()] = struct{}{}
		seeds = append(seeds, doc)
	}
	return seeds
}

func maxScore(c search.Candidate) float64 {
	if c.VectorScore() > c.LexicalScore() {
		return c.VectorScore()
	}
	return c.LexicalScore()
}

func candidateRepositories(candidates []search.Candidate) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, c := range candidates {
		id := c.Document().RepositoryID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func entityDocument(e entity.CodeEntity) (search.Document, error) {
	doc, err := search.NewDocument("entity:"+e.EntityID(), e.RepositoryID(), search.KindCodeChunk, e.Content())
	if err != nil {
		return search.Document{}, err
	}
	loc := e.Location()
	return doc.
		WithTitle(e.QualifiedName()).
		WithPath(e.FilePath()).
		WithLanguage(e.Language()).
		WithLines(loc.StartLine, loc.EndLine), nil
}

func mergeCandidates(base, extra []search.Candidate) []search.Candidate {
	seen := make(map[string]struct{}, len(base))
	for _, c := range base {
		seen[c.Document().ID()] = struct{}{}
	}
	for _, c := range extra {
		if _, dup := seen[c.Document().ID()]; dup {
			continue
		}
		seen[c.Document().ID()] = struct{}{}
		base = append(base, c)
	}
	return base
}
