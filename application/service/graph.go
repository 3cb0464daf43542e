package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codelore/codelore/domain/entity"
	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/graph"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/infrastructure/extractor"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/internal/config"
	"github.com/codelore/codelore/internal/database"
)

// RepositoryExtraction is the raw extraction output for one repository:
// entities in file order, the relationships resolved within files, and the
// references left for cross-file linking.
type RepositoryExtraction struct {
	RepositoryID  int64
	Entities      []entity.CodeEntity
	Relationships []entity.CodeRelationship
	References    []extractor.Reference
}

// GraphBuilder builds and persists knowledge graphs. A build walks the
// graph state machine: extraction runs under Building, relationship
// analysis and pattern detection under Analyzing, and statistics land with
// the transition to Complete. Any failure moves the graph to Error with the
// cause recorded in metadata.
type GraphBuilder struct {
	stores    graph.Stores
	repos     repo.Store
	adapter   source.Adapter
	extractor *extractor.Extractor
	linker    extractor.Linker
	cfg       config.GraphConfig
	logger    *slog.Logger
}

// NewGraphBuilder creates a GraphBuilder.
func NewGraphBuilder(
	stores graph.Stores,
	repositories repo.Store,
	adapter source.Adapter,
	cfg config.GraphConfig,
	logger *slog.Logger,
) *GraphBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphBuilder{
		stores:    stores,
		repos:     repositories,
		adapter:   adapter,
		extractor: extractor.NewExtractor(logger),
		linker:    extractor.NewLinker(),
		cfg:       cfg,
		logger:    logger,
	}
}

// EnsureGraph returns the graph covering exactly these repositories,
// creating a NotBuilt one when none exists.
func (b *GraphBuilder) EnsureGraph(ctx context.Context, repositoryIDs []int64) (graph.KnowledgeGraph, error) {
	for _, id := range repositoryIDs {
		g, err := b.stores.Graphs.ForRepository(ctx, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				continue
			}
			return graph.KnowledgeGraph{}, err
		}
		if coversAll(g, repositoryIDs) {
			return g, nil
		}
	}

	g, err := graph.NewKnowledgeGraph(repositoryIDs)
	if err != nil {
		return graph.KnowledgeGraph{}, err
	}
	return b.stores.Graphs.Save(ctx, g)
}

func coversAll(g graph.KnowledgeGraph, repositoryIDs []int64) bool {
	for _, id := range repositoryIDs {
		if !g.Covers(id) {
			return false
		}
	}
	return true
}

// Build runs the full pipeline for the graph with the given id.
func (b *GraphBuilder) Build(ctx context.Context, graphID int64, cred source.Credential) (graph.KnowledgeGraph, error) {
	g, err := b.stores.Graphs.FindOne(ctx, repo.WithID(graphID))
	if err != nil {
		return graph.KnowledgeGraph{}, err
	}
	return b.build(ctx, g, cred)
}

// BuildForRepository ensures a graph covering the repository exists and
// builds it.
func (b *GraphBuilder) BuildForRepository(ctx context.Context, repositoryID int64, cred source.Credential) (graph.KnowledgeGraph, error) {
	g, err := b.EnsureGraph(ctx, []int64{repositoryID})
	if err != nil {
		return graph.KnowledgeGraph{}, err
	}
	return b.build(ctx, g, cred)
}

// MarkUpdateRequired flags the repository's graph for a rebuild after the
// repository changed. Graphs that are missing or not yet complete are left
// alone.
func (b *GraphBuilder) MarkUpdateRequired(ctx context.Context, repositoryID int64) error {
	g, err := b.stores.Graphs.ForRepository(ctx, repositoryID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return err
	}
	if g.Status() != graph.StatusComplete {
		return nil
	}

	g, err = g.Transition(graph.StatusUpdateRequired)
	if err != nil {
		return err
	}
	_, err = b.stores.Graphs.Save(ctx, g)
	return err
}

// Neighborhood returns the edges reachable from an entity, walking at most
// depth hops. Depth is clamped to the configured maximum.
func (b *GraphBuilder) Neighborhood(ctx context.Context, entityID string, depth int) ([]entity.CodeRelationship, error) {
	if depth < 1 || depth > b.cfg.MaxRelationshipDepth() {
		depth = b.cfg.MaxRelationshipDepth()
	}
	return b.stores.Relationships.Neighborhood(ctx, entityID, depth)
}

func (b *GraphBuilder) build(ctx context.Context, g graph.KnowledgeGraph, cred source.Credential) (graph.KnowledgeGraph, error) {
	start := time.Now()

	g, err := b.transition(ctx, g, graph.StatusBuilding)
	if err != nil {
		return g, err
	}

	b.logger.Info("graph build started",
		slog.Int64("graph_id", g.ID()),
		slog.Int("repositories", len(g.RepositoryIDs())),
	)

	extractions := make([]RepositoryExtraction, 0, len(g.RepositoryIDs()))
	for _, repositoryID := range g.RepositoryIDs() {
		ext, err := b.ExtractRepository(ctx, repositoryID, cred)
		if err != nil {
			return b.fail(ctx, g, fmt.Errorf("extract repository %d: %w", repositoryID, err))
		}
		extractions = append(extractions, ext)
	}

	g, err = b.transition(ctx, g, graph.StatusAnalyzing)
	if err != nil {
		return g, err
	}

	stats := graph.Statistics{}
	for _, ext := range extractions {
		relationships := b.analyzeRelationships(ext)
		patterns := entity.FilterPatterns(
			DetectPatterns(ext.RepositoryID, ext.Entities, relationships),
			b.cfg.MinPatternConfidence(),
		)

		if err := b.persistRepository(ctx, ext, relationships, patterns); err != nil {
			return b.fail(ctx, g, fmt.Errorf("persist repository %d: %w", ext.RepositoryID, err))
		}

		stats.EntityCount += int64(len(ext.Entities))
		stats.RelationshipCount += int64(len(relationships))
		stats.PatternCount += int64(len(patterns))
	}

	pruned, err := b.stores.Relationships.PruneDangling(ctx)
	if err != nil {
		return b.fail(ctx, g, fmt.Errorf("prune dangling relationships: %w", err))
	}
	if pruned > 0 {
		b.logger.Debug("pruned dangling relationships",
			slog.Int64("graph_id", g.ID()),
			slog.Int64("count", pruned),
		)
	}

	stats.BuiltAt = time.Now().UTC()
	stats.BuildDuration = time.Since(start)
	g = g.WithStatistics(stats)

	g, err = b.transition(ctx, g, graph.StatusComplete)
	if err != nil {
		return g, err
	}

	b.logger.Info("graph build completed",
		slog.Int64("graph_id", g.ID()),
		slog.Int64("entities", stats.EntityCount),
		slog.Int64("relationships", stats.RelationshipCount),
		slog.Int64("patterns", stats.PatternCount),
		slog.Duration("duration", stats.BuildDuration),
	)
	return g, nil
}

// analyzeRelationships merges the intra-file edges with the cross-file
// edges resolved by the linker, deduplicates them by (source, target,
// type), and drops edges below the configured confidence floor.
func (b *GraphBuilder) analyzeRelationships(ext RepositoryExtraction) []entity.CodeRelationship {
	combined := make([]entity.CodeRelationship, 0, len(ext.Relationships))
	combined = append(combined, ext.Relationships...)
	combined = append(combined, b.linker.LinkCrossFile(ext.Entities, ext.References)...)

	merged := entity.MergeRelationships(combined)
	return entity.FilterByConfidence(merged, b.cfg.MinRelationshipConfidence())
}

// ExtractRepository parses every eligible file of the repository's default
// branch, with at most MaxConcurrentAnalysis files in flight. Output order
// follows the inventory's path order, so repeated extraction of an
// unchanged tree is identical.
func (b *GraphBuilder) ExtractRepository(ctx context.Context, repositoryID int64, cred source.Credential) (RepositoryExtraction, error) {
	repository, err := b.repos.FindOne(ctx, repo.WithID(repositoryID))
	if err != nil {
		return RepositoryExtraction{}, err
	}

	inventory, ok := b.adapter.(source.InventorySource)
	if !ok {
		return RepositoryExtraction{}, fault.New(fault.KindPermanentDependency,
			"source adapter cannot produce a file inventory")
	}
	inv, err := inventory.Inventory(ctx, repository, "", cred)
	if err != nil {
		return RepositoryExtraction{}, err
	}

	files := eligibleFiles(inv.Files)
	results := make([]extractor.ParseResult, len(files))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.cfg.MaxConcurrentAnalysis())
	for i, file := range files {
		eg.Go(func() error {
			content, err := b.adapter.ReadFile(egCtx, repository, "", file.Path, cred)
			if err != nil {
				return fmt.Errorf("read %s: %w", file.Path, err)
			}
			result, err := b.extractor.Parse(egCtx, repositoryID, file.Path, content)
			if err != nil {
				return fmt.Errorf("parse %s: %w", file.Path, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return RepositoryExtraction{}, err
	}

	ext := RepositoryExtraction{RepositoryID: repositoryID}
	limit := b.cfg.MaxEntitiesPerRepository()
	for i, result := range results {
		if len(ext.Entities)+len(result.Entities) > limit {
			b.logger.Warn("entity limit reached, remaining files skipped",
				slog.Int64("repository_id", repositoryID),
				slog.Int("limit", limit),
				slog.Int("files_skipped", len(results)-i),
			)
			break
		}
		ext.Entities = append(ext.Entities, result.Entities...)
		ext.Relationships = append(ext.Relationships, result.Relationships...)
		ext.References = append(ext.References, result.References...)
	}
	return ext, nil
}

// eligibleFiles drops binary or unrecognized files and files above the
// adapter read limit.
func eligibleFiles(files []source.FileRecord) []source.FileRecord {
	eligible := make([]source.FileRecord, 0, len(files))
	for _, f := range files {
		if f.Size > source.MaxFileBytes {
			continue
		}
		if source.LanguageForPath(f.Path) == "" {
			continue
		}
		eligible = append(eligible, f)
	}
	return eligible
}

// persistRepository writes one repository's extraction results: entities in
// configured batches, then the tombstone sweep for entities that vanished,
// then edges and patterns with their own stale-row cleanup.
func (b *GraphBuilder) persistRepository(
	ctx context.Context,
	ext RepositoryExtraction,
	relationships []entity.CodeRelationship,
	patterns []entity.ArchitecturalPattern,
) error {
	batch := b.cfg.EntityBatchSize()
	for offset := 0; offset < len(ext.Entities); offset += batch {
		end := min(offset+batch, len(ext.Entities))
		if err := b.stores.Entities.UpsertAll(ctx, ext.Entities[offset:end]); err != nil {
			return err
		}
	}

	liveIDs := make([]string, len(ext.Entities))
	for i, e := range ext.Entities {
		liveIDs[i] = e.EntityID()
	}
	tombstoned, err := b.stores.Entities.Tombstone(ctx, ext.RepositoryID, liveIDs)
	if err != nil {
		return err
	}
	if tombstoned > 0 {
		b.logger.Debug("tombstoned stale entities",
			slog.Int64("repository_id", ext.RepositoryID),
			slog.Int64("count", tombstoned),
		)
	}

	if err := b.stores.Relationships.UpsertAll(ctx, relationships); err != nil {
		return err
	}

	if err := b.stores.Patterns.UpsertAll(ctx, patterns); err != nil {
		return err
	}
	livePatterns := make([]string, len(patterns))
	for i, p := range patterns {
		livePatterns[i] = p.PatternID()
	}
	if _, err := b.stores.Patterns.PruneStale(ctx, ext.RepositoryID, livePatterns); err != nil {
		return err
	}
	return nil
}

// transition advances the graph state and persists it.
func (b *GraphBuilder) transition(ctx context.Context, g graph.KnowledgeGraph, next graph.Status) (graph.KnowledgeGraph, error) {
	g, err := g.Transition(next)
	if err != nil {
		return g, err
	}
	return b.stores.Graphs.Save(ctx, g)
}

// fail moves the graph to Error, recording the cause in metadata. The
// original cause is returned even when the state update itself fails.
func (b *GraphBuilder) fail(ctx context.Context, g graph.KnowledgeGraph, cause error) (graph.KnowledgeGraph, error) {
	failed, err := g.Transition(graph.StatusError)
	if err != nil {
		b.logger.Error("graph error transition rejected",
			slog.Int64("graph_id", g.ID()),
			slog.String("error", err.Error()),
		)
		return g, cause
	}
	failed = failed.WithMetadata("last_error", cause.Error())

	saved, err := b.stores.Graphs.Save(ctx, failed)
	if err != nil {
		b.logger.Error("graph error state not persisted",
			slog.Int64("graph_id", g.ID()),
			slog.String("error", err.Error()),
		)
		return failed, cause
	}
	return saved, cause
}
