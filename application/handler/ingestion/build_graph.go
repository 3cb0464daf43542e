package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/application/service"
	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/graph"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/source"
)

// BuildGraph runs the full knowledge-graph build for a repository:
// extraction, cross-file linking, pattern detection, and persistence under
// the graph state machine.
type BuildGraph struct {
	repos          repo.Store
	builder        *service.GraphBuilder
	cred           source.Credential
	bus            event.Publisher
	trackerFactory handler.TrackerFactory
	logger         *slog.Logger
}

// NewBuildGraph creates a new BuildGraph handler.
func NewBuildGraph(
	repos repo.Store,
	builder *service.GraphBuilder,
	cred source.Credential,
	bus event.Publisher,
	trackerFactory handler.TrackerFactory,
	logger *slog.Logger,
) *BuildGraph {
	return &BuildGraph{
		repos:          repos,
		builder:        builder,
		cred:           cred,
		bus:            bus,
		trackerFactory: trackerFactory,
		logger:         logger,
	}
}

// Execute processes the graph build task for one repository.
func (h *BuildGraph) Execute(ctx context.Context, payload map[string]any) error {
	repositoryID, err := handler.ExtractInt64(payload, "repository_id")
	if err != nil {
		return err
	}

	tracker := h.trackerFactory.ForOperation(
		task.OperationBuildGraph,
		task.TrackableTypeRepository,
		repositoryID,
	)

	repository, err := h.repos.FindOne(ctx, repo.WithID(repositoryID))
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("get repository: %w", err)
	}
	if repository.Status() != repo.StatusAnalyzing {
		tracker.Skip(ctx, fmt.Sprintf("Repository is %s, not under analysis", repository.Status()))
		return nil
	}

	tracker.SetTotal(ctx, 1)
	tracker.SetCurrent(ctx, 0, "Building knowledge graph")

	g, err := h.builder.BuildForRepository(ctx, repositoryID, h.cred)
	if err != nil {
		failRepository(ctx, h.repos, h.bus, h.logger, repository, fmt.Errorf("build graph: %w", err))
		tracker.Fail(ctx, err.Error())
		return err
	}
	if g.Status() != graph.StatusComplete {
		cause := fmt.Errorf("graph build ended in state %s", g.Status())
		failRepository(ctx, h.repos, h.bus, h.logger, repository, cause)
		tracker.Fail(ctx, cause.Error())
		return cause
	}

	stats := g.Statistics()
	h.bus.Publish(ctx, event.NewGraphCompleted(
		g.ID(), g.RepositoryIDs(),
		stats.EntityCount, stats.RelationshipCount, stats.PatternCount,
	))

	h.logger.Info("knowledge graph built",
		slog.Int64("repository_id", repositoryID),
		slog.Int64("graph_id", g.ID()),
		slog.Int64("entities", stats.EntityCount),
		slog.Int64("relationships", stats.RelationshipCount),
		slog.Int64("patterns", stats.PatternCount),
	)
	tracker.Complete(ctx)
	return nil
}
