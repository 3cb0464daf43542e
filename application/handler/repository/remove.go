package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/application/service"
	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/graph"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/index"
	"github.com/codelore/codelore/internal/database"
)

// Remove deletes a repository and everything derived from it: search
// documents, entities and their edges, patterns, documentation, branches,
// and commits. Conversations survive; their repository scope just stops
// resolving.
type Remove struct {
	repos          repo.Store
	branches       repo.BranchStore
	commits        repo.CommitStore
	stores         graph.Stores
	builder        *service.GraphBuilder
	docs           docsStore
	indexer        *index.Indexer
	bus            event.Publisher
	trackerFactory handler.TrackerFactory
	logger         *slog.Logger
}

// docsStore is the slice of the documentation store removal needs.
type docsStore interface {
	DeleteBy(ctx context.Context, options ...repo.Option) error
}

// NewRemove creates a new Remove handler.
func NewRemove(
	repos repo.Store,
	branches repo.BranchStore,
	commits repo.CommitStore,
	stores graph.Stores,
	builder *service.GraphBuilder,
	docs docsStore,
	indexer *index.Indexer,
	bus event.Publisher,
	trackerFactory handler.TrackerFactory,
	logger *slog.Logger,
) *Remove {
	return &Remove{
		repos:          repos,
		branches:       branches,
		commits:        commits,
		stores:         stores,
		builder:        builder,
		docs:           docs,
		indexer:        indexer,
		bus:            bus,
		trackerFactory: trackerFactory,
		logger:         logger,
	}
}

// Execute processes the removal task for one repository.
func (h *Remove) Execute(ctx context.Context, payload map[string]any) error {
	repositoryID, err := handler.ExtractInt64(payload, "repository_id")
	if err != nil {
		return err
	}

	tracker := h.trackerFactory.ForOperation(
		task.OperationRemoveRepository,
		task.TrackableTypeRepository,
		repositoryID,
	)

	repository, err := h.repos.FindOne(ctx, repo.WithID(repositoryID))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			tracker.Skip(ctx, "Repository already removed")
			return nil
		}
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("get repository: %w", err)
	}

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"Removing search documents", func(ctx context.Context) error {
			return h.indexer.DeleteRepository(ctx, repositoryID)
		}},
		{"Removing code entities", func(ctx context.Context) error {
			if err := h.stores.Entities.DeleteBy(ctx, repo.WithRepositoryID(repositoryID)); err != nil {
				return err
			}
			// Edges are not repository-scoped; dropping the entities
			// leaves them dangling.
			_, err := h.stores.Relationships.PruneDangling(ctx)
			return err
		}},
		{"Removing patterns", func(ctx context.Context) error {
			return h.stores.Patterns.DeleteBy(ctx, repo.WithRepositoryID(repositoryID))
		}},
		{"Releasing knowledge graph", func(ctx context.Context) error {
			return h.releaseGraph(ctx, repositoryID)
		}},
		{"Removing documentation", func(ctx context.Context) error {
			return h.docs.DeleteBy(ctx, repo.WithRepositoryID(repositoryID))
		}},
		{"Removing branches and commits", func(ctx context.Context) error {
			if err := h.branches.DeleteBy(ctx, repo.WithRepositoryID(repositoryID)); err != nil {
				return err
			}
			return h.commits.DeleteBy(ctx, repo.WithRepositoryID(repositoryID))
		}},
		{"Removing repository record", func(ctx context.Context) error {
			return h.repos.DeleteBy(ctx, repo.WithID(repositoryID))
		}},
	}

	tracker.SetTotal(ctx, len(steps))
	for i, step := range steps {
		tracker.SetCurrent(ctx, i, step.name)
		if err := step.run(ctx); err != nil {
			tracker.Fail(ctx, err.Error())
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	h.bus.Publish(ctx, event.NewRepositoryRemoved(repositoryID, repository.FullName()))

	h.logger.Info("repository removed",
		slog.Int64("repository_id", repositoryID),
		slog.String("full_name", repository.FullName()),
	)
	tracker.Complete(ctx)
	return nil
}

// releaseGraph deletes the graph when it covered only this repository, or
// flags it for a rebuild when other repositories share it.
func (h *Remove) releaseGraph(ctx context.Context, repositoryID int64) error {
	g, err := h.stores.Graphs.ForRepository(ctx, repositoryID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return err
	}
	if len(g.RepositoryIDs()) == 1 {
		return h.stores.Graphs.DeleteBy(ctx, repo.WithID(g.ID()))
	}
	return h.builder.MarkUpdateRequired(ctx, repositoryID)
}
