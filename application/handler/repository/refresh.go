// Package repository provides the task handlers for repository-level
// lifecycle work outside the ingestion pipeline: scheduled refresh checks
// and full removal.
package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/application/service"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/analyzer"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/internal/config"
)

// Refresh checks whether a repository changed since its last index run and
// enqueues a reindex chain when it did. Unchanged repositories only get
// their check recorded, which pushes the next check out a full interval.
type Refresh struct {
	repos          repo.Store
	profiler       *analyzer.Analyzer
	queue          *service.Queue
	ingestCfg      config.IngestionConfig
	docsCfg        config.DocsConfig
	cred           source.Credential
	trackerFactory handler.TrackerFactory
	logger         *slog.Logger
}

// NewRefresh creates a new Refresh handler.
func NewRefresh(
	repos repo.Store,
	profiler *analyzer.Analyzer,
	queue *service.Queue,
	ingestCfg config.IngestionConfig,
	docsCfg config.DocsConfig,
	cred source.Credential,
	trackerFactory handler.TrackerFactory,
	logger *slog.Logger,
) *Refresh {
	return &Refresh{
		repos:          repos,
		profiler:       profiler,
		queue:          queue,
		ingestCfg:      ingestCfg,
		docsCfg:        docsCfg,
		cred:           cred,
		trackerFactory: trackerFactory,
		logger:         logger,
	}
}

// Execute processes the refresh check for one repository.
func (h *Refresh) Execute(ctx context.Context, payload map[string]any) error {
	repositoryID, err := handler.ExtractInt64(payload, "repository_id")
	if err != nil {
		return err
	}

	tracker := h.trackerFactory.ForOperation(
		task.OperationRefreshRepository,
		task.TrackableTypeRepository,
		repositoryID,
	)

	repository, err := h.repos.FindOne(ctx, repo.WithID(repositoryID))
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("get repository: %w", err)
	}
	if repository.Status() != repo.StatusReady {
		tracker.Skip(ctx, fmt.Sprintf("Repository is %s, not refreshable", repository.Status()))
		return nil
	}

	changed, err := h.profiler.HasRepositoryChanged(ctx, repository, repository.LastIndexedAt(), h.cred)
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("change detection: %w", err)
	}
	if !changed {
		h.logger.Debug("repository unchanged",
			slog.Int64("repository_id", repositoryID),
			slog.String("full_name", repository.FullName()),
		)
		tracker.Skip(ctx, "Repository unchanged since last index")
		return nil
	}

	prescribed := task.NewPrescribedOperations(h.ingestCfg.AutoDocs(), h.docsCfg.Enrichment())
	if err := h.queue.EnqueueOperations(
		ctx,
		prescribed.ReindexRepository(),
		task.PriorityBackground,
		map[string]any{"repository_id": repositoryID},
	); err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("enqueue reindex: %w", err)
	}

	h.logger.Info("repository changed, reindex scheduled",
		slog.Int64("repository_id", repositoryID),
		slog.String("full_name", repository.FullName()),
	)
	tracker.Complete(ctx)
	return nil
}
