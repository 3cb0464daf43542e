package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/analyzer"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/internal/config"
)

// Ingestion coordinates the repository lifecycle: connecting new
// repositories, reindexing changed ones, and removing them. The actual
// pipeline stages run as queued tasks; this service validates requests
// and enqueues the prescribed operation chains.
type Ingestion struct {
	repos    repo.Store
	queue    *Queue
	analyzer *analyzer.Analyzer
	cfg      config.IngestionConfig
	docsCfg  config.DocsConfig
	cred     source.Credential
	logger   *slog.Logger
}

// NewIngestion creates an Ingestion service.
func NewIngestion(
	repos repo.Store,
	queue *Queue,
	profiler *analyzer.Analyzer,
	cfg config.IngestionConfig,
	docsCfg config.DocsConfig,
	cred source.Credential,
	logger *slog.Logger,
) *Ingestion {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestion{
		repos:    repos,
		queue:    queue,
		analyzer: profiler,
		cfg:      cfg,
		docsCfg:  docsCfg,
		cred:     cred,
		logger:   logger,
	}
}

// inFlightStatuses are the repository states occupying an ingestion slot.
var inFlightStatuses = []repo.Status{
	repo.StatusConnecting,
	repo.StatusConnected,
	repo.StatusAnalyzing,
}

// Add registers a repository by URL and enqueues the full ingestion
// chain. A repository with the same owner/name is a conflict. When all
// concurrent ingestion slots are occupied the request is refused with a
// retry hint rather than queued, so callers can back off.
func (s *Ingestion) Add(ctx context.Context, rawURL string) (repo.Repository, error) {
	repository, err := repo.NewRepository(rawURL)
	if err != nil {
		return repo.Repository{}, err
	}

	exists, err := s.repos.Exists(ctx, repo.WithFullName(repository.FullName()))
	if err != nil {
		return repo.Repository{}, fmt.Errorf("check existing repository: %w", err)
	}
	if exists {
		return repo.Repository{}, fault.Newf(fault.KindConflict,
			"repository %s is already registered", repository.FullName())
	}

	active, err := s.repos.Count(ctx, repo.WithStatusIn(inFlightStatuses))
	if err != nil {
		return repo.Repository{}, fmt.Errorf("count active ingestions: %w", err)
	}
	if active >= int64(s.cfg.MaxConcurrent()) {
		return repo.Repository{}, fault.Newf(fault.KindRateLimited,
			"all %d ingestion slots are busy", s.cfg.MaxConcurrent()).
			WithRetryAfter(30 * time.Second)
	}

	saved, err := s.repos.Save(ctx, repository)
	if err != nil {
		return repo.Repository{}, fmt.Errorf("save repository: %w", err)
	}

	ops := s.prescribed().IngestRepository()
	if err := s.queue.EnqueueOperations(ctx, ops, task.PriorityUserInitiated, repoPayload(saved.ID())); err != nil {
		return repo.Repository{}, fmt.Errorf("enqueue ingestion: %w", err)
	}

	s.logger.Info("repository registered",
		slog.Int64("repository_id", saved.ID()),
		slog.String("full_name", saved.FullName()),
	)
	return saved, nil
}

// Reindex schedules a fresh analysis of a Ready repository. Unless force
// is set, the source host is consulted first and an unchanged repository
// is left alone.
func (s *Ingestion) Reindex(ctx context.Context, repositoryID int64, force bool) error {
	repository, err := s.repos.FindOne(ctx, repo.WithID(repositoryID))
	if err != nil {
		return err
	}

	if repository.Status() != repo.StatusReady {
		return fault.InvalidTransition("repository",
			repository.Status().String(), repo.StatusAnalyzing.String())
	}

	if !force {
		changed, err := s.analyzer.HasRepositoryChanged(ctx, repository, repository.LastIndexedAt(), s.cred)
		if err != nil {
			return fmt.Errorf("check for changes: %w", err)
		}
		if !changed {
			s.logger.Info("repository unchanged, skipping reindex",
				slog.Int64("repository_id", repositoryID),
			)
			return nil
		}
	}

	ops := s.prescribed().ReindexRepository()
	if err := s.queue.EnqueueOperations(ctx, ops, task.PriorityUserInitiated, repoPayload(repositoryID)); err != nil {
		return fmt.Errorf("enqueue reindex: %w", err)
	}
	return nil
}

// Remove drains pending work for a repository and schedules its removal.
// The removal task cascades across entities, documents, documentation,
// and graph memberships.
func (s *Ingestion) Remove(ctx context.Context, repositoryID int64) error {
	repository, err := s.repos.FindOne(ctx, repo.WithID(repositoryID))
	if err != nil {
		return err
	}

	drained, err := s.queue.DrainForRepository(ctx, repositoryID)
	if err != nil {
		return fmt.Errorf("drain pending tasks: %w", err)
	}
	if drained > 0 {
		s.logger.Info("drained pending tasks before removal",
			slog.Int64("repository_id", repositoryID),
			slog.Int("count", drained),
		)
	}

	ops := s.prescribed().RemoveRepository()
	if err := s.queue.EnqueueOperations(ctx, ops, task.PriorityCritical, repoPayload(repositoryID)); err != nil {
		return fmt.Errorf("enqueue removal: %w", err)
	}

	s.logger.Info("repository removal scheduled",
		slog.Int64("repository_id", repositoryID),
		slog.String("full_name", repository.FullName()),
	)
	return nil
}

// Get returns a repository by id.
func (s *Ingestion) Get(ctx context.Context, repositoryID int64) (repo.Repository, error) {
	return s.repos.FindOne(ctx, repo.WithID(repositoryID))
}

// List returns all registered repositories.
func (s *Ingestion) List(ctx context.Context, options ...repo.Option) ([]repo.Repository, error) {
	return s.repos.Find(ctx, options...)
}

// ScheduleRefreshDue enqueues a refresh check for every Ready repository
// whose last index is older than the refresh interval. It returns how
// many checks were scheduled. The refresh task itself decides whether
// anything changed.
func (s *Ingestion) ScheduleRefreshDue(ctx context.Context) (int, error) {
	if !s.cfg.RefreshEnabled() {
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-s.cfg.RefreshInterval())
	due, err := s.repos.Find(ctx,
		repo.WithStatus(repo.StatusReady),
		repo.WithReindexDueBefore(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("find repositories due for refresh: %w", err)
	}

	for _, repository := range due {
		t := task.NewTask(task.OperationRefreshRepository, int(task.PriorityBackground), repoPayload(repository.ID()))
		if err := s.queue.Enqueue(ctx, t); err != nil {
			return 0, fmt.Errorf("enqueue refresh for repository %d: %w", repository.ID(), err)
		}
	}
	return len(due), nil
}

func (s *Ingestion) prescribed() task.PrescribedOperations {
	return task.NewPrescribedOperations(s.cfg.AutoDocs(), s.docsCfg.Enrichment())
}

func repoPayload(repositoryID int64) map[string]any {
	return map[string]any{"repository_id": repositoryID}
}
