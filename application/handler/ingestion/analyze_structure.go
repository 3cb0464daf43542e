package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/analyzer"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/internal/retry"
)

// AnalyzeStructure profiles the repository tree: language statistics, line
// counts, and the inventory digest used for change detection. First runs
// start from Connected; reindex runs start from Ready.
type AnalyzeStructure struct {
	repos          repo.Store
	profiler       *analyzer.Analyzer
	cred           source.Credential
	policy         retry.Policy
	bus            event.Publisher
	trackerFactory handler.TrackerFactory
	logger         *slog.Logger
}

// NewAnalyzeStructure creates a new AnalyzeStructure handler.
func NewAnalyzeStructure(
	repos repo.Store,
	profiler *analyzer.Analyzer,
	cred source.Credential,
	bus event.Publisher,
	trackerFactory handler.TrackerFactory,
	logger *slog.Logger,
) *AnalyzeStructure {
	return &AnalyzeStructure{
		repos:          repos,
		profiler:       profiler,
		cred:           cred,
		policy:         retry.DefaultPolicy(),
		bus:            bus,
		trackerFactory: trackerFactory,
		logger:         logger,
	}
}

// WithRetryPolicy replaces the retry policy for source calls.
func (h *AnalyzeStructure) WithRetryPolicy(policy retry.Policy) *AnalyzeStructure {
	h.policy = policy
	return h
}

// Execute processes the structural analysis task for one repository.
func (h *AnalyzeStructure) Execute(ctx context.Context, payload map[string]any) error {
	repositoryID, err := handler.ExtractInt64(payload, "repository_id")
	if err != nil {
		return err
	}

	tracker := h.trackerFactory.ForOperation(
		task.OperationAnalyzeStructure,
		task.TrackableTypeRepository,
		repositoryID,
	)

	repository, err := h.repos.FindOne(ctx, repo.WithID(repositoryID))
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("get repository: %w", err)
	}

	switch repository.Status() {
	case repo.StatusConnected, repo.StatusReady:
	case repo.StatusAnalyzing:
		// A crashed run left the repository mid-analysis; redo the work.
	default:
		tracker.Skip(ctx, fmt.Sprintf("Repository is %s, not analyzable", repository.Status()))
		return nil
	}

	from := repository.Status()
	if from != repo.StatusAnalyzing {
		analyzing, err := repository.Transition(repo.StatusAnalyzing)
		if err != nil {
			tracker.Fail(ctx, err.Error())
			return err
		}
		repository, err = h.repos.Save(ctx, analyzing)
		if err != nil {
			tracker.Fail(ctx, err.Error())
			return fmt.Errorf("save repository: %w", err)
		}
		h.bus.Publish(ctx, event.NewRepositoryStatusChanged(
			repository.ID(), repository.FullName(),
			from.String(), repo.StatusAnalyzing.String(),
		))
	}

	tracker.SetTotal(ctx, 1)
	tracker.SetCurrent(ctx, 0, "Profiling repository structure")

	analysis, err := retry.DoResult(ctx, h.policy, func(ctx context.Context) (analyzer.AnalysisContext, error) {
		return h.profiler.Analyze(ctx, repository, h.cred)
	})
	if err != nil {
		failRepository(ctx, h.repos, h.bus, h.logger, repository, fmt.Errorf("analyze structure: %w", err))
		tracker.Fail(ctx, err.Error())
		return err
	}

	repository = repository.WithStatistics(repo.ComputeStatistics(analysis.Languages))
	if digest, ok := analysis.Metadata["inventory_digest"].(string); ok {
		repository = repository.WithInventoryDigest(digest)
	}
	repository, err = h.repos.Save(ctx, repository)
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("save repository: %w", err)
	}

	h.logger.Info("repository structure analyzed",
		slog.Int64("repository_id", repository.ID()),
		slog.String("primary_language", analysis.PrimaryLanguage),
		slog.Int("files", repository.Statistics().FileCount()),
		slog.Int("lines", repository.Statistics().LineCount()),
	)
	tracker.Complete(ctx)
	return nil
}
