package docs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/domain/docs"
	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/analyzer"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/internal/database"
)

// Analyze opens a documentation run: it creates or revives the aggregate,
// profiles the repository, and plans the section set the later stages
// will fill.
type Analyze struct {
	store          docs.Store
	repos          repo.Store
	profiler       *analyzer.Analyzer
	cred           source.Credential
	bus            event.Publisher
	trackerFactory handler.TrackerFactory
	logger         *slog.Logger
}

// NewAnalyze creates a new Analyze handler.
func NewAnalyze(
	store docs.Store,
	repos repo.Store,
	profiler *analyzer.Analyzer,
	cred source.Credential,
	bus event.Publisher,
	trackerFactory handler.TrackerFactory,
	logger *slog.Logger,
) *Analyze {
	return &Analyze{
		store:          store,
		repos:          repos,
		profiler:       profiler,
		cred:           cred,
		bus:            bus,
		trackerFactory: trackerFactory,
		logger:         logger,
	}
}

// Execute processes the documentation analysis task for one repository.
func (h *Analyze) Execute(ctx context.Context, payload map[string]any) error {
	repositoryID, err := handler.ExtractInt64(payload, "repository_id")
	if err != nil {
		return err
	}

	tracker := h.trackerFactory.ForOperation(
		task.OperationAnalyzeDocumentation,
		task.TrackableTypeRepository,
		repositoryID,
	)

	repository, err := h.repos.FindOne(ctx, repo.WithID(repositoryID))
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("get repository: %w", err)
	}
	if repository.Status() != repo.StatusReady {
		tracker.Skip(ctx, fmt.Sprintf("Repository is %s, not ready for documentation", repository.Status()))
		return nil
	}

	d, err := h.store.ForRepository(ctx, repositoryID)
	switch {
	case err == nil:
	case errors.Is(err, database.ErrNotFound):
		d, err = docs.NewDocumentation(repositoryID, repository.FullName())
		if err != nil {
			tracker.Fail(ctx, err.Error())
			return err
		}
	default:
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("load documentation: %w", err)
	}

	// Completed documentation reaches Analyzing through UpdateRequired.
	if d.Status() == docs.StatusCompleted {
		if d, err = d.MarkForRegeneration(); err != nil {
			tracker.Fail(ctx, err.Error())
			return err
		}
	}
	if d.Status() == docs.StatusAnalyzing {
		tracker.Skip(ctx, "Documentation analysis already in progress")
		return nil
	}

	d, err = advance(ctx, h.store, h.bus, d, docs.StatusAnalyzing)
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return err
	}

	tracker.SetTotal(ctx, 1)
	tracker.SetCurrent(ctx, 0, "Planning documentation sections")

	analysis, err := h.profiler.Analyze(ctx, repository, h.cred)
	if err != nil {
		failDocumentation(ctx, h.store, h.bus, h.logger, d, fmt.Errorf("profile repository: %w", err))
		tracker.Fail(ctx, err.Error())
		return err
	}

	plan := sectionPlan(analysis)
	d = d.
		WithMetadata(docs.MetadataPlannedSections, docs.FormatPlan(plan)).
		WithMetadata(metadataGenerationStarted, time.Now().UTC().Format(time.RFC3339))
	if _, err := h.store.Save(ctx, d); err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("save documentation: %w", err)
	}

	h.logger.Info("documentation run planned",
		slog.Int64("repository_id", repositoryID),
		slog.Int64("documentation_id", d.ID()),
		slog.Int("planned_sections", len(plan)),
	)
	tracker.Complete(ctx)
	return nil
}

// sectionPlan derives the section set from the structural profile: the
// language default set, testing when tests exist, deployment when CI
// exists, and architecture when the profiler found pattern hints.
func sectionPlan(analysis analyzer.AnalysisContext) []docs.SectionType {
	plan := docs.DefaultSectionSet(analysis.PrimaryLanguage)
	if analysis.Structure.TestFiles > 0 {
		plan = appendMissing(plan, docs.SectionTesting)
	}
	if analysis.Structure.HasCI {
		plan = appendMissing(plan, docs.SectionDeployment)
	}
	if len(analysis.PatternHints) > 0 {
		plan = appendMissing(plan, docs.SectionArchitecture)
	}
	sort.SliceStable(plan, func(i, j int) bool {
		return docs.CanonicalRank(plan[i]) < docs.CanonicalRank(plan[j])
	})
	return plan
}

func appendMissing(plan []docs.SectionType, typ docs.SectionType) []docs.SectionType {
	for _, t := range plan {
		if t == typ {
			return plan
		}
	}
	return append(plan, typ)
}
