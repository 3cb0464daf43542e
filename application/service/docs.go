package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codelore/codelore/domain/docs"
	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/internal/config"
	"github.com/codelore/codelore/internal/database"
)

// inFlightDocsStatuses are the states in which a generation run is
// already underway.
var inFlightDocsStatuses = map[docs.Status]struct{}{
	docs.StatusAnalyzing:         {},
	docs.StatusGeneratingContent: {},
	docs.StatusEnriching:         {},
	docs.StatusIndexing:          {},
}

// Docs manages documentation generation runs and serves rendered
// documentation. Generation itself happens in queued pipeline stages;
// this service validates requests, enqueues the stage chain, and
// applies the quality gate configuration.
type Docs struct {
	store  docs.Store
	repos  repo.Store
	queue  *Queue
	cfg    config.DocsConfig
	logger *slog.Logger
}

// NewDocs creates a Docs service.
func NewDocs(store docs.Store, repos repo.Store, queue *Queue, cfg config.DocsConfig, logger *slog.Logger) *Docs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Docs{
		store:  store,
		repos:  repos,
		queue:  queue,
		cfg:    cfg,
		logger: logger,
	}
}

// Generate schedules a documentation run for a repository. The repository
// must be fully indexed. A run already in flight is a conflict; completed
// documentation is only regenerated when force is set.
func (s *Docs) Generate(ctx context.Context, repositoryID int64, force bool) error {
	repository, err := s.repos.FindOne(ctx, repo.WithID(repositoryID))
	if err != nil {
		return err
	}
	if repository.Status() != repo.StatusReady {
		return fault.Newf(fault.KindInvalidTransition,
			"repository %s is %s, documentation requires ready",
			repository.FullName(), repository.Status())
	}

	existing, err := s.store.ForRepository(ctx, repositoryID)
	switch {
	case err == nil:
		if _, busy := inFlightDocsStatuses[existing.Status()]; busy {
			return fault.Newf(fault.KindConflict,
				"documentation for repository %d is already generating (%s)",
				repositoryID, existing.Status())
		}
		if existing.Status() == docs.StatusCompleted && !force {
			s.logger.Info("documentation already complete, skipping",
				slog.Int64("repository_id", repositoryID),
				slog.String("version", existing.Version().String()),
			)
			return nil
		}
	case errors.Is(err, database.ErrNotFound) || fault.Is(err, fault.KindNotFound):
		// First run for this repository.
	default:
		return fmt.Errorf("load documentation: %w", err)
	}

	ops := task.NewPrescribedOperations(true, s.cfg.Enrichment()).GenerateDocumentation()
	if err := s.queue.EnqueueOperations(ctx, ops, task.PriorityUserInitiated, repoPayload(repositoryID)); err != nil {
		return fmt.Errorf("enqueue documentation run: %w", err)
	}
	return nil
}

// Get returns the documentation of a repository.
func (s *Docs) Get(ctx context.Context, repositoryID int64) (docs.Documentation, error) {
	return s.store.ForRepository(ctx, repositoryID)
}

// MarkForRegeneration flags completed documentation as stale and
// schedules a new run. Only missing or failed sections are regenerated;
// sections that survived the previous run are kept.
func (s *Docs) MarkForRegeneration(ctx context.Context, repositoryID int64) error {
	existing, err := s.store.ForRepository(ctx, repositoryID)
	if err != nil {
		return err
	}

	stale, err := existing.MarkForRegeneration()
	if err != nil {
		return err
	}
	if _, err := s.store.Save(ctx, stale); err != nil {
		return fmt.Errorf("save documentation: %w", err)
	}

	ops := task.NewPrescribedOperations(true, s.cfg.Enrichment()).GenerateDocumentation()
	if err := s.queue.EnqueueOperations(ctx, ops, task.PriorityNormal, repoPayload(repositoryID)); err != nil {
		return fmt.Errorf("enqueue regeneration: %w", err)
	}
	return nil
}

// Quality scores documentation against its recorded section plan.
func (s *Docs) Quality(d docs.Documentation) docs.Quality {
	return docs.ScoreQuality(d, d.Plan())
}

// MeetsQualityGate reports whether documentation clears the configured
// quality floor.
func (s *Docs) MeetsQualityGate(d docs.Documentation) bool {
	return s.Quality(d).Meets(s.cfg.MinQualityScore())
}

// Render assembles documentation into a single markdown document in
// canonical section order.
func (s *Docs) Render(d docs.Documentation) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(d.Title())
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "_Version %s_\n\n", d.Version())

	for _, section := range d.RenderSections() {
		b.WriteString("## ")
		b.WriteString(section.Title())
		b.WriteString("\n\n")
		b.WriteString(strings.TrimRight(section.Content(), "\n"))
		b.WriteString("\n\n")

		refs := section.CodeReferences()
		if len(refs) == 0 {
			continue
		}
		b.WriteString("Referenced code:\n\n")
		for _, ref := range refs {
			if ref.StartLine > 0 {
				fmt.Fprintf(&b, "- `%s:%d-%d`\n", ref.FilePath, ref.StartLine, ref.EndLine)
			} else {
				fmt.Fprintf(&b, "- `%s`\n", ref.FilePath)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
