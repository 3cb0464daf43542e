// Package docs provides the task handlers of the documentation pipeline:
// analysis and section planning, content generation, enrichment, section
// indexing, and the finalize stage with its quality gate.
package docs

import (
	"context"
	"log/slog"

	"github.com/codelore/codelore/domain/docs"
	"github.com/codelore/codelore/domain/event"
)

// metadataGenerationStarted records when a run entered the pipeline, so
// the finalize stage can compute the run duration.
const metadataGenerationStarted = "generation_started_at"

// advance transitions the documentation, persists it, and publishes the
// status change.
func advance(
	ctx context.Context,
	store docs.Store,
	bus event.Publisher,
	d docs.Documentation,
	next docs.Status,
) (docs.Documentation, error) {
	from := d.Status()
	moved, err := d.Transition(next)
	if err != nil {
		return d, err
	}
	saved, err := store.Save(ctx, moved)
	if err != nil {
		return d, err
	}
	bus.Publish(ctx, event.NewDocumentationStatusChanged(
		saved.ID(), saved.RepositoryID(), from.String(), next.String(),
	))
	return saved, nil
}

// failDocumentation moves the documentation to Error with the cause as
// diagnostic and publishes the status change. Persistence failures are
// logged and swallowed so the original cause survives.
func failDocumentation(
	ctx context.Context,
	store docs.Store,
	bus event.Publisher,
	logger *slog.Logger,
	d docs.Documentation,
	cause error,
) {
	from := d.Status()
	failed, err := d.MarkError(cause.Error())
	if err != nil {
		logger.Error("documentation error transition rejected",
			slog.Int64("documentation_id", d.ID()),
			slog.String("error", err.Error()),
		)
		return
	}
	saved, err := store.Save(ctx, failed)
	if err != nil {
		logger.Error("documentation error state not persisted",
			slog.Int64("documentation_id", d.ID()),
			slog.String("error", err.Error()),
		)
		return
	}
	bus.Publish(ctx, event.NewDocumentationStatusChanged(
		saved.ID(), saved.RepositoryID(), from.String(), docs.StatusError.String(),
	))
}
