package docs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/domain/docs"
	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/index"
)

// IndexSections writes the generated sections into the search index so
// retrieval can surface documentation alongside code.
type IndexSections struct {
	store          docs.Store
	indexer        *index.Indexer
	bus            event.Publisher
	trackerFactory handler.TrackerFactory
	logger         *slog.Logger
}

// NewIndexSections creates a new IndexSections handler.
func NewIndexSections(
	store docs.Store,
	indexer *index.Indexer,
	bus event.Publisher,
	trackerFactory handler.TrackerFactory,
	logger *slog.Logger,
) *IndexSections {
	return &IndexSections{
		store:          store,
		indexer:        indexer,
		bus:            bus,
		trackerFactory: trackerFactory,
		logger:         logger,
	}
}

// Execute processes the section indexing task for one repository.
func (h *IndexSections) Execute(ctx context.Context, payload map[string]any) error {
	repositoryID, err := handler.ExtractInt64(payload, "repository_id")
	if err != nil {
		return err
	}

	tracker := h.trackerFactory.ForOperation(
		task.OperationIndexSections,
		task.TrackableTypeRepository,
		repositoryID,
	)

	d, err := h.store.ForRepository(ctx, repositoryID)
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("load documentation: %w", err)
	}

	switch d.Status() {
	case docs.StatusGeneratingContent, docs.StatusEnriching:
		d, err = advance(ctx, h.store, h.bus, d, docs.StatusIndexing)
		if err != nil {
			tracker.Fail(ctx, err.Error())
			return err
		}
	case docs.StatusIndexing:
		// A crashed run left the documentation mid-indexing; resume.
	default:
		tracker.Skip(ctx, fmt.Sprintf("Documentation is %s, not indexable", d.Status()))
		return nil
	}

	sections := d.Sections()
	documents := make([]search.Document, 0, len(sections))
	for _, section := range sections {
		doc, err := search.NewDocument(
			search.SectionDocumentID(d.ID(), section.ID()),
			repositoryID,
			search.KindDocSection,
			section.Content(),
		)
		if err != nil {
			tracker.Fail(ctx, err.Error())
			return fmt.Errorf("section document %s: %w", section.Title(), err)
		}
		documents = append(documents, doc.
			WithTitle(section.Title()).
			WithSectionType(string(section.Type())))
	}

	tracker.SetTotal(ctx, len(documents))
	if err := h.indexer.Upsert(ctx, documents); err != nil {
		failDocumentation(ctx, h.store, h.bus, h.logger, d, fmt.Errorf("index sections: %w", err))
		tracker.Fail(ctx, err.Error())
		return err
	}

	h.logger.Info("documentation sections indexed",
		slog.Int64("repository_id", repositoryID),
		slog.Int("sections", len(documents)),
	)
	tracker.Complete(ctx)
	return nil
}
