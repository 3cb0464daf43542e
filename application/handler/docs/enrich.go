package docs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/domain/docs"
	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/provider"
)

// enrichTemperature allows slightly freer phrasing than generation.
const enrichTemperature = 0.4

// maxTokensPerSection caps one enrichment call per section.
const maxTokensPerSection = 4000

// enrichSystemPrompt instructs the model for the enrichment pass.
const enrichSystemPrompt = `You are editing one section of generated repository documentation.
Improve clarity and flow, fix awkward phrasing, and keep all file paths and identifiers exactly as written.
Do not add claims that are not already present.
Do not start the body with a top-level "# " heading.
Return only the revised Markdown body.`

// Enrich runs an editing pass over every generated section. Enrichment is
// best effort: a section whose pass fails keeps its original content.
type Enrich struct {
	store          docs.Store
	generator      provider.TextGenerator
	bus            event.Publisher
	trackerFactory handler.TrackerFactory
	logger         *slog.Logger
}

// NewEnrich creates a new Enrich handler.
func NewEnrich(
	store docs.Store,
	generator provider.TextGenerator,
	bus event.Publisher,
	trackerFactory handler.TrackerFactory,
	logger *slog.Logger,
) *Enrich {
	return &Enrich{
		store:          store,
		generator:      generator,
		bus:            bus,
		trackerFactory: trackerFactory,
		logger:         logger,
	}
}

// Execute processes the enrichment task for one repository.
func (h *Enrich) Execute(ctx context.Context, payload map[string]any) error {
	repositoryID, err := handler.ExtractInt64(payload, "repository_id")
	if err != nil {
		return err
	}

	tracker := h.trackerFactory.ForOperation(
		task.OperationEnrichSections,
		task.TrackableTypeRepository,
		repositoryID,
	)

	d, err := h.store.ForRepository(ctx, repositoryID)
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("load documentation: %w", err)
	}

	switch d.Status() {
	case docs.StatusGeneratingContent:
		d, err = advance(ctx, h.store, h.bus, d, docs.StatusEnriching)
		if err != nil {
			tracker.Fail(ctx, err.Error())
			return err
		}
	case docs.StatusEnriching:
		// A crashed run left the documentation mid-enrichment; resume.
	default:
		tracker.Skip(ctx, fmt.Sprintf("Documentation is %s, not enrichable", d.Status()))
		return nil
	}

	sections := d.Sections()
	tracker.SetTotal(ctx, len(sections))

	var kept int
	for i, section := range sections {
		tracker.SetCurrent(ctx, i, fmt.Sprintf("Enriching %s", section.Title()))

		revised, err := h.enrichSection(ctx, section)
		if err != nil {
			h.logger.Warn("section enrichment failed, original kept",
				slog.Int64("repository_id", repositoryID),
				slog.String("section", string(section.Type())),
				slog.String("error", err.Error()),
			)
			kept++
			continue
		}
		d = d.ReplaceSection(revised)
	}

	if _, err := h.store.Save(ctx, d); err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("save documentation: %w", err)
	}

	h.logger.Info("documentation sections enriched",
		slog.Int64("repository_id", repositoryID),
		slog.Int("sections", len(sections)),
		slog.Int("kept_original", kept),
	)
	tracker.Complete(ctx)
	return nil
}

// enrichSection asks the model for a revised body and applies it.
func (h *Enrich) enrichSection(ctx context.Context, section docs.Section) (docs.Section, error) {
	request := provider.NewChatRequest(
		provider.SystemMessage(enrichSystemPrompt),
		provider.UserMessage(fmt.Sprintf("Section: %s\n\n%s", section.Title(), section.Content())),
	).WithTemperature(enrichTemperature).WithMaxTokens(maxTokensPerSection)

	response, err := h.generator.Generate(ctx, request)
	if err != nil {
		return docs.Section{}, err
	}
	content := strings.TrimSpace(response.Content())
	if content == "" {
		return docs.Section{}, fmt.Errorf("model returned an empty revision")
	}
	return section.WithContent(content)
}
