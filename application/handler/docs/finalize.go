package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/domain/docs"
	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/provider"
	"github.com/codelore/codelore/internal/config"
)

// consistencyExcerptBytes caps the per-section excerpt sent to the
// consistency self-check.
const consistencyExcerptBytes = 1200

// consistencyPrompt asks the model for a yes/no verdict per section. The
// verdicts replace the structural consistency component of the quality
// score.
const consistencyPrompt = `You are reviewing generated documentation for a software repository.
For each section, judge whether its content matches its title and does not
contradict the other sections. Respond with a JSON object only:
{"verdicts": {"<section type>": true|false, ...}}

%s`

// Finalize closes a documentation run: it scores the result against the
// quality gate, and either completes the aggregate with run statistics or
// records the quality failure. With a generator configured the consistency
// component comes from a model self-check; without one the structural
// check stands.
type Finalize struct {
	store          docs.Store
	generator      provider.TextGenerator
	cfg            config.DocsConfig
	bus            event.Publisher
	trackerFactory handler.TrackerFactory
	logger         *slog.Logger
}

// NewFinalize creates a new Finalize handler. generator may be nil.
func NewFinalize(
	store docs.Store,
	generator provider.TextGenerator,
	cfg config.DocsConfig,
	bus event.Publisher,
	trackerFactory handler.TrackerFactory,
	logger *slog.Logger,
) *Finalize {
	return &Finalize{
		store:          store,
		generator:      generator,
		cfg:            cfg,
		bus:            bus,
		trackerFactory: trackerFactory,
		logger:         logger,
	}
}

// Execute processes the finalize task for one repository.
func (h *Finalize) Execute(ctx context.Context, payload map[string]any) error {
	repositoryID, err := handler.ExtractInt64(payload, "repository_id")
	if err != nil {
		return err
	}

	tracker := h.trackerFactory.ForOperation(
		task.OperationFinalizeDocumentation,
		task.TrackableTypeRepository,
		repositoryID,
	)

	d, err := h.store.ForRepository(ctx, repositoryID)
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("load documentation: %w", err)
	}

	switch d.Status() {
	case docs.StatusGeneratingContent, docs.StatusEnriching, docs.StatusIndexing:
	default:
		tracker.Skip(ctx, fmt.Sprintf("Documentation is %s, nothing to finalize", d.Status()))
		return nil
	}

	tracker.SetTotal(ctx, 1)
	tracker.SetCurrent(ctx, 0, "Scoring documentation quality")

	quality := docs.ScoreQuality(d, d.Plan())
	if verdict, ok := h.selfCheckConsistency(ctx, d); ok {
		quality = quality.WithConsistency(verdict)
	}
	if !quality.Meets(h.cfg.MinQualityScore()) {
		cause := fault.Newf(fault.KindPermanentDependency,
			"quality score %.2f below threshold %.2f",
			quality.Score(), h.cfg.MinQualityScore())
		failDocumentation(ctx, h.store, h.bus, h.logger, d, cause)
		tracker.Fail(ctx, cause.Error())
		return cause
	}

	completed, err := d.Complete(runStatistics(d, quality))
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return err
	}
	from := d.Status()
	completed, err = h.store.Save(ctx, completed)
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("save documentation: %w", err)
	}

	h.bus.Publish(ctx,
		event.NewDocumentationStatusChanged(
			completed.ID(), repositoryID,
			from.String(), docs.StatusCompleted.String(),
		),
		event.NewDocumentationCompleted(
			completed.ID(), repositoryID,
			completed.Version().String(), quality.Score(),
		),
	)

	h.logger.Info("documentation completed",
		slog.Int64("repository_id", repositoryID),
		slog.String("version", completed.Version().String()),
		slog.Float64("quality", quality.Score()),
	)
	tracker.Complete(ctx)
	return nil
}

// selfCheckConsistency asks the generator for a per-section yes/no verdict
// and returns the fraction of sections judged consistent. The second
// return is false when no generator is configured or the verdict is
// unusable, leaving the structural component in place.
func (h *Finalize) selfCheckConsistency(ctx context.Context, d docs.Documentation) (float64, bool) {
	sections := d.Sections()
	if h.generator == nil || len(sections) == 0 {
		return 0, false
	}

	var b strings.Builder
	for _, s := range sections {
		excerpt := s.Content()
		if len(excerpt) > consistencyExcerptBytes {
			excerpt = excerpt[:consistencyExcerptBytes]
		}
		fmt.Fprintf(&b, "--- %s: %s ---\n%s\n\n", s.Type(), s.Title(), excerpt)
	}

	req := provider.NewChatRequest(
		provider.UserMessage(fmt.Sprintf(consistencyPrompt, b.String())),
	).WithTemperature(0)

	resp, err := h.generator.Generate(ctx, req)
	if err != nil {
		h.logger.Warn("consistency self-check unavailable",
			slog.Int64("repository_id", d.RepositoryID()),
			slog.String("error", err.Error()),
		)
		return 0, false
	}

	var parsed struct {
		Verdicts map[string]bool `json:"verdicts"`
	}
	raw := provider.ExtractJSON(resp.Content())
	if raw == "" || json.Unmarshal([]byte(raw), &parsed) != nil || len(parsed.Verdicts) == 0 {
		return 0, false
	}

	consistent := 0
	for _, s := range sections {
		if parsed.Verdicts[string(s.Type())] {
			consistent++
		}
	}
	return float64(consistent) / float64(len(sections)), true
}

// runStatistics summarizes the finished run.
func runStatistics(d docs.Documentation, quality docs.Quality) docs.Statistics {
	var words int
	var tokens int64
	for _, section := range d.Sections() {
		words += len(strings.Fields(section.Content()))
		tokens += int64(search.EstimateTokens(section.Content()))
	}

	now := time.Now().UTC()
	var duration time.Duration
	if started, err := time.Parse(time.RFC3339, d.Metadata()[metadataGenerationStarted]); err == nil {
		duration = now.Sub(started)
	}

	return docs.Statistics{
		SectionCount: len(d.Sections()),
		WordCount:    words,
		QualityScore: quality.Score(),
		TokensUsed:   tokens,
		GeneratedAt:  now,
		Duration:     duration,
	}
}
