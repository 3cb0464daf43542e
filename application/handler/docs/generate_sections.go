package docs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/application/service"
	"github.com/codelore/codelore/domain/docs"
	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/provider"
	"github.com/codelore/codelore/internal/config"
)

const (
	// sectionEvidenceK is how many index hits ground one section.
	sectionEvidenceK = 8

	// maxReferencesPerSection caps the code references attached to a section.
	maxReferencesPerSection = 5

	// snippetPreviewBytes caps the excerpt stored on a code reference.
	snippetPreviewBytes = 400
)

// sectionSystemPrompt instructs the model for section generation.
const sectionSystemPrompt = `You are a senior technical writer documenting a software repository.
Write the body of one documentation section in Markdown.
Ground every claim in the provided code excerpts and cite file paths inline.
Do not start the body with a top-level "# " heading; the section title is rendered separately.
If the excerpts do not support the section topic, say what is unknown instead of inventing detail.`

// sectionQueries seed the evidence search per section type. Types not
// listed fall back to the section title.
var sectionQueries = map[docs.SectionType]string{
	docs.SectionOverview:        "readme project purpose main entry point",
	docs.SectionGettingStarted:  "quick start setup run locally install dependencies",
	docs.SectionInstallation:    "install build requirements dependency manifest",
	docs.SectionUsage:           "usage example invoke api public interface",
	docs.SectionConfiguration:   "configuration options environment variables settings",
	docs.SectionArchitecture:    "architecture components packages module boundaries",
	docs.SectionAPIReference:    "public api exported functions types endpoints",
	docs.SectionExamples:        "example sample demo snippet",
	docs.SectionTesting:         "tests test suite coverage fixtures",
	docs.SectionDeployment:      "deploy ci pipeline docker release workflow",
	docs.SectionTroubleshooting: "error handling common failures diagnostics logging",
}

// GenerateSections fills the planned sections with generated content. On
// reruns only missing sections are generated; sections that survived an
// earlier run are kept untouched.
type GenerateSections struct {
	store          docs.Store
	repos          repo.Store
	searcher       service.CandidateSearcher
	generator      provider.TextGenerator
	cfg            config.DocsConfig
	bus            event.Publisher
	trackerFactory handler.TrackerFactory
	logger         *slog.Logger
}

// NewGenerateSections creates a new GenerateSections handler.
func NewGenerateSections(
	store docs.Store,
	repos repo.Store,
	searcher service.CandidateSearcher,
	generator provider.TextGenerator,
	cfg config.DocsConfig,
	bus event.Publisher,
	trackerFactory handler.TrackerFactory,
	logger *slog.Logger,
) *GenerateSections {
	return &GenerateSections{
		store:          store,
		repos:          repos,
		searcher:       searcher,
		generator:      generator,
		cfg:            cfg,
		bus:            bus,
		trackerFactory: trackerFactory,
		logger:         logger,
	}
}

// Execute processes the section generation task for one repository.
func (h *GenerateSections) Execute(ctx context.Context, payload map[string]any) error {
	repositoryID, err := handler.ExtractInt64(payload, "repository_id")
	if err != nil {
		return err
	}

	tracker := h.trackerFactory.ForOperation(
		task.OperationGenerateSections,
		task.TrackableTypeRepository,
		repositoryID,
	)

	d, err := h.store.ForRepository(ctx, repositoryID)
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("load documentation: %w", err)
	}

	switch d.Status() {
	case docs.StatusAnalyzing:
		d, err = advance(ctx, h.store, h.bus, d, docs.StatusGeneratingContent)
		if err != nil {
			tracker.Fail(ctx, err.Error())
			return err
		}
	case docs.StatusGeneratingContent:
		// A crashed run left the documentation mid-generation; resume.
	default:
		tracker.Skip(ctx, fmt.Sprintf("Documentation is %s, not generating", d.Status()))
		return nil
	}

	repository, err := h.repos.FindOne(ctx, repo.WithID(repositoryID))
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("get repository: %w", err)
	}

	plan := d.Plan()
	if len(plan) == 0 {
		plan = docs.DefaultSectionSet(repository.PrimaryLanguage())
	}

	missing := make([]docs.SectionType, 0, len(plan))
	for _, typ := range plan {
		if !d.HasSection(typ) {
			missing = append(missing, typ)
		}
	}
	tracker.SetTotal(ctx, len(missing))

	// Sections generate in parallel; a failed section must not abort its
	// siblings, so errors are collected per slot instead of through the
	// group.
	generated := make([]docs.Section, len(missing))
	genErrs := make([]error, len(missing))
	var done atomic.Int32

	var eg errgroup.Group
	eg.SetLimit(h.cfg.MaxConcurrent())
	for i, typ := range missing {
		eg.Go(func() error {
			section, err := h.generateSection(ctx, repository, typ)
			if err != nil {
				genErrs[i] = fmt.Errorf("%s: %w", typ, err)
				return nil
			}
			generated[i] = section
			tracker.SetCurrent(ctx, int(done.Add(1)), fmt.Sprintf("Generated %s", typ.Title()))
			return nil
		})
	}
	_ = eg.Wait()

	var failures []error
	for i, typ := range missing {
		if genErrs[i] != nil {
			h.logger.Warn("section generation failed",
				slog.Int64("repository_id", repositoryID),
				slog.String("section", string(typ)),
				slog.String("error", genErrs[i].Error()),
			)
			failures = append(failures, genErrs[i])
			continue
		}
		if d, err = d.AddSection(generated[i]); err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", typ, err))
		}
	}

	d, err = h.store.Save(ctx, d)
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("save documentation: %w", err)
	}

	if len(failures) > 0 {
		// The joined causes keep every per-section diagnostic in the
		// recorded message, so a quota refusal is visible as such.
		joined := errors.Join(failures...)
		kind := fault.KindOf(joined)
		if kind == fault.KindUnknown {
			kind = fault.KindTransientDependency
		}
		cause := fault.Wrap(kind, "section generation failed", joined)
		failDocumentation(ctx, h.store, h.bus, h.logger, d, cause)
		tracker.Fail(ctx, cause.Error())
		return cause
	}

	h.logger.Info("documentation sections generated",
		slog.Int64("repository_id", repositoryID),
		slog.Int("sections", len(d.Sections())),
	)
	tracker.Complete(ctx)
	return nil
}

// generateSection grounds one section in index evidence and asks the
// model for its body.
func (h *GenerateSections) generateSection(
	ctx context.Context,
	repository repo.Repository,
	typ docs.SectionType,
) (docs.Section, error) {
	evidence, err := h.sectionEvidence(ctx, repository.ID(), typ)
	if err != nil {
		return docs.Section{}, err
	}

	request := provider.NewChatRequest(
		provider.SystemMessage(sectionSystemPrompt),
		provider.UserMessage(sectionUserPrompt(repository, typ, evidence)),
	).WithTemperature(h.cfg.SectionTemperature()).WithMaxTokens(h.cfg.MaxTokensPerSection())

	response, err := h.generator.Generate(ctx, request)
	if err != nil {
		return docs.Section{}, err
	}
	content := strings.TrimSpace(response.Content())
	if content == "" {
		return docs.Section{}, fault.New(fault.KindTransientDependency, "model returned an empty section body")
	}

	section, err := docs.NewSection(typ, typ.Title(), content, docs.CanonicalRank(typ))
	if err != nil {
		return docs.Section{}, err
	}
	return section.WithCodeReferences(referencesFrom(evidence)), nil
}

// sectionEvidence searches the repository index for material grounding
// one section.
func (h *GenerateSections) sectionEvidence(
	ctx context.Context,
	repositoryID int64,
	typ docs.SectionType,
) ([]search.Candidate, error) {
	text, ok := sectionQueries[typ]
	if !ok {
		text = typ.Title()
	}
	filters := search.NewFilters(
		search.WithRepositories(repositoryID),
		search.WithKinds(search.KindCodeChunk),
	)
	return h.searcher.Search(ctx, search.NewQuery(text, search.TypeHybrid, filters, sectionEvidenceK))
}

// sectionUserPrompt assembles the generation prompt for one section.
func sectionUserPrompt(repository repo.Repository, typ docs.SectionType, evidence []search.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", repository.FullName())
	if lang := repository.PrimaryLanguage(); lang != "" {
		fmt.Fprintf(&b, "Primary language: %s\n", lang)
	}
	if desc := repository.Description(); desc != "" {
		fmt.Fprintf(&b, "Description: %s\n", desc)
	}
	fmt.Fprintf(&b, "\nSection to write: %s\n", typ.Title())

	if len(evidence) > 0 {
		b.WriteString("\nCode excerpts:\n")
		for _, c := range evidence {
			doc := c.Document()
			fmt.Fprintf(&b, "\n--- %s:%d-%d ---\n%s\n", doc.Path(), doc.StartLine(), doc.EndLine(), doc.Content())
		}
	} else {
		b.WriteString("\nNo code excerpts matched this topic.\n")
	}
	return b.String()
}

// referencesFrom turns the strongest evidence into section code references.
func referencesFrom(evidence []search.Candidate) []docs.CodeReference {
	refs := make([]docs.CodeReference, 0, maxReferencesPerSection)
	seen := make(map[string]struct{})
	for _, c := range evidence {
		doc := c.Document()
		if doc.Path() == "" {
			continue
		}
		key := fmt.Sprintf("%s:%d", doc.Path(), doc.StartLine())
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		snippet := doc.Content()
		if len(snippet) > snippetPreviewBytes {
			snippet = snippet[:snippetPreviewBytes]
		}
		refs = append(refs, docs.CodeReference{
			FilePath:      doc.Path(),
			CodeSnippet:   snippet,
			Description:   doc.Title(),
			ReferenceType: "excerpt",
			StartLine:     doc.StartLine(),
			EndLine:       doc.EndLine(),
		})
		if len(refs) == maxReferencesPerSection {
			break
		}
	}
	return refs
}
