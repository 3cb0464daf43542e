// Package docs defines the documentation aggregate: LLM-generated sections
// with quality gating, canonical render order, and patch-versioned
// completions.
package docs

import (
	"sort"
	"time"

	"github.com/codelore/codelore/domain/fault"
)

// Statistics summarizes a generation run.
type Statistics struct {
	SectionCount int
	WordCount    int
	QualityScore float64
	TokensUsed   int64
	GeneratedAt  time.Time
	Duration     time.Duration
}

// Documentation is the aggregate root for a repository's generated
// documentation.
type Documentation struct {
	id           int64
	repositoryID int64
	title        string
	status       Status
	sections     []Section
	metadata     map[string]string
	version      Version
	stats        Statistics
	errorMessage string
	createdAt    time.Time
	updatedAt    time.Time
}

// NewDocumentation creates documentation in the NotStarted state at version
// 1.0.0.
func NewDocumentation(repositoryID int64, title string) (Documentation, error) {
	if title == "" {
		return Documentation{}, fault.Validation("documentation title cannot be empty")
	}

	now := time.Now().UTC()
	return Documentation{
		repositoryID: repositoryID,
		title:        title,
		status:       StatusNotStarted,
		version:      InitialVersion(),
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

// ReconstructDocumentation rebuilds documentation from persistence.
func ReconstructDocumentation(
	id int64,
	repositoryID int64,
	title string,
	status Status,
	sections []Section,
	metadata map[string]string,
	version Version,
	stats Statistics,
	errorMessage string,
	createdAt time.Time,
	updatedAt time.Time,
) Documentation {
	sectionCopy := make([]Section, len(sections))
	copy(sectionCopy, sections)
	var meta map[string]string
	if metadata != nil {
		meta = make(map[string]string, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
	}
	return Documentation{
		id:           id,
		repositoryID: repositoryID,
		title:        title,
		status:       status,
		sections:     sectionCopy,
		metadata:     meta,
		version:      version,
		stats:        stats,
		errorMessage: errorMessage,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

// ID returns the database identifier (0 until first save).
func (d Documentation) ID() int64 { return d.id }

// RepositoryID returns the documented repository.
func (d Documentation) RepositoryID() int64 { return d.repositoryID }

// Title returns the documentation title.
func (d Documentation) Title() string { return d.title }

// Status returns the generation state.
func (d Documentation) Status() Status { return d.status }

// Version returns the semver version.
func (d Documentation) Version() Version { return d.version }

// Statistics returns the last run statistics.
func (d Documentation) Statistics() Statistics { return d.stats }

// ErrorMessage returns the diagnostic recorded with the Error status.
func (d Documentation) ErrorMessage() string { return d.errorMessage }

// CreatedAt returns when the documentation was registered.
func (d Documentation) CreatedAt() time.Time { return d.createdAt }

// UpdatedAt returns the last mutation time.
func (d Documentation) UpdatedAt() time.Time { return d.updatedAt }

// Metadata returns a copy of generation metadata.
func (d Documentation) Metadata() map[string]string {
	if d.metadata == nil {
		return nil
	}
	out := make(map[string]string, len(d.metadata))
	for k, v := range d.metadata {
		out[k] = v
	}
	return out
}

// Sections returns a copy of the sections in persisted order.
func (d Documentation) Sections() []Section {
	out := make([]Section, len(d.sections))
	copy(out, d.sections)
	return out
}

// RenderSections returns the sections in canonical render order: fixed type
// order first, then persisted order, then title.
func (d Documentation) RenderSections() []Section {
	out := d.Sections()
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := CanonicalRank(out[i].Type()), CanonicalRank(out[j].Type())
		if ri != rj {
			return ri < rj
		}
		if out[i].Order() != out[j].Order() {
			return out[i].Order() < out[j].Order()
		}
		return out[i].Title() < out[j].Title()
	})
	return out
}

// SectionByType returns the first section of the given type.
func (d Documentation) SectionByType(typ SectionType) (Section, bool) {
	for _, s := range d.sections {
		if s.Type() == typ {
			return s, true
		}
	}
	return Section{}, false
}

// HasSection reports whether a section of the type exists.
func (d Documentation) HasSection(typ SectionType) bool {
	_, ok := d.SectionByType(typ)
	return ok
}

// SectionTypes returns the types present, in persisted order.
func (d Documentation) SectionTypes() []SectionType {
	types := make([]SectionType, len(d.sections))
	for i, s := range d.sections {
		types[i] = s.Type()
	}
	return types
}

// WithID returns a copy with the database identifier set.
func (d Documentation) WithID(id int64) Documentation {
	d.id = id
	return d
}

// AddSection appends a section. A second section of a unique type is
// rejected.
func (d Documentation) AddSection(section Section) (Documentation, error) {
	if section.Type().Unique() && d.HasSection(section.Type()) {
		return d, fault.Validationf("documentation already has a %s section", section.Type())
	}
	d.sections = append(d.Sections(), section)
	d.updatedAt = time.Now().UTC()
	return d, nil
}

// ReplaceSection swaps the section of the same type, or appends when
// absent.
func (d Documentation) ReplaceSection(section Section) Documentation {
	sections := d.Sections()
	replaced := false
	for i, s := range sections {
		if s.Type() == section.Type() {
			sections[i] = section
			replaced = true
			break
		}
	}
	if !replaced {
		sections = append(sections, section)
	}
	d.sections = sections
	d.updatedAt = time.Now().UTC()
	return d
}

// WithMetadata returns a copy with one metadata key set.
func (d Documentation) WithMetadata(key, value string) Documentation {
	meta := make(map[string]string, len(d.metadata)+1)
	for k, v := range d.metadata {
		meta[k] = v
	}
	meta[key] = value
	d.metadata = meta
	d.updatedAt = time.Now().UTC()
	return d
}

// Transition advances the generation state along an allowed edge.
func (d Documentation) Transition(next Status) (Documentation, error) {
	status, err := d.status.TransitionTo(next)
	if err != nil {
		return d, err
	}
	d.status = status
	if next != StatusError {
		d.errorMessage = ""
	}
	d.updatedAt = time.Now().UTC()
	return d, nil
}

// MarkError transitions to Error recording a diagnostic message.
func (d Documentation) MarkError(message string) (Documentation, error) {
	failed, err := d.Transition(StatusError)
	if err != nil {
		return d, err
	}
	failed.errorMessage = message
	return failed, nil
}

// Complete transitions to Completed, records run statistics, and bumps the
// patch version exactly once.
func (d Documentation) Complete(stats Statistics) (Documentation, error) {
	done, err := d.Transition(StatusCompleted)
	if err != nil {
		return d, err
	}
	done.stats = stats
	done.version = done.version.BumpPatch()
	return done, nil
}

// MarkForRegeneration flags completed documentation as stale.
func (d Documentation) MarkForRegeneration() (Documentation, error) {
	return d.Transition(StatusUpdateRequired)
}
