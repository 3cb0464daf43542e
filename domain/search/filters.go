package search

import (
	"strings"
	"time"
)

// Filters narrows a search to a subset of the index.
type Filters struct {
	repositoryIDs []int64
	kinds         []DocumentKind
	language      string
	pathPrefix    string
	sectionTypes  []string
	tags          []string
	createdAfter  time.Time
	createdBefore time.Time
}

// FiltersOption is a functional option for Filters.
type FiltersOption func(*Filters)

// WithRepositories restricts results to the given repositories.
func WithRepositories(ids ...int64) FiltersOption {
	return func(f *Filters) {
		if len(ids) > 0 {
			f.repositoryIDs = make([]int64, len(ids))
			copy(f.repositoryIDs, ids)
		}
	}
}

// WithKinds restricts results to the given document families.
func WithKinds(kinds ...DocumentKind) FiltersOption {
	return func(f *Filters) {
		if len(kinds) > 0 {
			f.kinds = make([]DocumentKind, len(kinds))
			copy(f.kinds, kinds)
		}
	}
}

// WithLanguage restricts code results to one language.
func WithLanguage(language string) FiltersOption {
	return func(f *Filters) {
		f.language = language
	}
}

// WithPathPrefix restricts results to paths under the given prefix.
func WithPathPrefix(prefix string) FiltersOption {
	return func(f *Filters) {
		f.pathPrefix = prefix
	}
}

// WithSectionTypes restricts documentation results to the given section
// types.
func WithSectionTypes(types ...string) FiltersOption {
	return func(f *Filters) {
		if len(types) > 0 {
			f.sectionTypes = make([]string, len(types))
			copy(f.sectionTypes, types)
		}
	}
}

// WithTags restricts results to documents carrying all given tags.
func WithTags(tags ...string) FiltersOption {
	return func(f *Filters) {
		if len(tags) > 0 {
			f.tags = make([]string, len(tags))
			copy(f.tags, tags)
		}
	}
}

// WithCreatedAfter keeps documents created after t.
func WithCreatedAfter(t time.Time) FiltersOption {
	return func(f *Filters) {
		f.createdAfter = t
	}
}

// WithCreatedBefore keeps documents created before t.
func WithCreatedBefore(t time.Time) FiltersOption {
	return func(f *Filters) {
		f.createdBefore = t
	}
}

// NewFilters creates Filters from options.
func NewFilters(opts ...FiltersOption) Filters {
	f := Filters{}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// RepositoryIDs returns the repository filter.
func (f Filters) RepositoryIDs() []int64 {
	if f.repositoryIDs == nil {
		return nil
	}
	out := make([]int64, len(f.repositoryIDs))
	copy(out, f.repositoryIDs)
	return out
}

// Kinds returns the document family filter.
func (f Filters) Kinds() []DocumentKind {
	if f.kinds == nil {
		return nil
	}
	out := make([]DocumentKind, len(f.kinds))
	copy(out, f.kinds)
	return out
}

// Language returns the language filter.
func (f Filters) Language() string { return f.language }

// PathPrefix returns the path prefix filter.
func (f Filters) PathPrefix() string { return f.pathPrefix }

// SectionTypes returns the section type filter.
func (f Filters) SectionTypes() []string {
	return copyTags(f.sectionTypes)
}

// Tags returns the tag filter.
func (f Filters) Tags() []string {
	return copyTags(f.tags)
}

// CreatedAfter returns the lower creation time bound.
func (f Filters) CreatedAfter() time.Time { return f.createdAfter }

// CreatedBefore returns the upper creation time bound.
func (f Filters) CreatedBefore() time.Time { return f.createdBefore }

// IsEmpty reports whether no filters are set.
func (f Filters) IsEmpty() bool {
	return len(f.repositoryIDs) == 0 &&
		len(f.kinds) == 0 &&
		f.language == "" &&
		f.pathPrefix == "" &&
		len(f.sectionTypes) == 0 &&
		len(f.tags) == 0 &&
		f.createdAfter.IsZero() &&
		f.createdBefore.IsZero()
}

// Matches reports whether a document passes the filters.
func (f Filters) Matches(d Document) bool {
	if len(f.repositoryIDs) > 0 && !containsInt64(f.repositoryIDs, d.RepositoryID()) {
		return false
	}
	if len(f.kinds) > 0 && !containsKind(f.kinds, d.Kind()) {
		return false
	}
	if f.language != "" && d.Language() != f.language {
		return false
	}
	if f.pathPrefix != "" && !strings.HasPrefix(d.Path(), f.pathPrefix) {
		return false
	}
	if len(f.sectionTypes) > 0 && !containsString(f.sectionTypes, d.SectionType()) {
		return false
	}
	if len(f.tags) > 0 {
		docTags := d.Tags()
		for _, want := range f.tags {
			if !containsString(docTags, want) {
				return false
			}
		}
	}
	if !f.createdAfter.IsZero() && !d.CreatedAt().After(f.createdAfter) {
		return false
	}
	if !f.createdBefore.IsZero() && !d.CreatedAt().Before(f.createdBefore) {
		return false
	}
	return true
}

func containsInt64(haystack []int64, needle int64) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func containsKind(haystack []DocumentKind, needle DocumentKind) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
