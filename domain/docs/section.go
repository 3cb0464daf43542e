package docs

import (
	"sort"
	"strings"
	"time"

	"github.com/codelore/codelore/domain/fault"
)

// CodeReference points a documentation section at a source location.
// Identity for deduplication is (filePath, startLine, endLine).
type CodeReference struct {
	FilePath      string
	CodeSnippet   string
	Description   string
	ReferenceType string
	StartLine     int
	EndLine       int
}

// key returns the deduplication key.
func (c CodeReference) key() string {
	return c.FilePath + "\x00" + itoa(c.StartLine) + "\x00" + itoa(c.EndLine)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Section is one generated documentation section. Tags are lowercased and
// deduplicated; code references are deduplicated by location.
type Section struct {
	id             int64
	title          string
	content        string
	typ            SectionType
	order          int
	codeReferences []CodeReference
	tags           []string
	createdAt      time.Time
	lastModifiedAt time.Time
}

// NewSection creates a validated section.
func NewSection(typ SectionType, title, content string, order int) (Section, error) {
	if title == "" {
		return Section{}, fault.Validation("section title cannot be empty")
	}
	if strings.TrimSpace(content) == "" {
		return Section{}, fault.Validationf("section %q content cannot be empty", title)
	}
	if order < 0 {
		return Section{}, fault.Validationf("section %q order %d cannot be negative", title, order)
	}

	now := time.Now().UTC()
	return Section{
		title:          title,
		content:        content,
		typ:            typ,
		order:          order,
		createdAt:      now,
		lastModifiedAt: now,
	}, nil
}

// ReconstructSection rebuilds a section from persistence.
func ReconstructSection(
	id int64,
	typ SectionType,
	title string,
	content string,
	order int,
	codeReferences []CodeReference,
	tags []string,
	createdAt time.Time,
	lastModifiedAt time.Time,
) Section {
	refs := make([]CodeReference, len(codeReferences))
	copy(refs, codeReferences)
	tagCopy := make([]string, len(tags))
	copy(tagCopy, tags)
	return Section{
		id:             id,
		title:          title,
		content:        content,
		typ:            typ,
		order:          order,
		codeReferences: refs,
		tags:           tagCopy,
		createdAt:      createdAt,
		lastModifiedAt: lastModifiedAt,
	}
}

// ID returns the database identifier.
func (s Section) ID() int64 { return s.id }

// Title returns the section title.
func (s Section) Title() string { return s.title }

// Content returns the section body (markdown).
func (s Section) Content() string { return s.content }

// Type returns the section category.
func (s Section) Type() SectionType { return s.typ }

// Order returns the persisted order hint (render order is canonical).
func (s Section) Order() int { return s.order }

// CodeReferences returns a copy of the attached references.
func (s Section) CodeReferences() []CodeReference {
	refs := make([]CodeReference, len(s.codeReferences))
	copy(refs, s.codeReferences)
	return refs
}

// Tags returns a copy of the tags (lowercase, unique, sorted).
func (s Section) Tags() []string {
	tags := make([]string, len(s.tags))
	copy(tags, s.tags)
	return tags
}

// CreatedAt returns the creation time.
func (s Section) CreatedAt() time.Time { return s.createdAt }

// LastModifiedAt returns the last content change time.
func (s Section) LastModifiedAt() time.Time { return s.lastModifiedAt }

// WithID returns a copy with the database identifier set.
func (s Section) WithID(id int64) Section {
	s.id = id
	return s
}

// WithContent returns a copy with replaced content, refreshing the
// modification time.
func (s Section) WithContent(content string) (Section, error) {
	if strings.TrimSpace(content) == "" {
		return s, fault.Validationf("section %q content cannot be empty", s.title)
	}
	s.content = content
	s.lastModifiedAt = time.Now().UTC()
	return s, nil
}

// WithCodeReferences returns a copy with references attached, deduplicated
// by (filePath, startLine, endLine) keeping the first occurrence.
func (s Section) WithCodeReferences(refs []CodeReference) Section {
	seen := make(map[string]struct{}, len(refs))
	deduped := make([]CodeReference, 0, len(refs))
	for _, ref := range refs {
		key := ref.key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, ref)
	}
	s.codeReferences = deduped
	s.lastModifiedAt = time.Now().UTC()
	return s
}

// WithTags returns a copy with tags normalized: lowercased, trimmed,
// deduplicated, sorted.
func (s Section) WithTags(tags []string) Section {
	seen := make(map[string]struct{}, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		normalized = append(normalized, t)
	}
	sort.Strings(normalized)
	s.tags = normalized
	s.lastModifiedAt = time.Now().UTC()
	return s
}
