// Package search provides the domain types for hybrid retrieval across
// code chunks, documentation sections, and conversation messages.
package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/codelore/codelore/domain/fault"
)

// DocumentKind identifies which family an indexed document belongs to.
type DocumentKind string

// DocumentKind values.
const (
	KindCodeChunk  DocumentKind = "code_chunk"
	KindDocSection DocumentKind = "doc_section"
	KindMessage    DocumentKind = "message"
)

// Valid reports whether the kind is known.
func (k DocumentKind) Valid() bool {
	switch k {
	case KindCodeChunk, KindDocSection, KindMessage:
		return true
	}
	return false
}

// String returns the string representation of the kind.
func (k DocumentKind) String() string {
	return string(k)
}

// SectionDocumentID builds the index id for a documentation section.
func SectionDocumentID(documentationID, sectionID int64) string {
	return fmt.Sprintf("%d_%d", documentationID, sectionID)
}

// Document is one indexable unit. Provenance fields depend on the kind:
// code chunks carry a file path and line range, documentation sections a
// section type, messages a conversation id in the path field.
type Document struct {
	id           string
	repositoryID int64
	kind         DocumentKind
	title        string
	path         string
	language     string
	sectionType  string
	startLine    int
	endLine      int
	content      string
	tags         []string
	createdAt    time.Time
	lastModified time.Time
}

// NewDocument creates a document for indexing.
func NewDocument(id string, repositoryID int64, kind DocumentKind, content string) (Document, error) {
	if strings.TrimSpace(id) == "" {
		return Document{}, fault.Validation("document id is required")
	}
	if !kind.Valid() {
		return Document{}, fault.Validationf("unknown document kind %q", string(kind))
	}
	if strings.TrimSpace(content) == "" {
		return Document{}, fault.Validationf("document %s has no content", id)
	}
	now := time.Now().UTC()
	return Document{
		id:           id,
		repositoryID: repositoryID,
		kind:         kind,
		content:      content,
		createdAt:    now,
		lastModified: now,
	}, nil
}

// ReconstructDocument recreates a Document from persistence.
func ReconstructDocument(
	id string,
	repositoryID int64,
	kind DocumentKind,
	title string,
	path string,
	language string,
	sectionType string,
	startLine int,
	endLine int,
	content string,
	tags []string,
	createdAt time.Time,
	lastModified time.Time,
) Document {
	return Document{
		id:           id,
		repositoryID: repositoryID,
		kind:         kind,
		title:        title,
		path:         path,
		language:     language,
		sectionType:  sectionType,
		startLine:    startLine,
		endLine:      endLine,
		content:      content,
		tags:         copyTags(tags),
		createdAt:    createdAt,
		lastModified: lastModified,
	}
}

// ID returns the document id.
func (d Document) ID() string { return d.id }

// RepositoryID returns the owning repository.
func (d Document) RepositoryID() int64 { return d.repositoryID }

// Kind returns the document family.
func (d Document) Kind() DocumentKind { return d.kind }

// Title returns the display title.
func (d Document) Title() string { return d.title }

// Path returns the provenance path.
func (d Document) Path() string { return d.path }

// Language returns the source language, empty for non-code documents.
func (d Document) Language() string { return d.language }

// SectionType returns the documentation section type for doc_section
// documents, empty otherwise.
func (d Document) SectionType() string { return d.sectionType }

// StartLine returns the first line of a code chunk, zero otherwise.
func (d Document) StartLine() int { return d.startLine }

// EndLine returns the last line of a code chunk, zero otherwise.
func (d Document) EndLine() int { return d.endLine }

// Content returns the indexable text.
func (d Document) Content() string { return d.content }

// Tags returns a copy of the document tags.
func (d Document) Tags() []string { return copyTags(d.tags) }

// CreatedAt returns when the document was created.
func (d Document) CreatedAt() time.Time { return d.createdAt }

// LastModified returns when the document content last changed.
func (d Document) LastModified() time.Time { return d.lastModified }

// WithTitle returns a copy with the title set.
func (d Document) WithTitle(title string) Document {
	d.title = title
	return d
}

// WithPath returns a copy with the provenance path set.
func (d Document) WithPath(path string) Document {
	d.path = path
	return d
}

// WithLanguage returns a copy with the language set.
func (d Document) WithLanguage(language string) Document {
	d.language = language
	return d
}

// WithSectionType returns a copy with the section type set.
func (d Document) WithSectionType(sectionType string) Document {
	d.sectionType = sectionType
	return d
}

// WithLines returns a copy with the code line range set.
func (d Document) WithLines(start, end int) Document {
	d.startLine = start
	d.endLine = end
	return d
}

// WithTags returns a copy with the tags replaced.
func (d Document) WithTags(tags []string) Document {
	d.tags = copyTags(tags)
	return d
}

// WithTimestamps returns a copy with creation and modification times set,
// used when the source record carries its own times.
func (d Document) WithTimestamps(createdAt, lastModified time.Time) Document {
	d.createdAt = createdAt
	d.lastModified = lastModified
	return d
}

// IndexRequest carries documents to add or replace in an index.
type IndexRequest struct {
	documents []Document
}

// NewIndexRequest creates an IndexRequest.
func NewIndexRequest(documents []Document) IndexRequest {
	docs := make([]Document, len(documents))
	copy(docs, documents)
	return IndexRequest{documents: docs}
}

// Documents returns the documents to index.
func (r IndexRequest) Documents() []Document {
	docs := make([]Document, len(r.documents))
	copy(docs, r.documents)
	return docs
}

func copyTags(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
