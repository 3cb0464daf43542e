// Package entity defines the code-level building blocks of the knowledge
// graph: typed code entities, typed relationships between them, and detected
// architectural patterns. Identity is a stable hash so repeated extraction
// of unchanged source is idempotent.
package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/codelore/codelore/domain/fault"
)

// Kind classifies a code entity.
type Kind string

const (
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindProperty  Kind = "property"
	KindField     Kind = "field"
	KindModule    Kind = "module"
	KindTest      Kind = "test"
)

// Location is a line range within a source file (1-based, inclusive).
type Location struct {
	StartLine int
	EndLine   int
}

// StableEntityID derives the deterministic entity identifier from the
// fields that define identity. The result is 64 hex characters, well under
// the 256-character storage bound, and invariant across runs.
func StableEntityID(repositoryID int64, filePath, language, qualifiedName string, kind Kind) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d|%s|%s|%s|%s", repositoryID, filePath, language, qualifiedName, kind))
	return hex.EncodeToString(sum[:])
}

// CodeEntity is a typed source construct extracted from one file.
type CodeEntity struct {
	entityID      string
	repositoryID  int64
	name          string
	qualifiedName string
	kind          Kind
	filePath      string
	language      string
	location      Location
	content       string
	vector        []float64
	complexity    int
	attributes    []string
	metadata      map[string]string
}

// NewCodeEntity creates an entity with its stable identifier derived from
// the identity fields.
func NewCodeEntity(repositoryID int64, filePath, language, name, qualifiedName string, kind Kind, location Location, content string) (CodeEntity, error) {
	if name == "" {
		return CodeEntity{}, fault.Validation("entity name cannot be empty")
	}
	if filePath == "" {
		return CodeEntity{}, fault.Validation("entity file path cannot be empty")
	}
	if qualifiedName == "" {
		qualifiedName = name
	}
	if location.StartLine < 0 || location.EndLine < location.StartLine {
		return CodeEntity{}, fault.Validationf("entity %q has invalid location %d-%d", name, location.StartLine, location.EndLine)
	}

	return CodeEntity{
		entityID:      StableEntityID(repositoryID, filePath, language, qualifiedName, kind),
		repositoryID:  repositoryID,
		name:          name,
		qualifiedName: qualifiedName,
		kind:          kind,
		filePath:      filePath,
		language:      language,
		location:      location,
		content:       content,
	}, nil
}

// ReconstructCodeEntity rebuilds an entity from persistence.
func ReconstructCodeEntity(
	entityID string,
	repositoryID int64,
	name string,
	qualifiedName string,
	kind Kind,
	filePath string,
	language string,
	location Location,
	content string,
	vector []float64,
	complexity int,
	attributes []string,
	metadata map[string]string,
) CodeEntity {
	return CodeEntity{
		entityID:      entityID,
		repositoryID:  repositoryID,
		name:          name,
		qualifiedName: qualifiedName,
		kind:          kind,
		filePath:      filePath,
		language:      language,
		location:      location,
		content:       content,
		vector:        copyFloats(vector),
		complexity:    complexity,
		attributes:    copyStrings(attributes),
		metadata:      copyStringMap(metadata),
	}
}

// EntityID returns the stable identifier.
func (e CodeEntity) EntityID() string { return e.entityID }

// RepositoryID returns the owning repository.
func (e CodeEntity) RepositoryID() int64 { return e.repositoryID }

// Name returns the simple name.
func (e CodeEntity) Name() string { return e.name }

// QualifiedName returns the fully qualified name used for cross-file
// resolution.
func (e CodeEntity) QualifiedName() string { return e.qualifiedName }

// Kind returns the entity classification.
func (e CodeEntity) Kind() Kind { return e.kind }

// FilePath returns the source path relative to the repository root.
func (e CodeEntity) FilePath() string { return e.filePath }

// Language returns the source language.
func (e CodeEntity) Language() string { return e.language }

// Location returns the line range.
func (e CodeEntity) Location() Location { return e.location }

// Content returns the verbatim source text.
func (e CodeEntity) Content() string { return e.content }

// Vector returns a copy of the content embedding (nil if not embedded).
func (e CodeEntity) Vector() []float64 { return copyFloats(e.vector) }

// HasVector reports whether a content embedding is present.
func (e CodeEntity) HasVector() bool { return len(e.vector) > 0 }

// Complexity returns the cyclomatic complexity score.
func (e CodeEntity) Complexity() int { return e.complexity }

// Attributes returns a copy of decorator/annotation names.
func (e CodeEntity) Attributes() []string { return copyStrings(e.attributes) }

// Metadata returns a copy of extractor-specific metadata.
func (e CodeEntity) Metadata() map[string]string { return copyStringMap(e.metadata) }

// WithVector returns a copy carrying a content embedding.
func (e CodeEntity) WithVector(vector []float64) CodeEntity {
	e.vector = copyFloats(vector)
	return e
}

// WithComplexity returns a copy with the complexity score set.
func (e CodeEntity) WithComplexity(score int) CodeEntity {
	e.complexity = score
	return e
}

// WithAttributes returns a copy with decorator/annotation names set.
func (e CodeEntity) WithAttributes(attributes []string) CodeEntity {
	e.attributes = copyStrings(attributes)
	return e
}

// WithMetadata returns a copy with one metadata key set.
func (e CodeEntity) WithMetadata(key, value string) CodeEntity {
	m := copyStringMap(e.metadata)
	if m == nil {
		m = make(map[string]string, 1)
	}
	m[key] = value
	e.metadata = m
	return e
}

// SortEntities orders entities by stable ID, the canonical output order for
// extraction results.
func SortEntities(entities []CodeEntity) {
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].entityID < entities[j].entityID
	})
}

func copyFloats(in []float64) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	copy(out, in)
	return out
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
