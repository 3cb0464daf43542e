// Package extractor parses source files into typed code entities and the
// relationships between them. Files in languages with a tree-sitter grammar
// go through a full AST pass; everything else falls back to a line-oriented
// declaration scan. Parsing is pure over (path, content): the same input
// always yields the same entities, in the same order, with the same stable
// IDs.
package extractor

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codelore/codelore/domain/entity"
	"github.com/codelore/codelore/infrastructure/source"
)

// RefKind classifies an unresolved cross-file reference.
type RefKind string

const (
	RefImport    RefKind = "import"
	RefCall      RefKind = "call"
	RefInherit   RefKind = "inherit"
	RefImplement RefKind = "implement"
	// RefOwner attaches a method to its receiver type defined in another
	// file. The resolved edge runs type → method.
	RefOwner RefKind = "owner"
)

// Reference is a name observed in one file that could not be resolved
// within it. The Linker resolves references across files after all files
// are parsed.
type Reference struct {
	// SourceID is the entity holding the reference.
	SourceID string
	// Name is the referenced name as written (possibly qualified).
	Name string
	Kind RefKind
	// FilePath is where the reference was observed.
	FilePath string
}

// ParseResult is the extraction output for one file: entities, the
// relationships resolved within the file, and the references left for
// cross-file linking.
type ParseResult struct {
	Entities      []entity.CodeEntity
	Relationships []entity.CodeRelationship
	References    []Reference
}

// Extractor turns file contents into code entities.
type Extractor struct {
	languages LanguageConfig
	logger    *slog.Logger
}

// NewExtractor creates an Extractor covering all configured grammars.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		languages: NewLanguageConfig(),
		logger:    logger,
	}
}

// Parse extracts entities, intra-file relationships, and cross-file
// references from one file. Unknown languages are handled by the heuristic
// declaration scan rather than rejected.
func (e *Extractor) Parse(ctx context.Context, repositoryID int64, filePath string, content []byte) (ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return ParseResult{}, err
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	lang, ok := e.languages.ByExtension(ext)
	if !ok {
		return e.parseHeuristic(repositoryID, filePath, content)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang.SitterLanguage())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		if ctx.Err() != nil {
			return ParseResult{}, ctx.Err()
		}
		e.logger.Debug("tree-sitter parse failed, using declaration scan",
			slog.String("path", filePath), slog.String("error", err.Error()))
		return e.parseHeuristic(repositoryID, filePath, content)
	}
	defer tree.Close()

	pass := newTreePass(lang, repositoryID, filePath, content)
	return pass.run(tree), nil
}

// maxEntityContentBytes bounds the verbatim content stored per entity. It
// matches the read bound of the source adapters.
const maxEntityContentBytes = source.MaxFileBytes

// truncateContent cuts content to the storage bound on a rune boundary.
func truncateContent(s string) string {
	if len(s) <= maxEntityContentBytes {
		return s
	}
	cut := maxEntityContentBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// modulePath derives the dotted module path of a file: the path without
// extension, separators replaced by dots. Python package initializers
// collapse onto their package.
func modulePath(filePath string) string {
	p := strings.TrimSuffix(filePath, filepath.Ext(filePath))
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")
	p = strings.ReplaceAll(p, "/", ".")
	p = strings.TrimSuffix(p, ".__init__")
	return p
}

// complexityScore is 1 plus the number of branch keyword tokens in the
// content. Tokens are identifier runs, so keywords inside longer names do
// not count; keywords inside strings or comments do, which overstates
// complexity slightly but keeps the score cheap and deterministic.
func complexityScore(content string, keywords []string) int {
	if len(keywords) == 0 || content == "" {
		return 1
	}

	set := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		set[k] = struct{}{}
	}

	score := 1
	start := -1
	for i := 0; i <= len(content); i++ {
		var c byte
		if i < len(content) {
			c = content[i]
		}
		isWord := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		switch {
		case isWord && start < 0:
			start = i
		case !isWord && start >= 0:
			if _, ok := set[content[start:i]]; ok {
				score++
			}
			start = -1
		}
	}
	return score
}

// isTestEntity reports whether a function should be classified as a test.
func isTestEntity(language, filePath, name string) bool {
	switch language {
	case "go":
		if !strings.HasSuffix(filePath, "_test.go") {
			return false
		}
		return strings.HasPrefix(name, "Test") ||
			strings.HasPrefix(name, "Benchmark") ||
			strings.HasPrefix(name, "Fuzz")
	case "python":
		return strings.HasPrefix(name, "test_")
	case "javascript", "typescript", "tsx":
		base := filepath.Base(filePath)
		return strings.Contains(base, ".test.") || strings.Contains(base, ".spec.")
	}
	return false
}

// finalizeResult brings parse output into canonical order: entities sorted
// by stable ID, relationships merged and sorted, references deduplicated
// and sorted.
func finalizeResult(entities []entity.CodeEntity, relationships []entity.CodeRelationship, references []Reference) ParseResult {
	entity.SortEntities(entities)

	seen := make(map[Reference]struct{}, len(references))
	refs := make([]Reference, 0, len(references))
	for _, ref := range references {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Name < b.Name
	})

	return ParseResult{
		Entities:      entities,
		Relationships: entity.MergeRelationships(relationships),
		References:    refs,
	}
}

// dedupeEntities drops entities whose stable ID was already produced, e.g.
// overloaded methods that share a qualified name. The first occurrence in
// traversal order wins.
func dedupeEntities(entities []entity.CodeEntity) []entity.CodeEntity {
	seen := make(map[string]struct{}, len(entities))
	out := entities[:0]
	for _, e := range entities {
		if _, dup := seen[e.EntityID()]; dup {
			continue
		}
		seen[e.EntityID()] = struct{}{}
		out = append(out, e)
	}
	return out
}

// lastSegment returns the final dot-separated segment of a possibly
// qualified name.
func lastSegment(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
