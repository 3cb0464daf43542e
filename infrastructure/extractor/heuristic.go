package extractor

import (
	"regexp"
	"strings"

	"github.com/codelore/codelore/domain/entity"
	"github.com/codelore/codelore/infrastructure/source"
)

// The heuristic pass covers languages without a configured grammar with a
// line-oriented declaration scan: it finds type and function declarations,
// attaches indented functions to the nearest enclosing type, and records
// import lines. It deliberately does not guess call sites; a name scan
// without a grammar produces more noise than signal.

var (
	heuristicClassRe = regexp.MustCompile(
		`^(\s*)(?:export\s+|pub\s+|public\s+|private\s+|abstract\s+|final\s+|sealed\s+)*` +
			`(class|interface|trait|protocol|enum|struct|module)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	heuristicFuncRe = regexp.MustCompile(
		`^(\s*)(?:export\s+|pub\s+|public\s+|private\s+|protected\s+|static\s+|async\s+)*` +
			`(?:function|func|def|fn|sub|proc)\s+([A-Za-z_][A-Za-z0-9_]*[!?]?)`)
	heuristicImportRe = regexp.MustCompile(
		`^\s*(?:import|from|require_relative|require|use|using|include|#include)\s+(.+?)\s*$`)
)

var heuristicClassKinds = map[string]entity.Kind{
	"class":     entity.KindClass,
	"interface": entity.KindInterface,
	"trait":     entity.KindInterface,
	"protocol":  entity.KindInterface,
	"enum":      entity.KindEnum,
	"struct":    entity.KindStruct,
	"module":    entity.KindModule,
}

// heuristicBranchKeywords approximates cyclomatic indicators across the
// languages the fallback is likely to see.
var heuristicBranchKeywords = []string{
	"if", "elif", "elsif", "for", "while", "case", "when", "unless",
	"catch", "except", "rescue",
}

type heuristicDecl struct {
	line    int // 0-based
	indent  int
	kind    entity.Kind
	name    string
	isClass bool
}

func (e *Extractor) parseHeuristic(repositoryID int64, filePath string, content []byte) (ParseResult, error) {
	language := source.LanguageForPath(filePath)
	lines := strings.Split(string(content), "\n")
	module := modulePath(filePath)

	var (
		entities      []entity.CodeEntity
		relationships []entity.CodeRelationship
		references    []Reference
	)

	moduleName := lastSegment(module)
	if moduleName == "" {
		moduleName = filePath
	}
	moduleEnt, err := entity.NewCodeEntity(repositoryID, filePath, language, moduleName, module,
		entity.KindModule, entity.Location{StartLine: 1, EndLine: len(lines)}, "")
	if err != nil {
		return ParseResult{}, err
	}
	entities = append(entities, moduleEnt)

	decls := scanDeclarations(lines)

	// The nearest preceding class at a shallower indent owns a function.
	type openClass struct {
		id        string
		qualified string
		indent    int
	}
	var enclosing *openClass

	for i, decl := range decls {
		endLine := heuristicEndLine(decls, i, len(lines))
		text := truncateContent(strings.Join(lines[decl.line:endLine], "\n"))
		loc := entity.Location{StartLine: decl.line + 1, EndLine: endLine}

		if decl.isClass {
			qualified := module + "." + decl.name
			ent, err := entity.NewCodeEntity(repositoryID, filePath, language, decl.name, qualified, decl.kind, loc, text)
			if err != nil {
				continue
			}
			ent = ent.WithComplexity(complexityScore(text, heuristicBranchKeywords))
			entities = append(entities, ent)
			enclosing = &openClass{id: ent.EntityID(), qualified: qualified, indent: decl.indent}
			continue
		}

		kind := entity.KindFunction
		qualified := module + "." + decl.name
		var ownerID string
		if enclosing != nil && decl.indent > enclosing.indent {
			kind = entity.KindMethod
			qualified = enclosing.qualified + "." + decl.name
			ownerID = enclosing.id
		} else {
			enclosing = nil
		}

		ent, err := entity.NewCodeEntity(repositoryID, filePath, language, decl.name, qualified, kind, loc, text)
		if err != nil {
			continue
		}
		ent = ent.WithComplexity(complexityScore(text, heuristicBranchKeywords))
		entities = append(entities, ent)

		if ownerID != "" {
			if rel, relErr := entity.NewRelationship(ownerID, ent.EntityID(), entity.RelComposition, containsWeight, containsConfidence); relErr == nil {
				relationships = append(relationships, rel.WithSourceRef(filePath))
			}
		}
	}

	for _, line := range lines {
		match := heuristicImportRe.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		name := heuristicImportName(match[1])
		if name == "" {
			continue
		}
		references = append(references, Reference{
			SourceID: moduleEnt.EntityID(),
			Name:     name,
			Kind:     RefImport,
			FilePath: filePath,
		})
	}

	return finalizeResult(dedupeEntities(entities), relationships, references), nil
}

func scanDeclarations(lines []string) []heuristicDecl {
	var decls []heuristicDecl
	for i, line := range lines {
		if match := heuristicClassRe.FindStringSubmatch(line); match != nil {
			decls = append(decls, heuristicDecl{
				line:    i,
				indent:  len(match[1]),
				kind:    heuristicClassKinds[match[2]],
				name:    match[3],
				isClass: true,
			})
			continue
		}
		if match := heuristicFuncRe.FindStringSubmatch(line); match != nil {
			decls = append(decls, heuristicDecl{
				line:   i,
				indent: len(match[1]),
				kind:   entity.KindFunction,
				name:   match[2],
			})
		}
	}
	return decls
}

// heuristicEndLine finds where a declaration's span ends: just before the
// next declaration at the same or a shallower indent, or end of file.
func heuristicEndLine(decls []heuristicDecl, idx, totalLines int) int {
	for _, later := range decls[idx+1:] {
		if later.indent <= decls[idx].indent {
			return later.line
		}
		if !decls[idx].isClass {
			// A function span never swallows a nested declaration.
			return later.line
		}
	}
	return totalLines
}

// heuristicImportName reduces an import clause to its module token.
func heuristicImportName(clause string) string {
	clause = strings.TrimSpace(clause)
	clause = strings.Trim(clause, `"'<>`)
	if idx := strings.IndexAny(clause, " \t;("); idx >= 0 {
		clause = clause[:idx]
	}
	return strings.Trim(clause, `"'<>;`)
}
