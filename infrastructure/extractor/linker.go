package extractor

import (
	"sort"
	"strings"

	"github.com/codelore/codelore/domain/entity"
)

// ExternalTargetPrefix marks relationship targets that did not resolve to
// an extracted entity: standard library modules, third-party packages, or
// names the parsers never saw.
const ExternalTargetPrefix = "external:"

// IsExternalTarget reports whether a relationship endpoint points outside
// the extracted entity set.
func IsExternalTarget(id string) bool {
	return strings.HasPrefix(id, ExternalTargetPrefix)
}

// Cross-file edges resolve by name matching, not by compilation, so they
// score below intra-file edges. Unresolved references are still recorded,
// capped at weight 0.3 and confidence 40 so downstream consumers can filter
// them out by confidence alone.
const (
	crossCallWeight       = 0.7
	crossCallConfidence   = 75
	crossSuperWeight      = 0.85
	crossSuperConfidence  = 85
	crossImportWeight     = 0.8
	crossImportConfidence = 85
	crossOwnerWeight      = 1.0
	crossOwnerConfidence  = 90
	unresolvedWeight      = 0.3
	unresolvedConfidence  = 40
)

// Linker resolves the references left over from per-file parsing against
// the full entity set of one or more repositories.
type Linker struct{}

// NewLinker creates a Linker.
func NewLinker() Linker {
	return Linker{}
}

// LinkCrossFile resolves imports, inheritance targets, and calls by
// qualified-name matching and returns the resulting relationships, merged
// and in canonical order.
func (l Linker) LinkCrossFile(entities []entity.CodeEntity, references []Reference) []entity.CodeRelationship {
	idx := buildLinkIndex(entities)

	var relationships []entity.CodeRelationship
	add := func(sourceID, targetID string, typ entity.RelationshipType, weight, confidence float64, ref Reference) {
		rel, err := entity.NewRelationship(sourceID, targetID, typ, weight, confidence)
		if err != nil {
			return // self-reference or malformed endpoint
		}
		relationships = append(relationships, rel.WithSourceRef(ref.FilePath))
	}

	for _, ref := range references {
		switch ref.Kind {
		case RefImport:
			name := normalizeImport(ref.Name)
			if targetID, ok := idx.resolveModule(name); ok {
				add(ref.SourceID, targetID, entity.RelDepends, crossImportWeight, crossImportConfidence, ref)
			} else {
				add(ref.SourceID, ExternalTargetPrefix+name, entity.RelDepends, unresolvedWeight, unresolvedConfidence, ref)
			}

		case RefCall:
			if targetID, ok := idx.resolveName(ref.Name); ok {
				add(ref.SourceID, targetID, entity.RelCalls, crossCallWeight, crossCallConfidence, ref)
			} else {
				add(ref.SourceID, ExternalTargetPrefix+ref.Name, entity.RelCalls, unresolvedWeight, unresolvedConfidence, ref)
			}

		case RefInherit:
			if targetID, ok := idx.resolveName(ref.Name); ok {
				typ := entity.RelInheritance
				if idx.kinds[targetID] == entity.KindInterface {
					typ = entity.RelImplementation
				}
				add(ref.SourceID, targetID, typ, crossSuperWeight, crossSuperConfidence, ref)
			} else {
				add(ref.SourceID, ExternalTargetPrefix+ref.Name, entity.RelInheritance, unresolvedWeight, unresolvedConfidence, ref)
			}

		case RefImplement:
			if targetID, ok := idx.resolveName(ref.Name); ok {
				add(ref.SourceID, targetID, entity.RelImplementation, crossSuperWeight, crossSuperConfidence, ref)
			} else {
				add(ref.SourceID, ExternalTargetPrefix+ref.Name, entity.RelImplementation, unresolvedWeight, unresolvedConfidence, ref)
			}

		case RefOwner:
			// Edge direction is type → method.
			if targetID, ok := idx.resolveName(ref.Name); ok {
				add(targetID, ref.SourceID, entity.RelComposition, crossOwnerWeight, crossOwnerConfidence, ref)
			} else {
				add(ExternalTargetPrefix+ref.Name, ref.SourceID, entity.RelComposition, unresolvedWeight, unresolvedConfidence, ref)
			}
		}
	}

	return entity.MergeRelationships(relationships)
}

type linkIndex struct {
	byQualified   map[string]string
	qualifiedByID map[string]string
	bySimple      map[string][]string
	modules       map[string]string
	kinds         map[string]entity.Kind
}

func buildLinkIndex(entities []entity.CodeEntity) linkIndex {
	idx := linkIndex{
		byQualified:   make(map[string]string, len(entities)),
		qualifiedByID: make(map[string]string, len(entities)),
		bySimple:      make(map[string][]string),
		modules:       make(map[string]string),
		kinds:         make(map[string]entity.Kind, len(entities)),
	}

	for _, e := range entities {
		id := e.EntityID()
		idx.kinds[id] = e.Kind()
		idx.qualifiedByID[id] = e.QualifiedName()

		// On a qualified-name collision the lexicographically smallest ID
		// wins, keeping resolution independent of input order.
		if existing, ok := idx.byQualified[e.QualifiedName()]; !ok || id < existing {
			idx.byQualified[e.QualifiedName()] = id
		}

		if e.Kind() == entity.KindModule {
			if existing, ok := idx.modules[e.QualifiedName()]; !ok || id < existing {
				idx.modules[e.QualifiedName()] = id
			}
			continue
		}
		idx.bySimple[e.Name()] = appendUnique(idx.bySimple[e.Name()], id)
	}

	for name := range idx.bySimple {
		sort.Strings(idx.bySimple[name])
	}
	return idx
}

// resolveName resolves a written name, qualified or simple, to a single
// entity. Ambiguous names are narrowed by qualified-name suffix; if more
// than one candidate survives, the reference stays unresolved rather than
// guessing.
func (idx linkIndex) resolveName(name string) (string, bool) {
	if id, ok := idx.byQualified[name]; ok {
		return id, true
	}

	simple := lastSegment(name)
	candidates := idx.bySimple[simple]
	if len(candidates) == 1 {
		return candidates[0], true
	}
	if len(candidates) == 0 || simple == name {
		return "", false
	}

	var matched []string
	for _, id := range candidates {
		if strings.HasSuffix(idx.qualifiedByID[id], "."+name) {
			matched = append(matched, id)
		}
	}
	if len(matched) == 1 {
		return matched[0], true
	}
	return "", false
}

// resolveModule resolves a normalized import path against module entities:
// exact match first, then a unique suffix match, then a unique final
// segment.
func (idx linkIndex) resolveModule(name string) (string, bool) {
	if id, ok := idx.modules[name]; ok {
		return id, true
	}

	var bySuffix, byLast []string
	last := lastSegment(name)
	for qualified, id := range idx.modules {
		if strings.HasSuffix(qualified, "."+name) {
			bySuffix = append(bySuffix, id)
		}
		if lastSegment(qualified) == last {
			byLast = append(byLast, id)
		}
	}
	if len(bySuffix) == 1 {
		return bySuffix[0], true
	}
	if len(bySuffix) == 0 && len(byLast) == 1 {
		return byLast[0], true
	}
	return "", false
}

// normalizeImport converts an import path to the dotted module form used
// by extraction: separators become dots, relative prefixes drop away.
func normalizeImport(path string) string {
	p := strings.ReplaceAll(path, "\\", "/")
	p = strings.ReplaceAll(p, "/", ".")
	p = strings.Trim(p, ".")
	return p
}
