package entity

import (
	"sort"
	"time"

	"github.com/codelore/codelore/domain/fault"
)

// RelationshipType classifies a directed edge between two entities.
type RelationshipType string

const (
	RelInheritance        RelationshipType = "inheritance"
	RelImplementation     RelationshipType = "implementation"
	RelComposition        RelationshipType = "composition"
	RelAggregation        RelationshipType = "aggregation"
	RelAssociation        RelationshipType = "association"
	RelCalls              RelationshipType = "calls"
	RelUses               RelationshipType = "uses"
	RelDepends            RelationshipType = "depends"
	RelCreates            RelationshipType = "creates"
	RelReturns            RelationshipType = "returns"
	RelAccepts            RelationshipType = "accepts"
	RelLayerDependency    RelationshipType = "layer_dependency"
	RelServiceConsumption RelationshipType = "service_consumption"
	RelEventPublishing    RelationshipType = "event_publishing"
	RelEventSubscription  RelationshipType = "event_subscription"
	RelSharedInterface    RelationshipType = "shared_interface"
	RelSimilarConcept     RelationshipType = "similar_concept"
	RelSharedDependency   RelationshipType = "shared_dependency"
	RelPatternInstance    RelationshipType = "pattern_instance"
	RelPatternComponent   RelationshipType = "pattern_component"
)

// CodeRelationship is a directed, typed, weighted edge between two entities.
type CodeRelationship struct {
	sourceID   string
	targetID   string
	typ        RelationshipType
	weight     float64
	confidence float64
	sourceRefs []string
	properties map[string]string
	detectedAt time.Time
}

// NewRelationship creates a validated relationship. Weight is in [0,1],
// confidence in [0,100], and self-edges are rejected.
func NewRelationship(sourceID, targetID string, typ RelationshipType, weight, confidence float64) (CodeRelationship, error) {
	if sourceID == "" || targetID == "" {
		return CodeRelationship{}, fault.Validation("relationship endpoints cannot be empty")
	}
	if sourceID == targetID {
		return CodeRelationship{}, fault.Validationf("relationship %s cannot point at its own source", typ)
	}
	if weight < 0 || weight > 1 {
		return CodeRelationship{}, fault.Validationf("relationship weight %.3f out of [0,1]", weight)
	}
	if confidence < 0 || confidence > 100 {
		return CodeRelationship{}, fault.Validationf("relationship confidence %.1f out of [0,100]", confidence)
	}

	return CodeRelationship{
		sourceID:   sourceID,
		targetID:   targetID,
		typ:        typ,
		weight:     weight,
		confidence: confidence,
		detectedAt: time.Now().UTC(),
	}, nil
}

// ReconstructRelationship rebuilds a relationship from persistence.
func ReconstructRelationship(
	sourceID string,
	targetID string,
	typ RelationshipType,
	weight float64,
	confidence float64,
	sourceRefs []string,
	properties map[string]string,
	detectedAt time.Time,
) CodeRelationship {
	return CodeRelationship{
		sourceID:   sourceID,
		targetID:   targetID,
		typ:        typ,
		weight:     weight,
		confidence: confidence,
		sourceRefs: copyStrings(sourceRefs),
		properties: copyStringMap(properties),
		detectedAt: detectedAt,
	}
}

// SourceID returns the originating entity id.
func (r CodeRelationship) SourceID() string { return r.sourceID }

// TargetID returns the referenced entity id.
func (r CodeRelationship) TargetID() string { return r.targetID }

// Type returns the relationship classification.
func (r CodeRelationship) Type() RelationshipType { return r.typ }

// Weight returns the edge strength in [0,1].
func (r CodeRelationship) Weight() float64 { return r.weight }

// Confidence returns the extraction confidence in [0,100].
func (r CodeRelationship) Confidence() float64 { return r.confidence }

// SourceRefs returns a copy of the file references that evidence the edge.
func (r CodeRelationship) SourceRefs() []string { return copyStrings(r.sourceRefs) }

// Properties returns a copy of extractor-specific properties.
func (r CodeRelationship) Properties() map[string]string { return copyStringMap(r.properties) }

// DetectedAt returns when the edge was detected.
func (r CodeRelationship) DetectedAt() time.Time { return r.detectedAt }

// Key identifies the edge for deduplication: (source, target, type).
func (r CodeRelationship) Key() string {
	return r.sourceID + "\x00" + r.targetID + "\x00" + string(r.typ)
}

// WithSourceRef returns a copy with a file reference appended (duplicates
// removed).
func (r CodeRelationship) WithSourceRef(ref string) CodeRelationship {
	for _, existing := range r.sourceRefs {
		if existing == ref {
			return r
		}
	}
	refs := copyStrings(r.sourceRefs)
	r.sourceRefs = append(refs, ref)
	return r
}

// WithProperty returns a copy with one property set.
func (r CodeRelationship) WithProperty(key, value string) CodeRelationship {
	m := copyStringMap(r.properties)
	if m == nil {
		m = make(map[string]string, 1)
	}
	m[key] = value
	r.properties = m
	return r
}

// MergeRelationships deduplicates edges by (source, target, type), keeping
// the maximum weight and confidence and the union of source references.
// Output is sorted by key for deterministic persistence.
func MergeRelationships(relationships []CodeRelationship) []CodeRelationship {
	byKey := make(map[string]CodeRelationship, len(relationships))
	for _, rel := range relationships {
		key := rel.Key()
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = rel
			continue
		}

		merged := existing
		if rel.weight > merged.weight {
			merged.weight = rel.weight
		}
		if rel.confidence > merged.confidence {
			merged.confidence = rel.confidence
		}
		for _, ref := range rel.sourceRefs {
			merged = merged.WithSourceRef(ref)
		}
		byKey[key] = merged
	}

	merged := make([]CodeRelationship, 0, len(byKey))
	for _, rel := range byKey {
		sort.Strings(rel.sourceRefs)
		merged = append(merged, rel)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Key() < merged[j].Key()
	})
	return merged
}

// FilterByConfidence drops relationships whose normalized confidence
// (confidence/100) is below the minimum.
func FilterByConfidence(relationships []CodeRelationship, minimum float64) []CodeRelationship {
	kept := make([]CodeRelationship, 0, len(relationships))
	for _, rel := range relationships {
		if rel.confidence/100 >= minimum {
			kept = append(kept, rel)
		}
	}
	return kept
}
