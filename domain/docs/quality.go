package docs

import "strings"

// Section content bounds used by the quality gate. Content shorter than
// the minimum is considered a failed generation; content beyond the
// maximum is truncated upstream.
const (
	MinSectionContentLength = 100
	MaxSectionContentLength = 50_000
)

// Quality score component weights.
const (
	weightCoverage         = 0.35
	weightLengthFit        = 0.25
	weightReferenceDensity = 0.20
	weightConsistency      = 0.20
)

// referenceExempt lists section types that legitimately carry no code
// references.
var referenceExempt = map[SectionType]struct{}{
	SectionLicense:      {},
	SectionChangelog:    {},
	SectionContributing: {},
}

// Quality holds the component scores of a documentation run. Each
// component is in [0, 1].
type Quality struct {
	coverage         float64
	lengthFit        float64
	referenceDensity float64
	consistency      float64
}

// Coverage is the fraction of planned section types that were produced.
func (q Quality) Coverage() float64 { return q.coverage }

// LengthFit is the fraction of sections within the content bounds.
func (q Quality) LengthFit() float64 { return q.lengthFit }

// ReferenceDensity is the fraction of sections carrying code references,
// ignoring types exempt from referencing code.
func (q Quality) ReferenceDensity() float64 { return q.referenceDensity }

// Consistency is the fraction of sections judged internally consistent.
// ScoreQuality seeds it with a structural check (titled, of a canonical
// type, free of colliding top-level headings); callers with access to a
// model replace it with the self-check verdict via WithConsistency.
func (q Quality) Consistency() float64 { return q.consistency }

// WithConsistency returns a copy with the consistency component replaced,
// clamped to [0, 1].
func (q Quality) WithConsistency(v float64) Quality {
	q.consistency = min(max(v, 0), 1)
	return q
}

// Score is the weighted aggregate of the components.
func (q Quality) Score() float64 {
	return weightCoverage*q.coverage +
		weightLengthFit*q.lengthFit +
		weightReferenceDensity*q.referenceDensity +
		weightConsistency*q.consistency
}

// Meets reports whether the aggregate score reaches the threshold.
func (q Quality) Meets(threshold float64) bool {
	return q.Score() >= threshold
}

// ScoreQuality evaluates documentation against the section plan the
// analysis stage produced. An empty plan scores coverage against the
// sections actually present, so ad-hoc documentation is not penalized.
func ScoreQuality(d Documentation, planned []SectionType) Quality {
	sections := d.Sections()
	if len(sections) == 0 {
		return Quality{}
	}

	produced := make(map[SectionType]struct{}, len(sections))
	for _, s := range sections {
		produced[s.Type()] = struct{}{}
	}

	coverage := 1.0
	if len(planned) > 0 {
		covered := 0
		for _, typ := range planned {
			if _, ok := produced[typ]; ok {
				covered++
			}
		}
		coverage = float64(covered) / float64(len(planned))
	}

	fitting := 0
	referenced := 0
	referenceable := 0
	consistent := 0
	for _, s := range sections {
		n := len(s.Content())
		if n >= MinSectionContentLength && n <= MaxSectionContentLength {
			fitting++
		}
		if _, exempt := referenceExempt[s.Type()]; !exempt {
			referenceable++
			if len(s.CodeReferences()) > 0 {
				referenced++
			}
		}
		if sectionConsistent(s) {
			consistent++
		}
	}

	density := 1.0
	if referenceable > 0 {
		density = float64(referenced) / float64(referenceable)
	}

	return Quality{
		coverage:         coverage,
		lengthFit:        float64(fitting) / float64(len(sections)),
		referenceDensity: density,
		consistency:      float64(consistent) / float64(len(sections)),
	}
}

func sectionConsistent(s Section) bool {
	if s.Title() == "" {
		return false
	}
	if CanonicalRank(s.Type()) >= len(canonicalOrder) {
		return false
	}
	for _, line := range strings.Split(s.Content(), "\n") {
		if strings.HasPrefix(line, "# ") {
			return false
		}
	}
	return true
}
