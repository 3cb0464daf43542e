package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/codelore/codelore/domain/fault"
)

// PatternCategory groups pattern detectors.
type PatternCategory string

const (
	PatternCreational    PatternCategory = "creational"
	PatternStructural    PatternCategory = "structural"
	PatternBehavioral    PatternCategory = "behavioral"
	PatternArchitectural PatternCategory = "architectural"
	PatternDDD           PatternCategory = "ddd"
	PatternMicroservices PatternCategory = "microservices"
)

// StablePatternID derives the deterministic pattern identifier from the
// repository, pattern name, and the sorted participant set.
func StablePatternID(repositoryID int64, name string, participantIDs []string) string {
	ids := make([]string, len(participantIDs))
	copy(ids, participantIDs)
	sort.Strings(ids)
	sum := sha256.Sum256(fmt.Appendf(nil, "%d|%s|%s", repositoryID, name, strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:])
}

// ArchitecturalPattern is a detected design or architecture pattern with the
// entities participating in it, keyed by role.
type ArchitecturalPattern struct {
	patternID       string
	name            string
	category        PatternCategory
	repositoryID    int64
	confidence      float64
	participants    map[string]string
	characteristics []string
	violations      []string
}

// NewPattern creates a validated pattern. Confidence is in [0,1] and at
// least one participant is required.
func NewPattern(repositoryID int64, name string, category PatternCategory, confidence float64, participants map[string]string) (ArchitecturalPattern, error) {
	if name == "" {
		return ArchitecturalPattern{}, fault.Validation("pattern name cannot be empty")
	}
	if confidence < 0 || confidence > 1 {
		return ArchitecturalPattern{}, fault.Validationf("pattern %q confidence %.3f out of [0,1]", name, confidence)
	}
	if len(participants) == 0 {
		return ArchitecturalPattern{}, fault.Validationf("pattern %q has no participants", name)
	}

	ids := make([]string, 0, len(participants))
	for id := range participants {
		ids = append(ids, id)
	}

	return ArchitecturalPattern{
		patternID:    StablePatternID(repositoryID, name, ids),
		name:         name,
		category:     category,
		repositoryID: repositoryID,
		confidence:   confidence,
		participants: copyStringMap(participants),
	}, nil
}

// ReconstructPattern rebuilds a pattern from persistence.
func ReconstructPattern(
	patternID string,
	repositoryID int64,
	name string,
	category PatternCategory,
	confidence float64,
	participants map[string]string,
	characteristics []string,
	violations []string,
) ArchitecturalPattern {
	return ArchitecturalPattern{
		patternID:       patternID,
		name:            name,
		category:        category,
		repositoryID:    repositoryID,
		confidence:      confidence,
		participants:    copyStringMap(participants),
		characteristics: copyStrings(characteristics),
		violations:      copyStrings(violations),
	}
}

// PatternID returns the stable identifier.
func (p ArchitecturalPattern) PatternID() string { return p.patternID }

// Name returns the pattern name (e.g. "Repository", "Layered Architecture").
func (p ArchitecturalPattern) Name() string { return p.name }

// Category returns the detector family.
func (p ArchitecturalPattern) Category() PatternCategory { return p.category }

// RepositoryID returns the repository the pattern was detected in.
func (p ArchitecturalPattern) RepositoryID() int64 { return p.repositoryID }

// Confidence returns the detection confidence in [0,1].
func (p ArchitecturalPattern) Confidence() float64 { return p.confidence }

// Participants returns a copy of entityID → role.
func (p ArchitecturalPattern) Participants() map[string]string {
	return copyStringMap(p.participants)
}

// ParticipantIDs returns the sorted participant entity ids.
func (p ArchitecturalPattern) ParticipantIDs() []string {
	ids := make([]string, 0, len(p.participants))
	for id := range p.participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Characteristics returns a copy of descriptive traits.
func (p ArchitecturalPattern) Characteristics() []string {
	return copyStrings(p.characteristics)
}

// Violations returns a copy of detected deviations from the pattern.
func (p ArchitecturalPattern) Violations() []string { return copyStrings(p.violations) }

// WithCharacteristic returns a copy with a trait appended.
func (p ArchitecturalPattern) WithCharacteristic(trait string) ArchitecturalPattern {
	p.characteristics = append(copyStrings(p.characteristics), trait)
	return p
}

// WithViolation returns a copy with a deviation recorded.
func (p ArchitecturalPattern) WithViolation(violation string) ArchitecturalPattern {
	p.violations = append(copyStrings(p.violations), violation)
	return p
}

// FilterPatterns drops candidates below the minimum confidence and sorts the
// survivors by id for deterministic persistence.
func FilterPatterns(patterns []ArchitecturalPattern, minimum float64) []ArchitecturalPattern {
	kept := make([]ArchitecturalPattern, 0, len(patterns))
	for _, p := range patterns {
		if p.confidence >= minimum {
			kept = append(kept, p)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].patternID < kept[j].patternID
	})
	return kept
}
