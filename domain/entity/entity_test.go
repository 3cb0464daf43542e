package entity

import (
	"testing"

	"github.com/codelore/codelore/domain/fault"
)

func TestStableEntityID_Deterministic(t *testing.T) {
	a := StableEntityID(7, "pkg/auth/handler.go", "go", "auth.Handler", KindStruct)
	b := StableEntityID(7, "pkg/auth/handler.go", "go", "auth.Handler", KindStruct)
	if a != b {
		t.Fatalf("same inputs produced different ids: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("id length = %d, want 64 hex chars", len(a))
	}

	// Any identity field changes the id.
	variants := []string{
		StableEntityID(8, "pkg/auth/handler.go", "go", "auth.Handler", KindStruct),
		StableEntityID(7, "pkg/auth/other.go", "go", "auth.Handler", KindStruct),
		StableEntityID(7, "pkg/auth/handler.go", "python", "auth.Handler", KindStruct),
		StableEntityID(7, "pkg/auth/handler.go", "go", "auth.Other", KindStruct),
		StableEntityID(7, "pkg/auth/handler.go", "go", "auth.Handler", KindClass),
	}
	for i, v := range variants {
		if v == a {
			t.Fatalf("variant %d collided with base id", i)
		}
	}
}

func TestNewCodeEntity_Validation(t *testing.T) {
	loc := Location{StartLine: 1, EndLine: 10}

	if _, err := NewCodeEntity(1, "main.go", "go", "", "", KindFunction, loc, ""); !fault.Is(err, fault.KindValidation) {
		t.Fatal("empty name should be rejected")
	}
	if _, err := NewCodeEntity(1, "", "go", "main", "", KindFunction, loc, ""); !fault.Is(err, fault.KindValidation) {
		t.Fatal("empty path should be rejected")
	}
	if _, err := NewCodeEntity(1, "main.go", "go", "main", "", KindFunction, Location{StartLine: 10, EndLine: 2}, ""); !fault.Is(err, fault.KindValidation) {
		t.Fatal("inverted location should be rejected")
	}

	e, err := NewCodeEntity(1, "main.go", "go", "main", "", KindFunction, loc, "func main() {}")
	if err != nil {
		t.Fatal(err)
	}
	if e.QualifiedName() != "main" {
		t.Fatalf("QualifiedName defaulted to %q, want name", e.QualifiedName())
	}
	if e.EntityID() == "" {
		t.Fatal("entity id not derived")
	}
}

func TestNewRelationship_Validation(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		target     string
		weight     float64
		confidence float64
		wantErr    bool
	}{
		{"valid", "a", "b", 0.8, 90, false},
		{"self edge", "a", "a", 0.8, 90, true},
		{"empty source", "", "b", 0.8, 90, true},
		{"weight above 1", "a", "b", 1.2, 90, true},
		{"weight below 0", "a", "b", -0.1, 90, true},
		{"confidence above 100", "a", "b", 0.5, 101, true},
		{"bounds ok", "a", "b", 0, 0, false},
		{"bounds ok high", "a", "b", 1, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRelationship(tt.source, tt.target, RelCalls, tt.weight, tt.confidence)
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestMergeRelationships(t *testing.T) {
	a, _ := NewRelationship("x", "y", RelCalls, 0.4, 50)
	a = a.WithSourceRef("a.go")
	b, _ := NewRelationship("x", "y", RelCalls, 0.9, 70)
	b = b.WithSourceRef("b.go")
	c, _ := NewRelationship("x", "y", RelUses, 0.2, 40)

	merged := MergeRelationships([]CodeRelationship{a, b, c})
	if len(merged) != 2 {
		t.Fatalf("merged count = %d, want 2", len(merged))
	}

	var calls CodeRelationship
	for _, rel := range merged {
		if rel.Type() == RelCalls {
			calls = rel
		}
	}
	if calls.Weight() != 0.9 {
		t.Fatalf("merged weight = %.2f, want max 0.9", calls.Weight())
	}
	if calls.Confidence() != 70 {
		t.Fatalf("merged confidence = %.1f, want max 70", calls.Confidence())
	}
	refs := calls.SourceRefs()
	if len(refs) != 2 || refs[0] != "a.go" || refs[1] != "b.go" {
		t.Fatalf("merged refs = %v, want union [a.go b.go]", refs)
	}
}

func TestMergeRelationships_Deterministic(t *testing.T) {
	a, _ := NewRelationship("m", "n", RelCalls, 0.5, 60)
	b, _ := NewRelationship("a", "b", RelUses, 0.5, 60)
	c, _ := NewRelationship("m", "n", RelDepends, 0.5, 60)

	first := MergeRelationships([]CodeRelationship{a, b, c})
	second := MergeRelationships([]CodeRelationship{c, a, b})

	if len(first) != len(second) {
		t.Fatal("merge output length differs between orderings")
	}
	for i := range first {
		if first[i].Key() != second[i].Key() {
			t.Fatalf("merge output order differs at %d: %s vs %s", i, first[i].Key(), second[i].Key())
		}
	}
}

func TestFilterByConfidence(t *testing.T) {
	strong, _ := NewRelationship("a", "b", RelCalls, 0.9, 80)
	weak, _ := NewRelationship("a", "c", RelCalls, 0.9, 40)

	kept := FilterByConfidence([]CodeRelationship{strong, weak}, 0.6)
	if len(kept) != 1 || kept[0].TargetID() != "b" {
		t.Fatalf("FilterByConfidence kept %d edges, want only the strong one", len(kept))
	}
}

func TestNewPattern(t *testing.T) {
	participants := map[string]string{"e1": "repository", "e2": "consumer"}

	p, err := NewPattern(3, "Repository", PatternDDD, 0.85, participants)
	if err != nil {
		t.Fatal(err)
	}
	if p.PatternID() == "" {
		t.Fatal("pattern id not derived")
	}

	// Participant order must not affect the id.
	again, _ := NewPattern(3, "Repository", PatternDDD, 0.85, map[string]string{"e2": "consumer", "e1": "repository"})
	if p.PatternID() != again.PatternID() {
		t.Fatal("pattern id depends on map iteration order")
	}

	if _, err := NewPattern(3, "Repository", PatternDDD, 1.5, participants); !fault.Is(err, fault.KindValidation) {
		t.Fatal("confidence above 1 should be rejected")
	}
	if _, err := NewPattern(3, "Repository", PatternDDD, 0.5, nil); !fault.Is(err, fault.KindValidation) {
		t.Fatal("empty participants should be rejected")
	}
}

func TestFilterPatterns(t *testing.T) {
	strong, _ := NewPattern(1, "Factory", PatternCreational, 0.9, map[string]string{"e1": "factory"})
	weak, _ := NewPattern(1, "Observer", PatternBehavioral, 0.5, map[string]string{"e2": "subject"})

	kept := FilterPatterns([]ArchitecturalPattern{weak, strong}, 0.7)
	if len(kept) != 1 || kept[0].Name() != "Factory" {
		t.Fatalf("FilterPatterns kept %v, want only Factory", kept)
	}
}
