package graph

import (
	"testing"

	"github.com/codelore/codelore/domain/fault"
)

func TestStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusNotBuilt, StatusBuilding},
		{StatusBuilding, StatusAnalyzing},
		{StatusBuilding, StatusError},
		{StatusAnalyzing, StatusComplete},
		{StatusAnalyzing, StatusError},
		{StatusComplete, StatusUpdateRequired},
		{StatusUpdateRequired, StatusBuilding},
		{StatusError, StatusNotBuilt},
		{StatusError, StatusBuilding},
	}
	for _, tt := range allowed {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			if _, err := tt.from.TransitionTo(tt.to); err != nil {
				t.Fatalf("TransitionTo(%s → %s): %v", tt.from, tt.to, err)
			}
		})
	}

	forbidden := []struct{ from, to Status }{
		{StatusNotBuilt, StatusComplete},
		{StatusNotBuilt, StatusAnalyzing},
		{StatusBuilding, StatusComplete},
		{StatusBuilding, StatusNotBuilt},
		{StatusComplete, StatusBuilding},
		{StatusComplete, StatusError},
		{StatusUpdateRequired, StatusComplete},
		{StatusError, StatusComplete},
	}
	for _, tt := range forbidden {
		t.Run("forbidden_"+string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			_, err := tt.from.TransitionTo(tt.to)
			if !fault.Is(err, fault.KindInvalidTransition) {
				t.Fatalf("error kind = %v, want InvalidTransition", fault.KindOf(err))
			}
		})
	}
}

func TestNewKnowledgeGraph(t *testing.T) {
	g, err := NewKnowledgeGraph([]int64{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if g.Status() != StatusNotBuilt {
		t.Fatalf("status = %s, want not_built", g.Status())
	}
	if !g.Covers(2) || g.Covers(9) {
		t.Fatal("Covers misreports membership")
	}

	if _, err := NewKnowledgeGraph(nil); !fault.Is(err, fault.KindValidation) {
		t.Fatal("empty id set should be rejected")
	}
	if _, err := NewKnowledgeGraph([]int64{1, 1}); !fault.Is(err, fault.KindValidation) {
		t.Fatal("duplicate ids should be rejected")
	}
}

func TestKnowledgeGraph_BuildCycle(t *testing.T) {
	g, _ := NewKnowledgeGraph([]int64{1})

	for _, next := range []Status{StatusBuilding, StatusAnalyzing, StatusComplete} {
		var err error
		g, err = g.Transition(next)
		if err != nil {
			t.Fatalf("Transition(%s): %v", next, err)
		}
	}

	g, err := g.Transition(StatusUpdateRequired)
	if err != nil {
		t.Fatal(err)
	}
	if g, err = g.Transition(StatusBuilding); err != nil {
		t.Fatal(err)
	}
	if g.Status() != StatusBuilding {
		t.Fatalf("status = %s after rebuild trigger", g.Status())
	}
}
