package graph

import "github.com/codelore/codelore/domain/fault"

// Status is the build state of a knowledge graph.
type Status string

const (
	StatusNotBuilt       Status = "not_built"
	StatusBuilding       Status = "building"
	StatusAnalyzing      Status = "analyzing"
	StatusComplete       Status = "complete"
	StatusError          Status = "error"
	StatusUpdateRequired Status = "update_required"
)

// statusEdges is the transition table. Error recovers either by resetting
// to NotBuilt or by starting a fresh build directly.
var statusEdges = map[Status][]Status{
	StatusNotBuilt:       {StatusBuilding},
	StatusBuilding:       {StatusAnalyzing, StatusError},
	StatusAnalyzing:      {StatusComplete, StatusError},
	StatusComplete:       {StatusUpdateRequired},
	StatusUpdateRequired: {StatusBuilding},
	StatusError:          {StatusNotBuilt, StatusBuilding},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusEdges[s]
	return ok
}

// String returns the status name.
func (s Status) String() string { return string(s) }

// CanTransitionTo reports whether the edge s → next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusEdges[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo returns next if the edge is allowed, or a
// fault.KindInvalidTransition error.
func (s Status) TransitionTo(next Status) (Status, error) {
	if !next.Valid() {
		return s, fault.Validationf("unknown graph status %q", string(next))
	}
	if !s.CanTransitionTo(next) {
		return s, fault.InvalidTransition("knowledge graph", string(s), string(next))
	}
	return next, nil
}
