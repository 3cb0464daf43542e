package docs

import "github.com/codelore/codelore/domain/fault"

// Status is the generation state of a documentation aggregate.
type Status string

const (
	StatusNotStarted        Status = "not_started"
	StatusAnalyzing         Status = "analyzing"
	StatusGeneratingContent Status = "generating_content"
	StatusEnriching         Status = "enriching"
	StatusIndexing          Status = "indexing"
	StatusCompleted         Status = "completed"
	StatusError             Status = "error"
	StatusUpdateRequired    Status = "update_required"
)

// statusEdges is the transition table. Enriching and Indexing are optional
// stages, so GeneratingContent may skip directly to either successor or to
// Completed. Error recovers to Analyzing or back to NotStarted.
var statusEdges = map[Status][]Status{
	StatusNotStarted:        {StatusAnalyzing, StatusError},
	StatusAnalyzing:         {StatusGeneratingContent, StatusError},
	StatusGeneratingContent: {StatusEnriching, StatusIndexing, StatusCompleted, StatusError},
	StatusEnriching:         {StatusIndexing, StatusCompleted, StatusError},
	StatusIndexing:          {StatusCompleted, StatusError},
	StatusCompleted:         {StatusUpdateRequired},
	StatusError:             {StatusAnalyzing, StatusNotStarted},
	StatusUpdateRequired:    {StatusAnalyzing},
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
		return s, fault.Validationf("unknown documentation status %q", string(next))
	}
	if !s.CanTransitionTo(next) {
		return s, fault.InvalidTransition("documentation", string(s), string(next))
	}
	return next, nil
}
