package repo

import "github.com/codelore/codelore/domain/fault"

// Status is the lifecycle state of a repository within the ingestion
// pipeline. Transitions are restricted to the edges in statusEdges; the
// orchestrator is the only writer.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusAnalyzing    Status = "analyzing"
	StatusReady        Status = "ready"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

// statusEdges is the full transition table. Disconnection is reachable from
// every state; recovery runs Disconnected → Connecting.
var statusEdges = map[Status][]Status{
	StatusConnecting:   {StatusConnected, StatusError, StatusDisconnected},
	StatusConnected:    {StatusAnalyzing, StatusError, StatusDisconnected},
	StatusAnalyzing:    {StatusReady, StatusError, StatusDisconnected},
	StatusReady:        {StatusAnalyzing, StatusDisconnected},
	StatusError:        {StatusDisconnected},
	StatusDisconnected: {StatusConnecting, StatusError, StatusDisconnected},
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
		return s, fault.Validationf("unknown repository status %q", string(next))
	}
	if !s.CanTransitionTo(next) {
		return s, fault.InvalidTransition("repository", string(s), string(next))
	}
	return next, nil
}

// Terminal reports whether the repository takes no further pipeline work in
// this state without external input.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError || s == StatusDisconnected
}
