package conversation

import "github.com/codelore/codelore/domain/fault"

// Status represents the lifecycle state of a conversation.
type Status string

// Status values for conversations.
const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// statusEdges lists the allowed transitions from each status. Deleted is
// terminal; archived conversations may be reactivated.
var statusEdges = map[Status][]Status{
	StatusActive:   {StatusArchived, StatusDeleted},
	StatusArchived: {StatusActive, StatusDeleted},
	StatusDeleted:  {},
}

// Valid reports whether the status is a known conversation status.
func (s Status) Valid() bool {
	_, ok := statusEdges[s]
	return ok
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo reports whether the transition to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusEdges[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo returns next if the transition is allowed.
func (s Status) TransitionTo(next Status) (Status, error) {
	if !s.Valid() {
		return s, fault.Validationf("unknown conversation status %q", string(s))
	}
	if !s.CanTransitionTo(next) {
		return s, fault.InvalidTransition("conversation", string(s), string(next))
	}
	return next, nil
}
