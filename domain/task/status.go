package task

import (
	"strconv"
	"strings"
	"time"
)

// ReportingState is where an operation stands in its lifecycle.
type ReportingState string

// Reporting states. A status starts in started, moves to in_progress on
// the first progress update, and ends in exactly one of the terminal
// states.
const (
	ReportingStateStarted    ReportingState = "started"
	ReportingStateInProgress ReportingState = "in_progress"
	ReportingStateCompleted  ReportingState = "completed"
	ReportingStateFailed     ReportingState = "failed"
	ReportingStateSkipped    ReportingState = "skipped"
)

// IsTerminal reports whether no further transitions are possible.
func (s ReportingState) IsTerminal() bool {
	switch s {
	case ReportingStateCompleted, ReportingStateFailed, ReportingStateSkipped:
		return true
	}
	return false
}

// TrackableType names the kind of entity an operation works on.
type TrackableType string

// Trackable entity types.
const (
	TrackableTypeRepository    TrackableType = "codelore.repository"
	TrackableTypeGraph         TrackableType = "codelore.graph"
	TrackableTypeDocumentation TrackableType = "codelore.documentation"
	TrackableTypeConversation  TrackableType = "codelore.conversation"
)

// Status is the progress record of one operation run. It is a value
// type: mutators return an updated copy, so a snapshot handed to a
// reporter never changes underneath it.
type Status struct {
	id            string
	state         ReportingState
	operation     Operation
	message       string
	createdAt     time.Time
	updatedAt     time.Time
	total         int
	current       int
	errorMessage  string
	parent        *Status
	trackableID   int64
	trackableType TrackableType
}

// NewStatus opens a status for an operation on the given trackable.
// The ID is deterministic, so re-running the same operation on the same
// entity overwrites its previous status rather than piling up rows.
func NewStatus(
	operation Operation,
	parent *Status,
	trackableType TrackableType,
	trackableID int64,
) Status {
	now := time.Now().UTC()
	return Status{
		id:            statusID(operation, trackableType, trackableID),
		state:         ReportingStateStarted,
		operation:     operation,
		parent:        parent,
		trackableID:   trackableID,
		trackableType: trackableType,
		createdAt:     now,
		updatedAt:     now,
	}
}

// NewStatusWithDefaults opens a status with no trackable entity.
func NewStatusWithDefaults(operation Operation) Status {
	return NewStatus(operation, nil, "", 0)
}

// NewStatusFull rebuilds a status from stored fields.
func NewStatusFull(
	id string,
	state ReportingState,
	operation Operation,
	message string,
	createdAt, updatedAt time.Time,
	total, current int,
	errorMessage string,
	parent *Status,
	trackableID int64,
	trackableType TrackableType,
) Status {
	return Status{
		id:            id,
		state:         state,
		operation:     operation,
		message:       message,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
		total:         total,
		current:       current,
		errorMessage:  errorMessage,
		parent:        parent,
		trackableID:   trackableID,
		trackableType: trackableType,
	}
}

// ID returns the status ID.
func (s Status) ID() string { return s.id }

// State returns the reporting state.
func (s Status) State() ReportingState { return s.state }

// Operation returns the operation being tracked.
func (s Status) Operation() Operation { return s.operation }

// Message returns the latest progress message.
func (s Status) Message() string { return s.message }

// CreatedAt returns when tracking started.
func (s Status) CreatedAt() time.Time { return s.createdAt }

// UpdatedAt returns the time of the last transition.
func (s Status) UpdatedAt() time.Time { return s.updatedAt }

// Total returns the expected number of steps.
func (s Status) Total() int { return s.total }

// Current returns the number of completed steps.
func (s Status) Current() int { return s.current }

// Error returns the failure message, empty unless failed.
func (s Status) Error() string { return s.errorMessage }

// Parent returns the enclosing operation's status, if any.
func (s Status) Parent() *Status { return s.parent }

// TrackableID returns the tracked entity's ID.
func (s Status) TrackableID() int64 { return s.trackableID }

// TrackableType returns the tracked entity's type.
func (s Status) TrackableType() TrackableType { return s.trackableType }

// CompletionPercent reports progress in the range [0, 100]. Unknown
// totals report zero.
func (s Status) CompletionPercent() float64 {
	if s.total == 0 {
		return 0
	}
	return min(max(float64(s.current)/float64(s.total)*100, 0), 100)
}

// SetTotal records the expected step count.
func (s Status) SetTotal(total int) Status {
	s.total = total
	return s.touched()
}

// SetCurrent records progress. An empty message keeps the previous one.
func (s Status) SetCurrent(current int, message string) Status {
	s.state = ReportingStateInProgress
	s.current = current
	if message != "" {
		s.message = message
	}
	return s.touched()
}

// SetTrackingInfo attaches the status to a trackable entity.
func (s Status) SetTrackingInfo(trackableID int64, trackableType TrackableType) Status {
	s.trackableID = trackableID
	s.trackableType = trackableType
	return s.touched()
}

// Skip ends the status without work having been done.
func (s Status) Skip(message string) Status {
	s.state = ReportingStateSkipped
	s.message = message
	return s.touched()
}

// Fail ends the status with an error.
func (s Status) Fail(errorMsg string) Status {
	s.state = ReportingStateFailed
	s.errorMessage = errorMsg
	return s.touched()
}

// Complete ends the status successfully, forcing progress to 100%.
// Completing an already-terminal status is a no-op.
func (s Status) Complete() Status {
	if s.state.IsTerminal() {
		return s
	}
	s.state = ReportingStateCompleted
	s.current = s.total
	return s.touched()
}

func (s Status) touched() Status {
	s.updatedAt = time.Now().UTC()
	return s
}

// statusID joins trackable type, trackable ID, and operation into a
// stable identifier, omitting the parts that are unset.
func statusID(operation Operation, trackableType TrackableType, trackableID int64) string {
	parts := make([]string, 0, 3)
	if trackableType != "" {
		parts = append(parts, string(trackableType))
	}
	if trackableID != 0 {
		parts = append(parts, strconv.FormatInt(trackableID, 10))
	}
	return strings.Join(append(parts, string(operation)), "-")
}
