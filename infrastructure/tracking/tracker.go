package tracking

import (
	"context"
	"log/slog"
	"sync"

	"github.com/codelore/codelore/domain/task"
)

// Tracker holds the live status of one running operation and pushes
// every change to its subscribed reporters.
type Tracker struct {
	mu          sync.RWMutex
	status      task.Status
	subscribers []Reporter
	logger      *slog.Logger
}

// NewTracker wraps an existing status.
func NewTracker(status task.Status, logger *slog.Logger) *Tracker {
	return &Tracker{status: status, logger: logger}
}

// TrackerForOperation starts a fresh tracker for an operation on the
// given trackable entity.
func TrackerForOperation(
	operation task.Operation,
	logger *slog.Logger,
	trackableType task.TrackableType,
	trackableID int64,
) *Tracker {
	return NewTracker(task.NewStatus(operation, nil, trackableType, trackableID), logger)
}

// Status returns the current status snapshot.
func (t *Tracker) Status() task.Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Subscribe registers a reporter for all subsequent changes.
func (t *Tracker) Subscribe(reporter Reporter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, reporter)
}

// SetTotal records how many steps the operation will take.
func (t *Tracker) SetTotal(ctx context.Context, total int) {
	t.apply(ctx, func(s task.Status) task.Status { return s.SetTotal(total) })
}

// SetCurrent records progress through the steps.
func (t *Tracker) SetCurrent(ctx context.Context, current int, message string) {
	t.apply(ctx, func(s task.Status) task.Status { return s.SetCurrent(current, message) })
}

// Skip ends the operation without doing work.
func (t *Tracker) Skip(ctx context.Context, reason string) {
	t.apply(ctx, func(s task.Status) task.Status { return s.Skip(reason) })
}

// Fail ends the operation with an error message.
func (t *Tracker) Fail(ctx context.Context, errMsg string) {
	t.apply(ctx, func(s task.Status) task.Status { return s.Fail(errMsg) })
}

// Complete ends the operation successfully.
func (t *Tracker) Complete(ctx context.Context) {
	t.apply(ctx, func(s task.Status) task.Status { return s.Complete() })
}

// Notify re-announces the current status, typically right after the
// tracker is created so reporters see the pending state.
func (t *Tracker) Notify(ctx context.Context) {
	t.publish(ctx, t.Status())
}

// Child derives a tracker for a sub-operation. It shares the parent's
// reporters and trackable identity; the parent's status becomes the
// child's parent status.
func (t *Tracker) Child(operation task.Operation) *Tracker {
	t.mu.RLock()
	parent := t.status
	subscribers := append([]Reporter(nil), t.subscribers...)
	t.mu.RUnlock()

	return &Tracker{
		status:      task.NewStatus(operation, &parent, parent.TrackableType(), parent.TrackableID()),
		subscribers: subscribers,
		logger:      t.logger,
	}
}

// apply mutates the status under the lock and publishes the result
// outside it.
func (t *Tracker) apply(ctx context.Context, mutate func(task.Status) task.Status) {
	t.mu.Lock()
	t.status = mutate(t.status)
	status := t.status
	t.mu.Unlock()

	t.publish(ctx, status)
}

// publish fans the status out to every reporter. A failing reporter is
// logged and skipped so the rest still get the update.
func (t *Tracker) publish(ctx context.Context, status task.Status) {
	t.mu.RLock()
	subscribers := append([]Reporter(nil), t.subscribers...)
	t.mu.RUnlock()

	for _, subscriber := range subscribers {
		if err := subscriber.OnChange(ctx, status); err != nil {
			t.logger.Error("status reporter failed",
				slog.String("operation", status.Operation().String()),
				slog.String("error", err.Error()),
			)
		}
	}
}
