package tracking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/tracking"
)

// captureReporter records every status delivered to it.
type captureReporter struct {
	mu  sync.Mutex
	got []task.Status
}

func (r *captureReporter) OnChange(_ context.Context, status task.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, status)
	return nil
}

func (r *captureReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func (r *captureReporter) last() task.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.got[len(r.got)-1]
}

// waitForCount polls until the reporter has seen n deliveries.
func waitForCount(t *testing.T, r *captureReporter, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.count() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d deliveries, have %d", n, r.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCooldown_FirstUpdateDeliversImmediately(t *testing.T) {
	inner := &captureReporter{}
	cd := tracking.NewCooldown(inner, time.Minute)
	defer func() { _ = cd.Close() }()

	status := task.NewStatusWithDefaults(task.OperationIndexContent).SetCurrent(1, "chunking")
	if err := cd.OnChange(context.Background(), status); err != nil {
		t.Fatalf("OnChange: %v", err)
	}

	if inner.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", inner.count())
	}
}

func TestCooldown_ThrottlesThenFlushesNewest(t *testing.T) {
	inner := &captureReporter{}
	cd := tracking.NewCooldown(inner, 40*time.Millisecond)
	defer func() { _ = cd.Close() }()

	ctx := context.Background()
	base := task.NewStatusWithDefaults(task.OperationIndexContent).SetTotal(10)

	_ = cd.OnChange(ctx, base.SetCurrent(1, "step 1"))
	_ = cd.OnChange(ctx, base.SetCurrent(2, "step 2"))
	_ = cd.OnChange(ctx, base.SetCurrent(3, "step 3"))

	// Inside the window only the opening update went through.
	if inner.count() != 1 {
		t.Fatalf("deliveries inside window = %d, want 1", inner.count())
	}

	// When the window closes the newest held status is flushed.
	waitForCount(t, inner, 2)
	if got := inner.last().Current(); got != 3 {
		t.Errorf("flushed Current() = %d, want 3", got)
	}
}

func TestCooldown_TerminalBypassesThrottle(t *testing.T) {
	inner := &captureReporter{}
	cd := tracking.NewCooldown(inner, time.Minute)
	defer func() { _ = cd.Close() }()

	ctx := context.Background()
	base := task.NewStatusWithDefaults(task.OperationBuildGraph).SetTotal(4)

	_ = cd.OnChange(ctx, base.SetCurrent(1, ""))
	_ = cd.OnChange(ctx, base.SetCurrent(2, ""))
	_ = cd.OnChange(ctx, base.Complete())

	if inner.count() != 2 {
		t.Fatalf("deliveries = %d, want opening update plus terminal", inner.count())
	}
	if state := inner.last().State(); state != task.ReportingStateCompleted {
		t.Errorf("last state = %s, want completed", state)
	}

	// The held intermediate update was discarded, so nothing more
	// arrives after the terminal state.
	time.Sleep(60 * time.Millisecond)
	if inner.count() != 2 {
		t.Errorf("deliveries after terminal = %d, want 2", inner.count())
	}
}

func TestCooldown_CloseFlushesHeld(t *testing.T) {
	inner := &captureReporter{}
	cd := tracking.NewCooldown(inner, time.Minute)

	ctx := context.Background()
	base := task.NewStatusWithDefaults(task.OperationExtractEntities).SetTotal(5)

	_ = cd.OnChange(ctx, base.SetCurrent(1, ""))
	_ = cd.OnChange(ctx, base.SetCurrent(4, "almost there"))

	if err := cd.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if inner.count() != 2 {
		t.Fatalf("deliveries = %d, want held status flushed on close", inner.count())
	}
	if got := inner.last().Current(); got != 4 {
		t.Errorf("flushed Current() = %d, want 4", got)
	}
}

func TestCooldown_IndependentPerStatusID(t *testing.T) {
	inner := &captureReporter{}
	cd := tracking.NewCooldown(inner, time.Minute)
	defer func() { _ = cd.Close() }()

	ctx := context.Background()
	first := task.NewStatusWithDefaults(task.OperationAnalyzeStructure)
	second := task.NewStatusWithDefaults(task.OperationIndexContent)

	_ = cd.OnChange(ctx, first.SetCurrent(1, ""))
	_ = cd.OnChange(ctx, second.SetCurrent(1, ""))

	// Two distinct IDs, so neither throttles the other.
	if inner.count() != 2 {
		t.Errorf("deliveries = %d, want 2", inner.count())
	}
}
