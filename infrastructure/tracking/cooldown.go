package tracking

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/codelore/codelore/domain/task"
)

var (
	_ Reporter  = (*Cooldown)(nil)
	_ io.Closer = (*Cooldown)(nil)
)

// Cooldown throttles a Reporter to at most one delivery per interval for
// each status ID. Terminal states always pass through immediately.
// While throttled, only the newest status is held; it is flushed when
// the interval elapses. Close flushes everything still held.
type Cooldown struct {
	inner    Reporter
	interval time.Duration

	mu      sync.Mutex
	tracked map[string]*throttled
}

// throttled is the per-status-ID throttle state.
type throttled struct {
	nextDue time.Time
	held    *task.Status
	flush   *time.Timer
}

// NewCooldown wraps inner with a per-ID minimum delivery interval.
func NewCooldown(inner Reporter, interval time.Duration) *Cooldown {
	return &Cooldown{
		inner:    inner,
		interval: interval,
		tracked:  make(map[string]*throttled),
	}
}

// OnChange implements Reporter.
func (c *Cooldown) OnChange(ctx context.Context, status task.Status) error {
	id := status.ID()
	now := time.Now()

	c.mu.Lock()

	if status.State().IsTerminal() {
		if st, ok := c.tracked[id]; ok {
			if st.flush != nil {
				st.flush.Stop()
			}
			delete(c.tracked, id)
		}
		c.mu.Unlock()
		return c.inner.OnChange(ctx, status)
	}

	st, ok := c.tracked[id]
	if !ok {
		st = &throttled{}
		c.tracked[id] = st
	}

	if !now.Before(st.nextDue) {
		if st.flush != nil {
			st.flush.Stop()
			st.flush = nil
		}
		st.held = nil
		st.nextDue = now.Add(c.interval)
		c.mu.Unlock()
		return c.inner.OnChange(ctx, status)
	}

	// Inside the cooldown window: remember only the newest status and
	// make sure a flush is scheduled for when the window closes.
	held := status
	st.held = &held
	if st.flush == nil {
		st.flush = time.AfterFunc(st.nextDue.Sub(now), func() { c.flushHeld(id) })
	}

	c.mu.Unlock()
	return nil
}

// Close stops all timers and delivers any held statuses.
func (c *Cooldown) Close() error {
	c.mu.Lock()
	remaining := c.tracked
	c.tracked = make(map[string]*throttled)
	c.mu.Unlock()

	for _, st := range remaining {
		if st.flush != nil {
			st.flush.Stop()
		}
		if st.held != nil {
			_ = c.inner.OnChange(context.Background(), *st.held)
		}
	}
	return nil
}

// flushHeld runs on the timer goroutine when a cooldown window closes.
func (c *Cooldown) flushHeld(id string) {
	c.mu.Lock()
	st, ok := c.tracked[id]
	if !ok || st.held == nil {
		if ok {
			st.flush = nil
		}
		c.mu.Unlock()
		return
	}

	status := *st.held
	st.held = nil
	st.flush = nil
	st.nextDue = time.Now().Add(c.interval)
	c.mu.Unlock()

	_ = c.inner.OnChange(context.Background(), status)
}
