package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codelore/codelore/domain/fault"
)

// RateLimiter enforces the shared LLM usage budget: a per-minute request
// ceiling and a per-day token ceiling. Callers over the minute budget
// suspend until a slot frees or the context is cancelled; callers over the
// day budget fail with fault.QuotaExceeded carrying the time until reset.
type RateLimiter struct {
	requestsPerMinute int
	maxTokensPerDay   int64
	logger            *slog.Logger
	now               func() time.Time

	mu         sync.Mutex
	timestamps []time.Time
	day        time.Time
	dayTokens  int64
}

// NewRateLimiter creates a limiter with the given ceilings. Zero or
// negative values disable the corresponding ceiling.
func NewRateLimiter(requestsPerMinute int, maxTokensPerDay int64, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxTokensPerDay:   maxTokensPerDay,
		logger:            logger,
		now:               time.Now,
	}
}

// WithClock overrides the time source. For tests.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// Acquire blocks until a request slot is available within the per-minute
// window, then reserves it. The daily token ceiling is checked first: an
// exhausted day fails immediately rather than queueing work that cannot
// run.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	for {
		wait, err := l.tryAcquire()
		if err != nil {
			return err
		}
		if wait <= 0 {
			return nil
		}

		l.logger.Debug("rate limiter waiting", slog.Duration("wait", wait))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// tryAcquire reserves a slot if one is free, or returns how long to wait
// for the oldest in-window request to age out.
func (l *RateLimiter) tryAcquire() (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.rollDay(now)

	if l.maxTokensPerDay > 0 && l.dayTokens >= l.maxTokensPerDay {
		reset := l.day.Add(24 * time.Hour).Sub(now)
		return 0, fault.Newf(fault.KindQuotaExceeded,
			"daily token quota exhausted (%d of %d)", l.dayTokens, l.maxTokensPerDay).
			WithRetryAfter(reset)
	}

	if l.requestsPerMinute <= 0 {
		return 0, nil
	}

	cutoff := now.Add(-time.Minute)
	live := l.timestamps[:0]
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}
	l.timestamps = live

	if len(l.timestamps) < l.requestsPerMinute {
		l.timestamps = append(l.timestamps, now)
		return 0, nil
	}
	return l.timestamps[0].Sub(cutoff), nil
}

// RecordTokens charges token usage against the daily ceiling.
func (l *RateLimiter) RecordTokens(n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDay(l.now())
	l.dayTokens += int64(n)
}

// TokensUsedToday returns the tokens charged in the current UTC day.
func (l *RateLimiter) TokensUsedToday() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDay(l.now())
	return l.dayTokens
}

// rollDay resets the token ledger when the UTC day changes. Callers hold
// the mutex.
func (l *RateLimiter) rollDay(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(l.day) {
		l.day = day
		l.dayTokens = 0
	}
}

// LimitedGenerator decorates a TextGenerator with the shared limiter so
// every completion acquires a slot and charges its tokens.
type LimitedGenerator struct {
	inner   TextGenerator
	limiter *RateLimiter
}

// NewLimitedGenerator wraps a generator with a limiter. A nil limiter
// returns the generator unchanged.
func NewLimitedGenerator(inner TextGenerator, limiter *RateLimiter) TextGenerator {
	if limiter == nil {
		return inner
	}
	return &LimitedGenerator{inner: inner, limiter: limiter}
}

// Generate acquires a slot, runs the completion, and charges its usage.
func (g *LimitedGenerator) Generate(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := g.limiter.Acquire(ctx); err != nil {
		return ChatResponse{}, err
	}
	resp, err := g.inner.Generate(ctx, req)
	if err == nil {
		g.limiter.RecordTokens(resp.Usage().TotalTokens())
	}
	return resp, err
}

// Stream acquires a slot, runs the streamed completion, and charges its
// usage.
func (g *LimitedGenerator) Stream(ctx context.Context, req ChatRequest, emit StreamFunc) (ChatResponse, error) {
	if err := g.limiter.Acquire(ctx); err != nil {
		return ChatResponse{}, err
	}
	resp, err := g.inner.Stream(ctx, req, emit)
	if err == nil {
		g.limiter.RecordTokens(resp.Usage().TotalTokens())
	}
	return resp, err
}

var _ TextGenerator = (*LimitedGenerator)(nil)
