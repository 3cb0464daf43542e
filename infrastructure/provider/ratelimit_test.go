package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelore/codelore/domain/fault"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestRateLimiterWindowFreesSlots(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(2, 0, nil).WithClock(clock.Now)

	require.NoError(t, limiter.Acquire(context.Background()))
	require.NoError(t, limiter.Acquire(context.Background()))

	// Window is full: the third caller should be told to wait.
	wait, err := limiter.tryAcquire()
	require.NoError(t, err)
	assert.Greater(t, wait, time.Duration(0))

	clock.Advance(61 * time.Second)
	require.NoError(t, limiter.Acquire(context.Background()))
}

func TestRateLimiterAcquireHonorsCancellation(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(1, 0, nil).WithClock(clock.Now)
	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := limiter.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimiterDailyQuota(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(0, 100, nil).WithClock(clock.Now)

	require.NoError(t, limiter.Acquire(context.Background()))
	limiter.RecordTokens(100)
	assert.Equal(t, int64(100), limiter.TokensUsedToday())

	err := limiter.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, fault.KindQuotaExceeded, fault.KindOf(err))

	hint, ok := fault.RetryAfterHint(err)
	require.True(t, ok)
	assert.LessOrEqual(t, hint, time.Hour)

	// The ledger resets at the UTC day boundary.
	clock.Advance(2 * time.Hour)
	require.NoError(t, limiter.Acquire(context.Background()))
	assert.Equal(t, int64(0), limiter.TokensUsedToday())
}

type scriptedGenerator struct {
	calls int
	usage Usage
}

func (g *scriptedGenerator) Generate(context.Context, ChatRequest) (ChatResponse, error) {
	g.calls++
	return NewChatResponse("ok", "test-model", g.usage), nil
}

func (g *scriptedGenerator) Stream(ctx context.Context, req ChatRequest, emit StreamFunc) (ChatResponse, error) {
	if err := emit("ok"); err != nil {
		return ChatResponse{}, err
	}
	return g.Generate(ctx, req)
}

func TestLimitedGeneratorChargesUsage(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(0, 50, nil).WithClock(clock.Now)
	inner := &scriptedGenerator{usage: NewUsage(20, 10, 0)}
	limited := NewLimitedGenerator(inner, limiter)

	_, err := limited.Generate(context.Background(), NewChatRequest(UserMessage("hi")))
	require.NoError(t, err)
	assert.Equal(t, int64(30), limiter.TokensUsedToday())

	_, err = limited.Generate(context.Background(), NewChatRequest(UserMessage("hi")))
	require.NoError(t, err)

	// 60 of 50 tokens spent: the quota gate now refuses before the call.
	_, err = limited.Generate(context.Background(), NewChatRequest(UserMessage("hi")))
	require.Error(t, err)
	assert.Equal(t, fault.KindQuotaExceeded, fault.KindOf(err))
	assert.Equal(t, 2, inner.calls)
}

func TestNewLimitedGeneratorNilLimiter(t *testing.T) {
	inner := &scriptedGenerator{}
	assert.Same(t, TextGenerator(inner), NewLimitedGenerator(inner, nil))
}
