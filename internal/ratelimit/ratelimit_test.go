package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterEnforcesBudget(t *testing.T) {
	limiter := New(NewMemoryCounter(), 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(ctx, "203.0.113.7"))
	}
	assert.False(t, limiter.Allow(ctx, "203.0.113.7"))
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter := New(NewMemoryCounter(), 1, time.Minute)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "203.0.113.7"))
	assert.False(t, limiter.Allow(ctx, "203.0.113.7"))
	assert.True(t, limiter.Allow(ctx, "203.0.113.8"))
}

func TestWindowReset(t *testing.T) {
	counter := NewMemoryCounter()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	counter.now = func() time.Time { return now }

	limiter := New(counter, 2, time.Minute)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "client"))
	assert.True(t, limiter.Allow(ctx, "client"))
	assert.False(t, limiter.Allow(ctx, "client"))

	now = now.Add(61 * time.Second)
	assert.True(t, limiter.Allow(ctx, "client"))
}

type brokenCounter struct{}

func (brokenCounter) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, assert.AnError
}

func TestLimiterFailsOpen(t *testing.T) {
	limiter := New(brokenCounter{}, 1, time.Minute)
	for i := 0; i < 10; i++ {
		assert.True(t, limiter.Allow(context.Background(), "client"))
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var limiter *Limiter
	assert.True(t, limiter.Allow(context.Background(), "client"))
}

func TestDefaultsApplied(t *testing.T) {
	limiter := New(NewMemoryCounter(), 0, 0)
	assert.Equal(t, time.Minute, limiter.Window())
}
