// Package ratelimit implements the advisory per-client admission limiter.
// It blunts casual abuse only; the overuse guarantee for tokens is carried
// entirely by the conditional-write protocol in the redemption service, and
// nothing here may be relied on for correctness.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Counter is the swappable backend tracking request counts per client key
// within a fixed window. Implementations may lose counts at any time.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter applies a fixed-window limit per client key.
type Limiter struct {
	counter Counter
	limit   int
	window  time.Duration
}

// New builds a limiter over the given counter.
func New(counter Counter, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{counter: counter, limit: limit, window: window}
}

// Allow reports whether the client identified by key is within its budget.
// Counter failures allow the request through: the limiter is advisory.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.counter == nil {
		return true
	}
	count, err := l.counter.Incr(ctx, key, l.window)
	if err != nil {
		return true
	}
	return count <= int64(l.limit)
}

// Window returns the configured window, for Retry-After hints.
func (l *Limiter) Window() time.Duration {
	return l.window
}

type bucket struct {
	count int64
	start time.Time
}

// MemoryCounter is a per-process fixed-window counter. It resets on every
// fresh instance, which is acceptable for an advisory limiter.
type MemoryCounter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewMemoryCounter builds an empty counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Incr bumps the key's count, resetting it when the window elapsed.
func (c *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[key]
	if !ok || now.Sub(b.start) > window {
		b = &bucket{start: now}
		c.buckets[key] = b
	}
	b.count++
	return b.count, nil
}
