package ratelimit

import (
	"context"
	"sync"
	"time"
)

// bucket is a single token bucket for one rate-limit key.
type bucket struct {
	tokens     float64
	lastAccess time.Time
}

// staleThreshold is how long a bucket can go unused before the cleanup
// goroutine evicts it, bounding memory for keys (e.g. agent ids) that
// stop checking in.
const staleThreshold = 10 * time.Minute

// MemoryLimiter implements Limiter with an in-process token bucket per
// key. Each key gets an independent bucket with the Rule's limit as both
// burst capacity and the basis for the sustained refill rate
// (limit/window). A background goroutine evicts stale buckets every
// minute; call Close to stop it.
type MemoryLimiter struct {
	rule  Rule
	rate  float64 // tokens added per second
	burst float64 // bucket capacity

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter builds a token bucket limiter enforcing rule.
func NewMemoryLimiter(rule Rule) *MemoryLimiter {
	m := &MemoryLimiter{
		rule:    rule,
		rate:    float64(rule.Limit) / rule.Window.Seconds(),
		burst:   float64(rule.Limit),
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Allow consumes one token from key's bucket.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	b, ok := m.buckets[key]
	if !ok {
		m.buckets[key] = &bucket{tokens: m.burst - 1, lastAccess: now}
		return Result{Allowed: true, Limit: m.rule.Limit, Remaining: int(m.burst - 1), ResetAt: now.Add(m.rule.Window)}, nil
	}

	elapsed := now.Sub(b.lastAccess).Seconds()
	b.tokens += elapsed * m.rate
	if b.tokens > m.burst {
		b.tokens = m.burst
	}
	b.lastAccess = now

	if b.tokens < 1 {
		return Result{Allowed: false, Limit: m.rule.Limit, Remaining: 0, ResetAt: now.Add(m.rule.Window)}, nil
	}
	b.tokens--
	return Result{Allowed: true, Limit: m.rule.Limit, Remaining: int(b.tokens), ResetAt: now.Add(m.rule.Window)}, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

func (m *MemoryLimiter) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-staleThreshold)
	for key, b := range m.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
