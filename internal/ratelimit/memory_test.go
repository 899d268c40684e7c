package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closeLimiter(t *testing.T, m *MemoryLimiter) {
	t.Helper()
	require.NoError(t, m.Close())
}

func TestMemoryLimiter_AllowsUpToBurst(t *testing.T) {
	m := NewMemoryLimiter(Rule{Prefix: "p", Limit: 5, Window: time.Second})
	defer closeLimiter(t, m)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		res, err := m.Allow(ctx, "k1")
		require.NoError(t, err)
		assert.Truef(t, res.Allowed, "request %d should be allowed within burst", i)
	}
}

func TestMemoryLimiter_DeniesAfterBurstExhausted(t *testing.T) {
	m := NewMemoryLimiter(Rule{Prefix: "p", Limit: 3, Window: time.Second})
	defer closeLimiter(t, m)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := m.Allow(ctx, "k1")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	res, err := m.Allow(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestMemoryLimiter_RefillsOverTime(t *testing.T) {
	// limit=2 per 2ms window means rate = 1000 tokens/sec, i.e. 1 per ms.
	m := NewMemoryLimiter(Rule{Prefix: "p", Limit: 2, Window: 2 * time.Millisecond})
	defer closeLimiter(t, m)

	ctx := context.Background()
	_, _ = m.Allow(ctx, "k1")
	_, _ = m.Allow(ctx, "k1")

	res, err := m.Allow(ctx, "k1")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	time.Sleep(5 * time.Millisecond)

	res, err = m.Allow(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	m := NewMemoryLimiter(Rule{Prefix: "p", Limit: 1, Window: time.Second})
	defer closeLimiter(t, m)

	ctx := context.Background()
	res, _ := m.Allow(ctx, "a")
	require.True(t, res.Allowed)
	res, _ = m.Allow(ctx, "a")
	require.False(t, res.Allowed)

	res, _ = m.Allow(ctx, "b")
	assert.True(t, res.Allowed)
}

func TestMemoryLimiter_ConcurrentRequestsNeverExceedBurst(t *testing.T) {
	m := NewMemoryLimiter(Rule{Prefix: "p", Limit: 50, Window: time.Second})
	defer closeLimiter(t, m)

	ctx := context.Background()
	var wg sync.WaitGroup
	var allowedCount int64
	var mu sync.Mutex

	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				res, err := m.Allow(ctx, "shared")
				if err == nil && res.Allowed {
					mu.Lock()
					allowedCount++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, allowedCount, int64(50))
}
