package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadger(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTieredReadThroughAndPromotion(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemoryCache(100, time.Minute)
	l3 := newTestBadger(t)
	tiered := NewTieredCache(l1, nil, l3)

	// Seed only the slow tier
	require.NoError(t, l3.Set(ctx, "k", []byte("v"), 0))

	val, ok, err := tiered.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)

	// The hit was promoted into L1
	promoted, ok, err := l1.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), promoted)

	stats := tiered.Stats()
	assert.Equal(t, int64(1), stats.L1Misses)
	assert.Equal(t, int64(1), stats.L3Hits)

	// Second read is served from L1
	_, ok, err = tiered.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), tiered.Stats().L1Hits)
}

func TestTieredSetWritesEveryTier(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemoryCache(100, time.Minute)
	l3 := newTestBadger(t)
	tiered := NewTieredCache(l1, nil, l3)

	require.NoError(t, tiered.Set(ctx, "k", []byte("v"), time.Minute))

	_, ok, _ := l1.Get(ctx, "k")
	assert.True(t, ok)
	_, ok, _ = l3.Get(ctx, "k")
	assert.True(t, ok)

	require.NoError(t, tiered.Delete(ctx, "k"))
	_, ok, _ = l1.Get(ctx, "k")
	assert.False(t, ok)
	_, ok, _ = l3.Get(ctx, "k")
	assert.False(t, ok)
}

func TestTieredWithNilTiers(t *testing.T) {
	ctx := context.Background()
	tiered := NewTieredCache(NewMemoryCache(10, time.Minute), nil, nil)

	_, ok, err := tiered.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tiered.Set(ctx, "k", []byte("v"), 0))
	val, ok, err := tiered.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)
}

func TestGetOrComputeSharesOneCompute(t *testing.T) {
	ctx := context.Background()
	tiered := NewTieredCache(NewMemoryCache(10, time.Minute), nil, nil)

	var computes int64
	gate := make(chan struct{})
	compute := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt64(&computes, 1)
		<-gate
		return []byte("expensive"), nil
	}

	const callers = 8
	results := make([][]byte, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			val, err := tiered.GetOrCompute(ctx, "k", time.Minute, compute)
			assert.NoError(t, err)
			results[i] = val
		}(i)
	}

	// Let the callers pile up on the in-flight computation before it
	// completes.
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&computes))
	for i := 0; i < callers; i++ {
		assert.Equal(t, []byte("expensive"), results[i])
	}

	// The computed value was stored, so a later call hits the cache.
	val, err := tiered.GetOrCompute(ctx, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, []byte("expensive"), val)
	assert.Equal(t, int64(1), atomic.LoadInt64(&computes))
}

func TestMemoryCacheEvictsLRU(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Minute)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))

	// Touch "a" so "b" is the eviction candidate
	_, _, _ = c.Get(ctx, "a")

	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))
	assert.Equal(t, 2, c.Len())

	_, ok, _ := c.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry evicted")
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Minute)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, _ := c.Get(ctx, "k")
	assert.False(t, ok)
}
