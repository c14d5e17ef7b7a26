package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TieredCache composes up to three tiers with read-through semantics:
// L1 in-process, L2 Redis, L3 Badger. Reads promote hits into the
// faster tiers; writes go to every configured tier. Any tier may be nil.
type TieredCache struct {
	l1     *MemoryCache
	l2     *RedisCache
	l3     *BadgerStore
	logger *zap.Logger
	group  singleflight.Group

	l1Hits, l1Misses int64
	l2Hits, l2Misses int64
	l3Hits, l3Misses int64
}

// TieredCacheOption is a functional option for configuring the cache
type TieredCacheOption func(*TieredCache)

// WithLogger sets the logger for the cache
func WithLogger(logger *zap.Logger) TieredCacheOption {
	return func(c *TieredCache) {
		c.logger = logger
	}
}

// NewTieredCache creates the tiered cache from the configured tiers
func NewTieredCache(l1 *MemoryCache, l2 *RedisCache, l3 *BadgerStore, opts ...TieredCacheOption) *TieredCache {
	c := &TieredCache{
		l1:     l1,
		l2:     l2,
		l3:     l3,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get reads through the tiers, promoting hits upward
func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.l1 != nil {
		if val, ok, _ := c.l1.Get(ctx, key); ok {
			atomic.AddInt64(&c.l1Hits, 1)
			return val, true, nil
		}
		atomic.AddInt64(&c.l1Misses, 1)
	}
	if c.l2 != nil {
		val, ok, err := c.l2.Get(ctx, key)
		if err != nil {
			// A degraded shared tier must not fail reads; fall through.
			c.logger.Warn("L2 cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			atomic.AddInt64(&c.l2Hits, 1)
			c.promote(ctx, key, val, c.l1 != nil, false)
			return val, true, nil
		} else {
			atomic.AddInt64(&c.l2Misses, 1)
		}
	}
	if c.l3 != nil {
		val, ok, err := c.l3.Get(ctx, key)
		if err != nil {
			c.logger.Warn("L3 cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			atomic.AddInt64(&c.l3Hits, 1)
			c.promote(ctx, key, val, c.l1 != nil, c.l2 != nil)
			return val, true, nil
		} else {
			atomic.AddInt64(&c.l3Misses, 1)
		}
	}
	return nil, false, nil
}

// Set writes the value to every configured tier
func (c *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.l1 != nil {
		_ = c.l1.Set(ctx, key, value, ttl)
	}
	if c.l2 != nil {
		if err := c.l2.Set(ctx, key, value, ttl); err != nil {
			c.logger.Warn("L2 cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	if c.l3 != nil {
		if err := c.l3.Set(ctx, key, value, ttl); err != nil {
			c.logger.Warn("L3 cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// Delete removes the key from every tier
func (c *TieredCache) Delete(ctx context.Context, key string) error {
	if c.l1 != nil {
		_ = c.l1.Delete(ctx, key)
	}
	if c.l2 != nil {
		if err := c.l2.Delete(ctx, key); err != nil {
			return err
		}
	}
	if c.l3 != nil {
		if err := c.l3.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// GetOrCompute returns the cached value for key, computing and storing
// it on a miss. Concurrent callers for the same key share one compute:
// the singleflight group guarantees at most one in-flight computation
// per key in this process.
func (c *TieredCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if val, ok, err := c.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return val, nil
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check: another flight may have filled the key while we waited.
		if val, ok, _ := c.Get(ctx, key); ok {
			return val, nil
		}
		computed, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		_ = c.Set(ctx, key, computed, ttl)
		return computed, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]byte), nil
}

// Stats returns a snapshot of the hit/miss counters
func (c *TieredCache) Stats() Stats {
	return Stats{
		L1Hits:   atomic.LoadInt64(&c.l1Hits),
		L1Misses: atomic.LoadInt64(&c.l1Misses),
		L2Hits:   atomic.LoadInt64(&c.l2Hits),
		L2Misses: atomic.LoadInt64(&c.l2Misses),
		L3Hits:   atomic.LoadInt64(&c.l3Hits),
		L3Misses: atomic.LoadInt64(&c.l3Misses),
	}
}

func (c *TieredCache) promote(ctx context.Context, key string, val []byte, toL1, toL2 bool) {
	if toL1 {
		_ = c.l1.Set(ctx, key, val, 0)
	}
	if toL2 {
		if err := c.l2.Set(ctx, key, val, 0); err != nil {
			c.logger.Debug("L2 promote failed", zap.String("key", key), zap.Error(err))
		}
	}
}
