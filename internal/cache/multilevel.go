package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Cache is the contract services depend on.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
	Health(ctx context.Context) error
	Stats() map[string]interface{}
	Close() error
}

type Options struct {
	// L1MaxTTL caps how long a process may serve an entry from memory.
	L1MaxTTL   time.Duration
	MaxEntries int
	Breaker    *CircuitBreakerConfig
}

// MultiLevelCache layers process memory (L1) over an optional Redis (L2).
// Redis calls go through a circuit breaker; when it is open the cache
// degrades to L1 only.
type MultiLevelCache struct {
	l1       *MemoryCache
	l2       *RedisCache
	breaker  *CircuitBreaker
	l1MaxTTL time.Duration
	metrics  *CacheMetrics
}

func NewMultiLevelCache(redisCache *RedisCache, opts Options) *MultiLevelCache {
	if opts.L1MaxTTL <= 0 {
		opts.L1MaxTTL = 30 * time.Second
	}

	return &MultiLevelCache{
		l1:       NewMemoryCache(opts.MaxEntries),
		l2:       redisCache,
		breaker:  NewCircuitBreaker(opts.Breaker),
		l1MaxTTL: opts.L1MaxTTL,
		metrics:  NewCacheMetrics(),
	}
}

func (c *MultiLevelCache) Metrics() *CacheMetrics {
	return c.metrics
}

func (c *MultiLevelCache) BreakerState() CircuitBreakerState {
	return c.breaker.State()
}

func (c *MultiLevelCache) l1TTL(ttl time.Duration) time.Duration {
	if ttl > c.l1MaxTTL {
		return c.l1MaxTTL
	}
	return ttl
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.metrics.RecordError()
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	c.l1.Set(key, data, c.l1TTL(ttl))
	c.metrics.RecordSet()

	if c.l2 == nil {
		return nil
	}

	err = c.breaker.Execute(func() error {
		return c.l2.SetBytes(ctx, key, data, ttl)
	})
	if err != nil {
		c.metrics.RecordError()
		return err
	}
	return nil
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, dest interface{}) error {
	if data, ok := c.l1.Get(key); ok {
		c.metrics.RecordL1Hit()
		return decode(data, dest)
	}

	if c.l2 == nil {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	var data []byte
	err := c.breaker.Execute(func() error {
		var getErr error
		data, getErr = c.l2.GetBytes(ctx, key)
		if errors.Is(getErr, ErrCacheMiss) {
			return nil
		}
		return getErr
	})
	if err != nil {
		c.metrics.RecordError()
		return fmt.Errorf("%w: %v", ErrCacheDown, err)
	}
	if data == nil {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	c.metrics.RecordL2Hit()
	c.l1.Set(key, data, c.l1MaxTTL)
	return decode(data, dest)
}

func (c *MultiLevelCache) Delete(ctx context.Context, keys ...string) error {
	c.l1.Delete(keys...)
	c.metrics.RecordDelete()

	if c.l2 == nil {
		return nil
	}

	err := c.breaker.Execute(func() error {
		return c.l2.Delete(ctx, keys...)
	})
	if err != nil {
		c.metrics.RecordError()
	}
	return err
}

func (c *MultiLevelCache) DeletePattern(ctx context.Context, pattern string) error {
	c.l1.DeletePattern(pattern)
	c.metrics.RecordDelete()

	if c.l2 == nil {
		return nil
	}

	err := c.breaker.Execute(func() error {
		return c.l2.DeletePattern(ctx, pattern)
	})
	if err != nil {
		c.metrics.RecordError()
	}
	return err
}

func (c *MultiLevelCache) Health(ctx context.Context) error {
	if c.l2 == nil {
		return nil
	}
	if c.breaker.State() == CircuitBreakerOpen {
		return ErrCircuitBreakerOpen
	}
	return c.l2.Health(ctx)
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1":       c.l1.Stats(),
		"breaker":  c.breaker.Stats(),
		"metrics":  c.metrics.Snapshot(),
		"hit_rate": c.metrics.HitRate(),
	}

	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}

	return stats
}

func (c *MultiLevelCache) Close() error {
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}

func decode(data []byte, dest interface{}) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return nil
}
