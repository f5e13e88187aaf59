package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/gatekeeper/internal/observability"
	"github.com/rafaeljc/gatekeeper/internal/store"
)

// MemoryCache is the per-instance flag cache, an otter (S3-FIFO) cache with a fixed
// TTL. The TTL is the hard staleness bound when invalidation messages are lost.
//
// Cached flags are shared between readers and must be treated as read-only.
type MemoryCache struct {
	store otter.Cache[string, *store.Flag]
}

// NewMemoryCache builds a cache holding at most capacity flags for ttl each.
func NewMemoryCache(capacity int, ttl time.Duration) (*MemoryCache, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}

	c, err := otter.MustBuilder[string, *store.Flag](capacity).
		CollectStats().
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build memory cache: %w", err)
	}

	return &MemoryCache{store: c}, nil
}

// Get records a hit or miss for every lookup.
func (c *MemoryCache) Get(key string) (*store.Flag, bool) {
	f, ok := c.store.Get(key)
	if ok {
		observability.CacheHits.Inc()
	} else {
		observability.CacheMisses.Inc()
	}
	return f, ok
}

// Set reports false when otter rejected the write under contention.
func (c *MemoryCache) Set(key string, f *store.Flag) bool {
	return c.store.Set(key, f)
}

func (c *MemoryCache) Delete(key string) {
	c.store.Delete(key)
}

// Purge drops every entry.
func (c *MemoryCache) Purge() {
	c.store.Clear()
	observability.CachePurges.Inc()
}

func (c *MemoryCache) Len() int {
	return c.store.Size()
}

// Close stops otter's background goroutines.
func (c *MemoryCache) Close() {
	c.store.Close()
}

// RunMetricsCollector exports otter's internal stats every interval until ctx is done.
// otter keeps cumulative counts, so only the growth since the previous tick is added.
func (c *MemoryCache) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastEvicted, lastRejected int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.store.Stats()

			observability.CacheItems.Set(float64(c.store.Size()))

			if evicted := stats.EvictedCount(); evicted > lastEvicted {
				observability.CacheEvictions.Add(float64(evicted - lastEvicted))
				lastEvicted = evicted
			}
			if rejected := stats.RejectedSets(); rejected > lastRejected {
				observability.CacheRejected.Add(float64(rejected - lastRejected))
				lastRejected = rejected
			}
		}
	}
}
