package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rafaeljc/gatekeeper/internal/logger"
	"github.com/rafaeljc/gatekeeper/internal/observability"
	"github.com/rafaeljc/gatekeeper/internal/store"
)

// Loader reads a flag from the registry on a cache miss.
type Loader func(ctx context.Context, key string) (*store.Flag, error)

// FlagCache is the read-through flag cache shared by the registry and the evaluation
// service of one instance.
//
// Writes evict locally before publishing, so the writing instance never serves its own
// stale copy while the broadcast is in flight. Other instances evict on receipt.
type FlagCache struct {
	local          *MemoryCache
	broadcaster    Broadcaster
	publishTimeout time.Duration
	logger         *slog.Logger

	// epoch moves on every eviction. A load that started before an eviction must not
	// repopulate the cache with what it read.
	epoch atomic.Uint64
	// fillMu makes the epoch check and the fill atomic with respect to evictions.
	fillMu sync.Mutex
}

// NewFlagCache wires the local cache to a broadcaster. Use NopBroadcaster when
// broadcasting is disabled.
func NewFlagCache(log *slog.Logger, local *MemoryCache, broadcaster Broadcaster, publishTimeout time.Duration) *FlagCache {
	if local == nil {
		panic("cache: memory cache cannot be nil")
	}
	if broadcaster == nil {
		panic("cache: broadcaster cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &FlagCache{
		local:          local,
		broadcaster:    broadcaster,
		publishTimeout: publishTimeout,
		logger:         log,
	}
}

// GetOrLoad returns the cached flag for key, or calls load and caches its result.
// Loader errors (including store.ErrNotFound) are returned as-is and never cached.
func (c *FlagCache) GetOrLoad(ctx context.Context, key string, load Loader) (*store.Flag, error) {
	if f, ok := c.local.Get(key); ok {
		return f, nil
	}

	before := c.epoch.Load()
	f, err := load(ctx, key)
	if err != nil {
		return nil, err
	}

	c.fillMu.Lock()
	fresh := c.epoch.Load() == before
	if fresh {
		c.local.Set(key, f)
	}
	c.fillMu.Unlock()

	if !fresh {
		observability.CacheStaleLoadsDropped.Inc()
	}
	return f, nil
}

// Invalidate evicts key locally and tells the other instances to do the same.
// A failed publish is logged and counted; it never fails the caller because the TTL
// still bounds staleness elsewhere.
func (c *FlagCache) Invalidate(ctx context.Context, key string) {
	c.Evict(key)

	pubCtx := ctx
	if c.publishTimeout > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), c.publishTimeout)
		defer cancel()
	}

	if err := c.broadcaster.Publish(pubCtx, key); err != nil {
		observability.InvalidationsPublished.WithLabelValues("error").Inc()
		logger.FromContextOr(ctx, c.logger).Warn("failed to broadcast invalidation",
			slog.String("flag_key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	observability.InvalidationsPublished.WithLabelValues("success").Inc()
}

// Evict drops key from this instance only. The subscriber calls it for remote writes.
func (c *FlagCache) Evict(key string) {
	c.fillMu.Lock()
	defer c.fillMu.Unlock()
	c.epoch.Add(1)
	c.local.Delete(key)
}

// Purge drops everything from this instance. Used after the subscriber lost its
// connection and may have missed invalidations.
func (c *FlagCache) Purge() {
	c.fillMu.Lock()
	defer c.fillMu.Unlock()
	c.epoch.Add(1)
	c.local.Purge()
}
