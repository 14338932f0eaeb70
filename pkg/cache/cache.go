// Package cache keeps raw region downloads so repeated topology runs over
// the same area do not hit the Overpass API again.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/NERVsystems/osmtopology/pkg/geo"
	"github.com/NERVsystems/osmtopology/pkg/monitoring"
	"github.com/NERVsystems/osmtopology/pkg/tracing"
)

// Defaults for NewRegionCache
const (
	DefaultMaxItems = 64
	DefaultTTL      = 15 * time.Minute
)

// ErrMiss is returned by a Store that does not hold the key
var ErrMiss = errors.New("cache miss")

// Store is a shared second-level cache, typically Redis
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// Options configure a RegionCache
type Options struct {
	MaxItems int
	TTL      time.Duration
	// Store is optional. When set, misses in memory are looked up there
	// and every Put is written through.
	Store  Store
	Logger *slog.Logger
}

// RegionCache is a two-level cache of raw region payloads keyed by
// bounding box: an in-memory LRU with expiry, backed by an optional
// shared Store.
type RegionCache struct {
	mem    *expirable.LRU[string, []byte]
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewRegionCache creates a region cache
func NewRegionCache(opts Options) *RegionCache {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RegionCache{
		mem:    expirable.NewLRU[string, []byte](opts.MaxItems, nil, opts.TTL),
		store:  opts.Store,
		ttl:    opts.TTL,
		logger: logger.With("component", "region_cache"),
	}
}

// Key returns the cache key of a region
func Key(bbox geo.BoundingBox) string {
	return "osmtopo:region:" + bbox.Key()
}

// Get returns the cached payload of a region. A Store failure is logged
// and treated as a miss.
func (c *RegionCache) Get(ctx context.Context, bbox geo.BoundingBox) ([]byte, bool) {
	key := Key(bbox)

	if data, ok := c.mem.Get(key); ok {
		monitoring.RecordCacheHit(tracing.CacheTypeRegion)
		tracing.AddEvent(ctx, "cache_hit")
		return data, true
	}
	monitoring.RecordCacheMiss(tracing.CacheTypeRegion)

	if c.store == nil {
		return nil, false
	}

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		monitoring.RecordCacheHit(tracing.CacheTypeRedis)
		c.mem.Add(key, data)
		monitoring.UpdateCacheSize(tracing.CacheTypeRegion, c.mem.Len())
		return data, true
	case errors.Is(err, ErrMiss):
		monitoring.RecordCacheMiss(tracing.CacheTypeRedis)
	default:
		monitoring.RecordCacheMiss(tracing.CacheTypeRedis)
		monitoring.RecordError("cache", "store_get")
		c.logger.Warn("shared cache lookup failed", "key", key, "error", err)
	}
	return nil, false
}

// Put stores the payload of a region in memory and in the Store
func (c *RegionCache) Put(ctx context.Context, bbox geo.BoundingBox, data []byte) {
	key := Key(bbox)
	c.mem.Add(key, data)
	monitoring.UpdateCacheSize(tracing.CacheTypeRegion, c.mem.Len())

	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		monitoring.RecordError("cache", "store_set")
		c.logger.Warn("shared cache write failed", "key", key, "error", err)
	}
}

// Len returns the number of regions held in memory
func (c *RegionCache) Len() int {
	return c.mem.Len()
}

// Purge empties the in-memory level
func (c *RegionCache) Purge() {
	c.mem.Purge()
	monitoring.UpdateCacheSize(tracing.CacheTypeRegion, 0)
}

// CheckStore pings the shared store. It succeeds when there is none.
func (c *RegionCache) CheckStore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("shared cache unreachable: %w", err)
	}
	return nil
}
