package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/NERVsystems/osmtopology/pkg/geo"
	"github.com/NERVsystems/osmtopology/pkg/monitoring"
	"github.com/NERVsystems/osmtopology/pkg/tracing"
)

type fakeStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	failGet error
	failSet error
	gets    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.failGet != nil {
		return nil, s.failGet
	}
	v, ok := s.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (s *fakeStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet != nil {
		return s.failSet
	}
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *fakeStore) Ping(context.Context) error { return s.failGet }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var berlin = geo.BoundingBox{MinLat: 52.51, MinLon: 13.37, MaxLat: 52.52, MaxLon: 13.38}

func TestRegionCacheMemory(t *testing.T) {
	c := NewRegionCache(Options{Logger: quietLogger()})
	ctx := context.Background()

	if _, ok := c.Get(ctx, berlin); ok {
		t.Fatal("expected a miss on an empty cache")
	}

	c.Put(ctx, berlin, []byte("<osm/>"))
	got, ok := c.Get(ctx, berlin)
	if !ok || string(got) != "<osm/>" {
		t.Fatalf("expected cached payload, got %q (ok=%v)", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 cached region, got %d", c.Len())
	}

	c.Purge()
	if _, ok := c.Get(ctx, berlin); ok {
		t.Error("expected a miss after Purge")
	}
}

func TestRegionCacheEviction(t *testing.T) {
	c := NewRegionCache(Options{MaxItems: 2, Logger: quietLogger()})
	ctx := context.Background()

	boxes := []geo.BoundingBox{
		berlin,
		{MinLat: 48.85, MinLon: 2.34, MaxLat: 48.86, MaxLon: 2.35},
		{MinLat: 51.50, MinLon: -0.13, MaxLat: 51.51, MaxLon: -0.12},
	}
	for _, b := range boxes {
		c.Put(ctx, b, []byte(b.Key()))
	}

	if c.Len() != 2 {
		t.Fatalf("expected 2 cached regions, got %d", c.Len())
	}
	if _, ok := c.Get(ctx, boxes[0]); ok {
		t.Error("expected the oldest region to be evicted")
	}
}

func TestRegionCacheExpiry(t *testing.T) {
	c := NewRegionCache(Options{TTL: 30 * time.Millisecond, Logger: quietLogger()})
	ctx := context.Background()

	c.Put(ctx, berlin, []byte("data"))
	time.Sleep(80 * time.Millisecond)

	if _, ok := c.Get(ctx, berlin); ok {
		t.Error("expected the region to expire")
	}
}

func TestRegionCacheStore(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	writer := NewRegionCache(Options{Store: store, TTL: time.Hour, Logger: quietLogger()})
	writer.Put(ctx, berlin, []byte("shared"))

	if store.ttls[Key(berlin)] != time.Hour {
		t.Errorf("expected the store entry to carry the cache TTL, got %v", store.ttls[Key(berlin)])
	}

	before := testutil.ToFloat64(monitoring.CacheHits.WithLabelValues(tracing.CacheTypeRedis))

	// a second process sees the region through the store
	reader := NewRegionCache(Options{Store: store, Logger: quietLogger()})
	got, ok := reader.Get(ctx, berlin)
	if !ok || string(got) != "shared" {
		t.Fatalf("expected payload from the store, got %q (ok=%v)", got, ok)
	}
	if reader.Len() != 1 {
		t.Error("expected the store hit to be kept in memory")
	}
	if _, ok := reader.Get(ctx, berlin); !ok {
		t.Fatal("expected a memory hit")
	}
	if store.gets != 1 {
		t.Errorf("expected a single store lookup, got %d", store.gets)
	}

	if got := testutil.ToFloat64(monitoring.CacheHits.WithLabelValues(tracing.CacheTypeRedis)) - before; got != 1 {
		t.Errorf("expected 1 shared cache hit recorded, got %v", got)
	}
}

func TestRegionCacheStoreFailures(t *testing.T) {
	store := newFakeStore()
	store.failGet = errors.New("connection refused")
	store.failSet = errors.New("connection refused")
	ctx := context.Background()

	c := NewRegionCache(Options{Store: store, Logger: quietLogger()})

	if _, ok := c.Get(ctx, berlin); ok {
		t.Error("a failing store must behave like a miss")
	}

	c.Put(ctx, berlin, []byte("data"))
	if _, ok := c.Get(ctx, berlin); !ok {
		t.Error("a failing store must not prevent in-memory caching")
	}

	if err := c.CheckStore(ctx); err == nil {
		t.Error("expected CheckStore to report the failing store")
	}
	if err := NewRegionCache(Options{}).CheckStore(ctx); err != nil {
		t.Errorf("expected CheckStore without a store to succeed, got %v", err)
	}
}

func TestOpenRedisWithoutAddress(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	if s := OpenRedisFromEnv(); s != nil {
		t.Error("expected no store without REDIS_ADDR")
	}
}
