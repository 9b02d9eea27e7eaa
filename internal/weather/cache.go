package weather

import (
	"context"
	"sync"
	"time"

	"fieldserve/internal/metrics"
	"fieldserve/internal/model"
)

// Cache absorbs repeated forecast lookups for the same rounded
// coordinates within a bounded TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]model.ForecastPoint, bool)
	Put(ctx context.Context, key string, pts []model.ForecastPoint)
}

const DefaultTTL = 15 * time.Minute

// MemoryCache is the default single-process cache.
type MemoryCache struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]memEntry
	now func() time.Time
}

type memEntry struct {
	pts     []model.ForecastPoint
	expires time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{ttl: ttl, m: map[string]memEntry{}, now: time.Now}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]model.ForecastPoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || c.now().After(e.expires) {
		delete(c.m, key)
		metrics.ForecastCacheMisses.Inc()
		return nil, false
	}
	metrics.ForecastCacheHits.Inc()
	return e.pts, true
}

func (c *MemoryCache) Put(ctx context.Context, key string, pts []model.ForecastPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = memEntry{pts: pts, expires: c.now().Add(c.ttl)}
}
