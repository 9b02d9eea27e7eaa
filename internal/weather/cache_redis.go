package weather

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"fieldserve/internal/metrics"
	"fieldserve/internal/model"
)

// RedisCache shares the forecast cache across instances. Selected when
// REDIS_URL is set.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{rdb: redis.NewClient(opt), ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]model.ForecastPoint, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		metrics.ForecastCacheMisses.Inc()
		return nil, false
	}
	var pts []model.ForecastPoint
	if err := json.Unmarshal(data, &pts); err != nil {
		metrics.ForecastCacheMisses.Inc()
		return nil, false
	}
	metrics.ForecastCacheHits.Inc()
	return pts, true
}

func (c *RedisCache) Put(ctx context.Context, key string, pts []model.ForecastPoint) {
	data, err := json.Marshal(pts)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, key, data, c.ttl).Err()
}
