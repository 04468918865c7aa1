package geocode

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"motofrete/internal/geo"
)

// Cache is a read-through coordinate cache keyed by normalized address.
// Concurrent readers are safe; writes are last-writer-wins.
type Cache interface {
	Get(ctx context.Context, key string) (geo.Point, bool)
	Set(ctx context.Context, key string, p geo.Point)
}

// MemoryCache is the in-process default.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[string]geo.Point
}

// NewMemoryCache builds an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string]geo.Point)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (geo.Point, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.m[key]
	return p, ok
}

func (c *MemoryCache) Set(_ context.Context, key string, p geo.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = p
}

// Len reports the number of cached addresses.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// redisTTL keeps entries long enough to survive a dinner rush cycle;
// addresses do not move, so a week is conservative.
const redisTTL = 7 * 24 * time.Hour

// RedisCache shares geocoding results across processes. Redis failures
// degrade to cache misses, never to request failures.
type RedisCache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisCache connects to the given redis URL.
func NewRedisCache(redisURL string, logger *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	return &RedisCache{rdb: redis.NewClient(opts), logger: logger}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (geo.Point, bool) {
	val, err := c.rdb.Get(ctx, "geocode:"+key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("redis geocode get failed", zap.Error(err))
		}
		return geo.Point{}, false
	}
	var p geo.Point
	if _, err := fmt.Sscanf(strings.TrimSpace(val), "%f,%f", &p.Lat, &p.Lng); err != nil {
		return geo.Point{}, false
	}
	return p, true
}

func (c *RedisCache) Set(ctx context.Context, key string, p geo.Point) {
	val := fmt.Sprintf("%f,%f", p.Lat, p.Lng)
	if err := c.rdb.Set(ctx, "geocode:"+key, val, redisTTL).Err(); err != nil {
		c.logger.Debug("redis geocode set failed", zap.Error(err))
	}
}

// Close releases the redis connection.
func (c *RedisCache) Close() error { return c.rdb.Close() }
