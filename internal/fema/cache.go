package fema

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how stale a cached status may be.
const DefaultCacheTTL = 5 * time.Minute

// statusKeyPrefix namespaces cached statuses in Redis.
const statusKeyPrefix = "reliefpipe:status:"

// Cache stores recently fetched application statuses.
type Cache interface {
	Get(ctx context.Context, applicationID string) (string, bool, error)
	Set(ctx context.Context, applicationID, status string) error
}

// RedisCache is a Cache backed by Redis string keys with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing Redis client. A non-positive ttl uses DefaultCacheTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached status, with ok false on a cache miss.
func (c *RedisCache) Get(ctx context.Context, applicationID string) (string, bool, error) {
	val, err := c.client.Get(ctx, statusKeyPrefix+applicationID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set caches status for the configured TTL.
func (c *RedisCache) Set(ctx context.Context, applicationID, status string) error {
	return c.client.Set(ctx, statusKeyPrefix+applicationID, status, c.ttl).Err()
}
