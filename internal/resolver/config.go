package resolver

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	CacheBackend string        `envconfig:"RESOLVER_CACHE_BACKEND" default:"memory"`
	CacheTTL     time.Duration `envconfig:"RESOLVER_CACHE_TTL" default:"24h"`
	// SnapshotTTL of 0 keeps fetched collections for the resolver's lifetime.
	SnapshotTTL time.Duration `envconfig:"RESOLVER_SNAPSHOT_TTL" default:"5m"`
}

// NewCache builds the configured cache. The redis backend needs a client.
func (c Config) NewCache(rdb redis.Cmdable, keyPrefix string) (Cache, error) {
	switch c.CacheBackend {
	case "", CacheMemory:
		return NewMemoryCache(), nil
	case CacheRedis:
		if rdb == nil {
			return nil, errors.New("redis cache backend selected but REDIS_URL is not set")
		}
		return NewRedisCache(rdb, keyPrefix, c.CacheTTL), nil
	default:
		return nil, fmt.Errorf("unknown resolver cache backend %q", c.CacheBackend)
	}
}
