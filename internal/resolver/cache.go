package resolver

import (
	"context"
	"errors"
	"sync"
	"time"

	errx "github.com/eflow-agent/server/internal/core/error"
	logx "github.com/eflow-agent/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Cache remembers resolved identifiers per kind and normalized term.
type Cache interface {
	Get(ctx context.Context, kind Kind, term string) (string, bool)
	// Put stores id only if the term has no entry yet. It returns the identifier
	// now stored and whether this call stored it.
	Put(ctx context.Context, kind Kind, term, id string) (string, bool)
}

// MemoryCache is an unbounded in-process cache, safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]string)}
}

func memoryKey(kind Kind, term string) string {
	return string(kind) + "\x00" + NormalizeTerm(term)
}

func (c *MemoryCache) Get(_ context.Context, kind Kind, term string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.entries[memoryKey(kind, term)]
	return id, ok
}

func (c *MemoryCache) Put(_ context.Context, kind Kind, term, id string) (string, bool) {
	key := memoryKey(kind, term)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing, false
	}
	c.entries[key] = id
	return id, true
}

// RedisCache shares resolutions across replicas. Entries expire after ttl
// (0 keeps them forever). Redis failures degrade to cache misses.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client redis.Cmdable, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(kind Kind, term string) string {
	return c.prefix + "resolve:" + string(kind) + ":" + NormalizeTerm(term)
}

func (c *RedisCache) Get(ctx context.Context, kind Kind, term string) (string, bool) {
	id, err := c.client.Get(ctx, c.key(kind, term)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logx.Warn().Err(errx.WrapRedis(err)).Str("kind", string(kind)).Msg("Resolver cache read failed")
		}
		return "", false
	}
	return id, true
}

func (c *RedisCache) Put(ctx context.Context, kind Kind, term, id string) (string, bool) {
	key := c.key(kind, term)
	stored, err := c.client.SetNX(ctx, key, id, c.ttl).Result()
	if err != nil {
		logx.Warn().Err(errx.WrapRedis(err)).Str("kind", string(kind)).Msg("Resolver cache write failed")
		return id, false
	}
	if stored {
		return id, true
	}
	if existing, ok := c.Get(ctx, kind, term); ok {
		return existing, false
	}
	return id, false
}
