package extractor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// cacheKeyPrefix namespaces extraction cache entries in Redis.
const cacheKeyPrefix = "snowlink:extract:"

// maxMemoryEntries bounds the in-process cache tier.
const maxMemoryEntries = 1000

// Cache stores extraction results keyed by document fingerprint. A hit means
// the same content was already extracted; extraction is skipped entirely.
type Cache interface {
	Get(ctx context.Context, fingerprint string) ([]models.SchemaFact, bool)
	Set(ctx context.Context, fingerprint string, facts []models.SchemaFact)
}

// NewCache returns a two-tier cache when a Redis client is available, or the
// in-process tier alone when redisClient is nil.
func NewCache(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) Cache {
	memory := newMemoryCache()
	if redisClient == nil {
		return memory
	}
	return &tieredCache{
		memory: memory,
		redis:  redisClient,
		ttl:    ttl,
		logger: logger.Named("extract_cache"),
	}
}

// memoryCache is a bounded FIFO map. Eviction order does not matter much
// here; fingerprints are content hashes, so stale entries are simply unused.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]models.SchemaFact
	order   []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		entries: make(map[string][]models.SchemaFact),
	}
}

func (c *memoryCache) Get(_ context.Context, fingerprint string) ([]models.SchemaFact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	facts, ok := c.entries[fingerprint]
	return facts, ok
}

func (c *memoryCache) Set(_ context.Context, fingerprint string, facts []models.SchemaFact) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[fingerprint]; !exists {
		c.order = append(c.order, fingerprint)
	}
	c.entries[fingerprint] = facts

	for len(c.order) > maxMemoryEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// tieredCache fronts Redis with the in-process tier. Redis failures are
// logged and treated as misses; the cache never fails the pipeline.
type tieredCache struct {
	memory *memoryCache
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func (c *tieredCache) Get(ctx context.Context, fingerprint string) ([]models.SchemaFact, bool) {
	if facts, ok := c.memory.Get(ctx, fingerprint); ok {
		return facts, true
	}

	raw, err := c.redis.Get(ctx, cacheKeyPrefix+fingerprint).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Redis cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var facts []models.SchemaFact
	if err := json.Unmarshal(raw, &facts); err != nil {
		c.logger.Warn("Corrupt cache entry, discarding",
			zap.String("fingerprint", fingerprint),
			zap.Error(err))
		return nil, false
	}

	c.memory.Set(ctx, fingerprint, facts)
	return facts, true
}

func (c *tieredCache) Set(ctx context.Context, fingerprint string, facts []models.SchemaFact) {
	c.memory.Set(ctx, fingerprint, facts)

	raw, err := json.Marshal(facts)
	if err != nil {
		c.logger.Warn("Failed to marshal cache entry", zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, cacheKeyPrefix+fingerprint, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Redis cache write failed", zap.Error(err))
	}
}
