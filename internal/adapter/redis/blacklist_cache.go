package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/tedkulp/n3rdbot/internal/adapter/metrics"
	"github.com/tedkulp/n3rdbot/internal/domain"
)

const (
	blacklistCacheKey        = "blacklist_cache:active"
	DefaultBlacklistCacheTTL = 15 * time.Minute
)

// BlacklistCache serves the active blacklist through three layers: an
// in-process copy, a shared Redis copy and PostgreSQL. Moderation tolerates
// a view up to the Redis TTL old.
type BlacklistCache struct {
	rdb     goredis.Cmdable
	repo    domain.BlacklistRepository
	ttl     time.Duration
	mem     *memoryCache
	loads   singleflight.Group
	metrics *metrics.CacheMetrics
}

func NewBlacklistCache(rdb goredis.Cmdable, repo domain.BlacklistRepository, ttl, memTTL time.Duration, m *metrics.CacheMetrics) *BlacklistCache {
	if ttl <= 0 {
		ttl = DefaultBlacklistCacheTTL
	}
	return &BlacklistCache{
		rdb:     rdb,
		repo:    repo,
		ttl:     ttl,
		mem:     newMemoryCache(memTTL),
		metrics: m,
	}
}

func (c *BlacklistCache) ActiveEntries(ctx context.Context) ([]domain.BlacklistEntry, error) {
	if entries, ok := c.mem.get(); ok {
		c.hit("memory")
		return entries, nil
	}
	c.miss("memory")

	v, err, _ := c.loads.Do(blacklistCacheKey, func() (any, error) {
		if entries, ok := c.getCached(ctx); ok {
			c.hit("redis")
			c.mem.set(entries)
			return entries, nil
		}
		c.miss("redis")

		entries, err := c.repo.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("blacklist lookup failed: %w", err)
		}
		c.mem.set(entries)
		c.writeCache(ctx, entries)
		if c.metrics != nil {
			c.metrics.Entries.Set(float64(len(entries)))
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.BlacklistEntry), nil
}

// InvalidateCache drops both cached layers so the next read hits PostgreSQL.
func (c *BlacklistCache) InvalidateCache(ctx context.Context) error {
	c.mem.invalidate()
	if c.metrics != nil {
		c.metrics.Invalidations.Inc()
	}
	if err := c.rdb.Del(ctx, blacklistCacheKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate blacklist cache: %w", err)
	}
	return nil
}

// invalidateLocal drops only the in-process copy. Used by pub/sub
// receivers, since the publisher already removed the Redis copy.
func (c *BlacklistCache) invalidateLocal() {
	c.mem.invalidate()
	if c.metrics != nil {
		c.metrics.Invalidations.Inc()
	}
}

func (c *BlacklistCache) writeCache(ctx context.Context, entries []domain.BlacklistEntry) {
	encoded, err := json.Marshal(entries)
	if err != nil {
		slog.WarnContext(ctx, "Failed to marshal blacklist for Redis cache", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, blacklistCacheKey, encoded, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "Failed to populate Redis blacklist cache", "error", err)
	}
}

func (c *BlacklistCache) getCached(ctx context.Context) ([]domain.BlacklistEntry, bool) {
	data, err := c.rdb.Get(ctx, blacklistCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.WarnContext(ctx, "Redis blacklist cache GET failed", "error", err)
		}
		return nil, false
	}

	var entries []domain.BlacklistEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.WarnContext(ctx, "Failed to unmarshal cached blacklist", "error", err)
		return nil, false
	}
	return entries, true
}

func (c *BlacklistCache) hit(layer string) {
	if c.metrics != nil {
		c.metrics.Hits.WithLabelValues(layer).Inc()
	}
}

func (c *BlacklistCache) miss(layer string) {
	if c.metrics != nil {
		c.metrics.Misses.WithLabelValues(layer).Inc()
	}
}

// memoryCache holds one copy of the active list with a TTL.
type memoryCache struct {
	mu        sync.RWMutex
	entries   []domain.BlacklistEntry
	expiresAt time.Time
	ttl       time.Duration
}

func newMemoryCache(ttl time.Duration) *memoryCache {
	return &memoryCache{ttl: ttl}
}

func (c *memoryCache) get() ([]domain.BlacklistEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.entries == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.entries, true
}

func (c *memoryCache) set(entries []domain.BlacklistEntry) {
	if c.ttl <= 0 {
		return
	}
	if entries == nil {
		entries = []domain.BlacklistEntry{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
	c.expiresAt = time.Now().Add(c.ttl)
}

func (c *memoryCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}
