package refcheck

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const probeKeyPrefix = "provreg:probe:"

// ProbeCache caches positive remote-existence probe results in redis with
// a TTL. Misses and probe failures are never cached: a bundle that does
// not exist yet may be stored at any moment, while a stored bundle is
// never deleted, so only the positive answer is stable.
type ProbeCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewProbeCache builds a probe cache over an existing redis client.
func NewProbeCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *ProbeCache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProbeCache{rdb: rdb, ttl: ttl, logger: logger}
}

// Get returns (exists, true) on a cache hit. Redis errors degrade to a
// cache miss.
func (c *ProbeCache) Get(ctx context.Context, uri string) (exists, ok bool) {
	err := c.rdb.Get(ctx, probeKeyPrefix+uri).Err()
	if err == redis.Nil {
		return false, false
	}
	if err != nil {
		c.logger.Warn("probe cache read failed", "uri", uri, "error", err)
		return false, false
	}
	return true, true
}

// Put records a positive probe result.
func (c *ProbeCache) Put(ctx context.Context, uri string) {
	if err := c.rdb.Set(ctx, probeKeyPrefix+uri, "1", c.ttl).Err(); err != nil {
		c.logger.Warn("probe cache write failed", "uri", uri, "error", err)
	}
}
