package compliance

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyOverview    = "worklens:aggregates:overview"
	cacheKeyTrendPrefix = "worklens:aggregates:trends:"
)

// AggregateCache keeps computed overview/trend payloads in Redis and is
// invalidated when a run commits. A nil cache (no Redis configured) is
// valid; every method degrades to a miss.
type AggregateCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewAggregateCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *AggregateCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AggregateCache{client: client, ttl: ttl, logger: logger}
}

func (c *AggregateCache) get(ctx context.Context, key string, dest interface{}) bool {
	if c == nil || c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("aggregate cache read failed", "error", err, "key", key)
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("aggregate cache payload corrupt", "error", err, "key", key)
		return false
	}
	return true
}

func (c *AggregateCache) set(ctx context.Context, key string, value interface{}) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("aggregate cache write failed", "error", err, "key", key)
	}
}

// Invalidate drops all cached aggregates; called after a run commits new
// violations.
func (c *AggregateCache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	keys := []string{cacheKeyOverview}
	iter := c.client.Scan(ctx, 0, cacheKeyTrendPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("aggregate cache invalidation failed", "error", err)
	}
}
