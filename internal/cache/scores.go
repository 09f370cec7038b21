// Package cache provides a Redis-backed cache for persisted item scores,
// sitting in front of the Postgres lookup on the read path. The cache is an
// injected dependency, never a package-level singleton, so tests and the
// ingest worker can run without Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/briefcast/briefcast/internal/item"
)

// DefaultTTL is how long cached scores stay valid without explicit
// invalidation.
const DefaultTTL = 15 * time.Minute

const keyPrefix = "briefcast:score:"

// ScoreCache caches StoredScore values by item id. Entries are CBOR encoded;
// the compact encoding matters because a digest request touches hundreds of
// keys at once.
type ScoreCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewScoreCache creates a cache around an existing Redis client. A zero ttl
// falls back to DefaultTTL.
func NewScoreCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *ScoreCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScoreCache{client: client, ttl: ttl, logger: logger}
}

// Get fetches cached scores for the given ids. The returned map contains
// only hits; misses are simply absent. Redis errors degrade to a full miss
// so the caller falls through to storage.
func (c *ScoreCache) Get(ctx context.Context, ids []string) map[string]item.StoredScore {
	hits := make(map[string]item.StoredScore, len(ids))
	if c == nil || c.client == nil || len(ids) == 0 {
		return hits
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("score cache read failed", "keys", len(keys), "error", err)
		return hits
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var score item.StoredScore
		if err := cbor.Unmarshal([]byte(raw), &score); err != nil {
			// A corrupt entry is dropped; the next Set overwrites it.
			c.logger.Warn("score cache entry corrupt", "id", ids[i], "error", err)
			continue
		}
		hits[ids[i]] = score
	}
	return hits
}

// Set stores a batch of scores with the configured TTL. Failures are logged
// and swallowed; the cache is an optimization, not a system of record.
func (c *ScoreCache) Set(ctx context.Context, scores map[string]item.StoredScore) {
	if c == nil || c.client == nil || len(scores) == 0 {
		return
	}

	pipe := c.client.Pipeline()
	for id, score := range scores {
		encoded, err := cbor.Marshal(score)
		if err != nil {
			c.logger.Warn("score cache encode failed", "id", id, "error", err)
			continue
		}
		pipe.Set(ctx, keyPrefix+id, encoded, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("score cache write failed", "entries", len(scores), "error", err)
	}
}

// Invalidate removes cached entries for the given ids. Called by the ingest
// worker after persisting fresh judgments.
func (c *ScoreCache) Invalidate(ctx context.Context, ids []string) error {
	if c == nil || c.client == nil || len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("invalidate score cache: %w", err)
	}
	return nil
}
