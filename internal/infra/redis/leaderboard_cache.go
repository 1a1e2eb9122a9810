// Package redis caches aggregated leaderboard snapshots so hot polling
// doesn't recompute the ranking on every request.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"graphquiz/internal/app"
)

const keyPrefix = "leaderboard:"

// LeaderboardCache implements app.LeaderboardCache. Snapshots are stored as
// JSON under one key per section filter, with TTL jitter to spread
// expirations, and singleflight collapses concurrent recomputes on a miss.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
}

func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func (c *LeaderboardCache) Fetch(ctx context.Context, section *int, compute func(ctx context.Context) ([]app.RankedEntry, error)) ([]app.RankedEntry, error) {
	key := c.key(section)

	if entries, ok := c.get(ctx, key); ok {
		return entries, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the key.
		if entries, ok := c.get(ctx, key); ok {
			return entries, nil
		}

		entries, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("marshal leaderboard: %w", err)
		}
		// best-effort; a failed write just means the next read recomputes
		_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]app.RankedEntry), nil
}

// Invalidate drops every cached snapshot; called after any score change.
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	keys, err := c.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return fmt.Errorf("list leaderboard keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *LeaderboardCache) get(ctx context.Context, key string) ([]app.RankedEntry, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var entries []app.RankedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

func (c *LeaderboardCache) key(section *int) string {
	if section == nil {
		return keyPrefix + "combined"
	}
	return fmt.Sprintf("%ssection:%d", keyPrefix, *section)
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
