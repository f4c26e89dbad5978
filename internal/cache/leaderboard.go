package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"mindagrowAPI/internal/leaderboard"
	"mindagrowAPI/storage/redis"
)

const (
	leaderboardPrefix     = "leaderboard"
	DefaultLeaderboardTTL = 5 * time.Minute
)

// LeaderboardCache stores rendered leaderboards as JSON under <prefix>:leaderboard:<key>.
type LeaderboardCache struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewLeaderboardCache(client goredis.UniversalClient, prefix string, ttl time.Duration) *LeaderboardCache {
	if ttl <= 0 {
		ttl = DefaultLeaderboardTTL
	}
	return &LeaderboardCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *LeaderboardCache) GetLeaderboard(ctx context.Context, key string) (*leaderboard.Leaderboard, bool, error) {
	data, err := c.client.Get(ctx, redis.Key(c.prefix, leaderboardPrefix, key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read leaderboard cache: %w", err)
	}

	var lb leaderboard.Leaderboard
	if err := json.Unmarshal(data, &lb); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached leaderboard: %w", err)
	}
	return &lb, true, nil
}

func (c *LeaderboardCache) SetLeaderboard(ctx context.Context, key string, lb *leaderboard.Leaderboard) error {
	data, err := json.Marshal(lb)
	if err != nil {
		return fmt.Errorf("failed to marshal leaderboard: %w", err)
	}
	return c.client.Set(ctx, redis.Key(c.prefix, leaderboardPrefix, key), data, c.ttl).Err()
}

// InvalidateLeaderboards drops every cached leaderboard using SCAN.
func (c *LeaderboardCache) InvalidateLeaderboards(ctx context.Context) error {
	pattern := redis.Key(c.prefix, leaderboardPrefix) + ":*"

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return fmt.Errorf("failed to scan leaderboard keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete leaderboard keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
