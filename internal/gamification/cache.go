package gamification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teachme/backend/internal/models"
)

// NewRedisClient connects to addr and pings it. The caller owns Close.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// leaderboardCache stores computed boards in Redis. With a nil client every
// lookup misses and writes are dropped.
type leaderboardCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func newLeaderboardCache(rdb *redis.Client, ttl time.Duration) *leaderboardCache {
	return &leaderboardCache{rdb: rdb, ttl: ttl}
}

func cacheKey(boardKey string) string {
	return "leaderboard:" + boardKey
}

func (c *leaderboardCache) get(ctx context.Context, boardKey string) (*models.Leaderboard, bool, error) {
	if c == nil || c.rdb == nil {
		return nil, false, nil
	}
	raw, err := c.rdb.Get(ctx, cacheKey(boardKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var board models.Leaderboard
	if err := json.Unmarshal(raw, &board); err != nil {
		return nil, false, err
	}
	return &board, true, nil
}

func (c *leaderboardCache) set(ctx context.Context, boardKey string, board *models.Leaderboard) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(board)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, cacheKey(boardKey), raw, c.ttl).Err()
}

func (c *leaderboardCache) invalidate(ctx context.Context, boardKey string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, cacheKey(boardKey)).Err()
}
