package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"payhook/internal/config"
)

// Client wraps the redis connection used for the duplicate fast path.
// The pipeline treats every cache error as a soft failure and falls
// back to the indexed database query.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to redis and verifies the connection
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Host,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// ClaimOnce attempts to claim a key exactly once within ttl.
// Returns true when this caller is the first to claim the key.
func (c *Client) ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim key %s: %w", key, err)
	}
	return ok, nil
}

// Release drops a previously claimed key (used when the claim turned
// out to be a false positive and the delivery must stay claimable)
func (c *Client) Release(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// Close closes the underlying connection
func (c *Client) Close() error {
	return c.rdb.Close()
}
