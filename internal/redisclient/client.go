package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script

	// lock owner tokens held by this process, keyed by lock key
	tokens sync.Map
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing go-redis client
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Publish sends a message on a pub/sub channel
func (c *Client) Publish(ctx context.Context, channel string, message []byte) error {
	if err := c.rdb.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("publish to %s failed: %w", channel, err)
	}
	return nil
}

// ClaimIdempotencyKey sets the key only if absent and reports whether this caller claimed it
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, idempotencyKey(key), time.Now().Unix(), ttl).Result()
}

// AcquireLock acquires a distributed lock owned by this process
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	c.tokens.Store(lockKey, token)
	return true, nil
}

// ReleaseLock releases a lock only if this process still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	token, ok := c.tokens.LoadAndDelete(lockKey)
	if !ok {
		return nil
	}

	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}
