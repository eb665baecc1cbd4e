package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
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

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireOrderLock takes the per-order webhook processing lock. Concurrent
// duplicate deliveries for the same order serialize on it; the loser answers
// 5xx so the gateway redelivers after the winner finishes.
func (c *Client) AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:order:%s", orderID), "1", ttl).Result()
}

// ReleaseOrderLock releases the per-order processing lock.
func (c *Client) ReleaseOrderLock(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:order:%s", orderID)).Err()
}

// CacheVerifyResult stores a terminal verify response for an order. Terminal
// states never change, so polling clients can be answered from cache.
func (c *Client) CacheVerifyResult(ctx context.Context, orderID string, payload []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("verify:%s", orderID), payload, ttl).Err()
}

// GetCachedVerifyResult returns a cached verify response, or nil on miss.
func (c *Client) GetCachedVerifyResult(ctx context.Context, orderID string) ([]byte, error) {
	payload, err := c.rdb.Get(ctx, fmt.Sprintf("verify:%s", orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}
