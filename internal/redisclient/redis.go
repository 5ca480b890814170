// Package redisclient wraps an optional Redis connection used by the
// rate limiter for cross-instance fixed-window counters. The gateway runs
// fine without Redis (the rate limiter falls back to its in-memory
// window); this client exists so multi-instance deployments share one.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/nocturnal-archive/gateway/internal/config"
	"github.com/redis/go-redis/v9"
)

// Client wraps a redis.Client with the narrow surface the gateway uses.
type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config. Returns an error
// if the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	r := redis.NewClient(opt)
	return &Client{c: r}, nil
}

// Ping verifies connectivity within a short deadline.
func (r *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

// Incr atomically increments key and (re)sets its expiry to window on
// every call, implementing a simple fixed-window counter
// used by the rate limiter when Redis is configured.
func (r *Client) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Close releases the underlying connection pool.
func (r *Client) Close() error {
	return r.c.Close()
}
