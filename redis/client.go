package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/outbound/logger"
)

// Client is a go-redis client that logs its lifecycle.
type Client struct {
	rdb  *goredis.Client
	log  *logger.Logger
	once sync.Once
}

// New connects lazily: go-redis dials on first use, so call Ping to check
// reachability.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is disabled")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	log.Info("Redis client created", logger.Fields("addr", cfg.Addr, "db", cfg.DB, "pool_size", cfg.PoolSize))
	return &Client{rdb: goredis.NewClient(cfg.options()), log: log}, nil
}

// Ping round-trips to the server.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Get returns goredis.Nil for a missing key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

// Set stores value; zero expiration keeps the key forever.
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// Close is idempotent and nil-safe.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var err error
	c.once.Do(func() {
		c.log.Info("Closing Redis connection")
		err = c.rdb.Close()
	})
	return err
}

// Unwrap exposes the go-redis client for set and pipeline commands.
func (c *Client) Unwrap() *goredis.Client {
	return c.rdb
}
