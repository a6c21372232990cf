package redis

import (
	"context"
	"fmt"

	"github.com/kbukum/outbound/component"
	"github.com/kbukum/outbound/logger"
)

// Component owns the Redis connection backing the durable cache tier.
type Component struct {
	client  *Client
	entries *EntryStore
	cfg     Config
	log     *logger.Logger
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent creates a Redis component for use with the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.NewNop()
	}
	return &Component{
		cfg: cfg,
		log: log.WithComponent("redis"),
	}
}

// Client returns the underlying *Client, or nil if not started.
func (c *Component) Client() *Client {
	return c.client
}

// EntryStore returns the cache entry store, or nil if not started.
func (c *Component) EntryStore() *EntryStore {
	return c.entries
}

// Name returns the component name.
func (c *Component) Name() string { return "redis" }

// Start initializes the Redis client and verifies connectivity.
func (c *Component) Start(ctx context.Context) error {
	client, err := New(c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("redis start: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis start ping: %w", err)
	}

	c.client = client
	c.entries = NewEntryStore(client, c.cfg.KeyPrefix)
	c.log.Info("Redis component started")
	return nil
}

// Stop gracefully closes the Redis connection.
func (c *Component) Stop(_ context.Context) error {
	if c.client == nil {
		return nil
	}
	c.log.Info("Redis component stopping")
	return c.client.Close()
}

// Health pings Redis and reports the indexed entry count.
func (c *Component) Health(ctx context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusUnhealthy}
	if c.client == nil {
		h.Message = "redis not initialized"
		return h
	}
	if err := c.client.Ping(ctx); err != nil {
		h.Message = err.Error()
		return h
	}
	n, err := c.entries.Count(ctx)
	if err != nil {
		h.Status, h.Message = component.StatusDegraded, err.Error()
		return h
	}
	h.Status, h.Message = component.StatusHealthy, fmt.Sprintf("%d cached entries", n)
	return h
}

// Describe returns infrastructure summary info for the startup summary.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Redis",
		Type:    "redis",
		Details: fmt.Sprintf("%s db=%d pool=%d prefix=%s", c.cfg.Addr, c.cfg.DB, c.cfg.PoolSize, c.cfg.KeyPrefix),
	}
}
