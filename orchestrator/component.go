package orchestrator

import (
	"context"
	"fmt"

	"github.com/kbukum/outbound/component"
)

var (
	_ component.Component   = (*Client)(nil)
	_ component.Describable = (*Client)(nil)
)

// Name returns the component name.
func (c *Client) Name() string { return "outbound" }

// Start launches the cache sweeps and the monitoring loops. They run
// until Stop.
func (c *Client) Start(ctx context.Context) error {
	c.cache.Start(ctx, c.cfg.Cache.SweepInterval)
	c.monitor.Start(ctx)
	c.log.Info("outbound client started", map[string]interface{}{
		"endpoints":  len(c.policies.Names()),
		"durable":    c.cache.Durable() != nil,
		"monitoring": c.monitor.Enabled(),
	})
	return nil
}

// Stop cancels the background loops and waits for them.
func (c *Client) Stop(_ context.Context) error {
	c.monitor.Stop()
	c.cache.Stop()
	return nil
}

// Health maps system health onto the component status: healthy when the
// monitoring engine reports the system healthy, degraded while some
// endpoints are still healthy, unhealthy otherwise.
func (c *Client) Health(_ context.Context) component.Health {
	if !c.monitor.Enabled() {
		return component.Health{Name: c.Name(), Status: component.StatusHealthy, Message: "monitoring disabled"}
	}
	sh := c.monitor.SystemHealth()
	msg := fmt.Sprintf("score=%.2f endpoints=%d", sh.Score, len(sh.Endpoints))
	switch {
	case sh.Healthy:
		return component.Health{Name: c.Name(), Status: component.StatusHealthy, Message: msg}
	case sh.Score > 0:
		return component.Health{Name: c.Name(), Status: component.StatusDegraded, Message: msg}
	default:
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: msg}
	}
}

// Describe returns the startup summary line.
func (c *Client) Describe() component.Description {
	durable := "off"
	if c.cache.Durable() != nil {
		durable = "on"
	}
	return component.Description{
		Name:    "Outbound",
		Type:    "client",
		Details: fmt.Sprintf("endpoints=%d durable=%s sample_rate=%.2f", c.policies.Len(), durable, c.cfg.Monitoring.SampleRate),
	}
}
