package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/outbound/cache"
	"github.com/kbukum/outbound/monitoring"
	"github.com/kbukum/outbound/policy"
	"github.com/kbukum/outbound/resilience"
)

// ErrNoDurableTier is returned by durable-only operations on a client
// built without a Store.
var ErrNoDurableTier = fmt.Errorf("orchestrator: durable cache tier not configured")

// Policies returns the endpoint registry.
func (c *Client) Policies() *policy.Registry { return c.policies }

// Monitor returns the metrics and alerting engine.
func (c *Client) Monitor() *monitoring.Engine { return c.monitor }

// CircuitStatus returns a breaker snapshot for every registered endpoint.
func (c *Client) CircuitStatus() map[string]resilience.CircuitSnapshot {
	out := make(map[string]resilience.CircuitSnapshot, c.policies.Len())
	for _, name := range c.policies.Names() {
		out[name] = c.breakers.Get(name).Snapshot()
	}
	return out
}

// ResetCircuit closes endpoint's breaker.
func (c *Client) ResetCircuit(endpoint string) error {
	if _, err := c.policies.Lookup(endpoint); err != nil {
		return err
	}
	c.breakers.Get(endpoint).Reset()
	return nil
}

// RateLimitStatus reports endpoint's remaining quota. Limit and Remaining
// are -1 for endpoints without a rate limit.
func (c *Client) RateLimitStatus(endpoint string) (resilience.LimitStatus, error) {
	p, err := c.policies.Lookup(endpoint)
	if err != nil {
		return resilience.LimitStatus{}, err
	}
	return c.limiter.Status(endpoint, p.RateLimit), nil
}

// CacheStats describes both cache tiers.
type CacheStats struct {
	MemoryEntries int                 `json:"memory_entries"`
	Durable       *cache.DurableStats `json:"durable,omitempty"`
	ByEndpoint    map[string]int      `json:"by_endpoint,omitempty"`
}

// CacheStats returns a snapshot of both tiers.
func (c *Client) CacheStats() CacheStats {
	st := CacheStats{MemoryEntries: c.cache.Memory().Len()}
	if d := c.cache.Durable(); d != nil {
		ds := d.Stats()
		st.Durable = &ds
		st.ByEndpoint = d.EntriesByEndpoint()
	}
	return st
}

// BackupCache returns the live durable entries of endpoint, or of every
// endpoint when endpoint is empty.
func (c *Client) BackupCache(ctx context.Context, endpoint string) ([]cache.Entry, error) {
	d := c.cache.Durable()
	if d == nil {
		return nil, ErrNoDurableTier
	}
	return d.Backup(ctx, endpoint)
}

// RestoreCache writes entries into the durable tier, skipping expired
// ones, and returns how many were stored.
func (c *Client) RestoreCache(ctx context.Context, entries []cache.Entry) (int, error) {
	d := c.cache.Durable()
	if d == nil {
		return 0, ErrNoDurableTier
	}
	return d.Restore(ctx, entries)
}

// ClearCache empties both tiers.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.cache.Clear(ctx)
}

// ResetMetrics drops buffered call records for endpoint, or for every
// endpoint when endpoint is empty.
func (c *Client) ResetMetrics(endpoint string) {
	c.monitor.ResetMetrics(endpoint)
}

// SystemHealth classifies every registered endpoint.
func (c *Client) SystemHealth() monitoring.SystemHealth {
	return c.monitor.SystemHealth()
}

// HealthFor classifies one endpoint.
func (c *Client) HealthFor(endpoint string) monitoring.EndpointHealth {
	return c.monitor.HealthFor(endpoint)
}

// MetricsFor aggregates endpoint's calls over window; zero uses the
// configured metrics window.
func (c *Client) MetricsFor(endpoint string, window time.Duration) monitoring.Metrics {
	return c.monitor.MetricsFor(endpoint, window)
}

// ActiveAlerts returns the unresolved alerts.
func (c *Client) ActiveAlerts() []monitoring.Alert {
	return c.monitor.ActiveAlerts()
}

// AddAlertRule validates and installs rule, returning its id.
func (c *Client) AddAlertRule(rule monitoring.AlertRule) (string, error) {
	return c.monitor.AddAlertRule(rule)
}

// ResolveAlert marks an alert resolved. It reports false for unknown or
// already resolved alerts.
func (c *Client) ResolveAlert(id string) bool {
	return c.monitor.ResolveAlert(id)
}

// SubscribeAlerts streams newly fired alerts until cancel is called.
func (c *Client) SubscribeAlerts(buffer int) (<-chan monitoring.Alert, func()) {
	return c.monitor.Subscribe(buffer)
}

// DebugInfo is an administrative snapshot of the client.
type DebugInfo struct {
	Environment   string                                `json:"environment"`
	Endpoints     []string                              `json:"endpoints"`
	LogErrors     bool                                  `json:"log_errors"`
	MemoryTTL     time.Duration                         `json:"memory_ttl"`
	MemoryEntries int                                   `json:"memory_entries"`
	Breakers      map[string]resilience.CircuitSnapshot `json:"breakers"`
	// Rejections counts bulkhead rejections per endpoint.
	Rejections map[string]int64     `json:"bulkhead_rejections,omitempty"`
	Durable    *cache.DurableStats  `json:"durable,omitempty"`
	Monitoring monitoring.DebugInfo `json:"monitoring"`
}

// DebugInfo returns configuration and runtime counters.
func (c *Client) DebugInfo() DebugInfo {
	st := c.CacheStats()
	rejections := make(map[string]int64, len(c.bulkheads))
	for name, b := range c.bulkheads {
		rejections[name] = b.Rejected()
	}
	return DebugInfo{
		Environment:   c.cfg.Environment,
		Endpoints:     c.policies.Names(),
		LogErrors:     c.cfg.LogErrors,
		MemoryTTL:     c.cfg.Cache.MemoryTTL,
		MemoryEntries: st.MemoryEntries,
		Breakers:      c.CircuitStatus(),
		Rejections:    rejections,
		Durable:       st.Durable,
		Monitoring:    c.monitor.DebugInfo(),
	}
}
