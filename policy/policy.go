// Package policy holds the per-endpoint configuration consulted by the
// request orchestrator.
package policy

import (
	"maps"
	"time"

	"github.com/kbukum/outbound/resilience"
)

// EndpointPolicy is the immutable configuration of one named external
// dependency.
type EndpointPolicy struct {
	Timeout           time.Duration     `json:"timeout" mapstructure:"timeout" validate:"gt=0"`
	MaxRetries        int               `json:"max_retries" mapstructure:"max_retries" validate:"min=0"`
	RetryBaseDelay    time.Duration     `json:"retry_base_delay" mapstructure:"retry_base_delay" validate:"gte=0"`
	BackoffMultiplier float64           `json:"backoff_multiplier" mapstructure:"backoff_multiplier" validate:"gte=1"`
	Headers           map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	RateLimit         *resilience.Limit `json:"rate_limit,omitempty" mapstructure:"rate_limit"`
	// CacheTTL overrides the ephemeral cache TTL for this endpoint. 0 keeps the default.
	CacheTTL time.Duration `json:"cache_ttl,omitempty" mapstructure:"cache_ttl" validate:"gte=0"`
	// MaxConcurrent caps in-flight calls. 0 means no cap.
	MaxConcurrent int `json:"max_concurrent,omitempty" mapstructure:"max_concurrent" validate:"min=0"`
}

// Attempts returns the total number of tries allowed (first try plus retries).
func (p EndpointPolicy) Attempts() int {
	return p.MaxRetries + 1
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (p EndpointPolicy) Clone() EndpointPolicy {
	out := p
	if p.Headers != nil {
		out.Headers = maps.Clone(p.Headers)
	}
	if p.RateLimit != nil {
		rl := *p.RateLimit
		out.RateLimit = &rl
	}
	return out
}

// MergeHeaders returns the policy headers overlaid with overrides.
func (p EndpointPolicy) MergeHeaders(overrides map[string]string) map[string]string {
	out := make(map[string]string, len(p.Headers)+len(overrides))
	maps.Copy(out, p.Headers)
	maps.Copy(out, overrides)
	return out
}
