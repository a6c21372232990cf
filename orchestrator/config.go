package orchestrator

import (
	"fmt"
	"time"

	"github.com/kbukum/outbound/cache"
	"github.com/kbukum/outbound/monitoring"
	"github.com/kbukum/outbound/policy"
	"github.com/kbukum/outbound/resilience"
	"github.com/kbukum/outbound/validation"
)

const (
	DefaultMemoryTTL       = 5 * time.Minute
	DefaultDurableWriteTTL = time.Hour
)

// CacheConfig controls both cache tiers. The durable tier only exists when
// a Store is supplied with WithStore.
type CacheConfig struct {
	// MemoryTTL is the ephemeral TTL for endpoints without a CacheTTL.
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl" validate:"gte=0"`
	// DurableWriteTTL is the TTL of durable entries written after a
	// successful call.
	DurableWriteTTL time.Duration `yaml:"durable_write_ttl" mapstructure:"durable_write_ttl" validate:"gte=0"`
	// SweepInterval is how often expired memory entries are dropped.
	SweepInterval time.Duration       `yaml:"sweep_interval" mapstructure:"sweep_interval" validate:"gte=0"`
	Durable       cache.DurableConfig `yaml:"durable" mapstructure:"durable"`
}

// Config is the configuration surface of the Client.
type Config struct {
	// Environment selects the built-in policy profile when Endpoints is empty.
	Environment string `yaml:"environment" mapstructure:"environment"`
	// Endpoints overlays the built-in policy table by name.
	Endpoints      map[string]policy.EndpointPolicy `yaml:"endpoints" mapstructure:"endpoints"`
	CircuitBreaker resilience.CircuitBreakerConfig  `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	Cache          CacheConfig                      `yaml:"cache" mapstructure:"cache"`
	Monitoring     monitoring.Config                `yaml:"monitoring" mapstructure:"monitoring"`
	// LogErrors logs failed calls when monitoring is enabled.
	LogErrors bool `yaml:"log_errors" mapstructure:"log_errors"`
	// ReplaceEndpoints uses Endpoints as the whole table instead of
	// overlaying the built-in one.
	ReplaceEndpoints bool `yaml:"replace_endpoints" mapstructure:"replace_endpoints"`
}

// DefaultConfig returns the built-in endpoint table with monitoring and
// error logging on.
func DefaultConfig() Config {
	cfg := Config{
		Monitoring: monitoring.DefaultConfig(),
		LogErrors:  true,
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	def := resilience.DefaultCircuitBreakerConfig("")
	if c.CircuitBreaker.FailureThreshold == 0 {
		c.CircuitBreaker.FailureThreshold = def.FailureThreshold
	}
	if c.CircuitBreaker.ResetTimeout == 0 {
		c.CircuitBreaker.ResetTimeout = def.ResetTimeout
	}
	if c.CircuitBreaker.SuccessThreshold == 0 {
		c.CircuitBreaker.SuccessThreshold = def.SuccessThreshold
	}
	if c.Cache.MemoryTTL == 0 {
		c.Cache.MemoryTTL = DefaultMemoryTTL
	}
	if c.Cache.DurableWriteTTL == 0 {
		c.Cache.DurableWriteTTL = DefaultDurableWriteTTL
	}
	if c.Cache.SweepInterval == 0 {
		c.Cache.SweepInterval = c.Cache.MemoryTTL
	}
	c.Cache.Durable.ApplyDefaults()
	c.Monitoring.ApplyDefaults()
}

// Validate checks the struct tags. Endpoint policies are validated when
// the registry is built.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return fmt.Errorf("orchestrator config: %w", err)
	}
	return nil
}

// policies resolves the endpoint table.
func (c *Config) policies() map[string]policy.EndpointPolicy {
	if c.ReplaceEndpoints {
		return c.Endpoints
	}
	return policy.Merge(policy.ForEnvironment(c.Environment), c.Endpoints)
}
