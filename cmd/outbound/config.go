package main

import (
	"fmt"

	"github.com/kbukum/outbound/config"
	"github.com/kbukum/outbound/database"
	"github.com/kbukum/outbound/httpclient"
	"github.com/kbukum/outbound/observability"
	"github.com/kbukum/outbound/orchestrator"
	"github.com/kbukum/outbound/redis"
	"github.com/kbukum/outbound/validation"
	"github.com/kbukum/outbound/version"
)

const serviceName = "outbound"

// StoreConfig picks the durable cache backend. With neither enabled only
// the in-memory tier is used.
type StoreConfig struct {
	Database database.Config `yaml:"database" mapstructure:"database"`
	Redis    redis.Config    `yaml:"redis" mapstructure:"redis"`
}

// TelemetryConfig switches on OTLP export of traces and metrics.
type TelemetryConfig struct {
	Enabled bool                       `yaml:"enabled" mapstructure:"enabled"`
	Tracing observability.TracerConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics observability.MeterConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// Config is the full process configuration.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Outbound  orchestrator.Config `yaml:"outbound" mapstructure:"outbound"`
	Transport httpclient.Config   `yaml:"transport" mapstructure:"transport"`
	Store     StoreConfig         `yaml:"store" mapstructure:"store"`
	Telemetry TelemetryConfig     `yaml:"telemetry" mapstructure:"telemetry"`
}

func defaultConfig() Config {
	// version and environment are inherited from the service section
	tracing := observability.DefaultTracerConfig(serviceName)
	tracing.ServiceVersion, tracing.Environment = "", ""
	metrics := observability.DefaultMeterConfig(serviceName)
	metrics.ServiceVersion, metrics.Environment = "", ""

	return Config{
		ServiceConfig: config.ServiceConfig{Name: serviceName, Version: version.Version},
		Outbound:      orchestrator.DefaultConfig(),
		Telemetry:     TelemetryConfig{Tracing: tracing, Metrics: metrics},
	}
}

func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Outbound.Environment == "" {
		c.Outbound.Environment = c.Environment
	}
	c.Outbound.ApplyDefaults()
	c.Transport.ApplyDefaults()
	c.Store.Database.ApplyDefaults()
	c.Store.Redis.ApplyDefaults()

	for _, svc := range []*string{&c.Telemetry.Tracing.ServiceVersion, &c.Telemetry.Metrics.ServiceVersion} {
		if *svc == "" {
			*svc = c.Version
		}
	}
	for _, env := range []*string{&c.Telemetry.Tracing.Environment, &c.Telemetry.Metrics.Environment} {
		if *env == "" {
			*env = c.Environment
		}
	}
}

func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Outbound.Validate(); err != nil {
		return fmt.Errorf("outbound: %w", err)
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	if c.Store.Database.Enabled && c.Store.Redis.Enabled {
		return fmt.Errorf("store: enable either database or redis, not both")
	}
	if err := c.Store.Database.Validate(); err != nil {
		return fmt.Errorf("store.database: %w", err)
	}
	if err := c.Store.Redis.Validate(); err != nil {
		return fmt.Errorf("store.redis: %w", err)
	}
	if c.Telemetry.Enabled {
		if err := validation.Validate(c.Telemetry); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}
	return nil
}
