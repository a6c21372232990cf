package httpclient

import (
	"fmt"
	"time"

	"github.com/kbukum/outbound/validation"
	"github.com/kbukum/outbound/version"
)

const (
	DriverNetHTTP  = "net/http"
	DriverFastHTTP = "fasthttp"

	defaultTimeout          = 30 * time.Second
	defaultMaxConnsPerHost  = 16
	defaultMaxResponseBytes = 10 << 20
)

// Config configures a transport.
type Config struct {
	// Driver selects the implementation: "net/http" (default) or "fasthttp".
	Driver string `yaml:"driver" mapstructure:"driver" validate:"oneof=net/http fasthttp"`

	// BaseURL is prepended to relative request URLs.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Timeout bounds requests that carry no timeout of their own. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`

	// Headers are default headers applied to all requests.
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`

	// MaxConnsPerHost caps pooled connections per host.
	MaxConnsPerHost int `yaml:"max_conns_per_host" mapstructure:"max_conns_per_host" validate:"gte=0"`

	// MaxResponseBytes caps the response body read.
	MaxResponseBytes int64 `yaml:"max_response_bytes" mapstructure:"max_response_bytes" validate:"gte=0"`

	// UserAgent is sent when the request sets none.
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverNetHTTP
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxConnsPerHost <= 0 {
		c.MaxConnsPerHost = defaultMaxConnsPerHost
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = defaultMaxResponseBytes
	}
	if c.UserAgent == "" {
		c.UserAgent = version.UserAgent()
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return fmt.Errorf("httpclient: %w", err)
	}
	return nil
}

// NewTransport builds the transport cfg.Driver names.
func NewTransport(cfg Config) (Transport, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Driver == DriverFastHTTP {
		return NewFast(cfg)
	}
	return New(cfg)
}

// attemptTimeout picks the request timeout, falling back to the default.
func (c *Config) attemptTimeout(req Request) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return c.Timeout
}
