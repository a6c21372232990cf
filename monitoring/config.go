package monitoring

import (
	"time"

	"github.com/kbukum/outbound/validation"
)

const (
	DefaultBufferSize          = 10000
	DefaultMaxAlerts           = 1000
	DefaultAlertCheckInterval  = 15 * time.Second
	DefaultHealthCheckInterval = 30 * time.Second
	DefaultDebounceWindow      = 5 * time.Minute
	DefaultMetricsWindow       = time.Hour
	DefaultLatencyWindow       = 5 * time.Minute
	DefaultPersistBuffer       = 256
	DefaultPersistBatch        = 64
	DefaultRecordRetention     = 7 * 24 * time.Hour
)

// Config controls the Engine.
type Config struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// SampleRate is the share of records handed to the RecordSink.
	// The ring buffer always keeps every record.
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	BufferSize int     `yaml:"buffer_size" mapstructure:"buffer_size" validate:"gte=0"`
	MaxAlerts  int     `yaml:"max_alerts" mapstructure:"max_alerts" validate:"gte=0"`

	AlertCheckInterval  time.Duration `yaml:"alert_check_interval" mapstructure:"alert_check_interval" validate:"gte=0"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" mapstructure:"health_check_interval" validate:"gte=0"`
	// DebounceWindow applies to rules that leave their own at zero.
	DebounceWindow time.Duration `yaml:"debounce_window" mapstructure:"debounce_window" validate:"gte=0"`
	// MetricsWindow is the window used for health error rates and uptime.
	MetricsWindow time.Duration `yaml:"metrics_window" mapstructure:"metrics_window" validate:"gte=0"`
	// LatencyWindow is the window percentiles are computed over.
	LatencyWindow time.Duration `yaml:"latency_window" mapstructure:"latency_window" validate:"gte=0"`

	PersistBuffer   int           `yaml:"persist_buffer" mapstructure:"persist_buffer" validate:"gte=0"`
	RecordRetention time.Duration `yaml:"record_retention" mapstructure:"record_retention" validate:"gte=0"`

	// Endpoints lists the endpoints health and alert checks cover. When
	// empty, every endpoint seen in the buffer is covered.
	Endpoints []string `yaml:"endpoints" mapstructure:"endpoints"`

	// DefaultRules installs the built-in error rate and latency rules.
	DefaultRules bool `yaml:"default_rules" mapstructure:"default_rules"`
}

// DefaultConfig returns an enabled engine with every record persisted.
func DefaultConfig() Config {
	cfg := Config{Enabled: true, SampleRate: 1, DefaultRules: true}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero fields. SampleRate is left alone since zero is
// a meaningful value.
func (c *Config) ApplyDefaults() {
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.MaxAlerts == 0 {
		c.MaxAlerts = DefaultMaxAlerts
	}
	if c.AlertCheckInterval == 0 {
		c.AlertCheckInterval = DefaultAlertCheckInterval
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if c.DebounceWindow == 0 {
		c.DebounceWindow = DefaultDebounceWindow
	}
	if c.MetricsWindow == 0 {
		c.MetricsWindow = DefaultMetricsWindow
	}
	if c.LatencyWindow == 0 {
		c.LatencyWindow = DefaultLatencyWindow
	}
	if c.PersistBuffer == 0 {
		c.PersistBuffer = DefaultPersistBuffer
	}
	if c.RecordRetention == 0 {
		c.RecordRetention = DefaultRecordRetention
	}
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	return validation.Validate(c)
}
