package logger

import (
	"fmt"

	"github.com/kbukum/outbound/validation"
)

// Config is the logging section of the service config.
type Config struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console pretty"`
	// Output is stdout or stderr.
	Output    string `yaml:"output" mapstructure:"output" validate:"omitempty,oneof=stdout stderr"`
	NoColor   bool   `yaml:"no_color" mapstructure:"no_color"`
	Timestamp bool   `yaml:"timestamp" mapstructure:"timestamp"`
	Caller    bool   `yaml:"caller" mapstructure:"caller"`
}

// ApplyDefaults selects info-level console output to stdout. Timestamps
// are always on.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
	c.Timestamp = true
}

func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
