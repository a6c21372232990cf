package bootstrap

import "github.com/kbukum/outbound/config"

// Config is satisfied by any struct embedding config.ServiceConfig that
// also exposes ApplyDefaults and Validate for its own sections.
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
