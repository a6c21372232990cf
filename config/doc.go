// Package config loads service configuration with Viper.
//
// LoadConfig reads a config.yml found next to the service's cmd directory
// (or given explicitly), loads a .env file with godotenv, then applies
// environment variables carrying the service prefix. Values decode over the
// struct passed in, so defaults set beforehand survive when no source
// mentions them.
//
//	cfg := Config{Outbound: orchestrator.DefaultConfig()}
//	if err := config.LoadConfig("outbound", &cfg); err != nil {
//	    return err
//	}
//	cfg.ApplyDefaults()
package config
