package config

import (
	"fmt"
	"time"
)

type GatewayConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodySize    int64         `yaml:"max_body_size"`
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		RequestTimeout: 30 * time.Second,
		MaxBodySize:    1 << 20,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (g *GatewayConfig) ApplyDefaults() {
	defaults := DefaultGatewayConfig()
	if g.RequestTimeout == 0 {
		g.RequestTimeout = defaults.RequestTimeout
	}
	if g.MaxBodySize == 0 {
		g.MaxBodySize = defaults.MaxBodySize
	}
}

// ApplyEnvOverrides applies environment variable overrides.
// No env vars for gateway config currently.
func (g *GatewayConfig) ApplyEnvOverrides() { _ = g }

// ResolvePaths resolves relative paths using the given base directory.
// No paths to resolve in gateway config.
func (g *GatewayConfig) ResolvePaths(_ string) { _ = g }

// Validate returns an error if the configuration is invalid.
func (g *GatewayConfig) Validate() error {
	if g.RequestTimeout < 0 {
		return fmt.Errorf("gateway.request_timeout must not be negative")
	}
	if g.MaxBodySize < 0 {
		return fmt.Errorf("gateway.max_body_size must not be negative")
	}
	return nil
}
