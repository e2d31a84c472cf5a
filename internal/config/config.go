package config

import (
	"fmt"
	"os"
	"path/filepath"

	api "github.com/labdepot/labdepot/internal/gateway/config"
	notify "github.com/labdepot/labdepot/internal/notify/config"
	server "github.com/labdepot/labdepot/internal/server"
	storage "github.com/labdepot/labdepot/internal/storage/config"
	"gopkg.in/yaml.v3"
)

// DefaultDir is where the configuration files live unless --config says
// otherwise.
const DefaultDir = "config"

// Config holds the application configuration
type Config struct {
	Server  server.Config     `yaml:"server"`
	Gateway api.GatewayConfig `yaml:"gateway"`
	Notify  notify.Config     `yaml:"notify"`
	Storage storage.Config    `yaml:"storage"`
	Logging LoggingConfig     `yaml:"logging"`
}

// LoadConfig loads configuration from files and environment variables.
// Order: defaults -> config.yml -> config.local.yml -> ApplyEnvOverrides -> ResolvePaths -> Validate
func LoadConfig(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultDir
	}

	// Defaults first so YAML can override them, bool fields included.
	cfg := &Config{
		Server:  server.DefaultConfig(),
		Gateway: api.DefaultGatewayConfig(),
		Notify:  notify.DefaultConfig(),
		Storage: storage.DefaultConfig(),
		Logging: DefaultLoggingConfig(),
	}

	for _, name := range []string{"config.yml", "config.local.yml"} {
		if err := loadFile(filepath.Join(configDir, name), cfg); err != nil {
			return nil, err
		}
	}

	if err := ApplyServiceConfigs(configDir,
		&cfg.Server,
		&cfg.Gateway,
		&cfg.Notify,
		&cfg.Storage,
		&cfg.Logging,
	); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	return cfg, nil
}

func loadFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", filename, err)
	}
	return nil
}
