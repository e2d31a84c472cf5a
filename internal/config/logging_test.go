package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := DefaultLoggingConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, "logs", cfg.Dir)
	assert.Equal(t, 100, cfg.Rotation.MaxSize)
	assert.True(t, cfg.Rotation.Compress)
	assert.True(t, cfg.Console.Enabled)
	assert.True(t, cfg.File.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoggingConfigYAMLParsing(t *testing.T) {
	yamlData := `
level: "debug"
format: "json"
dir: "/var/log/labdepot"
rotation:
  max_size: 50
  max_backups: 5
console:
  enabled: false
file:
  enabled: true
  level: "warn"
`

	var cfg LoggingConfig
	assert.NoError(t, yaml.Unmarshal([]byte(yamlData), &cfg))
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "/var/log/labdepot", cfg.Dir)
	assert.Equal(t, 50, cfg.Rotation.MaxSize)
	assert.False(t, cfg.Console.Enabled)
	assert.Equal(t, "warn", cfg.File.Level)
}

func TestLoggingConfigApplyDefaults(t *testing.T) {
	cfg := &LoggingConfig{Level: "debug", Format: "json"}
	cfg.ApplyDefaults()

	assert.Equal(t, 100, cfg.Rotation.MaxSize)
	assert.Equal(t, 10, cfg.Rotation.MaxBackups)
	assert.Equal(t, 30, cfg.Rotation.MaxAge)
	assert.True(t, cfg.Console.Enabled)
	assert.Equal(t, "debug", cfg.Console.Level)
	assert.Equal(t, "json", cfg.Console.Format)
	assert.True(t, cfg.File.Enabled)
	assert.Equal(t, "json", cfg.File.Format)
}

func TestLoggingConfigApplyDefaults_KeepsPartialOutput(t *testing.T) {
	cfg := &LoggingConfig{Console: OutputConfig{Format: "json"}}
	cfg.ApplyDefaults()

	// Partially configured outputs are left disabled.
	assert.False(t, cfg.Console.Enabled)
	assert.Equal(t, "json", cfg.Console.Format)
	assert.Equal(t, "info", cfg.Console.Level)
}

func TestLoggingConfigApplyEnvOverrides(t *testing.T) {
	t.Setenv("LABDEPOT_LOG_LEVEL", "WARN")

	cfg := DefaultLoggingConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "warn", cfg.Level)
	assert.Equal(t, "warn", cfg.Console.Level)
	assert.Equal(t, "warn", cfg.File.Level)
}

func TestLoggingConfigResolvePaths(t *testing.T) {
	configDir := filepath.Join("app", "config")
	tests := []struct {
		name     string
		dir      string
		expected string
	}{
		{"relative path next to config dir", "logs", filepath.Join("app", "logs")},
		{"relative with subdirs", filepath.Join("logs", "api"), filepath.Join("app", "logs", "api")},
		{"dot-dot resolved from config dir", filepath.Join("..", "..", "logs"), "logs"},
		{"absolute path unchanged", "/var/log/labdepot", "/var/log/labdepot"},
		{"empty dir unchanged", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &LoggingConfig{Dir: tt.dir}
			cfg.ResolvePaths(configDir)
			assert.Equal(t, tt.expected, cfg.Dir)
		})
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*LoggingConfig)
	}{
		{"invalid level", func(c *LoggingConfig) { c.Level = "verbose" }},
		{"invalid format", func(c *LoggingConfig) { c.Format = "xml" }},
		{"empty dir", func(c *LoggingConfig) { c.Dir = "" }},
		{"invalid console level", func(c *LoggingConfig) { c.Console.Level = "loud" }},
		{"invalid console format", func(c *LoggingConfig) { c.Console.Format = "xml" }},
		{"invalid file level", func(c *LoggingConfig) { c.File.Level = "loud" }},
		{"invalid file format", func(c *LoggingConfig) { c.File.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLoggingConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("disabled output is not checked", func(t *testing.T) {
		cfg := DefaultLoggingConfig()
		cfg.File = OutputConfig{Enabled: false, Format: "xml"}
		assert.NoError(t, cfg.Validate())
	})
}
