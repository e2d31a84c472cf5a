package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, "items-low-stock", cfg.Watcher.ID)
	assert.Equal(t, "items", cfg.Watcher.Collection)
	assert.Equal(t, CheckpointMongo, cfg.Checkpoint.Backend)
	assert.Equal(t, "NOTIFICATIONS", cfg.Sink.StreamName)
	assert.Equal(t, "notifications", cfg.Sink.SubjectPrefix)
	assert.False(t, cfg.Sink.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestConfig_NATSURLEnablesSink(t *testing.T) {
	t.Setenv("NATS_URL", "nats://broker:4222")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	assert.True(t, cfg.Sink.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.Sink.URL)
}

func TestConfig_ResolvePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResolvePaths(filepath.Join("srv", "config"))
	assert.Equal(t, filepath.Join("srv", "data", "checkpoints.db"), cfg.Checkpoint.SQLitePath)

	cfg.Checkpoint.SQLitePath = "../state/cp.db"
	cfg.ResolvePaths(filepath.Join("srv", "config"))
	assert.Equal(t, filepath.Join("srv", "state", "cp.db"), cfg.Checkpoint.SQLitePath)

	cfg.Checkpoint.SQLitePath = ":memory:"
	cfg.ResolvePaths("config")
	assert.Equal(t, ":memory:", cfg.Checkpoint.SQLitePath)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty watcher id", func(c *Config) { c.Watcher.ID = "" }},
		{"empty collection", func(c *Config) { c.Watcher.Collection = "" }},
		{"negative cooldown", func(c *Config) { c.Policy.Cooldown = -time.Second }},
		{"guard does not compile", func(c *Config) { c.Policy.Guard = "item.quantity <" }},
		{"unknown checkpoint backend", func(c *Config) { c.Checkpoint.Backend = "redis" }},
		{"sqlite without path", func(c *Config) {
			c.Checkpoint.Backend = CheckpointSQLite
			c.Checkpoint.SQLitePath = ""
		}},
		{"sink without url", func(c *Config) {
			c.Sink.Enabled = true
			c.Sink.URL = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Policy.Guard = `item.category == "consumable"`
	cfg.Checkpoint.Backend = CheckpointSQLite
	assert.NoError(t, cfg.Validate())
}
