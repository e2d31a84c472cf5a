// Package config holds the notification pipeline settings: the watcher,
// its policy, where checkpoints live and the optional NATS sink.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/labdepot/labdepot/internal/notify/policy"
	"github.com/labdepot/labdepot/internal/notify/watcher"
)

const (
	CheckpointMongo  = "mongo"
	CheckpointSQLite = "sqlite"
	CheckpointMemory = "memory"
)

type Config struct {
	Watcher    watcher.Config   `yaml:"watcher"`
	Policy     policy.Config    `yaml:"policy"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Sink       SinkConfig       `yaml:"sink"`
}

// CheckpointConfig selects the checkpoint backend. The mongo backend
// shares the storage connection.
type CheckpointConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
}

// SinkConfig configures the NATS JetStream stream that notifications are
// announced on. The sink is off unless enabled.
type SinkConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Storage       string `yaml:"storage"` // memory or file
	RetryAttempts int    `yaml:"retry_attempts"`
}

func DefaultConfig() Config {
	return Config{
		Watcher: watcher.DefaultConfig(),
		Checkpoint: CheckpointConfig{
			Backend:    CheckpointMongo,
			SQLitePath: "data/checkpoints.db",
		},
		Sink: SinkConfig{
			URL:           "nats://localhost:4222",
			StreamName:    "NOTIFICATIONS",
			SubjectPrefix: "notifications",
			Storage:       "file",
			RetryAttempts: 3,
		},
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Watcher.ID == "" {
		c.Watcher.ID = d.Watcher.ID
	}
	if c.Watcher.Collection == "" {
		c.Watcher.Collection = d.Watcher.Collection
	}
	if c.Checkpoint.Backend == "" {
		c.Checkpoint.Backend = d.Checkpoint.Backend
	}
	if c.Checkpoint.SQLitePath == "" {
		c.Checkpoint.SQLitePath = d.Checkpoint.SQLitePath
	}
	if c.Sink.URL == "" {
		c.Sink.URL = d.Sink.URL
	}
	if c.Sink.StreamName == "" {
		c.Sink.StreamName = d.Sink.StreamName
	}
	if c.Sink.SubjectPrefix == "" {
		c.Sink.SubjectPrefix = d.Sink.SubjectPrefix
	}
	if c.Sink.Storage == "" {
		c.Sink.Storage = d.Sink.Storage
	}
}

// ApplyEnvOverrides applies environment variable overrides. Setting
// NATS_URL also turns the sink on.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("NATS_URL"); val != "" {
		c.Sink.URL = val
		c.Sink.Enabled = true
	}
}

// ResolvePaths resolves a relative SQLite path against the parent of
// configDir, so data/ ends up next to config/.
func (c *Config) ResolvePaths(configDir string) {
	p := c.Checkpoint.SQLitePath
	if p == "" || p == ":memory:" || filepath.IsAbs(p) {
		return
	}
	if strings.HasPrefix(p, "..") {
		c.Checkpoint.SQLitePath = filepath.Clean(filepath.Join(configDir, p))
		return
	}
	c.Checkpoint.SQLitePath = filepath.Clean(filepath.Join(filepath.Dir(configDir), p))
}

// Validate returns an error if the configuration is invalid. The policy
// guard is compiled here so a bad expression fails at startup.
func (c *Config) Validate() error {
	if c.Watcher.ID == "" {
		return errors.New("notify.watcher.id is required")
	}
	if c.Watcher.Collection == "" {
		return errors.New("notify.watcher.collection is required")
	}
	if c.Policy.Cooldown < 0 {
		return errors.New("notify.policy.cooldown must not be negative")
	}
	if _, err := policy.NewEvaluator(c.Policy); err != nil {
		return fmt.Errorf("notify.policy.guard: %w", err)
	}

	switch c.Checkpoint.Backend {
	case CheckpointMongo, CheckpointMemory:
	case CheckpointSQLite:
		if c.Checkpoint.SQLitePath == "" {
			return errors.New("notify.checkpoint.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown checkpoint backend: %s", c.Checkpoint.Backend)
	}

	if c.Sink.Enabled && c.Sink.URL == "" {
		return errors.New("notify.sink.url is required when the sink is enabled")
	}
	return nil
}
