package config

import (
	"fmt"
	"os"
	"time"
)

const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

type Config struct {
	Backend string      `yaml:"backend"` // "mongo" or "memory"
	Mongo   MongoConfig `yaml:"mongo"`
}

type MongoConfig struct {
	URI            string        `yaml:"uri"`
	DatabaseName   string        `yaml:"database_name"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Backend: BackendMongo,
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017/?replicaSet=rs0",
			DatabaseName:   "labdepot",
			ConnectTimeout: 10 * time.Second,
		},
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Backend == "" {
		c.Backend = defaults.Backend
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = defaults.Mongo.URI
	}
	if c.Mongo.DatabaseName == "" {
		c.Mongo.DatabaseName = defaults.Mongo.DatabaseName
	}
	if c.Mongo.ConnectTimeout == 0 {
		c.Mongo.ConnectTimeout = defaults.Mongo.ConnectTimeout
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("MONGO_URI"); val != "" {
		c.Mongo.URI = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Mongo.DatabaseName = val
	}
}

// ResolvePaths resolves relative paths using the given base directory.
// No paths to resolve in storage config.
func (c *Config) ResolvePaths(_ string) { _ = c }

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("storage.mongo.uri is required")
		}
		if c.Mongo.DatabaseName == "" {
			return fmt.Errorf("storage.mongo.database_name is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Backend)
	}
	return nil
}
