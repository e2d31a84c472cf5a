// Package services wires the configured components into a running process:
// the REST API, the low-stock watcher and everything they share.
package services

import (
	"log/slog"
	"sync"

	"github.com/labdepot/labdepot/internal/config"
	"github.com/labdepot/labdepot/internal/notify/checkpoint"
	"github.com/labdepot/labdepot/internal/notify/health"
	"github.com/labdepot/labdepot/internal/notify/watcher"
	"github.com/labdepot/labdepot/internal/pubsub"
	natspubsub "github.com/labdepot/labdepot/internal/pubsub/nats"
	"github.com/labdepot/labdepot/internal/server"
	"github.com/labdepot/labdepot/internal/storage"
	"go.mongodb.org/mongo-driver/mongo"
)

type Options struct {
	RunAPI     bool
	RunWatcher bool

	// ResetCheckpoint drops the stored resume token before the watcher
	// starts, so it begins at the current end of the change stream.
	ResetCheckpoint bool
}

type Manager struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	store storage.Backend
	db    *mongo.Database // nil unless storage is mongo

	checkpoints  checkpoint.Store
	natsProvider *natspubsub.Provider
	publisher    pubsub.Publisher

	health  *health.Checker
	watcher *watcher.Watcher
	server  server.Service

	wg    sync.WaitGroup
	fatal chan error
}

func NewManager(cfg *config.Config, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With("component", "services"),
		fatal:  make(chan error, 2),
	}
}

// Fatal delivers errors that should end the process: a watcher that
// cannot continue or a server that failed to serve.
func (m *Manager) Fatal() <-chan error {
	return m.fatal
}

// Store returns the storage backend opened by Init.
func (m *Manager) Store() storage.Backend {
	return m.store
}

// Addr is the API listen address once started, or empty.
func (m *Manager) Addr() string {
	if m.server == nil {
		return ""
	}
	return m.server.Addr()
}

func (m *Manager) reportFatal(err error) {
	select {
	case m.fatal <- err:
	default:
	}
}
