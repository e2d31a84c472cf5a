package services

import (
	"context"
	"fmt"

	"github.com/labdepot/labdepot/internal/gateway/rest"
	"github.com/labdepot/labdepot/internal/notify/checkpoint"
	notifycfg "github.com/labdepot/labdepot/internal/notify/config"
	"github.com/labdepot/labdepot/internal/notify/health"
	"github.com/labdepot/labdepot/internal/notify/policy"
	"github.com/labdepot/labdepot/internal/notify/watcher"
	"github.com/labdepot/labdepot/internal/notify/writer"
	"github.com/labdepot/labdepot/internal/pubsub"
	natspubsub "github.com/labdepot/labdepot/internal/pubsub/nats"
	"github.com/labdepot/labdepot/internal/query"
	"github.com/labdepot/labdepot/internal/server"
	"github.com/labdepot/labdepot/internal/storage"
	storagecfg "github.com/labdepot/labdepot/internal/storage/config"
	"github.com/labdepot/labdepot/internal/storage/memory"
	mongostore "github.com/labdepot/labdepot/internal/storage/mongo"
	"go.mongodb.org/mongo-driver/mongo"
)

// openStorage is a variable so tests can run without MongoDB.
var openStorage = func(ctx context.Context, cfg storagecfg.Config, m *Manager) (storage.Backend, *mongo.Database, error) {
	if cfg.Backend == storagecfg.BackendMemory {
		return memory.New(), nil, nil
	}
	provider, err := mongostore.NewProvider(ctx, cfg.Mongo)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	return mongostore.NewStore(provider, m.logger), provider.Database(), nil
}

// Init opens storage and builds the components selected by Options. On
// error, whatever was opened is left for Shutdown to release.
func (m *Manager) Init(ctx context.Context) error {
	store, db, err := openStorage(ctx, m.cfg.Storage, m)
	if err != nil {
		return err
	}
	m.store = store
	m.db = db
	m.logger.Info("Storage ready", "backend", m.cfg.Storage.Backend)

	m.health = health.NewChecker(m.logger)

	if m.opts.RunWatcher {
		// Exactly-once recording relies on the unique idempotency key index.
		if err := m.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("failed to ensure indexes: %w", err)
		}
		if err := m.initWatcher(ctx); err != nil {
			return err
		}
	}
	if m.opts.RunAPI {
		if err := m.initAPI(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) initWatcher(ctx context.Context) error {
	cfg := m.cfg.Notify

	cps, err := m.openCheckpoints(cfg.Checkpoint)
	if err != nil {
		return err
	}
	m.checkpoints = cps

	if m.opts.ResetCheckpoint {
		if err := cps.Delete(ctx, cfg.Watcher.ID); err != nil {
			return fmt.Errorf("failed to reset checkpoint: %w", err)
		}
		m.logger.Info("Checkpoint reset", "watcher", cfg.Watcher.ID)
	}

	var writerOpts []writer.Option
	if cfg.Sink.Enabled {
		pub, err := m.openSink(ctx, cfg.Sink)
		if err != nil {
			return err
		}
		m.publisher = pub
		writerOpts = append(writerOpts, writer.WithPublisher(pub))
	}

	evaluator, err := policy.NewEvaluator(cfg.Policy)
	if err != nil {
		return fmt.Errorf("failed to build policy evaluator: %w", err)
	}

	m.health.RegisterWatcher(cfg.Watcher.ID)
	w, err := watcher.New(cfg.Watcher, m.store, evaluator,
		writer.New(m.store, m.logger, writerOpts...),
		cps, m.logger,
		watcher.WithStateListener(m.health.OnStateChange),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	m.watcher = w
	return nil
}

func (m *Manager) openCheckpoints(cfg notifycfg.CheckpointConfig) (checkpoint.Store, error) {
	switch cfg.Backend {
	case notifycfg.CheckpointMemory:
		return checkpoint.NewMemoryStore(), nil
	case notifycfg.CheckpointSQLite:
		s, err := checkpoint.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
		}
		return s, nil
	default:
		if m.db == nil {
			return nil, fmt.Errorf("checkpoint backend %q needs mongo storage", cfg.Backend)
		}
		return checkpoint.NewMongoStore(m.db), nil
	}
}

func (m *Manager) openSink(ctx context.Context, cfg notifycfg.SinkConfig) (pubsub.Publisher, error) {
	m.natsProvider = natspubsub.NewProvider(cfg.URL, m.logger)
	if err := m.natsProvider.Connect(ctx); err != nil {
		return nil, err
	}
	return m.natsProvider.NewPublisher(ctx, pubsub.PublisherOptions{
		StreamName:    cfg.StreamName,
		SubjectPrefix: cfg.SubjectPrefix,
		RetryAttempts: cfg.RetryAttempts,
		Storage:       pubsub.ParseStorageType(cfg.Storage),
	})
}

func (m *Manager) initAPI() error {
	h, err := rest.NewHandler(m.store, query.NewEngine(m.store, m.logger), m.logger,
		rest.WithHealth(m.health),
		rest.WithLimits(m.cfg.Gateway.MaxBodySize, m.cfg.Gateway.RequestTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create REST handler: %w", err)
	}
	m.server = server.New(m.cfg.Server, m.logger)
	h.RegisterRoutes(m.server.HTTPMux())
	return nil
}
