package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/labdepot/labdepot/internal/config"
	"github.com/labdepot/labdepot/internal/logging"
	"github.com/labdepot/labdepot/internal/services"
)

const initTimeout = 30 * time.Second

func setup(configDir string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run starts the selected services and blocks until SIGINT, SIGTERM or a
// fatal component error.
func run(parent context.Context, configDir string, opts services.Options) error {
	cfg, err := setup(configDir)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Shutdown() }()

	slog.Info("Starting labdepot", "version", version, "api", opts.RunAPI, "watcher", opts.RunWatcher)
	mgr := services.NewManager(cfg, opts, slog.Default())

	shutdown := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return mgr.Shutdown(ctx)
	}

	initCtx, cancelInit := context.WithTimeout(parent, initTimeout)
	err = mgr.Init(initCtx)
	cancelInit()
	if err != nil {
		return errors.Join(fmt.Errorf("failed to initialize services: %w", err), shutdown())
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	bgCtx, cancelBg := context.WithCancel(ctx)
	mgr.Start(bgCtx)

	var fatal error
	select {
	case <-ctx.Done():
		slog.Info("Shutting down services")
	case fatal = <-mgr.Fatal():
		slog.Error("Stopping on fatal error", "error", fatal)
	}

	cancelBg()
	if err := shutdown(); err != nil {
		slog.Error("Shutdown finished with errors", "error", err)
		fatal = errors.Join(fatal, err)
	}
	slog.Info("All services stopped")
	return fatal
}

func ensureIndexes(parent context.Context, configDir string) error {
	cfg, err := setup(configDir)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Shutdown() }()

	mgr := services.NewManager(cfg, services.Options{}, slog.Default())
	ctx, cancel := context.WithTimeout(parent, initTimeout)
	defer cancel()

	err = mgr.Init(ctx)
	if err == nil {
		err = mgr.EnsureIndexes(ctx)
	}
	if err != nil {
		return errors.Join(err, mgr.Shutdown(ctx))
	}
	slog.Info("Indexes ensured", "backend", cfg.Storage.Backend)
	return mgr.Shutdown(ctx)
}
