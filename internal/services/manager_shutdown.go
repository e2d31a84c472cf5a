package services

import (
	"context"
	"errors"
	"fmt"
)

// Shutdown stops the HTTP server, waits for background work and releases
// the sink, checkpoint store and storage in that order. The caller cancels
// the context given to Start first so the watcher can stop.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error

	if m.server != nil {
		if err := m.server.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	m.logger.Info("Waiting for background tasks to finish")
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for background tasks: %w", ctx.Err()))
	}

	if m.publisher != nil {
		if err := m.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing publisher: %w", err))
		}
	}
	if m.natsProvider != nil {
		if err := m.natsProvider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing NATS: %w", err))
		}
	}
	if m.checkpoints != nil {
		if err := m.checkpoints.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing checkpoints: %w", err))
		}
	}
	if m.store != nil {
		if err := m.store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing storage: %w", err))
		}
	}

	return errors.Join(errs...)
}

// EnsureIndexes creates the storage indexes. It only needs storage, so it
// may be called after Init with no components selected.
func (m *Manager) EnsureIndexes(ctx context.Context) error {
	if m.store == nil {
		return errors.New("storage not initialized")
	}
	return m.store.EnsureIndexes(ctx)
}
