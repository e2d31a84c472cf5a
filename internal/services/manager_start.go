package services

import (
	"context"
	"fmt"
)

// Start runs the initialized components in the background until ctx is
// cancelled. Failures that end a component are sent to Fatal.
func (m *Manager) Start(ctx context.Context) {
	if m.server != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.server.Start(ctx); err != nil {
				m.logger.Error("HTTP server failed", "error", err)
				m.reportFatal(fmt.Errorf("http server: %w", err))
			}
		}()
	}

	if m.watcher != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			// Run reports fatal errors through the callback and returns
			// them as well; the callback is enough.
			_ = m.watcher.Run(ctx, func(err error) {
				m.reportFatal(fmt.Errorf("watcher %s: %w", m.watcher.ID(), err))
			})
		}()
	}
}
