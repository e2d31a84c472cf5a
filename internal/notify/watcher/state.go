package watcher

import (
	"sync"

	"github.com/labdepot/labdepot/internal/notify/metrics"
)

// State is the lifecycle state of a watcher.
type State int

const (
	StateStarting State = iota
	StateConnected
	StateReconnecting
	StateFatal
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFatal:
		return "fatal"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StateListener observes every state transition of a watcher. err is the
// cause of a Reconnecting or Fatal transition and nil otherwise.
// Listeners run synchronously on the watcher goroutine.
type StateListener func(watcherID string, from, to State, err error)

type stateMachine struct {
	mu        sync.RWMutex
	id        string
	current   State
	listeners []StateListener
}

func (m *stateMachine) get() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// set records the transition and notifies listeners. Self transitions are
// dropped, except Reconnecting which is reported once per attempt.
func (m *stateMachine) set(to State, cause error) {
	m.mu.Lock()
	from := m.current
	if from == to && to != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.current = to
	listeners := append([]StateListener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l(m.id, from, to, cause)
	}
}

func recordStateMetric(watcherID string, _, to State, _ error) {
	metrics.WatcherState.WithLabelValues(watcherID).Set(float64(to))
}
