// Package health reports the state of the notification watchers.
package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labdepot/labdepot/internal/notify/watcher"
)

// Status represents the health status of the pipeline.
type Status string

const (
	StatusOK        Status = "ok"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// WatcherHealth represents the health of a single watcher.
type WatcherHealth struct {
	Name       string    `json:"name"`
	Status     Status    `json:"status"`
	State      string    `json:"state"`
	Since      time.Time `json:"since"`
	Reconnects int       `json:"reconnects"`
	LastError  string    `json:"lastError,omitempty"`
}

// Report is the full health report.
type Report struct {
	Status    Status          `json:"status"`
	Uptime    string          `json:"uptime"`
	StartedAt time.Time       `json:"startedAt"`
	Watchers  []WatcherHealth `json:"watchers"`
}

// Checker tracks watcher states. Its OnStateChange method is a
// watcher.StateListener.
type Checker struct {
	startedAt time.Time
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.RWMutex
	watchers map[string]*WatcherHealth
}

func NewChecker(logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		startedAt: time.Now(),
		now:       time.Now,
		logger:    logger.With("component", "health"),
		watchers:  make(map[string]*WatcherHealth),
	}
}

// RegisterWatcher starts tracking a watcher in the starting state.
func (h *Checker) RegisterWatcher(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.watchers[name] = &WatcherHealth{
		Name:   name,
		Status: StatusDegraded,
		State:  watcher.StateStarting.String(),
		Since:  h.now(),
	}
}

// OnStateChange records a watcher transition.
func (h *Checker) OnStateChange(name string, _, to watcher.State, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	wh, ok := h.watchers[name]
	if !ok {
		wh = &WatcherHealth{Name: name}
		h.watchers[name] = wh
	}
	wh.State = to.String()
	wh.Since = h.now()
	wh.Status = statusFor(to)
	if to == watcher.StateReconnecting {
		wh.Reconnects++
	}
	if err != nil {
		wh.LastError = err.Error()
	}
	if to == watcher.StateFatal {
		h.logger.Error("Watcher is unhealthy", "watcher", name, "error", err)
	}
}

func statusFor(s watcher.State) Status {
	switch s {
	case watcher.StateConnected:
		return StatusOK
	case watcher.StateFatal, watcher.StateStopped:
		return StatusUnhealthy
	default:
		return StatusDegraded
	}
}

// GetReport returns the current health report.
func (h *Checker) GetReport() Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	report := Report{
		Status:    StatusOK,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		StartedAt: h.startedAt,
		Watchers:  make([]WatcherHealth, 0, len(h.watchers)),
	}

	for _, wh := range h.watchers {
		report.Watchers = append(report.Watchers, *wh)

		if wh.Status == StatusUnhealthy {
			report.Status = StatusUnhealthy
		} else if wh.Status == StatusDegraded && report.Status == StatusOK {
			report.Status = StatusDegraded
		}
	}
	sort.Slice(report.Watchers, func(i, j int) bool { return report.Watchers[i].Name < report.Watchers[j].Name })

	return report
}

// Check returns the overall health status.
func (h *Checker) Check() Status {
	return h.GetReport().Status
}

// ServeHTTP implements http.Handler for the health endpoint.
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.GetReport()

	w.Header().Set("Content-Type", "application/json")

	switch report.Status {
	case StatusOK, StatusDegraded:
		w.WriteHeader(http.StatusOK)
	case StatusUnhealthy:
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_ = json.NewEncoder(w).Encode(report)
}
