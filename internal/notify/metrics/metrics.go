package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Watcher
	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "labdepot_watcher_events_total",
		Help: "The total number of change events received, by outcome",
	}, []string{"watcher", "outcome"})

	ProcessingLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "labdepot_watcher_processing_seconds",
		Help: "The time spent evaluating and writing one change event",
	}, []string{"watcher"})

	Reconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "labdepot_watcher_reconnects_total",
		Help: "The total number of resubscriptions after a transient error",
	}, []string{"watcher"})

	WatcherState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "labdepot_watcher_state",
		Help: "Current watcher state: 0 starting, 1 connected, 2 reconnecting, 3 fatal, 4 stopped",
	}, []string{"watcher"})

	// Checkpoints
	CheckpointsSaved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "labdepot_checkpoints_saved_total",
		Help: "The total number of checkpoints saved",
	}, []string{"watcher"})

	CheckpointErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "labdepot_checkpoint_errors_total",
		Help: "The total number of checkpoint save errors",
	}, []string{"watcher"})

	// Notifications
	NotificationsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "labdepot_notifications_total",
		Help: "The total number of notification writes, by result",
	}, []string{"cause", "result"})

	PublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "labdepot_notification_publish_errors_total",
		Help: "The total number of notifications that could not be announced on the sink",
	})
)

// Event outcomes.
const (
	OutcomeNotified  = "notified"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
	OutcomeRearmed   = "rearmed"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

// Write results.
const (
	ResultCreated   = "created"
	ResultDuplicate = "duplicate"
	ResultError     = "error"
)

func init() {
	prometheus.MustRegister(EventsReceived)
	prometheus.MustRegister(ProcessingLatency)
	prometheus.MustRegister(Reconnects)
	prometheus.MustRegister(WatcherState)
	prometheus.MustRegister(CheckpointsSaved)
	prometheus.MustRegister(CheckpointErrors)
	prometheus.MustRegister(NotificationsWritten)
	prometheus.MustRegister(PublishErrors)
}
