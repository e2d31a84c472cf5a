// Package watcher runs the change-driven notification loop: it follows a
// collection's change stream, evaluates each mutation and records the
// resulting notifications, checkpointing its position as it goes.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/labdepot/labdepot/internal/notify/checkpoint"
	"github.com/labdepot/labdepot/internal/notify/events"
	"github.com/labdepot/labdepot/internal/notify/metrics"
	"github.com/labdepot/labdepot/internal/notify/policy"
	"github.com/labdepot/labdepot/internal/notify/writer"
	"github.com/labdepot/labdepot/internal/storage"
	"github.com/labdepot/labdepot/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
)

// Evaluator decides whether an event needs a notification, or re-arms
// alerting for an item that recovered.
type Evaluator interface {
	Evaluate(evt *events.ChangeEvent) (*policy.Draft, error)
	Rearm(evt *events.ChangeEvent) (*policy.Rearm, error)
}

// NotificationWriter persists drafts and recoveries.
type NotificationWriter interface {
	Write(ctx context.Context, d *policy.Draft) (*model.Notification, error)
	Rearm(ctx context.Context, r *policy.Rearm) error
}

// Config configures one watcher.
type Config struct {
	// ID keys the watcher's checkpoint. Two watchers must not share an ID.
	ID         string  `yaml:"id"`
	Collection string  `yaml:"collection"`
	Backoff    Backoff `yaml:"backoff"`
}

func DefaultConfig() Config {
	return Config{
		ID:         "items-low-stock",
		Collection: model.CollectionItems,
		Backoff:    DefaultBackoff(),
	}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithStateListener registers l for every state transition.
func WithStateListener(l StateListener) Option {
	return func(w *Watcher) { w.state.listeners = append(w.state.listeners, l) }
}

// WithSleep replaces the backoff sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(w *Watcher) { w.sleep = fn }
}

type Watcher struct {
	cfg         Config
	feed        storage.ChangeFeed
	evaluator   Evaluator
	writer      NotificationWriter
	checkpoints checkpoint.Store
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger

	state stateMachine

	// token is the last durably checkpointed position; nil means "now".
	token bson.Raw
}

func New(cfg Config, feed storage.ChangeFeed, evaluator Evaluator, w NotificationWriter, checkpoints checkpoint.Store, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	if feed == nil || evaluator == nil || w == nil || checkpoints == nil {
		return nil, errors.New("watcher: feed, evaluator, writer and checkpoint store are required")
	}
	d := DefaultConfig()
	if cfg.ID == "" {
		cfg.ID = d.ID
	}
	if cfg.Collection == "" {
		cfg.Collection = d.Collection
	}
	cfg.Backoff.applyDefaults()

	if logger == nil {
		logger = slog.Default()
	}
	wt := &Watcher{
		cfg:         cfg,
		feed:        feed,
		evaluator:   evaluator,
		writer:      w,
		checkpoints: checkpoints,
		sleep:       sleep,
		logger:      logger.With("component", "watcher", "watcher", cfg.ID, "collection", cfg.Collection),
		state:       stateMachine{id: cfg.ID, listeners: []StateListener{recordStateMetric}},
	}
	for _, opt := range opts {
		opt(wt)
	}
	return wt, nil
}

func (w *Watcher) ID() string { return w.cfg.ID }

func (w *Watcher) State() State { return w.state.get() }

// Run processes change events until ctx is cancelled (returning nil) or a
// fatal error occurs. A fatal error is passed to onFatal, if set, and
// returned. Fatal errors match ErrResumeTokenExpired or are a
// *writer.PersistenceFailure.
func (w *Watcher) Run(ctx context.Context, onFatal func(error)) error {
	w.logger.Info("Starting watcher")

	if err := w.loadCheckpoint(ctx); err != nil {
		w.state.set(StateStopped, nil)
		return nil
	}

	attempt := 0
	for {
		err := w.watch(ctx, &attempt)
		if ctx.Err() != nil {
			w.state.set(StateStopped, nil)
			w.logger.Info("Watcher stopped")
			return nil
		}

		var pf *writer.PersistenceFailure
		if errors.Is(err, ErrResumeTokenExpired) || errors.As(err, &pf) {
			w.state.set(StateFatal, err)
			w.logger.Error("Watcher stopped on fatal error", "error", err)
			if onFatal != nil {
				onFatal(err)
			}
			return err
		}

		delay := w.cfg.Backoff.Delay(attempt)
		attempt++
		metrics.Reconnects.WithLabelValues(w.cfg.ID).Inc()
		w.state.set(StateReconnecting, err)
		w.logger.Warn("Change stream interrupted, reconnecting", "error", err, "attempt", attempt, "delay", delay)

		if err := w.sleep(ctx, delay); err != nil {
			w.state.set(StateStopped, nil)
			w.logger.Info("Watcher stopped")
			return nil
		}
	}
}

// loadCheckpoint retries until the checkpoint store answers. It only
// fails when ctx is done.
func (w *Watcher) loadCheckpoint(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		cp, err := w.checkpoints.Load(ctx, w.cfg.ID)
		if err == nil {
			if cp != nil {
				w.token = cp.Token
				w.logger.Info("Resuming from checkpoint", "updatedAt", cp.UpdatedAt)
			} else {
				w.logger.Info("No checkpoint, starting from now")
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := w.cfg.Backoff.Delay(attempt)
		w.state.set(StateReconnecting, err)
		w.logger.Warn("Failed to load checkpoint, retrying", "error", err, "delay", delay)
		if err := w.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// watch runs one subscription to its end. The returned error is fatal,
// transient or, on cancellation, irrelevant.
func (w *Watcher) watch(ctx context.Context, attempt *int) error {
	sub, err := w.feed.Subscribe(ctx, w.cfg.Collection, w.token)
	if err != nil {
		return w.classify(err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = sub.Close(closeCtx)
	}()

	w.state.set(StateConnected, nil)
	w.logger.Info("Change stream opened", "resumed", w.token != nil)

	// Event processing is not interrupted by cancellation; ctx is only
	// checked between events.
	procCtx := context.WithoutCancel(ctx)

	if w.token == nil {
		if initial := sub.ResumeToken(); initial != nil {
			w.saveCheckpoint(procCtx, initial)
		}
	}

	for sub.Next(ctx) {
		if err := w.process(procCtx, sub.Current(), sub.ResumeToken()); err != nil {
			return err
		}
		*attempt = 0
		if ctx.Err() != nil {
			return nil
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	err = sub.Err()
	if err == nil {
		err = errStreamEnded
	}
	return w.classify(err)
}

func (w *Watcher) classify(err error) error {
	if w.feed.IsTokenExpired(err) {
		return expired(err)
	}
	return &TransientSubscriptionError{Err: err}
}

// process handles one notice. Only a persistence failure is returned; every
// other outcome advances the checkpoint to token.
func (w *Watcher) process(ctx context.Context, raw bson.Raw, token bson.Raw) error {
	start := time.Now()
	outcome := w.handle(ctx, raw)
	metrics.ProcessingLatency.WithLabelValues(w.cfg.ID).Observe(time.Since(start).Seconds())
	metrics.EventsReceived.WithLabelValues(w.cfg.ID, outcome.label).Inc()

	if outcome.err != nil {
		return outcome.err
	}
	w.saveCheckpoint(ctx, token)
	return nil
}

type result struct {
	label string
	err   error
}

func (w *Watcher) handle(ctx context.Context, raw bson.Raw) result {
	evt, err := events.Normalize(raw)
	if err != nil {
		w.logger.Warn("Dropping malformed change event", "error", err)
		return result{label: metrics.OutcomeMalformed}
	}
	logger := w.logger.With("op", evt.OperationType, "documentId", evt.DocumentID)

	if evt.OperationType != events.OperationUpdate {
		logger.Debug("Ignoring non-update event")
		return result{label: metrics.OutcomeSkipped}
	}
	if err := evt.RequireFullDocument(); err != nil {
		logger.Info("Ignoring update without full document", "error", err)
		return result{label: metrics.OutcomeMalformed}
	}

	draft, err := w.evaluator.Evaluate(evt)
	if err != nil {
		logger.Warn("Failed to evaluate change event", "error", err)
		return result{label: metrics.OutcomeMalformed}
	}
	if draft == nil {
		return w.rearm(ctx, logger, evt)
	}

	rec, err := w.writer.Write(ctx, draft)
	switch {
	case err == nil:
		logger.Info("Low stock notification created", "notificationId", rec.ID, "labId", rec.LabID)
		return result{label: metrics.OutcomeNotified}
	case errors.Is(err, writer.ErrDuplicateNotification):
		logger.Info("Notification already exists for event", "error", err)
		return result{label: metrics.OutcomeDuplicate}
	default:
		var pf *writer.PersistenceFailure
		if !errors.As(err, &pf) {
			err = &writer.PersistenceFailure{Key: writer.IdempotencyKey(draft), Err: err}
		}
		return result{label: metrics.OutcomeFailed, err: fmt.Errorf("write notification: %w", err)}
	}
}

// rearm records a recovery, if evt shows one. A failure is logged only: the
// next update above the minimum retries it.
func (w *Watcher) rearm(ctx context.Context, logger *slog.Logger, evt *events.ChangeEvent) result {
	r, err := w.evaluator.Rearm(evt)
	if err != nil {
		logger.Warn("Failed to evaluate change event", "error", err)
		return result{label: metrics.OutcomeMalformed}
	}
	if r == nil {
		return result{label: metrics.OutcomeSkipped}
	}
	if err := w.writer.Rearm(ctx, r); err != nil {
		logger.Warn("Failed to re-arm item", "error", err)
		return result{label: metrics.OutcomeSkipped}
	}
	return result{label: metrics.OutcomeRearmed}
}

// saveCheckpoint persists token. Failures are logged and counted; the
// in-memory position stays at the last durable token.
func (w *Watcher) saveCheckpoint(ctx context.Context, token bson.Raw) {
	if token == nil {
		return
	}
	err := w.checkpoints.Save(ctx, checkpoint.Checkpoint{
		WatcherID: w.cfg.ID,
		Token:     token,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		metrics.CheckpointErrors.WithLabelValues(w.cfg.ID).Inc()
		w.logger.Error("Failed to save checkpoint", "error", err)
		return
	}
	metrics.CheckpointsSaved.WithLabelValues(w.cfg.ID).Inc()
	w.token = append(bson.Raw(nil), token...)
}
