// Package writer persists notification drafts exactly once per
// qualifying mutation.
package writer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labdepot/labdepot/internal/notify/metrics"
	"github.com/labdepot/labdepot/internal/notify/policy"
	"github.com/labdepot/labdepot/internal/pubsub"
	"github.com/labdepot/labdepot/internal/storage"
	"github.com/labdepot/labdepot/pkg/model"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// keyNamespace scopes idempotency keys to notification records.
var keyNamespace = uuid.MustParse("6f1c7a52-3d0e-4c8b-9a57-2b1e5d0c8f43")

// IdempotencyKey derives the record key from the resource, the cause and
// the position of the triggering event in the change stream. Redelivery
// of the same event yields the same key.
func IdempotencyKey(d *policy.Draft) string {
	name := d.ResourceID + "|" + string(d.Cause) + "|" + base64.StdEncoding.EncodeToString(d.ResumeToken)
	return uuid.NewSHA1(keyNamespace, []byte(name)).String()
}

// Option configures a Writer.
type Option func(*Writer)

// WithPublisher announces each new record on p.
func WithPublisher(p pubsub.Publisher) Option {
	return func(w *Writer) { w.publisher = p }
}

// WithClock overrides the record creation clock.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

type Writer struct {
	store     storage.Store
	publisher pubsub.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

func New(store storage.Store, logger *slog.Logger, opts ...Option) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		store:  store,
		now:    time.Now,
		logger: logger.With("component", "notification-writer"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write persists d. On a duplicate key it returns the existing record (or
// the would-be record if it cannot be read back) together with an error
// matching ErrDuplicateNotification. Any other store error is returned as
// a *PersistenceFailure.
func (w *Writer) Write(ctx context.Context, d *policy.Draft) (*model.Notification, error) {
	key := IdempotencyKey(d)
	rec := &model.Notification{
		ID:             primitive.NewObjectID().Hex(),
		LabID:          d.LabID,
		Type:           string(d.Cause),
		ResourceID:     d.ResourceID,
		Recipients:     d.AudienceTags(),
		IdempotencyKey: key,
		CreatedAt:      w.now().UTC(),
	}

	doc, err := model.ToDocument(rec)
	if err != nil {
		metrics.NotificationsWritten.WithLabelValues(string(d.Cause), metrics.ResultError).Inc()
		return nil, &PersistenceFailure{Key: key, Err: err}
	}

	err = w.store.CreateUnique(ctx, model.CollectionNotifications, key, doc)
	if errors.Is(err, model.ErrExists) {
		metrics.NotificationsWritten.WithLabelValues(string(d.Cause), metrics.ResultDuplicate).Inc()
		w.logger.Info("Notification already recorded", "key", key, "resourceId", d.ResourceID)
		// A previous attempt may have stopped before stamping the item.
		w.markAlerted(ctx, d)
		if existing := w.lookup(ctx, key); existing != nil {
			rec = existing
		}
		return rec, fmt.Errorf("%w: key %s", ErrDuplicateNotification, key)
	}
	if err != nil {
		metrics.NotificationsWritten.WithLabelValues(string(d.Cause), metrics.ResultError).Inc()
		return nil, &PersistenceFailure{Key: key, Err: err}
	}

	metrics.NotificationsWritten.WithLabelValues(string(d.Cause), metrics.ResultCreated).Inc()
	w.logger.Info("Notification recorded",
		"id", rec.ID, "labId", rec.LabID, "resourceId", rec.ResourceID, "type", rec.Type)

	w.markAlerted(ctx, d)
	w.announce(ctx, rec)
	return rec, nil
}

// markAlerted stamps the item so later updates within the same low-stock
// episode are not notified again, until Rearm records a recovery. Failure
// only costs a possible repeat alert.
func (w *Writer) markAlerted(ctx context.Context, d *policy.Draft) {
	_, err := w.store.FindByIDAndUpdate(ctx, model.CollectionItems, d.ResourceID, model.Document{
		policy.LastAlertSentAtPath: d.ObservedAt.UTC(),
	})
	if err != nil {
		w.logger.Warn("Failed to mark item alerted", "resourceId", d.ResourceID, "error", err)
	}
}

// Rearm records that an alerted item is back above its minimum, so its next
// drop is notified again. A deleted item is not an error.
func (w *Writer) Rearm(ctx context.Context, r *policy.Rearm) error {
	_, err := w.store.FindByIDAndUpdate(ctx, model.CollectionItems, r.ResourceID, model.Document{
		policy.RecoveredAtPath: r.ObservedAt.UTC(),
	})
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to re-arm item %s: %w", r.ResourceID, err)
	}
	w.logger.Info("Item recovered, alerting re-armed", "resourceId", r.ResourceID)
	return nil
}

func (w *Writer) announce(ctx context.Context, rec *model.Notification) {
	if w.publisher == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		w.logger.Error("Failed to encode notification", "id", rec.ID, "error", err)
		return
	}
	if err := w.publisher.Publish(ctx, rec.LabID, data); err != nil {
		metrics.PublishErrors.Inc()
		w.logger.Warn("Failed to publish notification", "id", rec.ID, "labId", rec.LabID, "error", err)
	}
}

func (w *Writer) lookup(ctx context.Context, key string) *model.Notification {
	docs, err := w.store.Find(ctx, model.CollectionNotifications, model.Query{
		Filters: model.Filters{model.Eq(storage.IdempotencyKeyField, key)},
		Limit:   1,
	})
	if err != nil || len(docs) == 0 {
		return nil
	}
	var rec model.Notification
	if err := model.DecodeDocument(docs[0], &rec); err != nil {
		return nil
	}
	return &rec
}
