// Package policy decides whether a change event is a notifiable
// low-stock condition. It has no side effects.
package policy

import (
	"time"

	"github.com/labdepot/labdepot/internal/notify/events"
	"github.com/labdepot/labdepot/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
)

// LastAlertSentAtPath is the field the writer stamps after a notification.
// RecoveredAtPath is stamped when an alerted item is seen back above its
// minimum. Updates that touch only these fields never produce a draft.
const (
	LastAlertSentAtPath = "threshold.lastAlertSentAt"
	RecoveredAtPath     = "threshold.recoveredAt"
)

// ThresholdConfig is the alerting state of one item at the time of an event.
type ThresholdConfig struct {
	LabID           string
	ItemID          string
	Quantity        int
	MinQuantity     int
	Enabled         bool
	LastAlertSentAt time.Time
	RecoveredAt     time.Time
	Cause           model.NotificationEvent
	Audience        model.Audience

	// Cooldown is the minimum gap between two alerts of the same item,
	// on top of the item having recovered in between.
	Cooldown time.Duration
}

// ThresholdFromItem extracts the threshold config of item, filling policy defaults.
func ThresholdFromItem(item *model.Item, cooldown time.Duration) ThresholdConfig {
	cfg := ThresholdConfig{
		LabID:           item.LabID,
		ItemID:          item.ID,
		Quantity:        item.Quantity,
		MinQuantity:     item.Threshold.MinQuantity,
		Enabled:         item.Threshold.Enabled,
		LastAlertSentAt: item.Threshold.LastAlertSentAt,
		RecoveredAt:     item.Threshold.RecoveredAt,
		Cause:           item.NotificationPolicy.Event,
		Audience:        item.NotificationPolicy.Audience,
		Cooldown:        cooldown,
	}
	if cfg.Cause == "" {
		cfg.Cause = model.EventLowStock
	}
	if cfg.Audience == "" {
		cfg.Audience = model.AudienceLabAdmins
	}
	return cfg
}

// RecipientRef is a symbolic recipient. Audience tags are resolved to
// identities by delivery, not here.
type RecipientRef struct {
	Audience model.Audience
	LabID    string
}

// Draft is an intent to notify, not yet persisted.
type Draft struct {
	LabID       string
	ResourceID  string
	Cause       model.NotificationEvent
	Recipients  []RecipientRef
	ResumeToken bson.Raw
	ObservedAt  time.Time
}

// AudienceTags returns the recipients as stored audience tags, without duplicates.
func (d *Draft) AudienceTags() []string {
	tags := make([]string, 0, len(d.Recipients))
	seen := make(map[model.Audience]struct{}, len(d.Recipients))
	for _, r := range d.Recipients {
		if _, ok := seen[r.Audience]; ok {
			continue
		}
		seen[r.Audience] = struct{}{}
		tags = append(tags, string(r.Audience))
	}
	return tags
}

// Armed reports whether a new low-stock episode may be alerted: the item
// was never alerted, or it recovered after its last alert.
func (c ThresholdConfig) Armed() bool {
	return c.LastAlertSentAt.IsZero() || c.RecoveredAt.After(c.LastAlertSentAt)
}

// Decide returns a Draft when evt shows an enabled item at or below its
// minimum while alerting is armed and the last alert predates the event by
// more than the cooldown. Otherwise it returns nil.
func Decide(evt *events.ChangeEvent, cfg ThresholdConfig) *Draft {
	if !isItemUpdate(evt) {
		return nil
	}
	if !cfg.Enabled || cfg.Quantity > cfg.MinQuantity {
		return nil
	}
	if !cfg.Armed() {
		return nil
	}
	if !cfg.LastAlertSentAt.IsZero() && !cfg.LastAlertSentAt.Add(cfg.Cooldown).Before(evt.ObservedAt) {
		return nil
	}

	return &Draft{
		LabID:       cfg.LabID,
		ResourceID:  resourceID(evt, cfg),
		Cause:       cfg.Cause,
		Recipients:  []RecipientRef{{Audience: cfg.Audience, LabID: cfg.LabID}},
		ResumeToken: evt.ResumeToken,
		ObservedAt:  evt.ObservedAt,
	}
}

// Rearm is an intent to record that an alerted item recovered.
type Rearm struct {
	ResourceID string
	ObservedAt time.Time
}

// Recover returns a Rearm when evt shows an alerted item back above its
// minimum and no recovery has been recorded since that alert.
func Recover(evt *events.ChangeEvent, cfg ThresholdConfig) *Rearm {
	if !isItemUpdate(evt) {
		return nil
	}
	if cfg.Quantity <= cfg.MinQuantity || cfg.Armed() {
		return nil
	}
	return &Rearm{ResourceID: resourceID(evt, cfg), ObservedAt: evt.ObservedAt}
}

// isItemUpdate excludes everything but updates with a full document, and
// the pipeline's own bookkeeping writes.
func isItemUpdate(evt *events.ChangeEvent) bool {
	if evt == nil || evt.OperationType != events.OperationUpdate || evt.FullDocument == nil {
		return false
	}
	return !evt.OnlyUpdated(LastAlertSentAtPath, RecoveredAtPath)
}

func resourceID(evt *events.ChangeEvent, cfg ThresholdConfig) string {
	if cfg.ItemID != "" {
		return cfg.ItemID
	}
	return evt.DocumentID
}
