package policy

import (
	"testing"
	"time"

	"github.com/labdepot/labdepot/internal/notify/events"
	"github.com/labdepot/labdepot/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

var observed = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func updateEvent(fields ...string) *events.ChangeEvent {
	return &events.ChangeEvent{
		Collection:    model.CollectionItems,
		OperationType: events.OperationUpdate,
		DocumentID:    "64b7f0c2a1b2c3d4e5f60718",
		FullDocument:  model.Document{"_id": "64b7f0c2a1b2c3d4e5f60718"},
		UpdatedFields: fields,
		ResumeToken:   bson.Raw{0x05, 0, 0, 0, 0},
		ObservedAt:    observed,
	}
}

func lowStock() ThresholdConfig {
	return ThresholdConfig{
		LabID:       "lab-1",
		ItemID:      "64b7f0c2a1b2c3d4e5f60718",
		Quantity:    2,
		MinQuantity: 5,
		Enabled:     true,
		Cause:       model.EventLowStock,
		Audience:    model.AudienceLabAdmins,
	}
}

func TestDecide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  func() *events.ChangeEvent
		config func() ThresholdConfig
		want   bool
	}{
		{
			name:   "below threshold never alerted",
			event:  func() *events.ChangeEvent { return updateEvent("quantity") },
			config: lowStock,
			want:   true,
		},
		{
			name:  "exactly at threshold",
			event: func() *events.ChangeEvent { return updateEvent("quantity") },
			config: func() ThresholdConfig {
				c := lowStock()
				c.Quantity = 5
				return c
			},
			want: true,
		},
		{
			name:  "above threshold",
			event: func() *events.ChangeEvent { return updateEvent("quantity") },
			config: func() ThresholdConfig {
				c := lowStock()
				c.Quantity = 6
				return c
			},
			want: false,
		},
		{
			name:  "threshold disabled",
			event: func() *events.ChangeEvent { return updateEvent("quantity") },
			config: func() ThresholdConfig {
				c := lowStock()
				c.Enabled = false
				return c
			},
			want: false,
		},
		{
			name:  "alerted before the mutation and recovered since",
			event: func() *events.ChangeEvent { return updateEvent("quantity") },
			config: func() ThresholdConfig {
				c := lowStock()
				c.LastAlertSentAt = observed.Add(-time.Minute)
				c.RecoveredAt = observed.Add(-30 * time.Second)
				return c
			},
			want: true,
		},
		{
			name:  "still below threshold since the last alert",
			event: func() *events.ChangeEvent { return updateEvent("quantity") },
			config: func() ThresholdConfig {
				c := lowStock()
				c.LastAlertSentAt = observed.Add(-time.Minute)
				return c
			},
			want: false,
		},
		{
			name:  "recovery predates the last alert",
			event: func() *events.ChangeEvent { return updateEvent("quantity") },
			config: func() ThresholdConfig {
				c := lowStock()
				c.RecoveredAt = observed.Add(-time.Hour)
				c.LastAlertSentAt = observed.Add(-time.Minute)
				return c
			},
			want: false,
		},
		{
			name:  "alerted after the mutation",
			event: func() *events.ChangeEvent { return updateEvent("quantity") },
			config: func() ThresholdConfig {
				c := lowStock()
				c.RecoveredAt = observed.Add(-time.Hour)
				c.LastAlertSentAt = observed.Add(time.Second)
				return c
			},
			want: false,
		},
		{
			name:  "within cooldown",
			event: func() *events.ChangeEvent { return updateEvent("quantity") },
			config: func() ThresholdConfig {
				c := lowStock()
				c.LastAlertSentAt = observed.Add(-time.Minute)
				c.RecoveredAt = observed.Add(-30 * time.Second)
				c.Cooldown = time.Hour
				return c
			},
			want: false,
		},
		{
			name:   "self induced alert stamp",
			event:  func() *events.ChangeEvent { return updateEvent(LastAlertSentAtPath) },
			config: lowStock,
			want:   false,
		},
		{
			name:   "self induced recovery stamp",
			event:  func() *events.ChangeEvent { return updateEvent(RecoveredAtPath, LastAlertSentAtPath) },
			config: lowStock,
			want:   false,
		},
		{
			name: "insert is not an update",
			event: func() *events.ChangeEvent {
				e := updateEvent()
				e.OperationType = events.OperationInsert
				return e
			},
			config: lowStock,
			want:   false,
		},
		{
			name: "missing full document",
			event: func() *events.ChangeEvent {
				e := updateEvent("quantity")
				e.FullDocument = nil
				return e
			},
			config: lowStock,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := Decide(tt.event(), tt.config())
			if !tt.want {
				assert.Nil(t, draft)
				return
			}
			require.NotNil(t, draft)
			assert.Equal(t, "lab-1", draft.LabID)
			assert.Equal(t, "64b7f0c2a1b2c3d4e5f60718", draft.ResourceID)
			assert.Equal(t, model.EventLowStock, draft.Cause)
			assert.Equal(t, observed, draft.ObservedAt)
			assert.Equal(t, []RecipientRef{{Audience: model.AudienceLabAdmins, LabID: "lab-1"}}, draft.Recipients)
		})
	}
}

func TestRecover(t *testing.T) {
	t.Parallel()

	alerted := func() ThresholdConfig {
		c := lowStock()
		c.Quantity = 8
		c.LastAlertSentAt = observed.Add(-time.Minute)
		return c
	}

	tests := []struct {
		name   string
		event  *events.ChangeEvent
		config func() ThresholdConfig
		want   bool
	}{
		{name: "back above the minimum after an alert", event: updateEvent("quantity"), config: alerted, want: true},
		{
			name:  "still below the minimum",
			event: updateEvent("quantity"),
			config: func() ThresholdConfig {
				c := alerted()
				c.Quantity = 5
				return c
			},
			want: false,
		},
		{
			name:  "never alerted",
			event: updateEvent("quantity"),
			config: func() ThresholdConfig {
				c := alerted()
				c.LastAlertSentAt = time.Time{}
				return c
			},
			want: false,
		},
		{
			name:  "recovery already recorded",
			event: updateEvent("quantity"),
			config: func() ThresholdConfig {
				c := alerted()
				c.RecoveredAt = observed.Add(-time.Second)
				return c
			},
			want: false,
		},
		{
			name:  "disabled thresholds still recover",
			event: updateEvent("quantity"),
			config: func() ThresholdConfig {
				c := alerted()
				c.Enabled = false
				return c
			},
			want: true,
		},
		{name: "own recovery stamp", event: updateEvent(RecoveredAtPath), config: alerted, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Recover(tt.event, tt.config())
			if !tt.want {
				assert.Nil(t, r)
				return
			}
			require.NotNil(t, r)
			assert.Equal(t, "64b7f0c2a1b2c3d4e5f60718", r.ResourceID)
			assert.Equal(t, observed, r.ObservedAt)
		})
	}
}

func TestThresholdFromItem_Defaults(t *testing.T) {
	t.Parallel()
	cfg := ThresholdFromItem(&model.Item{ID: "i", LabID: "l"}, time.Minute)
	assert.Equal(t, model.EventLowStock, cfg.Cause)
	assert.Equal(t, model.AudienceLabAdmins, cfg.Audience)
	assert.Equal(t, time.Minute, cfg.Cooldown)
}

func TestDraft_AudienceTags(t *testing.T) {
	t.Parallel()
	d := &Draft{Recipients: []RecipientRef{
		{Audience: model.AudienceLabAdmins, LabID: "a"},
		{Audience: model.AudienceLabAdmins, LabID: "b"},
		{Audience: "PI", LabID: "a"},
	}}
	assert.Equal(t, []string{"LAB_ADMINS", "PI"}, d.AudienceTags())
}
