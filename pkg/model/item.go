package model

import (
	"errors"
	"time"
)

const CollectionItems = "items"

// Category classifies an inventory item.
type Category string

const CategoryConsumable Category = "consumable"

// NotificationEvent is the cause a notification policy reacts to.
type NotificationEvent string

const EventLowStock NotificationEvent = "LOW_STOCK"

// Audience names a group of recipients. It is resolved to identities
// by the delivery side, never by the notification pipeline.
type Audience string

const AudienceLabAdmins Audience = "LAB_ADMINS"

// Threshold is the low-stock alert configuration of an item.
type Threshold struct {
	MinQuantity     int       `bson:"minQuantity" json:"minQuantity"`
	Enabled         bool      `bson:"enabled" json:"enabled"`
	LastAlertSentAt time.Time `bson:"lastAlertSentAt" json:"lastAlertSentAt"`
	// RecoveredAt is when the quantity was last seen back above
	// MinQuantity after an alert. It re-arms alerting.
	RecoveredAt time.Time `bson:"recoveredAt" json:"recoveredAt"`
}

// NotificationPolicy says which event an item notifies about and to whom.
type NotificationPolicy struct {
	Event    NotificationEvent `bson:"event" json:"event"`
	Audience Audience          `bson:"audience" json:"audience"`
}

type Item struct {
	ID                 string             `bson:"_id" json:"id"`
	LabID              string             `bson:"labId" json:"labId"`
	Name               string             `bson:"name" json:"name"`
	Category           Category           `bson:"category" json:"category"`
	Quantity           int                `bson:"quantity" json:"quantity"`
	Threshold          Threshold          `bson:"threshold" json:"threshold"`
	NotificationPolicy NotificationPolicy `bson:"notificationPolicy" json:"notificationPolicy"`
	CreatedAt          time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Validate performs the required-field checks done on item creation.
func (i *Item) Validate() error {
	if i.LabID == "" {
		return errors.New("labId is required")
	}
	if i.Name == "" {
		return errors.New("name is required")
	}
	if i.Quantity < 0 {
		return errors.New("quantity must be non-negative")
	}
	if i.Threshold.MinQuantity < 0 {
		return errors.New("threshold.minQuantity must be non-negative")
	}
	if i.Category == "" {
		i.Category = CategoryConsumable
	}
	if i.NotificationPolicy.Event == "" {
		i.NotificationPolicy.Event = EventLowStock
	}
	if i.NotificationPolicy.Audience == "" {
		i.NotificationPolicy.Audience = AudienceLabAdmins
	}
	return nil
}
