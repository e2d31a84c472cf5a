package model

import "time"

const CollectionNotifications = "notifications"

// Notification is a durable, append-only record of a qualifying mutation.
// IdempotencyKey is unique across the collection.
type Notification struct {
	ID             string    `bson:"_id" json:"id"`
	LabID          string    `bson:"labId" json:"labId"`
	Type           string    `bson:"type" json:"type"`
	ResourceID     string    `bson:"resourceId" json:"resourceId"`
	Recipients     []string  `bson:"recipients" json:"recipients"`
	IdempotencyKey string    `bson:"idempotencyKey" json:"idempotencyKey"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
}
