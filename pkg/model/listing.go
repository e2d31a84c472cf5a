package model

import (
	"errors"
	"time"
)

const CollectionListings = "listings"

type ListingStatus string

const (
	ListingActive   ListingStatus = "ACTIVE"
	ListingInactive ListingStatus = "INACTIVE"
)

// Listing offers a quantity of a lab's item to other labs.
// (itemId, labId, createdAt) is unique.
type Listing struct {
	ID                string        `bson:"_id" json:"id"`
	ItemID            string        `bson:"itemId" json:"itemId"`
	LabID             string        `bson:"labId" json:"labId"`
	QuantityAvailable int           `bson:"quantityAvailable" json:"quantityAvailable"`
	Images            []string      `bson:"images,omitempty" json:"images,omitempty"`
	Status            ListingStatus `bson:"status" json:"status"`
	CreatedAt         time.Time     `bson:"createdAt" json:"createdAt"`
}

func (l *Listing) Validate() error {
	if l.ItemID == "" {
		return errors.New("itemId is required")
	}
	if l.LabID == "" {
		return errors.New("labId is required")
	}
	if l.QuantityAvailable < 1 {
		return errors.New("quantityAvailable must be at least 1")
	}
	switch l.Status {
	case "":
		l.Status = ListingActive
	case ListingActive, ListingInactive:
	default:
		return errors.New("status must be ACTIVE or INACTIVE")
	}
	return nil
}
