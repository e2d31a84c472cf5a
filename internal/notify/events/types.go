// Package events defines the normalized change event consumed by the
// notification pipeline.
package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/labdepot/labdepot/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrMalformedChangeEvent is returned for change notices that cannot be
// evaluated: undecodable, unknown operation type, missing document key or
// resume token, or an update whose full document could not be resolved.
var ErrMalformedChangeEvent = errors.New("malformed change event")

// OperationType represents the type of change operation.
// All values are lowercase to match MongoDB change stream semantics.
type OperationType string

const (
	OperationInsert  OperationType = "insert"
	OperationUpdate  OperationType = "update"
	OperationReplace OperationType = "replace"
	OperationDelete  OperationType = "delete"
)

// IsValid checks if the operation type is a known valid type.
func (o OperationType) IsValid() bool {
	switch o {
	case OperationInsert, OperationUpdate, OperationReplace, OperationDelete:
		return true
	default:
		return false
	}
}

// ClusterTime represents a MongoDB cluster timestamp.
type ClusterTime struct {
	T uint32 `json:"T"` // Seconds since epoch
	I uint32 `json:"I"` // Increment within second
}

// Compare returns -1 if c < other, 0 if equal, 1 if c > other.
func (c ClusterTime) Compare(other ClusterTime) int {
	if c.T < other.T {
		return -1
	}
	if c.T > other.T {
		return 1
	}
	if c.I < other.I {
		return -1
	}
	if c.I > other.I {
		return 1
	}
	return 0
}

func (c ClusterTime) IsZero() bool {
	return c.T == 0 && c.I == 0
}

func ClusterTimeFromPrimitive(ts primitive.Timestamp) ClusterTime {
	return ClusterTime{T: ts.T, I: ts.I}
}

// ChangeEvent is one mutation of one document, in the form every stage of
// the pipeline works with. It is never persisted.
type ChangeEvent struct {
	Collection    string
	OperationType OperationType
	DocumentID    string

	// FullDocument is the document after the mutation. It is nil for
	// deletes and for updates whose document was gone at lookup time.
	FullDocument model.Document

	// UpdatedFields lists the (dotted) paths an update set. Nil when the
	// store did not report them.
	UpdatedFields []string

	ResumeToken bson.Raw
	ClusterTime ClusterTime

	// ObservedAt is the time the store applied the mutation.
	ObservedAt time.Time
}

// RequireFullDocument returns an ErrMalformedChangeEvent if the event has
// no full document to evaluate.
func (e *ChangeEvent) RequireFullDocument() error {
	if e.FullDocument == nil {
		return fmt.Errorf("%w: %s %s/%s has no fullDocument", ErrMalformedChangeEvent, e.OperationType, e.Collection, e.DocumentID)
	}
	return nil
}

// OnlyUpdated reports whether the update touched nothing but the given
// paths. It is false when the updated fields are unknown.
func (e *ChangeEvent) OnlyUpdated(paths ...string) bool {
	if e.UpdatedFields == nil || len(e.UpdatedFields) == 0 {
		return false
	}
	allowed := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		allowed[p] = struct{}{}
	}
	for _, f := range e.UpdatedFields {
		if _, ok := allowed[f]; !ok {
			return false
		}
	}
	return true
}
