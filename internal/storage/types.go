// Package storage defines the store capability the rest of the service
// is written against. A Store handle is created by the process entry
// point and passed explicitly to every component that needs it.
package storage

import (
	"context"

	"github.com/labdepot/labdepot/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
)

// Store is the document persistence capability.
type Store interface {
	// Find returns the documents of collection matching q, in q.Sort order.
	Find(ctx context.Context, collection string, q model.Query) ([]model.Document, error)

	// Count returns the number of documents matching filters.
	Count(ctx context.Context, collection string, filters model.Filters) (int64, error)

	// FindByID returns model.ErrNotFound if no document has the id.
	FindByID(ctx context.Context, collection string, id string) (model.Document, error)

	// Insert stores a new document. A unique index violation returns model.ErrExists.
	Insert(ctx context.Context, collection string, doc model.Document) error

	// FindByIDAndUpdate sets the given (possibly dotted) fields and returns
	// the document after the update.
	FindByIDAndUpdate(ctx context.Context, collection string, id string, set model.Document) (model.Document, error)

	// FindByIDAndDelete removes the document and returns it as it was.
	FindByIDAndDelete(ctx context.Context, collection string, id string) (model.Document, error)

	// CreateUnique stores doc under an idempotency key. The key is unique
	// within the collection; a second insert with the same key returns
	// model.ErrExists and leaves the first document untouched.
	CreateUnique(ctx context.Context, collection string, key string, doc model.Document) error

	// EnsureIndexes creates the indexes the service relies on.
	EnsureIndexes(ctx context.Context) error

	Close(ctx context.Context) error
}

// ChangeFeed opens resumable subscriptions on a collection's mutations.
type ChangeFeed interface {
	// Subscribe starts a subscription after token, or at the current
	// position when token is nil.
	Subscribe(ctx context.Context, collection string, token bson.Raw) (Subscription, error)

	// IsTokenExpired reports whether err means the resume position is
	// no longer retained by the store.
	IsTokenExpired(err error) bool
}

// Subscription is an ordered sequence of raw change notices.
// Each notice is a BSON document shaped like a MongoDB change event.
type Subscription interface {
	// Next blocks until a notice is available, the subscription fails or
	// ctx is done. It returns false in the latter two cases.
	Next(ctx context.Context) bool

	// Current returns the notice made available by the last call to Next.
	Current() bson.Raw

	// ResumeToken returns the position after the last delivered notice,
	// or the starting position if nothing has been delivered yet.
	ResumeToken() bson.Raw

	Err() error
	Close(ctx context.Context) error
}

// Backend is a Store that also provides a change feed.
type Backend interface {
	Store
	ChangeFeed
}

// IdempotencyKeyField is the document field that holds the key passed to CreateUnique.
const IdempotencyKeyField = "idempotencyKey"
