package checkpoint

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionCheckpoints holds one document per watcher.
const CollectionCheckpoints = "_watcher_checkpoints"

// MongoStore implements Store using MongoDB.
type MongoStore struct {
	collection *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// checkpointDoc is the MongoDB document structure for checkpoints.
type checkpointDoc struct {
	ID        string    `bson:"_id"`
	Token     string    `bson:"token"` // Base64-encoded resume token
	UpdatedAt time.Time `bson:"updatedAt"`
}

// NewMongoStore creates a new MongoDB-backed checkpoint store.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(CollectionCheckpoints)}
}

func (s *MongoStore) Save(ctx context.Context, cp Checkpoint) error {
	if cp.Token == nil {
		return nil
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}

	doc := checkpointDoc{
		ID:        cp.WatcherID,
		Token:     base64.StdEncoding.EncodeToString(cp.Token),
		UpdatedAt: cp.UpdatedAt,
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": cp.WatcherID}, doc, opts); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, watcherID string) (*Checkpoint, error) {
	var doc checkpointDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": watcherID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	token, err := base64.StdEncoding.DecodeString(doc.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint token: %w", err)
	}

	return &Checkpoint{
		WatcherID: doc.ID,
		Token:     bson.Raw(token),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}, nil
}

func (s *MongoStore) Delete(ctx context.Context, watcherID string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": watcherID}); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Close is a no-op; the client belongs to the storage provider.
func (s *MongoStore) Close() error { return nil }
