package mongo

import (
	"context"
	"fmt"

	"github.com/labdepot/labdepot/internal/storage"
	"github.com/labdepot/labdepot/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// newestFirst is the sort every paginated list uses; indexes below end with it.
var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

func withNewestFirst(prefix ...bson.E) bson.D {
	keys := bson.D{}
	keys = append(keys, prefix...)
	return append(keys, newestFirst...)
}

// EnsureIndexes creates the unique constraints and query indexes. It is
// idempotent: creating an existing index with the same keys and options is a no-op.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		model.CollectionNotifications: {
			{
				Keys:    bson.D{{Key: storage.IdempotencyKeyField, Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_idempotency_key"),
			},
			{Keys: withNewestFirst(bson.E{Key: "labId", Value: 1})},
			{Keys: withNewestFirst(bson.E{Key: "resourceId", Value: 1})},
		},
		model.CollectionListings: {
			{
				Keys: bson.D{
					{Key: "itemId", Value: 1},
					{Key: "labId", Value: 1},
					{Key: "createdAt", Value: 1},
				},
				Options: options.Index().SetUnique(true).SetName("uniq_item_lab_created"),
			},
			{Keys: newestFirst},
			{Keys: withNewestFirst(bson.E{Key: "labId", Value: 1})},
			{Keys: withNewestFirst(bson.E{Key: "itemId", Value: 1})},
		},
		model.CollectionItems: {
			{Keys: newestFirst},
			{Keys: withNewestFirst(bson.E{Key: "labId", Value: 1})},
		},
		model.CollectionLabs: {
			{Keys: newestFirst},
		},
		model.CollectionUsers: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_email"),
			},
			{Keys: newestFirst},
		},
	}

	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
		s.logger.Debug("Indexes ensured", "collection", coll, "count", len(models))
	}
	return nil
}
