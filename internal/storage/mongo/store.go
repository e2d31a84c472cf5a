// Package mongo implements storage.Backend on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/labdepot/labdepot/internal/storage"
	"github.com/labdepot/labdepot/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	db       *mongo.Database
	provider *Provider
	logger   *slog.Logger
}

var _ storage.Backend = (*Store)(nil)

// NewStore creates a store over an existing provider. Closing the store
// closes the provider.
func NewStore(provider *Provider, logger *slog.Logger) *Store {
	s := newStore(provider.Database(), logger)
	s.provider = provider
	return s
}

func newStore(db *mongo.Database, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "mongo-store"),
	}
}

func (s *Store) Find(ctx context.Context, collection string, q model.Query) ([]model.Document, error) {
	filter, err := makeFilterBSON(q.Filters)
	if err != nil {
		return nil, err
	}

	findOptions := options.Find()
	if len(q.Sort) > 0 {
		findOptions.SetSort(makeSortBSON(q.Sort))
	}
	if q.Skip > 0 {
		findOptions.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		findOptions.SetLimit(q.Limit)
	}

	cursor, err := s.db.Collection(collection).Find(ctx, filter, findOptions)
	if err != nil {
		return nil, model.WrapError(err)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, model.WrapError(err)
	}

	docs := make([]model.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, model.FromBSON(m))
	}
	return docs, nil
}

func (s *Store) Count(ctx context.Context, collection string, filters model.Filters) (int64, error) {
	filter, err := makeFilterBSON(filters)
	if err != nil {
		return 0, err
	}
	n, err := s.db.Collection(collection).CountDocuments(ctx, filter)
	if err != nil {
		return 0, model.WrapError(err)
	}
	return n, nil
}

func (s *Store) FindByID(ctx context.Context, collection string, id string) (model.Document, error) {
	var m bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{model.IDField: id}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		return nil, model.WrapError(err)
	}
	return model.FromBSON(m), nil
}

func (s *Store) Insert(ctx context.Context, collection string, doc model.Document) error {
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.ErrExists
		}
		return model.WrapError(err)
	}
	return nil
}

func (s *Store) FindByIDAndUpdate(ctx context.Context, collection string, id string, set model.Document) (model.Document, error) {
	if len(set) == 0 {
		return s.FindByID(ctx, collection, id)
	}
	if _, ok := set[model.IDField]; ok {
		return nil, fmt.Errorf("%w: %s cannot be updated", model.ErrInvalidQuery, model.IDField)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m bson.M
	err := s.db.Collection(collection).FindOneAndUpdate(ctx, bson.M{model.IDField: id}, bson.M{"$set": set}, opts).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, model.ErrExists
		}
		return nil, model.WrapError(err)
	}
	return model.FromBSON(m), nil
}

func (s *Store) FindByIDAndDelete(ctx context.Context, collection string, id string) (model.Document, error) {
	var m bson.M
	err := s.db.Collection(collection).FindOneAndDelete(ctx, bson.M{model.IDField: id}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		return nil, model.WrapError(err)
	}
	return model.FromBSON(m), nil
}

// CreateUnique relies on the unique index on idempotencyKey created by
// EnsureIndexes. There is no read before the insert.
func (s *Store) CreateUnique(ctx context.Context, collection string, key string, doc model.Document) error {
	if key == "" {
		return fmt.Errorf("%w: empty idempotency key", model.ErrInvalidQuery)
	}
	withKey := doc.Clone()
	withKey[storage.IdempotencyKeyField] = key

	if _, err := s.db.Collection(collection).InsertOne(ctx, withKey); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.ErrExists
		}
		return model.WrapError(err)
	}
	return nil
}

// Close disconnects the client if the store owns it.
func (s *Store) Close(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}
	return s.provider.Close(ctx)
}
