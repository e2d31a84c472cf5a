package mongo

import (
	"context"
	"errors"
	"strings"

	"github.com/labdepot/labdepot/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Server error codes reported when a resume token can no longer be used.
const (
	codeChangeStreamFatalError  = 280
	codeChangeStreamHistoryLost = 286
)

// Subscribe opens a change stream on collection. Updates carry the
// current version of the document (updateLookup); it is absent when the
// document was deleted before the lookup ran.
func (s *Store) Subscribe(ctx context.Context, collection string, token bson.Raw) (storage.Subscription, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if token != nil {
		opts.SetResumeAfter(token)
	}

	stream, err := s.db.Collection(collection).Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return nil, err
	}
	return &subscription{stream: stream}, nil
}

// IsTokenExpired reports whether err means the resume point fell out of
// the oplog or the token is otherwise unusable.
func (s *Store) IsTokenExpired(err error) bool {
	return isResumeTokenError(err)
}

func isResumeTokenError(err error) bool {
	if err == nil {
		return false
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		if serverErr.HasErrorCode(codeChangeStreamHistoryLost) || serverErr.HasErrorCode(codeChangeStreamFatalError) {
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, msg := range []string{
		"resume token was not found",
		"resume point may no longer be in the oplog",
		"changestreamhistorylost",
		"changestreamfatalerror",
	} {
		if strings.Contains(errStr, msg) {
			return true
		}
	}
	return false
}

type subscription struct {
	stream *mongo.ChangeStream
}

func (s *subscription) Next(ctx context.Context) bool {
	return s.stream.Next(ctx)
}

func (s *subscription) Current() bson.Raw {
	return s.stream.Current
}

func (s *subscription) ResumeToken() bson.Raw {
	return s.stream.ResumeToken()
}

func (s *subscription) Err() error {
	return s.stream.Err()
}

func (s *subscription) Close(ctx context.Context) error {
	return s.stream.Close(ctx)
}
