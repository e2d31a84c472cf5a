package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/labdepot/labdepot/internal/storage"
	"github.com/labdepot/labdepot/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrTokenExpired is returned by Subscribe when the resume position has
// been truncated from the change log.
var ErrTokenExpired = errors.New("memory: resume token is no longer in the change log")

// ErrDisconnected is the default error delivered by Disconnect.
var ErrDisconnected = errors.New("memory: subscription disconnected")

const (
	opInsert = "insert"
	opUpdate = "update"
	opDelete = "delete"
)

type change struct {
	seq           int64
	at            time.Time
	op            string
	coll          string
	id            string
	doc           model.Document // inserted document
	updatedFields model.Document
}

// appendChange must be called with s.mu held.
func (s *Store) appendChange(c change) {
	s.lastSeq++
	c.seq = s.lastSeq
	c.at = s.now()
	s.log = append(s.log, c)
	s.broadcast()
}

// broadcast wakes every waiting subscription. Must be called with s.mu held.
func (s *Store) broadcast() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Truncate drops every change log entry up to and including the latest
// one, as if the store's retention window had moved past them. Tokens
// older than the current position become expired.
func (s *Store) Truncate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
	s.truncatedSeq = s.lastSeq
}

// Disconnect fails every open subscription on coll with err (ErrDisconnected when nil).
func (s *Store) Disconnect(coll string, err error) {
	if err == nil {
		err = ErrDisconnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if sub.coll == coll && sub.err == nil {
			sub.err = err
		}
	}
	s.broadcast()
}

// Subscriptions returns the number of open subscriptions.
func (s *Store) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) Subscribe(ctx context.Context, collection string, token bson.Raw) (storage.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault("subscribe", collection); err != nil {
		return nil, err
	}

	pos := s.lastSeq
	if token != nil {
		seq, err := parseToken(token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		if seq < s.truncatedSeq || seq > s.lastSeq {
			return nil, fmt.Errorf("%w: position %d", ErrTokenExpired, seq)
		}
		pos = seq
	}

	sub := &subscription{store: s, coll: collection, pos: pos}
	s.subs[sub] = struct{}{}
	return sub, nil
}

func (s *Store) IsTokenExpired(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

// next returns the first retained change on coll after pos. Must be called with s.mu held.
func (s *Store) next(coll string, pos int64) (change, bool) {
	for _, c := range s.log {
		if c.seq > pos && c.coll == coll {
			return c, true
		}
	}
	return change{}, false
}

// raw renders a change the way a MongoDB change stream with
// fullDocument=updateLookup would. Must be called with s.mu held.
func (s *Store) raw(c change) (bson.Raw, error) {
	event := bson.D{
		{Key: "_id", Value: makeToken(c.seq)},
		{Key: "operationType", Value: c.op},
		{Key: "clusterTime", Value: primitive.Timestamp{T: uint32(c.at.Unix()), I: uint32(c.seq)}},
		{Key: "wallTime", Value: primitive.NewDateTimeFromTime(c.at)},
		{Key: "ns", Value: bson.D{{Key: "db", Value: "memory"}, {Key: "coll", Value: c.coll}}},
		{Key: "documentKey", Value: bson.D{{Key: "_id", Value: c.id}}},
	}

	switch c.op {
	case opInsert:
		event = append(event, bson.E{Key: "fullDocument", Value: c.doc})
	case opUpdate:
		// updateLookup reads the current version at delivery time and
		// omits it when the document no longer exists.
		if current, ok := s.coll(c.coll).docs[c.id]; ok {
			event = append(event, bson.E{Key: "fullDocument", Value: current})
		}
		event = append(event, bson.E{Key: "updateDescription", Value: bson.D{
			{Key: "updatedFields", Value: c.updatedFields},
			{Key: "removedFields", Value: bson.A{}},
		}})
	}

	return bson.Marshal(event)
}

func makeToken(seq int64) bson.Raw {
	raw, _ := bson.Marshal(bson.D{{Key: "_data", Value: fmt.Sprintf("%016x", seq)}})
	return raw
}

func parseToken(token bson.Raw) (int64, error) {
	val, err := token.LookupErr("_data")
	if err != nil {
		return 0, err
	}
	data, ok := val.StringValueOK()
	if !ok {
		return 0, errors.New("_data is not a string")
	}
	return strconv.ParseInt(data, 16, 64)
}

type subscription struct {
	store   *Store
	coll    string
	pos     int64
	current bson.Raw
	err     error
	closed  bool
}

func (sub *subscription) Next(ctx context.Context) bool {
	s := sub.store
	for {
		s.mu.Lock()
		if sub.closed || sub.err != nil {
			s.mu.Unlock()
			return false
		}
		if c, ok := s.next(sub.coll, sub.pos); ok {
			raw, err := s.raw(c)
			if err != nil {
				sub.err = err
				s.mu.Unlock()
				return false
			}
			sub.current = raw
			sub.pos = c.seq
			s.mu.Unlock()
			return true
		}
		if sub.pos < s.truncatedSeq {
			sub.err = fmt.Errorf("%w: position %d", ErrTokenExpired, sub.pos)
			s.mu.Unlock()
			return false
		}
		wait := s.changed
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			s.mu.Lock()
			if sub.err == nil {
				sub.err = ctx.Err()
			}
			s.mu.Unlock()
			return false
		}
	}
}

func (sub *subscription) Current() bson.Raw {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	return sub.current
}

func (sub *subscription) ResumeToken() bson.Raw {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	return makeToken(sub.pos)
}

func (sub *subscription) Err() error {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	return sub.err
}

func (sub *subscription) Close(context.Context) error {
	s := sub.store
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.closed = true
	delete(s.subs, sub)
	s.broadcast()
	return nil
}
