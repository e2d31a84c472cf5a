// Package memory implements storage.Backend in process memory. It mirrors
// the MongoDB backend closely enough to drive the notification pipeline
// and the query engine in tests: documents round-trip through BSON,
// unique constraints are enforced and every mutation is appended to a
// change log that subscriptions replay.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labdepot/labdepot/internal/storage"
	"github.com/labdepot/labdepot/pkg/model"
)

// uniqueKeys are the compound unique constraints per collection, matching
// the unique indexes the MongoDB backend creates.
var uniqueKeys = map[string][][]string{
	model.CollectionListings: {{"itemId", "labId", "createdAt"}},
	model.CollectionUsers:    {{"email"}},
}

type collection struct {
	docs map[string]model.Document
	keys map[string]string // idempotency key -> document id
}

// Store is a storage.Backend held in memory. The zero value is not usable;
// use New.
type Store struct {
	mu          sync.Mutex
	collections map[string]*collection
	now         func() time.Time

	log          []change
	lastSeq      int64
	truncatedSeq int64
	changed      chan struct{}
	subs         map[*subscription]struct{}

	faults map[string]*fault
}

type fault struct {
	err       error
	remaining int // <= 0 means until cleared
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for change event wall times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

var _ storage.Backend = (*Store)(nil)

func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]*collection),
		now:         time.Now,
		changed:     make(chan struct{}),
		subs:        make(map[*subscription]struct{}),
		faults:      make(map[string]*fault),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFault makes the next times calls of op on coll fail with err.
// times <= 0 keeps failing until ClearFaults. Ops are "find", "count",
// "insert", "update", "delete", "createUnique" and "subscribe".
func (s *Store) SetFault(op, coll string, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op+"/"+coll] = &fault{err: err, remaining: times}
}

func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[string]*fault)
}

// takeFault must be called with s.mu held.
func (s *Store) takeFault(op, coll string) error {
	key := op + "/" + coll
	f, ok := s.faults[key]
	if !ok {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(s.faults, key)
		}
	}
	return f.err
}

// coll must be called with s.mu held.
func (s *Store) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{
			docs: make(map[string]model.Document),
			keys: make(map[string]string),
		}
		s.collections[name] = c
	}
	return c
}

func (s *Store) Find(ctx context.Context, collection string, q model.Query) ([]model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.WrapError(err)
	}
	if !q.Filters.Validate() {
		return nil, model.ErrInvalidQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault("find", collection); err != nil {
		return nil, err
	}

	var matched []model.Document
	for _, doc := range s.coll(collection).docs {
		if matchFilters(doc, q.Filters) {
			matched = append(matched, doc)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return lessBySort(matched[i], matched[j], q.Sort)
	})

	if q.Skip > 0 {
		if q.Skip >= int64(len(matched)) {
			matched = nil
		} else {
			matched = matched[q.Skip:]
		}
	}
	if q.Limit > 0 && int64(len(matched)) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]model.Document, 0, len(matched))
	for _, doc := range matched {
		out = append(out, doc.Clone())
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, collection string, filters model.Filters) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, model.WrapError(err)
	}
	if !filters.Validate() {
		return 0, model.ErrInvalidQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault("count", collection); err != nil {
		return 0, err
	}

	var n int64
	for _, doc := range s.coll(collection).docs {
		if matchFilters(doc, filters) {
			n++
		}
	}
	return n, nil
}

func (s *Store) FindByID(ctx context.Context, collection string, id string) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.WrapError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault("find", collection); err != nil {
		return nil, err
	}

	doc, ok := s.coll(collection).docs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *Store) Insert(ctx context.Context, collection string, doc model.Document) error {
	return s.insert(ctx, "insert", collection, "", doc)
}

func (s *Store) CreateUnique(ctx context.Context, collection string, key string, doc model.Document) error {
	if key == "" {
		return fmt.Errorf("%w: empty idempotency key", model.ErrInvalidQuery)
	}
	return s.insert(ctx, "createUnique", collection, key, doc)
}

func (s *Store) insert(ctx context.Context, op, collection, key string, doc model.Document) error {
	if err := ctx.Err(); err != nil {
		return model.WrapError(err)
	}
	stored, err := model.ToDocument(doc)
	if err != nil {
		return err
	}
	if key != "" {
		stored[storage.IdempotencyKeyField] = key
	}
	id := stored.GetID()
	if id == "" {
		return fmt.Errorf("%w: document has no %s", model.ErrInvalidQuery, model.IDField)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault(op, collection); err != nil {
		return err
	}

	c := s.coll(collection)
	if _, exists := c.docs[id]; exists {
		return model.ErrExists
	}
	if key != "" {
		if _, exists := c.keys[key]; exists {
			return model.ErrExists
		}
	}
	if violatesUnique(c, collection, id, stored) {
		return model.ErrExists
	}

	c.docs[id] = stored
	if key != "" {
		c.keys[key] = id
	}
	s.appendChange(change{op: opInsert, coll: collection, id: id, doc: stored.Clone()})
	return nil
}

func (s *Store) FindByIDAndUpdate(ctx context.Context, collection string, id string, set model.Document) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.WrapError(err)
	}
	if _, ok := set[model.IDField]; ok {
		return nil, fmt.Errorf("%w: %s cannot be updated", model.ErrInvalidQuery, model.IDField)
	}
	normalized, err := model.ToDocument(set)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault("update", collection); err != nil {
		return nil, err
	}

	c := s.coll(collection)
	current, ok := c.docs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if len(normalized) == 0 {
		return current.Clone(), nil
	}

	next := current.Clone()
	for path, v := range normalized {
		setPath(next, path, v)
	}
	if violatesUnique(c, collection, id, next) {
		return nil, model.ErrExists
	}

	c.docs[id] = next
	s.appendChange(change{op: opUpdate, coll: collection, id: id, updatedFields: normalized})
	return next.Clone(), nil
}

func (s *Store) FindByIDAndDelete(ctx context.Context, collection string, id string) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.WrapError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFault("delete", collection); err != nil {
		return nil, err
	}

	c := s.coll(collection)
	doc, ok := c.docs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	delete(c.docs, id)
	if key, ok := doc[storage.IdempotencyKeyField].(string); ok {
		delete(c.keys, key)
	}
	s.appendChange(change{op: opDelete, coll: collection, id: id})
	return doc, nil
}

// EnsureIndexes is a no-op: unique constraints are always enforced.
func (s *Store) EnsureIndexes(context.Context) error {
	return nil
}

// Close ends all open subscriptions.
func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		sub.closed = true
	}
	s.broadcast()
	return nil
}

func violatesUnique(c *collection, collection, id string, doc model.Document) bool {
	for _, fields := range uniqueKeys[collection] {
		key, ok := compoundKey(doc, fields)
		if !ok {
			continue
		}
		for otherID, other := range c.docs {
			if otherID == id {
				continue
			}
			if otherKey, ok := compoundKey(other, fields); ok && otherKey == key {
				return true
			}
		}
	}
	return false
}

func compoundKey(doc model.Document, fields []string) (string, bool) {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := doc.Get(f)
		if !ok {
			return "", false
		}
		if t, isTime := v.(time.Time); isTime {
			v = t.UnixMilli()
		}
		parts = append(parts, fmt.Sprintf("%T:%v", v, v))
	}
	return strings.Join(parts, "\x00"), true
}

// setPath assigns v at a dotted path, creating intermediate documents.
func setPath(doc model.Document, path string, v interface{}) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(model.Document)
		if !ok {
			next = model.Document{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}
