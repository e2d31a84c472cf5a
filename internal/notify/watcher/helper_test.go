package watcher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/labdepot/labdepot/internal/notify/checkpoint"
	"github.com/labdepot/labdepot/internal/notify/policy"
	"github.com/labdepot/labdepot/internal/notify/writer"
	"github.com/labdepot/labdepot/internal/storage"
	"github.com/labdepot/labdepot/internal/storage/memory"
	"github.com/labdepot/labdepot/pkg/model"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

const waitFor = 2 * time.Second

type transition struct {
	from, to State
	err      error
}

type recorder struct {
	mu     sync.Mutex
	states []transition
	sleeps []time.Duration
}

func (r *recorder) listen(_ string, from, to State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, transition{from: from, to: to, err: err})
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recorder) count(to State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, tr := range r.states {
		if tr.to == to {
			n++
		}
	}
	return n
}

func (r *recorder) transitions() []transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transition(nil), r.states...)
}

func (r *recorder) delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

// tickingClock advances one millisecond per call so every change gets a
// distinct wall time.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

type harness struct {
	store       *memory.Store
	checkpoints *checkpoint.MemoryStore
	evaluator   *policy.Evaluator
	writer      *writer.Writer
	rec         *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New(memory.WithClock(tickingClock()))
	ev, err := policy.NewEvaluator(policy.Config{})
	require.NoError(t, err)
	return &harness{
		store:       store,
		checkpoints: checkpoint.NewMemoryStore(),
		evaluator:   ev,
		writer:      writer.New(store, nil),
		rec:         &recorder{},
	}
}

func (h *harness) newWatcher(t *testing.T, feed storage.ChangeFeed, w NotificationWriter) *Watcher {
	t.Helper()
	return h.newWatcherWith(t, feed, w, h.checkpoints)
}

func (h *harness) newWatcherWith(t *testing.T, feed storage.ChangeFeed, w NotificationWriter, cps checkpoint.Store) *Watcher {
	t.Helper()
	if feed == nil {
		feed = h.store
	}
	if w == nil {
		w = h.writer
	}
	wt, err := New(Config{}, feed, h.evaluator, w, cps, nil,
		WithStateListener(h.rec.listen),
		WithSleep(h.rec.sleep),
	)
	require.NoError(t, err)
	return wt
}

type running struct {
	cancel context.CancelFunc
	done   chan error
	fatal  chan error
}

func start(t *testing.T, w *Watcher) *running {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := &running{cancel: cancel, done: make(chan error, 1), fatal: make(chan error, 1)}
	go func() {
		r.done <- w.Run(ctx, func(err error) { r.fatal <- err })
	}()
	t.Cleanup(cancel)
	return r
}

func (r *running) stop(t *testing.T) {
	t.Helper()
	r.cancel()
	select {
	case err := <-r.done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("watcher did not stop")
	}
}

func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		return err
	case <-time.After(waitFor):
		t.Fatal("watcher did not exit")
		return nil
	}
}

func waitConnected(t *testing.T, h *harness, times int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.rec.count(StateConnected) >= times }, waitFor, 5*time.Millisecond)
}

func seedItem(t *testing.T, store *memory.Store, id string, quantity, minQuantity int) {
	t.Helper()
	doc, err := model.ToDocument(model.Item{
		ID:        id,
		LabID:     "lab-1",
		Name:      "Item " + id,
		Category:  model.CategoryConsumable,
		Quantity:  quantity,
		Threshold: model.Threshold{MinQuantity: minQuantity, Enabled: true},
	})
	require.NoError(t, err)
	require.NoError(t, store.Insert(context.Background(), model.CollectionItems, doc))
}

func setQuantity(t *testing.T, store *memory.Store, id string, quantity int) {
	t.Helper()
	_, err := store.FindByIDAndUpdate(context.Background(), model.CollectionItems, id, model.Document{"quantity": quantity})
	require.NoError(t, err)
}

func countNotifications(t *testing.T, store *memory.Store) int64 {
	t.Helper()
	n, err := store.Count(context.Background(), model.CollectionNotifications, nil)
	require.NoError(t, err)
	return n
}

// scriptedFeed delivers a fixed list of notices, then blocks until the
// context is done.
type scriptedFeed struct {
	notices []bson.Raw
}

func (f *scriptedFeed) Subscribe(ctx context.Context, _ string, _ bson.Raw) (storage.Subscription, error) {
	return &scriptedSub{notices: f.notices, pos: -1}, nil
}

func (f *scriptedFeed) IsTokenExpired(error) bool { return false }

type scriptedSub struct {
	notices []bson.Raw
	pos     int
	err     error
}

func (s *scriptedSub) Next(ctx context.Context) bool {
	if s.pos+1 < len(s.notices) {
		s.pos++
		return true
	}
	<-ctx.Done()
	s.err = ctx.Err()
	return false
}

func (s *scriptedSub) Current() bson.Raw { return s.notices[s.pos] }

func (s *scriptedSub) ResumeToken() bson.Raw {
	raw, _ := bson.Marshal(bson.D{{Key: "_data", Value: s.pos}})
	return raw
}

func (s *scriptedSub) Err() error { return s.err }
func (s *scriptedSub) Close(context.Context) error { return nil }

type draftRecorder struct {
	mu     sync.Mutex
	drafts []*policy.Draft
}

func (d *draftRecorder) Write(_ context.Context, draft *policy.Draft) (*model.Notification, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drafts = append(d.drafts, draft)
	return &model.Notification{ID: "n", LabID: draft.LabID}, nil
}

func (d *draftRecorder) Rearm(context.Context, *policy.Rearm) error { return nil }

func (d *draftRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.drafts)
}

// updateNotice builds a raw change stream update of an item whose full
// document is at quantity.
func updateNotice(t *testing.T, id string, quantity, minQuantity int) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(bson.D{
		{Key: "_id", Value: bson.D{{Key: "_data", Value: id}}},
		{Key: "operationType", Value: "update"},
		{Key: "ns", Value: bson.D{{Key: "db", Value: "x"}, {Key: "coll", Value: "items"}}},
		{Key: "documentKey", Value: bson.D{{Key: "_id", Value: id}}},
		{Key: "wallTime", Value: time.Now()},
		{Key: "fullDocument", Value: bson.D{
			{Key: "_id", Value: id},
			{Key: "labId", Value: "lab-1"},
			{Key: "quantity", Value: quantity},
			{Key: "threshold", Value: bson.D{{Key: "minQuantity", Value: minQuantity}, {Key: "enabled", Value: true}}},
		}},
		{Key: "updateDescription", Value: bson.D{{Key: "updatedFields", Value: bson.D{{Key: "quantity", Value: quantity}}}}},
	})
	require.NoError(t, err)
	return raw
}

// journal records writes and checkpoint saves in the order they happen.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// journaledCheckpoints logs the position of every durable save.
type journaledCheckpoints struct {
	*checkpoint.MemoryStore
	log *journal
}

func (c *journaledCheckpoints) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	if err := c.MemoryStore.Save(ctx, cp); err != nil {
		return err
	}
	c.log.add(fmt.Sprintf("save %d", cp.Token.Lookup("_data").AsInt64()))
	return nil
}

// journaledWriter logs every draft it is asked to write.
type journaledWriter struct {
	log *journal
}

func (w *journaledWriter) Write(_ context.Context, d *policy.Draft) (*model.Notification, error) {
	w.log.add("write " + d.ResourceID)
	return &model.Notification{ID: "n-" + d.ResourceID, LabID: d.LabID}, nil
}

func (w *journaledWriter) Rearm(context.Context, *policy.Rearm) error { return nil }

// blockingWriter holds every Write until released.
type blockingWriter struct {
	entered chan struct{}
	release chan struct{}

	mu      sync.Mutex
	written []string
	ctxErrs []error
}

func newBlockingWriter() *blockingWriter {
	return &blockingWriter{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (w *blockingWriter) Write(ctx context.Context, d *policy.Draft) (*model.Notification, error) {
	w.entered <- struct{}{}
	<-w.release
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, d.ResourceID)
	w.ctxErrs = append(w.ctxErrs, ctx.Err())
	return &model.Notification{ID: "n-" + d.ResourceID, LabID: d.LabID}, nil
}

func (w *blockingWriter) Rearm(context.Context, *policy.Rearm) error { return nil }

func (w *blockingWriter) results() ([]string, []error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.written...), append([]error(nil), w.ctxErrs...)
}
