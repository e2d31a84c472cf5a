// Package checkpoint persists the resume position of change stream watchers.
package checkpoint

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Checkpoint is the last durably processed position of one watcher.
type Checkpoint struct {
	WatcherID string
	Token     bson.Raw
	UpdatedAt time.Time
}

// Store defines the interface for persisting resume tokens.
type Store interface {
	// Load returns the watcher's checkpoint, or nil if none exists.
	Load(ctx context.Context, watcherID string) (*Checkpoint, error)

	// Save replaces the watcher's checkpoint.
	Save(ctx context.Context, cp Checkpoint) error

	// Delete removes the checkpoint so the next start begins at "now".
	Delete(ctx context.Context, watcherID string) error

	Close() error
}

// MemoryStore keeps checkpoints in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Checkpoint
	saveErr error
	saves   int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Checkpoint)}
}

func (s *MemoryStore) Load(_ context.Context, watcherID string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.entries[watcherID]
	if !ok {
		return nil, nil
	}
	cp.Token = append(bson.Raw(nil), cp.Token...)
	return &cp, nil
}

func (s *MemoryStore) Save(_ context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if cp.Token == nil {
		return nil
	}
	cp.Token = append(bson.Raw(nil), cp.Token...)
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	s.entries[cp.WatcherID] = cp
	s.saves++
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, watcherID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, watcherID)
	return nil
}

// FailSaves makes every Save return err until called with nil.
func (s *MemoryStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Saves returns the number of successful saves.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Close() error { return nil }
