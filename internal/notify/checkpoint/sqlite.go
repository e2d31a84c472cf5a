package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteStore keeps checkpoints in a local SQLite file, for watchers that
// should not write into the watched database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path.
// ":memory:" is accepted.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "checkpoints.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS checkpoints (
		watcher_id TEXT PRIMARY KEY,
		token BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	if cp.Token == nil {
		return nil
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO checkpoints (watcher_id, token, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(watcher_id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		cp.WatcherID, []byte(cp.Token), cp.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, watcherID string) (*Checkpoint, error) {
	var (
		token     []byte
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token, updated_at FROM checkpoints WHERE watcher_id = ?`, watcherID).
		Scan(&token, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return &Checkpoint{
		WatcherID: watcherID,
		Token:     bson.Raw(token),
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, watcherID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE watcher_id = ?`, watcherID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
