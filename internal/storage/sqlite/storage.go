// Package sqlite stores records in a single-file SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mcoot/liveshard/internal/dependencies/clock"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	user_id    INTEGER NOT NULL,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (collection, user_id)
);
CREATE TABLE IF NOT EXISTS record_locks (
	collection TEXT NOT NULL,
	user_id    INTEGER NOT NULL,
	owner      TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (collection, user_id)
);
`

// Storage is a SQLite-backed implementation of the storage interface
type Storage struct {
	db    *sql.DB
	clock clock.Clock
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Open opens (creating if needed) the database at path
func Open(path string, clk clock.Clock) (*Storage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Storage{db: db, clock: clk}, nil
}

// Close closes the database handle
func (s *Storage) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func (s *Storage) GetRecord(ctx context.Context, collection string, id model.UserID) (*model.StoredRecord, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE collection = ? AND user_id = ?`,
		collection, int64(id),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	var record model.StoredRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Storage) SaveRecord(ctx context.Context, collection string, record *model.StoredRecord, owner string) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	id := int64(record.UserID)
	now := toMillis(s.clock.Now())

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO records (collection, user_id, data, updated_at)
		 SELECT ?, ?, ?, ?
		 WHERE NOT EXISTS (
		   SELECT 1 FROM record_locks
		   WHERE collection = ? AND user_id = ? AND owner <> ? AND expires_at > ?
		 )
		 ON CONFLICT (collection, user_id) DO UPDATE SET
		   data = excluded.data,
		   updated_at = excluded.updated_at`,
		collection, id, data, toMillis(record.UpdatedAt),
		collection, id, owner, now,
	)
	if err != nil {
		return err
	}
	return lockedUnlessChanged(res)
}

func (s *Storage) AcquireLock(ctx context.Context, collection string, id model.UserID, owner string, ttl time.Duration) error {
	now := s.clock.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO record_locks (collection, user_id, owner, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, user_id) DO UPDATE SET
		   owner = excluded.owner,
		   expires_at = excluded.expires_at
		 WHERE record_locks.owner = excluded.owner OR record_locks.expires_at <= ?`,
		collection, int64(id), owner, toMillis(now.Add(ttl)), toMillis(now),
	)
	if err != nil {
		return err
	}
	return lockedUnlessChanged(res)
}

func (s *Storage) ReleaseLock(ctx context.Context, collection string, id model.UserID, owner string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM record_locks WHERE collection = ? AND user_id = ? AND owner = ?`,
		collection, int64(id), owner,
	)
	return err
}

func lockedUnlessChanged(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrRecordLocked
	}
	return nil
}
