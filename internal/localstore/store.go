// Package localstore provides the device-resident record store backed by a SQLite file.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Collections of the local schema. Every record is addressed by (collection, id).
const (
	CollectionSessions    = "sessions"
	CollectionCards       = "cards"
	CollectionConfig      = "config"
	CollectionPreferences = "preferences"
	CollectionMeta        = "meta"
)

// DefaultID keys the singleton records (API config, preferences).
const DefaultID = "default"

const schema = `
CREATE TABLE IF NOT EXISTS records (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS sync_queue (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    operation TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    parent_id TEXT NOT NULL DEFAULT '',
    user_id TEXT NOT NULL DEFAULT '',
    payload TEXT,
    created_at INTEGER NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sync_queue_entity ON sync_queue(entity_type, entity_id);
`

// columnUpgrades adds columns missing from files created by earlier versions.
var columnUpgrades = []struct {
	table, column, ddl string
}{
	{"sync_queue", "user_id", `ALTER TABLE sync_queue ADD COLUMN user_id TEXT NOT NULL DEFAULT ''`},
}

const userIndex = `CREATE INDEX IF NOT EXISTS idx_sync_queue_user ON sync_queue(user_id)`

var pragmas = []string{
	`PRAGMA journal_mode=WAL`,
	`PRAGMA busy_timeout=5000`,
	`PRAGMA synchronous=NORMAL`,
}

// Record is a raw stored record.
type Record struct {
	Collection string `db:"collection"`
	ID         string `db:"id"`
	Payload    []byte `db:"payload"`
	UpdatedAt  int64  `db:"updated_at"`
}

// Store persists JSON records in a local SQLite file.
// Puts on the same id are a single upsert statement, so the last write wins.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite file at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open local store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("open local store: create parent dir: %w", err)
	}

	db, err := sqlx.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	// One connection keeps every statement serialized against the file.
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("open local store: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open local store: apply schema: %w", err)
	}
	if err := upgradeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open local store: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func upgradeSchema(db *sqlx.DB) error {
	for _, u := range columnUpgrades {
		var n int
		if err := db.Get(&n, "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", u.table, u.column); err != nil {
			return fmt.Errorf("inspect %s.%s: %w", u.table, u.column, err)
		}
		if n > 0 {
			continue
		}
		if _, err := db.Exec(u.ddl); err != nil {
			return fmt.Errorf("add %s.%s: %w", u.table, u.column, err)
		}
	}
	if _, err := db.Exec(userIndex); err != nil {
		return fmt.Errorf("create user index: %w", err)
	}
	return nil
}

// DB exposes the underlying connection for components sharing the file, such as the offline queue.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put serializes record as JSON and stores it under (collection, id).
func (s *Store) Put(collection, id string, record any) error {
	if collection == "" || id == "" {
		return fmt.Errorf("put %s/%s: collection and id are required", collection, id)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("put %s/%s: marshal: %w", collection, id, err)
	}
	_, err = s.db.ExecContext(context.Background(), `
		INSERT INTO records (collection, id, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, collection, id, string(payload), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

// Get decodes the record stored under (collection, id) into out. It reports false when absent.
func (s *Store) Get(collection, id string, out any) (bool, error) {
	var payload string
	err := s.db.GetContext(context.Background(), &payload,
		"SELECT payload FROM records WHERE collection = ? AND id = ?", collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return false, fmt.Errorf("get %s/%s: unmarshal: %w", collection, id, err)
	}
	return true, nil
}

// List returns every record of the collection ordered by id.
func (s *Store) List(collection string) ([]Record, error) {
	var records []Record
	if err := s.db.SelectContext(context.Background(), &records,
		"SELECT collection, id, payload, updated_at FROM records WHERE collection = ? ORDER BY id", collection); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return records, nil
}

// Delete removes the record and reports whether it existed.
func (s *Store) Delete(collection, id string) (bool, error) {
	result, err := s.db.ExecContext(context.Background(),
		"DELETE FROM records WHERE collection = ? AND id = ?", collection, id)
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: rows affected: %w", collection, id, err)
	}
	return count > 0, nil
}

// GetAs loads a record of type T, returning nil when absent.
func GetAs[T any](s *Store, collection, id string) (*T, error) {
	var out T
	found, err := s.Get(collection, id, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// ListAs decodes every record of the collection as T.
func ListAs[T any](s *Store, collection string) ([]T, error) {
	records, err := s.List(collection)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(records))
	for _, r := range records {
		var v T
		if err := json.Unmarshal(r.Payload, &v); err != nil {
			return nil, fmt.Errorf("list %s: unmarshal %s: %w", collection, r.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}
