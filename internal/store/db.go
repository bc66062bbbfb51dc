// Package store provides the SQLite-backed local blacklist: the two entry
// partitions and a key/value metadata table holding sync state.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JohanCodinha/blsync/internal/blacklist"
	_ "modernc.org/sqlite"
)

// Op identifies the kind of user mutation reported to a ChangeListener.
type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
	OpImport Op = "import"
)

// Change describes a user mutation of the entry store.
// ID is empty for OpImport.
type Change struct {
	Partition blacklist.Partition
	ID        string
	Op        Op
	At        int64 // ms since epoch
}

// ChangeListener is invoked after every successful user mutation, once the
// last-local-change marker has been advanced. Sync writes (Replace, Clear,
// UpsertWithTimestamp) neither move the marker nor invoke the listener.
type ChangeListener func(Change)

// DB represents the local SQLite database.
type DB struct {
	path string
	conn *sql.DB
	now  func() time.Time

	mu       sync.RWMutex
	listener ChangeListener
}

// createEntriesTableSQL defines the schema for both entry partitions.
const createEntriesTableSQL = `
CREATE TABLE IF NOT EXISTS entries (
    partition TEXT NOT NULL,
    id TEXT NOT NULL,
    added_at INTEGER NOT NULL,
    PRIMARY KEY (partition, id)
);
`

// createMetadataTableSQL defines the key/value table for sync state.
const createMetadataTableSQL = `
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL
);
`

// busyTimeoutMs bounds how long a write waits for another process (the CLI
// or the daemon) holding the database lock.
const busyTimeoutMs = 5000

// InitDB creates or opens a SQLite database at the given path and initializes the schema.
func InitDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=busy_timeout(%d)", path, busyTimeoutMs))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db, err := Open(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	db.path = path
	return db, nil
}

// Open wraps an existing connection and initializes the schema.
func Open(conn *sql.DB) (*DB, error) {
	// SQLite only supports a single writer, so we limit to one connection
	// to prevent "database is locked" errors between sync and user writes.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if _, err := conn.Exec(createEntriesTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create entries table: %w", err)
	}
	if _, err := conn.Exec(createMetadataTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create metadata table: %w", err)
	}

	return &DB{conn: conn, now: time.Now}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the database file path, or "" when opened from a connection.
func (db *DB) Path() string {
	return db.path
}

// SetChangeListener registers the function notified of user mutations.
// Passing nil removes the listener.
func (db *DB) SetChangeListener(l ChangeListener) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.listener = l
}

// SetClock overrides the time source used for addedAt. Intended for tests.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

// record persists the local change marker then notifies the listener.
func (db *DB) record(ctx context.Context, c Change) error {
	if err := db.MarkLocalChange(ctx, c.At); err != nil {
		return err
	}
	db.notify(c)
	return nil
}

func (db *DB) notify(c Change) {
	db.mu.RLock()
	l := db.listener
	db.mu.RUnlock()
	if l != nil {
		l(c)
	}
}

// Add blacklists id in partition p. Re-adding an existing id refreshes its addedAt.
func (db *DB) Add(ctx context.Context, p blacklist.Partition, id string) (blacklist.Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return blacklist.Entry{}, fmt.Errorf("entry id cannot be empty")
	}

	e := blacklist.Entry{ID: id, AddedAt: db.now().UnixMilli()}
	if err := db.upsert(ctx, db.conn, p, e); err != nil {
		return blacklist.Entry{}, err
	}

	if err := db.record(ctx, Change{Partition: p, ID: id, Op: OpAdd, At: e.AddedAt}); err != nil {
		return blacklist.Entry{}, err
	}
	return e, nil
}

// Remove deletes id from partition p. Returns false if it was not present.
func (db *DB) Remove(ctx context.Context, p blacklist.Partition, id string) (bool, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM entries WHERE partition = ? AND id = ?`, string(p), id)
	if err != nil {
		return false, fmt.Errorf("failed to remove entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if err := db.record(ctx, Change{Partition: p, ID: id, Op: OpRemove, At: db.now().UnixMilli()}); err != nil {
		return true, err
	}
	return true, nil
}

// Import upserts entries keeping their timestamps and reports a single change.
// Entries with an empty id are skipped. Returns the number of entries written.
func (db *DB) Import(ctx context.Context, p blacklist.Partition, entries []blacklist.Entry) (int, error) {
	entries = blacklist.Normalize(entries, db.now().UnixMilli())
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if err := db.upsert(ctx, tx, p, e); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}

	if err := db.record(ctx, Change{Partition: p, Op: OpImport, At: db.now().UnixMilli()}); err != nil {
		return len(entries), err
	}
	return len(entries), nil
}

// Has reports whether id is present in partition p.
func (db *DB) Has(ctx context.Context, p blacklist.Partition, id string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE partition = ? AND id = ?`, string(p), id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query entry: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of entries in partition p.
func (db *DB) Count(ctx context.Context, p blacklist.Partition) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE partition = ?`, string(p)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

// GetAllWithTimestamps returns every entry of partition p ordered by id.
func (db *DB) GetAllWithTimestamps(ctx context.Context, p blacklist.Partition) ([]blacklist.Entry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, added_at
		FROM entries
		WHERE partition = ?
		ORDER BY id ASC
	`, string(p))
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := []blacklist.Entry{}
	for rows.Next() {
		var e blacklist.Entry
		if err := rows.Scan(&e.ID, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}

// Lists returns a snapshot of both partitions.
func (db *DB) Lists(ctx context.Context) (blacklist.Lists, error) {
	var lists blacklist.Lists
	for _, p := range blacklist.Partitions {
		entries, err := db.GetAllWithTimestamps(ctx, p)
		if err != nil {
			return blacklist.Lists{}, fmt.Errorf("%s: %w", p, err)
		}
		lists.Set(p, entries)
	}
	return lists, nil
}

// Clear removes every entry of partition p.
func (db *DB) Clear(ctx context.Context, p blacklist.Partition) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM entries WHERE partition = ?`, string(p)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", p, err)
	}
	return nil
}

// UpsertWithTimestamp writes an entry with an explicit addedAt.
func (db *DB) UpsertWithTimestamp(ctx context.Context, p blacklist.Partition, id string, addedAt int64) error {
	return db.upsert(ctx, db.conn, p, blacklist.Entry{ID: id, AddedAt: addedAt})
}

// Replace swaps the whole content of partition p for entries in one transaction.
func (db *DB) Replace(ctx context.Context, p blacklist.Partition, entries []blacklist.Entry) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE partition = ?`, string(p)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", p, err)
	}
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		if err := db.upsert(ctx, tx, p, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit replace of %s: %w", p, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (db *DB) upsert(ctx context.Context, ex execer, p blacklist.Partition, e blacklist.Entry) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO entries (partition, id, added_at) VALUES (?, ?, ?)
		ON CONFLICT(partition, id) DO UPDATE SET added_at = excluded.added_at
	`, string(p), e.ID, e.AddedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert entry %s/%s: %w", p, e.ID, err)
	}
	return nil
}
