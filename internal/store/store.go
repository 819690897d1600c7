// Package store provides the durable on-device record store.
//
// Records live in an embedded SQLite database (ncruces/go-sqlite3, WAL mode)
// partitioned into named collections. Every record is stored as a JSON
// document under its identity key:
//
//   - workers:       schema.Worker keyed by worker id
//   - evidence:      schema.EvidenceRecord keyed by "{workerId}_{date}"
//   - configuration: settings under reserved keys (schema.SyncConfigKey)
//
// Writes are serialized by SQLite transactions, so the store is safe for
// concurrent use by the evidence builder, the sync worker and API handlers.
// Any failure of the engine is reported wrapped in schema.ErrStorageUnavailable.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/attendsync/attendsync/internal/schema"
)

// Collection names a partition of the store.
type Collection string

const (
	Workers       Collection = "workers"
	Evidence      Collection = "evidence"
	Configuration Collection = "configuration"
)

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	switch c {
	case Workers, Evidence, Configuration:
		return true
	}
	return false
}

// Record is anything that can be stored: it must know its identity.
type Record interface {
	RecordKey() string
}

// Store wraps the SQLite connection.
type Store struct {
	conn *sql.DB
	path string
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (creating if needed) the store at path and initializes the schema.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open("~/.local/share/attend/attend.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext is Open with context support.
func OpenContext(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimPrefix(path, "file:")
	if path == "" {
		return nil, fmt.Errorf("%w: empty database path", schema.ErrStorageUnavailable)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create database directory: %w", schema.ErrStorageUnavailable, err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + path +
		"?_pragma=journal_mode(wal)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", schema.ErrStorageUnavailable, err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", schema.ErrStorageUnavailable, err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}
	if err := s.initSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		key TEXT NOT NULL,
		doc TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (collection, key)
	);

	CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection, seq);
	`
	if _, err := s.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %w", schema.ErrStorageUnavailable, err)
	}
	return nil
}

// Get returns the raw JSON document stored under key.
// Returns schema.ErrNotFound if the key is absent.
func (s *Store) Get(ctx context.Context, c Collection, key string) (json.RawMessage, error) {
	return get(ctx, s.conn, c, key)
}

// Put inserts or replaces rec by its identity.
func (s *Store) Put(ctx context.Context, c Collection, rec Record) error {
	return put(ctx, s.conn, c, rec)
}

// GetAll returns every document of the collection. The order is insertion
// order but callers must not rely on it.
func (s *Store) GetAll(ctx context.Context, c Collection) ([]json.RawMessage, error) {
	return getAll(ctx, s.conn, c)
}

// ClearAndBulkLoad empties the collection and inserts recs in order, in a
// single transaction. On any failure the previous contents are kept.
func (s *Store) ClearAndBulkLoad(ctx context.Context, c Collection, recs []Record) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.ClearAndBulkLoad(ctx, c, recs)
	})
}

// Count returns the number of records in the collection.
func (s *Store) Count(ctx context.Context, c Collection) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = ?`, string(c)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count %s: %w", schema.ErrStorageUnavailable, c, err)
	}
	return n, nil
}

// Tx is a transaction opened by Update or View. All writes made through it
// commit or roll back together.
type Tx struct {
	tx *sql.Tx
}

// Update runs fn inside a transaction. If fn returns an error, or the commit
// fails, nothing fn wrote is kept.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", schema.ErrStorageUnavailable, err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", schema.ErrStorageUnavailable, err)
	}
	return nil
}

// View runs fn inside a read-only transaction, so every read fn makes sees
// the same committed state.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("%w: failed to begin read transaction: %w", schema.ErrStorageUnavailable, err)
	}
	defer sqlTx.Rollback()

	return fn(&Tx{tx: sqlTx})
}

// Get is Store.Get inside the transaction.
func (t *Tx) Get(ctx context.Context, c Collection, key string) (json.RawMessage, error) {
	return get(ctx, t.tx, c, key)
}

// Put is Store.Put inside the transaction.
func (t *Tx) Put(ctx context.Context, c Collection, rec Record) error {
	return put(ctx, t.tx, c, rec)
}

// ClearAndBulkLoad deletes every record of c and inserts recs in order.
func (t *Tx) ClearAndBulkLoad(ctx context.Context, c Collection, recs []Record) error {
	if !c.Valid() {
		return fmt.Errorf("unknown collection %q", c)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, string(c)); err != nil {
		return fmt.Errorf("%w: failed to clear %s: %w", schema.ErrStorageUnavailable, c, err)
	}
	for i, rec := range recs {
		if err := insert(ctx, t.tx, c, rec); err != nil {
			return fmt.Errorf("bulk load %s stopped at record %d: %w", c, i, err)
		}
	}
	return nil
}

func get(ctx context.Context, q querier, c Collection, key string) (json.RawMessage, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	var doc string
	err := q.QueryRowContext(ctx,
		`SELECT doc FROM records WHERE collection = ? AND key = ?`, string(c), key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", c, key, schema.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get %s/%s: %w", schema.ErrStorageUnavailable, c, key, err)
	}
	return json.RawMessage(doc), nil
}

func encode(c Collection, rec Record) (string, string, error) {
	if !c.Valid() {
		return "", "", fmt.Errorf("unknown collection %q", c)
	}
	if rec == nil {
		return "", "", fmt.Errorf("nil record for %s", c)
	}
	key := rec.RecordKey()
	if strings.TrimSpace(key) == "" {
		return "", "", fmt.Errorf("record for %s has an empty key", c)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal %s/%s: %w", c, key, err)
	}
	return key, string(data), nil
}

func put(ctx context.Context, q querier, c Collection, rec Record) error {
	key, doc, err := encode(c, rec)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO records (collection, key, doc, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(collection, key) DO UPDATE SET
		doc = excluded.doc,
		updated_at = excluded.updated_at
	`
	_, err = q.ExecContext(ctx, query, string(c), key, doc, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: failed to put %s/%s: %w", schema.ErrStorageUnavailable, c, key, err)
	}
	return nil
}

// insert is used by bulk loads; a duplicate key within one load is an error
// rather than a silent overwrite.
func insert(ctx context.Context, q querier, c Collection, rec Record) error {
	key, doc, err := encode(c, rec)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO records (collection, key, doc, updated_at) VALUES (?, ?, ?, ?)`,
		string(c), key, doc, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: failed to insert %s/%s: %w", schema.ErrStorageUnavailable, c, key, err)
	}
	return nil
}

func getAll(ctx context.Context, q querier, c Collection) ([]json.RawMessage, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	rows, err := q.QueryContext(ctx,
		`SELECT doc FROM records WHERE collection = ? ORDER BY seq ASC`, string(c))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list %s: %w", schema.ErrStorageUnavailable, c, err)
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("%w: failed to scan %s: %w", schema.ErrStorageUnavailable, c, err)
		}
		docs = append(docs, json.RawMessage(doc))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating %s: %w", schema.ErrStorageUnavailable, c, err)
	}
	return docs, nil
}
