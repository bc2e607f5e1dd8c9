// Package localstate provides the SQLite-backed durable key/value store that
// survives restarts: current branch, cached structures, drafts and content.
package localstate

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Namespaces used across the service.
const (
	NSSession    = "session"
	NSNavigation = "navigation"
	NSDraft      = "draft"
	NSContent    = "content"
	NSCommit     = "commit"
	NSPageDraft  = "page_draft"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
	ns         TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (ns, key)
);
`

// DB wraps a sql.DB holding JSON values keyed by namespace and key.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("localstate: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localstate: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localstate: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Put stores v as JSON under (ns, key), replacing any previous value.
func (db *DB) Put(ns, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("localstate: encode %s/%s: %w", ns, key, err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO kv (ns, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ns, key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, ns, key, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("localstate: put %s/%s: %w", ns, key, err)
	}
	return nil
}

// Get decodes the value under (ns, key) into v. It reports false when the
// key is absent.
func (db *DB) Get(ns, key string, v any) (bool, error) {
	var raw string
	err := db.conn.QueryRow(`SELECT value FROM kv WHERE ns = ? AND key = ?`, ns, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("localstate: get %s/%s: %w", ns, key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("localstate: decode %s/%s: %w", ns, key, err)
	}
	return true, nil
}

// Delete removes (ns, key). Missing keys are not an error.
func (db *DB) Delete(ns, key string) error {
	if _, err := db.conn.Exec(`DELETE FROM kv WHERE ns = ? AND key = ?`, ns, key); err != nil {
		return fmt.Errorf("localstate: delete %s/%s: %w", ns, key, err)
	}
	return nil
}

// DeleteNamespace removes every key in ns.
func (db *DB) DeleteNamespace(ns string) error {
	if _, err := db.conn.Exec(`DELETE FROM kv WHERE ns = ?`, ns); err != nil {
		return fmt.Errorf("localstate: delete namespace %s: %w", ns, err)
	}
	return nil
}

// Keys returns every key stored in ns, sorted.
func (db *DB) Keys(ns string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT key FROM kv WHERE ns = ? ORDER BY key`, ns)
	if err != nil {
		return nil, fmt.Errorf("localstate: keys %s: %w", ns, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
