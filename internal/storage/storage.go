package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// DB wraps the shared SQLite connection used by the graph, vector, and
// learning stores. All three live in one database file so a reindex run
// and the learning model see a consistent view.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the database at dbPath and applies migrations
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := ApplyMigrations(context.Background(), conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn exposes the underlying connection for the store types in this
// package
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// NormalizePath converts a file path to the canonical index form: forward
// slashes, no leading "./". All three stores key files this way.
func NormalizePath(path string) string {
	p := strings.ReplaceAll(path, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	return p
}

// sanitizeFTSQuery escapes FTS5 operators so user input cannot inject
// match expressions. Each token is double-quoted.
func sanitizeFTSQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " ")
}
