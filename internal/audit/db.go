// Package audit persists an append-only log of session lifecycle events.
// It is operational history only — nothing in the terminal subsystem ever
// reads it back to reconstruct a Session.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps a single-connection sqlite pool holding the lifecycle_events
// table.
type Store struct {
	conn *sql.DB
}

// Open creates path's parent directory if needed, opens a sqlite connection,
// pings it, and runs the idempotent migration.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("audit: database path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: failed to create database directory %q: %w", dir, err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open database at %q: %w", path, err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("audit: failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Store{conn: conn}, nil
}

// SQL exposes the underlying *sql.DB for tests and future direct queries.
func (s *Store) SQL() *sql.DB {
	return s.conn
}

// Close closes the underlying connection. Safe to call on a nil Store.
func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
