// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package lockout

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/oops"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/biogate/biogate/internal/biometric"
)

// SQLiteStore persists flags in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens the database at path, creating parent directories, and
// applies embedded migrations through a separate migrator connection.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, oops.Code(biometric.CodeInvalidConfig).Errorf("sqlite path is required")
	}
	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), 0o700); err != nil {
		return nil, storeError("sqlite", "create directory", err)
	}
	if err := migrateUp(func() (*Migrator, error) { return NewSQLiteMigrator(clean) }); err != nil {
		return nil, storeError("sqlite", "migrate", err)
	}
	dsn := clean + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storeError("sqlite", "open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storeError("sqlite", "ping", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SetPermanentlyLocked implements Store.
func (s *SQLiteStore) SetPermanentlyLocked(ctx context.Context, t biometric.Type) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO permanent_lockouts (key, locked_at) VALUES (?, ?)`,
		Key(t), time.Now().UTC().UnixMilli())
	if err != nil {
		return storeError("sqlite", "set", err)
	}
	return nil
}

// IsPermanentlyLocked implements Store.
func (s *SQLiteStore) IsPermanentlyLocked(ctx context.Context, t biometric.Type) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM permanent_lockouts WHERE key = ?`, Key(t)).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeError("sqlite", "get", err)
	}
	return true, nil
}

// Reset implements Store.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM permanent_lockouts`); err != nil {
		return storeError("sqlite", "reset", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
