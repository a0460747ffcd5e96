// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package lockout

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/biogate/biogate/internal/biometric"
)

// poolIface is the subset of pgxpool.Pool the store uses, so tests can
// substitute pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore keeps flags in PostgreSQL.
type PostgresStore struct {
	pool        poolIface
	newMigrator func() (*Migrator, error)
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, storeError("postgres", "connect", err)
	}
	return &PostgresStore{
		pool:        pool,
		newMigrator: func() (*Migrator, error) { return NewPostgresMigrator(dsn) },
	}, nil
}

// newPostgresStoreWithPool is used by tests.
func newPostgresStoreWithPool(pool poolIface, m migrateIface) *PostgresStore {
	return &PostgresStore{
		pool:        pool,
		newMigrator: func() (*Migrator, error) { return &Migrator{m: m}, nil },
	}
}

// Migrate applies pending schema migrations. golang-migrate takes no
// context, so ctx is only checked before starting.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return storeError("postgres", "migrate", err)
	}
	if err := migrateUp(s.newMigrator); err != nil {
		return storeError("postgres", "migrate", err)
	}
	return nil
}

// SetPermanentlyLocked implements Store.
func (s *PostgresStore) SetPermanentlyLocked(ctx context.Context, t biometric.Type) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO biogate_permanent_lockouts (key) VALUES ($1)
		 ON CONFLICT (key) DO NOTHING`,
		Key(t))
	if err != nil {
		return classifyPgError("set", err)
	}
	return nil
}

// IsPermanentlyLocked implements Store.
func (s *PostgresStore) IsPermanentlyLocked(ctx context.Context, t biometric.Type) (bool, error) {
	var locked bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM biogate_permanent_lockouts WHERE key = $1)`,
		Key(t)).Scan(&locked)
	if err != nil {
		return false, classifyPgError("get", err)
	}
	return locked, nil
}

// Reset implements Store.
func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM biogate_permanent_lockouts`); err != nil {
		return classifyPgError("reset", err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// classifyPgError turns a missing table into STORE_NOT_MIGRATED so callers
// can point the operator at Migrate.
func classifyPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return oops.Code(biometric.CodeStoreNotMigrated).
			With("driver", "postgres").
			With("operation", op).
			Hint("run `biogate lockout migrate` or set lockout.migrate").
			Wrap(err)
	}
	return storeError("postgres", op, err)
}
