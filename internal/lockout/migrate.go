// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package lockout

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// Register the pgx/v5 and modernc-backed sqlite database drivers.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"

	"github.com/biogate/biogate/internal/lockout/migrations"
)

// migrateIface is the part of golang-migrate the stores use, so tests can
// run without a database.
type migrateIface interface {
	Up() error
	Version() (version uint, dirty bool, err error)
	Close() (source error, database error)
}

// Migrator applies the embedded lockout schema.
type Migrator struct {
	m migrateIface
}

func newMigrator(fsys fs.FS, dir, databaseURL string) (*Migrator, error) {
	source, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("operation", "create migration source").Wrap(err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		_ = source.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code("MIGRATION_INIT_FAILED").With("operation", "initialize migrator").Wrap(err)
	}
	return &Migrator{m: m}, nil
}

// NewSQLiteMigrator opens its own connection to the database at path.
func NewSQLiteMigrator(path string) (*Migrator, error) {
	return newMigrator(migrations.SQLite, "sqlite", "sqlite://"+filepath.ToSlash(path))
}

// NewPostgresMigrator accepts postgres:// or postgresql:// DSNs and converts
// them to the pgx5:// scheme the driver registers.
func NewPostgresMigrator(dsn string) (*Migrator, error) {
	migrateURL := dsn
	if rest, found := strings.CutPrefix(dsn, "postgres://"); found {
		migrateURL = "pgx5://" + rest
	} else if rest, found := strings.CutPrefix(dsn, "postgresql://"); found {
		migrateURL = "pgx5://" + rest
	}
	return newMigrator(migrations.Postgres, "postgres", migrateURL)
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

// Version returns the applied version; 0 when nothing was applied.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

// Close releases the source and the migrator's own database connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return oops.Code("MIGRATION_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

// migrateUp runs Up on a fresh migrator and closes it.
func migrateUp(open func() (*Migrator, error)) error {
	m, err := open()
	if err != nil {
		return err
	}
	upErr := m.Up()
	closeErr := m.Close()
	if upErr != nil {
		return upErr
	}
	return closeErr
}
