// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dbharness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const defaultPoolSize = 2

var connectionPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
	"PRAGMA temp_store=MEMORY",
}

const schemaTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name    TEXT NOT NULL
)`

// SQLiteConfig holds the parameters for a disposable SQLite database.
type SQLiteConfig struct {
	// Directory holds the database file. Required; must exist.
	Directory string

	// Migrations are the schema changes available to MigrateTo,
	// usually from LoadMigrations.
	Migrations []Migration

	// Suffix is appended to the generated database name.
	Suffix string

	// PoolSize is the number of pooled connections. Default 2.
	PoolSize int

	Logger *slog.Logger
}

// SQLite is a [Migrator] over a uniquely named SQLite file.
type SQLite struct {
	path       string
	migrations []Migration
	poolSize   int
	logger     *slog.Logger

	mu   sync.Mutex
	pool *sqlitex.Pool
}

// OpenSQLite creates the database file and the migrations table.
func OpenSQLite(config SQLiteConfig) (*SQLite, error) {
	if config.Directory == "" {
		return nil, errors.New("dbharness: directory is required")
	}
	database := &SQLite{
		path:       filepath.Join(config.Directory, UniqueName(config.Suffix)+".db"),
		migrations: config.Migrations,
		poolSize:   config.PoolSize,
		logger:     config.Logger,
	}
	if database.poolSize <= 0 {
		database.poolSize = defaultPoolSize
	}
	if database.logger == nil {
		database.logger = slog.New(slog.DiscardHandler)
	}
	if err := database.open(); err != nil {
		return nil, err
	}
	return database, nil
}

func (d *SQLite) open() error {
	pool, err := sqlitex.NewPool(d.path, sqlitex.PoolOptions{
		PoolSize:    d.poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return fmt.Errorf("dbharness: opening %s: %w", d.path, err)
	}
	d.pool = pool
	d.logger.Debug("test database opened", "path", d.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn) error {
	for _, pragma := range connectionPragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("dbharness: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteTransient(conn, schemaTable, nil); err != nil {
		return fmt.Errorf("dbharness: creating schema_migrations: %w", err)
	}
	return nil
}

// Path returns the database file.
func (d *SQLite) Path() string {
	return d.path
}

// Take borrows a connection. The caller must Put it back.
func (d *SQLite) Take(ctx context.Context) (*sqlite.Conn, error) {
	d.mu.Lock()
	pool := d.pool
	d.mu.Unlock()
	if pool == nil {
		return nil, errors.New("dbharness: database is closed")
	}
	conn, err := pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbharness: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection taken with Take.
func (d *SQLite) Put(conn *sqlite.Conn) {
	d.mu.Lock()
	pool := d.pool
	d.mu.Unlock()
	if pool != nil {
		pool.Put(conn)
	}
}

// Version returns the highest applied migration version, or 0.
func (d *SQLite) Version(ctx context.Context) (int64, error) {
	conn, err := d.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer d.Put(conn)
	return currentVersion(conn)
}

func currentVersion(conn *sqlite.Conn) (int64, error) {
	var version int64
	err := sqlitex.Execute(conn, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("dbharness: reading schema version: %w", err)
	}
	return version, nil
}

// MigrateTo applies every migration up to and including version. A
// database already past version is reset and rebuilt.
func (d *SQLite) MigrateTo(ctx context.Context, version int64) error {
	current, err := d.Version(ctx)
	if err != nil {
		return err
	}
	if current > version {
		if err := d.Reset(ctx); err != nil {
			return err
		}
		current = 0
	}

	conn, err := d.Take(ctx)
	if err != nil {
		return err
	}
	defer d.Put(conn)

	for _, migration := range d.migrations {
		if migration.Version <= current || migration.Version > version {
			continue
		}
		if err := applyMigration(conn, migration); err != nil {
			return err
		}
		d.logger.Debug("migration applied", "version", migration.Version, "name", migration.Name)
	}
	return nil
}

func applyMigration(conn *sqlite.Conn, migration Migration) (err error) {
	script, err := os.ReadFile(migration.Path)
	if err != nil {
		return fmt.Errorf("dbharness: reading %s: %w", migration.Name, err)
	}

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("dbharness: beginning %s: %w", migration.Name, err)
	}
	defer endTransaction(&err)

	if err := sqlitex.ExecuteScript(conn, string(script), nil); err != nil {
		return fmt.Errorf("dbharness: applying %s: %w", migration.Name, err)
	}
	err = sqlitex.Execute(conn, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{migration.Version, migration.Name},
	})
	if err != nil {
		return fmt.Errorf("dbharness: recording %s: %w", migration.Name, err)
	}
	return nil
}

// MigrateLatest applies every known migration.
func (d *SQLite) MigrateLatest(ctx context.Context) error {
	latest, ok := Latest(d.migrations)
	if !ok {
		return nil
	}
	return d.MigrateTo(ctx, latest.Version)
}

// MigrateAllBefore resets the database and applies every migration
// older than the one in filename, leaving that migration for the test
// to run.
func (d *SQLite) MigrateAllBefore(ctx context.Context, filename string) error {
	version, err := ParseMigrationVersion(filename)
	if err != nil {
		return err
	}
	if err := d.Reset(ctx); err != nil {
		return err
	}
	return d.MigrateTo(ctx, version-1)
}

// Reset discards the database file and starts empty.
func (d *SQLite) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.closeLocked(); err != nil {
		return err
	}
	if err := removeDatabaseFiles(d.path); err != nil {
		return err
	}
	d.logger.Debug("test database reset", "path", d.path)
	return d.open()
}

// Close closes every connection and deletes the database file.
func (d *SQLite) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.closeLocked(); err != nil {
		return err
	}
	return removeDatabaseFiles(d.path)
}

func (d *SQLite) closeLocked() error {
	if d.pool == nil {
		return nil
	}
	err := d.pool.Close()
	d.pool = nil
	if err != nil {
		return fmt.Errorf("dbharness: closing %s: %w", d.path, err)
	}
	return nil
}

// removeDatabaseFiles deletes the database and its WAL companions.
func removeDatabaseFiles(path string) error {
	for _, name := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("dbharness: removing %s: %w", name, err)
		}
	}
	return nil
}
