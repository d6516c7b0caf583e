// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dbharness

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidMigration is returned for migration files whose names do
// not start with a version number, and for duplicate versions.
var ErrInvalidMigration = errors.New("dbharness: invalid migration")

// Migrator moves a database between schema versions.
type Migrator interface {
	MigrateTo(ctx context.Context, version int64) error
	Reset(ctx context.Context) error
}

// Migration is one versioned schema change.
type Migration struct {
	Version int64
	Name    string
	Path    string
}

// UniqueName returns a database name no other harness will pick: a
// random UUID without dashes followed by "_suffix".
func UniqueName(suffix string) string {
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	if suffix == "" {
		return name
	}
	return name + "_" + suffix
}

// ParseMigrationVersion extracts the version from a migration file
// name such as "20240101120000_create_deployments.sql".
func ParseMigrationVersion(filename string) (int64, error) {
	base := filepath.Base(filename)
	digits, _, found := strings.Cut(base, "_")
	if !found || digits == "" {
		return 0, fmt.Errorf("%w: %s has no version prefix", ErrInvalidMigration, base)
	}
	version, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || version <= 0 {
		return 0, fmt.Errorf("%w: %s has no version prefix", ErrInvalidMigration, base)
	}
	return version, nil
}

// LoadMigrations lists the "[0-9]*_*.sql" files in directory sorted by
// version.
func LoadMigrations(directory string) ([]Migration, error) {
	paths, err := filepath.Glob(filepath.Join(directory, "[0-9]*_*.sql"))
	if err != nil {
		return nil, fmt.Errorf("dbharness: listing migrations: %w", err)
	}
	if len(paths) == 0 {
		if _, err := os.Stat(directory); err != nil {
			return nil, fmt.Errorf("dbharness: reading migrations directory: %w", err)
		}
	}

	migrations := make([]Migration, 0, len(paths))
	seen := make(map[int64]string, len(paths))
	for _, path := range paths {
		version, err := ParseMigrationVersion(path)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(path)
		if previous, ok := seen[version]; ok {
			return nil, fmt.Errorf("%w: version %d used by %s and %s", ErrInvalidMigration, version, previous, name)
		}
		seen[version] = name
		migrations = append(migrations, Migration{Version: version, Name: name, Path: path})
	}
	slices.SortFunc(migrations, func(a, b Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})
	return migrations, nil
}

// Latest returns the highest-versioned migration, or false when there
// are none.
func Latest(migrations []Migration) (Migration, bool) {
	if len(migrations) == 0 {
		return Migration{}, false
	}
	latest := migrations[0]
	for _, migration := range migrations[1:] {
		if migration.Version > latest.Version {
			latest = migration
		}
	}
	return latest, true
}
