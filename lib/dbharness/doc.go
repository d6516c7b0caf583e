// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dbharness gives tests a disposable, migratable database.
//
// Each harness database gets a unique name ([UniqueName]) so parallel
// test processes never share state. Schema changes come from numbered
// migration files in a directory:
//
//	20240101120000_create_deployments.sql
//	20240215093000_add_teams.sql
//
// The leading digits are the version; files are applied in version
// order and each applied version is recorded in a schema_migrations
// table. [SQLite.MigrateTo] moves the database to an exact version,
// resetting first if it is already past it, and
// [SQLite.MigrateAllBefore] leaves the database one step short of a
// given migration so a test can exercise that migration itself.
//
// The SQLite implementation uses zombiezen.com/go/sqlite through a
// sqlitex.Pool. Every connection gets the same pragmas: WAL journal,
// NORMAL synchronous, a busy timeout and foreign keys on.
package dbharness
