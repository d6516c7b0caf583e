// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for proxysandbox
// packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so tests that drive a fake clock still cannot hang forever.
// They are the only place in the test suite that waits on the wall
// clock.
//
// [FreePort] and [ListenTCP] hand out loopback ports for readiness and
// supervisor tests. [WriteScript] and [WriteFile] lay down executable
// shell scripts and fixture files under a test's temp directory.
// [UniqueID] generates monotonically increasing identifiers.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no proxysandbox-internal dependencies.
package testutil
