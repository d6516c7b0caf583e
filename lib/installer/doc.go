// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package installer keeps a locally compiled proxy binary current
// without rebuilding it when nothing it depends on has changed.
//
// An [Installer] works inside a [Workspace]: a scratch WorkingDir where
// the build runs and an InstallDir that receives the artifact. Both
// are explicit values so tests and parallel runs can use distinct
// directories.
//
// The lifecycle is:
//
//	Prepare        make sources available at SourceDir (idempotent)
//	ShouldCompile  compare the recorded build against the sources
//	Compile        wipe both directories, copy sources, run the build
//	               script, then record what was built
//	Ensure         Prepare, then Compile only when ShouldCompile says so
//
// A compile is considered current when the executable exists, the
// InstallDir/platform file names the running platform, and the
// InstallDir/fingerprint.cbor manifest lists the same content digests
// as SourceDir. The manifest is written only after the build script
// succeeds, so a failed compile leaves the cache stale and the next
// Ensure rebuilds.
//
// Compile holds an exclusive flock on "<WorkingDir>.lock" for its whole
// duration. Two processes sharing one workspace therefore serialize
// rather than corrupting each other's build.
package installer
