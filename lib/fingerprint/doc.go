// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint computes the content and platform identifiers
// the build cache uses to decide whether a compiled artifact is stale.
//
// A content [Fingerprint] is the digest of every regular file under a
// source tree, sorted by digest value. Sorting makes the result
// independent of directory enumeration order, and comparison
// ([Fingerprint.Matches]) looks only at the digest multiset, so
// renaming a file or touching its modification time never reads as
// a change. Only content does.
//
// Two digest algorithms are available: [SHA256] (the default, and the
// format older manifests were recorded in) and [BLAKE3].
//
// [Platform] returns an opaque OS/architecture string recorded next to
// the compiled artifact. A mismatch means the artifact was built for a
// different host and must be rebuilt.
//
// This package has no dependencies on other packages in this module.
package fingerprint
