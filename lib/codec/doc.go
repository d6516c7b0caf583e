// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the module's standard CBOR configuration.
//
// On-disk state that only this module reads and writes (the build
// cache's recorded fingerprint manifest) is CBOR. Anything a human
// edits (configuration) is YAML, JSONC or TOML and never goes through
// this package.
//
// Types serialized here use `cbor` struct tags:
//
//	data, err := codec.Marshal(manifest)
//	err = codec.ReadFile(path, &manifest)
//
// This package has no dependencies on other packages in this module.
package codec
