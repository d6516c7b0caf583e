// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads proxysandbox configuration.
//
// Configuration comes from a single file named either by the
// PROXYSANDBOX_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no search path and no fallback, so
// the configuration in effect is always the one named.
//
// The format follows the file extension:
//
//	.yaml, .yml   YAML (gopkg.in/yaml.v3)
//	.json, .jsonc JSON with comments and trailing commas (tidwall/jsonc)
//	.toml         TOML (BurntSushi/toml)
//
// The file may carry environment sections (development, ci) whose
// proxy timing values override the base values when
// [Config].Environment matches. The ci defaults allow slower machines
// a longer readiness timeout.
//
// Path fields undergo variable expansion after loading: ${HOME},
// ${PROXYSANDBOX_ROOT}, ${SANDBOX_ROOT} and ${VAR:-default} patterns
// are expanded. [Config.Validate] reports every problem at once.
//
// This package depends only on lib/installer and lib/fingerprint for
// the types it hands to them.
package config
