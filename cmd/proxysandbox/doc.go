// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Proxysandbox compiles, configures and supervises the TLS reverse
// proxy that integration tests run against. It provides subcommands to
// install the proxy binary when its sources change, run the proxy
// until interrupted, render its configuration, and inspect the build
// cache.
package main
