// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"os"
	"runtime"

	"github.com/bureau-foundation/proxysandbox/lib/fingerprint"
)

// These variables are set via -ldflags at build time, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/proxysandbox/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// Info returns a formatted version string suitable for --version output.
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Full returns detailed version information including the Go version
// and the platform identifier the build cache records.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s",
		Info(), runtime.Version(), fingerprint.Platform())
}

// Short returns just the version number.
func Short() string {
	return Version
}

// SelfDigest returns the digest of the currently running binary.
func SelfDigest(algorithm fingerprint.Algorithm) (fingerprint.Digest, error) {
	executable, err := os.Executable()
	if err != nil {
		return fingerprint.Digest{}, fmt.Errorf("version: locating running binary: %w", err)
	}
	digest, err := fingerprint.HashFile(executable, algorithm)
	if err != nil {
		return fingerprint.Digest{}, fmt.Errorf("version: hashing running binary: %w", err)
	}
	return digest, nil
}

// Print writes "<binary> <Info>" to stdout.
func Print(binary string) {
	fmt.Printf("%s %s\n", binary, Info())
}
