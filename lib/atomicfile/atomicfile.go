// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile replaces files so readers observe either the old
// content or the new content, never a partial write.
//
// [Write] creates a temporary file in the destination directory,
// writes and fsyncs it, then renames it over the target. The parent
// directory is synced afterwards so the rename survives a crash. A
// failure at any step removes the temporary file and leaves the
// previous target untouched.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write atomically replaces path with data. The new file has the
// given permission bits regardless of umask.
func Write(path string, data []byte, mode os.FileMode) error {
	directory := filepath.Dir(path)
	file, err := os.CreateTemp(directory, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary file for %s: %w", path, err)
	}
	temporaryPath := file.Name()

	fail := func(step string, err error) error {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("%s for %s: %w", step, path, err)
	}

	if _, err := file.Write(data); err != nil {
		return fail("writing temporary file", err)
	}
	if err := file.Chmod(mode); err != nil {
		return fail("setting mode on temporary file", err)
	}
	if err := file.Sync(); err != nil {
		return fail("syncing temporary file", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file for %s: %w", path, err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}

	parentDirectory, err := os.Open(directory)
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}
