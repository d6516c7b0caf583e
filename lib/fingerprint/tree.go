// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// Entry is one file's digest. Path is slash-separated and relative to
// the tree root; it is kept for diagnostics and does not take part in
// comparison.
type Entry struct {
	Path   string `cbor:"path"`
	Digest Digest `cbor:"digest"`
}

// Fingerprint is a digest-sorted list of file entries.
type Fingerprint struct {
	Algorithm Algorithm `cbor:"algorithm"`
	Entries   []Entry   `cbor:"entries"`
}

// FromEntries builds a Fingerprint from entries given in any order.
// The input slice is not modified.
func FromEntries(algorithm Algorithm, entries []Entry) Fingerprint {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, compareEntries)
	return Fingerprint{Algorithm: algorithm, Entries: sorted}
}

func compareEntries(a, b Entry) int {
	if order := bytes.Compare(a.Digest[:], b.Digest[:]); order != 0 {
		return order
	}
	return strings.Compare(a.Path, b.Path)
}

// Tree fingerprints every regular file under root. Symlinks are
// followed to their target's content; links to directories and
// non-regular files (sockets, FIFOs, devices) are skipped. Directories
// contribute nothing themselves.
func Tree(root string, algorithm Algorithm) (Fingerprint, error) {
	if _, err := algorithm.newHash(); err != nil {
		return Fingerprint{}, err
	}

	var entries []Entry
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		digest, err := HashFile(path, algorithm)
		if err != nil {
			return err
		}

		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Path: filepath.ToSlash(relative), Digest: digest})
		return nil
	})
	if err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprinting %s: %w", root, err)
	}

	return FromEntries(algorithm, entries), nil
}

// Digests returns the sorted digests as hex strings.
func (f Fingerprint) Digests() []string {
	digests := make([]string, len(f.Entries))
	for i, entry := range f.Entries {
		digests[i] = entry.Digest.String()
	}
	return digests
}

// Matches reports whether both fingerprints hold the same multiset of
// digests under the same algorithm. Paths are ignored.
func (f Fingerprint) Matches(other Fingerprint) bool {
	if normalize(f.Algorithm) != normalize(other.Algorithm) {
		return false
	}
	if len(f.Entries) != len(other.Entries) {
		return false
	}
	left := FromEntries(f.Algorithm, f.Entries)
	right := FromEntries(other.Algorithm, other.Entries)
	for i := range left.Entries {
		if left.Entries[i].Digest != right.Entries[i].Digest {
			return false
		}
	}
	return true
}

func normalize(algorithm Algorithm) Algorithm {
	if algorithm == "" {
		return SHA256
	}
	return algorithm
}

// Platform identifies the host the artifact is compiled for, e.g.
// "linux/amd64". The value is opaque; callers compare it for equality
// only.
func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}
