// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func sampleTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "nginx", "nginx-1.25.3.tar.gz"), "nginx source")
	writeFile(t, filepath.Join(root, "nginx", "pcre-8.45.tar.gz"), "pcre source")
	writeFile(t, filepath.Join(root, "nginx", "patches", "headers.patch"), "patch")
	writeFile(t, filepath.Join(root, "packaging"), "#!/bin/sh\n")
	return root
}

func TestTreeIsSortedByDigest(t *testing.T) {
	fingerprint, err := Tree(sampleTree(t), SHA256)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(fingerprint.Entries) != 4 {
		t.Fatalf("Tree returned %d entries, want 4", len(fingerprint.Entries))
	}
	digests := fingerprint.Digests()
	if !slices.IsSorted(digests) {
		t.Errorf("digests are not sorted: %v", digests)
	}
}

func TestTreeSkipsDirectoriesAndFollowsFileLinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "real"), "content")
	if err := os.Mkdir(filepath.Join(root, "emptydir"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := os.Symlink("real", filepath.Join(root, "link")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	if err := os.Symlink("emptydir", filepath.Join(root, "dirlink")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	fingerprint, err := Tree(root, SHA256)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(fingerprint.Entries) != 2 {
		t.Fatalf("Tree returned %d entries, want 2 (file and file link): %+v", len(fingerprint.Entries), fingerprint.Entries)
	}
	want := Digest(sha256.Sum256([]byte("content")))
	for _, entry := range fingerprint.Entries {
		if entry.Digest != want {
			t.Errorf("entry %s digest = %s, want %s", entry.Path, entry.Digest, want)
		}
	}
}

func TestTreeMissingRoot(t *testing.T) {
	if _, err := Tree(filepath.Join(t.TempDir(), "absent"), SHA256); err == nil {
		t.Fatal("Tree should fail for a missing root")
	}
}

func TestTreeUnknownAlgorithm(t *testing.T) {
	if _, err := Tree(t.TempDir(), Algorithm("crc32")); err == nil {
		t.Fatal("Tree should reject an unknown algorithm")
	}
}

func TestFromEntriesOrderIndependent(t *testing.T) {
	entries := []Entry{
		{Path: "a", Digest: Digest(sha256.Sum256([]byte("1")))},
		{Path: "b", Digest: Digest(sha256.Sum256([]byte("2")))},
		{Path: "c", Digest: Digest(sha256.Sum256([]byte("3")))},
		{Path: "d", Digest: Digest(sha256.Sum256([]byte("3")))},
	}
	reference := FromEntries(SHA256, entries)

	permutations := [][]int{{3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}, {0, 1, 2, 3}}
	for _, order := range permutations {
		permuted := make([]Entry, len(entries))
		for i, index := range order {
			permuted[i] = entries[index]
		}
		got := FromEntries(SHA256, permuted)
		if !slices.Equal(got.Entries, reference.Entries) {
			t.Errorf("permutation %v gave %v, want %v", order, got.Entries, reference.Entries)
		}
		if !got.Matches(reference) {
			t.Errorf("permutation %v does not match the reference", order)
		}
	}
}

func TestMatchesIgnoresPathsAndTimestamps(t *testing.T) {
	first := sampleTree(t)
	second := t.TempDir()
	writeFile(t, filepath.Join(second, "renamed-a"), "nginx source")
	writeFile(t, filepath.Join(second, "deep", "renamed-b"), "pcre source")
	writeFile(t, filepath.Join(second, "renamed-c"), "patch")
	writeFile(t, filepath.Join(second, "renamed-d"), "#!/bin/sh\n")

	past := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
	if err := os.Chtimes(filepath.Join(second, "renamed-a"), past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	left, err := Tree(first, SHA256)
	if err != nil {
		t.Fatalf("Tree(first): %v", err)
	}
	right, err := Tree(second, SHA256)
	if err != nil {
		t.Fatalf("Tree(second): %v", err)
	}
	if !left.Matches(right) {
		t.Errorf("same content under different names should match:\n%v\n%v", left.Digests(), right.Digests())
	}
}

func TestMatchesDetectsContentChange(t *testing.T) {
	root := sampleTree(t)
	before, err := Tree(root, SHA256)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}

	writeFile(t, filepath.Join(root, "nginx", "pcre-8.45.tar.gz"), "pcre source, patched")
	after, err := Tree(root, SHA256)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if before.Matches(after) {
		t.Error("changed file content should not match")
	}
}

func TestMatchesDetectsAddedFile(t *testing.T) {
	root := sampleTree(t)
	before, err := Tree(root, SHA256)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	writeFile(t, filepath.Join(root, "extra"), "new blob")
	after, err := Tree(root, SHA256)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if before.Matches(after) {
		t.Error("an added file should not match")
	}
}

func TestMatchesRequiresSameAlgorithm(t *testing.T) {
	root := sampleTree(t)
	sha, err := Tree(root, SHA256)
	if err != nil {
		t.Fatalf("Tree(sha256): %v", err)
	}
	b3, err := Tree(root, BLAKE3)
	if err != nil {
		t.Fatalf("Tree(blake3): %v", err)
	}
	if sha.Matches(b3) {
		t.Error("fingerprints under different algorithms should not match")
	}
	if !sha.Matches(Fingerprint{Algorithm: "", Entries: sha.Entries}) {
		t.Error("the empty algorithm should compare as sha256")
	}
}

func TestPlatformIsStable(t *testing.T) {
	if Platform() == "" {
		t.Fatal("Platform() is empty")
	}
	if Platform() != Platform() {
		t.Error("Platform() is not stable")
	}
}
