// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Algorithm names a digest function. Both produce 32-byte digests.
type Algorithm string

const (
	// SHA256 is crypto/sha256. It is the default.
	SHA256 Algorithm = "sha256"

	// BLAKE3 is the 256-bit BLAKE3 hash. Noticeably faster on large
	// source tarballs.
	BLAKE3 Algorithm = "blake3"
)

// ParseAlgorithm accepts an algorithm name. The empty string selects
// SHA256.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case "", SHA256:
		return SHA256, nil
	case BLAKE3:
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("fingerprint: unknown digest algorithm %q (want %q or %q)", name, SHA256, BLAKE3)
	}
}

func (a Algorithm) newHash() (hash.Hash, error) {
	switch a {
	case "", SHA256:
		return sha256.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("fingerprint: unknown digest algorithm %q", string(a))
	}
}

// Digest is a 32-byte content digest.
type Digest [32]byte

// String returns the lowercase hex encoding.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest parses a 64-character hex string.
func ParseDigest(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("digest is %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}

// HashFile streams the file at path through the algorithm. Memory use
// is constant regardless of file size.
func HashFile(path string, algorithm Algorithm) (Digest, error) {
	hasher, err := algorithm.newHash()
	if err != nil {
		return Digest{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	if _, err := io.Copy(hasher, file); err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}
