// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"path/filepath"
)

// TLSMode selects which credential pair the proxy serves.
type TLSMode string

const (
	// TLSNormal serves a certificate signed by the sandbox CA.
	TLSNormal TLSMode = "normal"

	// TLSWrongCA serves a certificate signed by an unrelated CA, so
	// clients that verify the chain must reject it.
	TLSWrongCA TLSMode = "wrong-ca"
)

// ParseTLSMode accepts "normal" or "wrong-ca". The empty string
// selects TLSNormal.
func ParseTLSMode(name string) (TLSMode, error) {
	switch TLSMode(name) {
	case "", TLSNormal:
		return TLSNormal, nil
	case TLSWrongCA:
		return TLSWrongCA, nil
	}
	return "", fmt.Errorf("sandbox: unknown TLS mode %q (want %q or %q)", name, TLSNormal, TLSWrongCA)
}

func (m TLSMode) valid() bool {
	return m == TLSNormal || m == TLSWrongCA
}

// Credentials returns the certificate and key paths for mode inside
// certsDir.
func Credentials(certsDir string, mode TLSMode) (cert, key string) {
	base := "server"
	if mode == TLSWrongCA {
		base = "serverWithWrongCA"
	}
	return filepath.Join(certsDir, base+".crt"), filepath.Join(certsDir, base+".key")
}
