// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

type codedError struct{ code int }

func (e codedError) Error() string { return "coded" }
func (e codedError) ExitCode() int { return e.code }

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantOutput string
	}{
		{"nil", nil, 0, ""},
		{"plain", errors.New("boom"), 1, "error: boom\n"},
		{"coded", codedError{code: 3}, 3, ""},
		{"wrapped coded", fmt.Errorf("install: %w", codedError{code: 4}), 4, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var output bytes.Buffer
			if got := ExitStatus(tt.err, &output); got != tt.wantStatus {
				t.Errorf("ExitStatus = %d, want %d", got, tt.wantStatus)
			}
			if output.String() != tt.wantOutput {
				t.Errorf("output = %q, want %q", output.String(), tt.wantOutput)
			}
		})
	}
}
