// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitCoder is implemented by errors that carry their own exit status.
type ExitCoder interface {
	ExitCode() int
}

// Fatal terminates the binary for err. An error implementing ExitCoder
// exits silently with its code; anything else prints "error: err" to
// stderr and exits 1.
func Fatal(err error) {
	os.Exit(ExitStatus(err, os.Stderr))
}

// ExitStatus is Fatal without the exit: it reports err to w when it
// has no exit code of its own and returns the status to exit with.
func ExitStatus(err error, w io.Writer) int {
	if err == nil {
		return 0
	}
	var coder ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
