// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/proxysandbox/lib/testutil"
)

func newTestRunner(lines *[]string) *Runner {
	return New(Config{Observer: func(line string) { *lines = append(*lines, line) }})
}

func TestShellCapturesInterleavedOutputInOrder(t *testing.T) {
	var observed []string
	runner := newTestRunner(&observed)

	result, err := runner.Shell(context.Background(), "echo one; echo two >&2; echo three; echo four >&2", nil)
	if err != nil {
		t.Fatalf("Shell: %v", err)
	}

	want := []string{"one", "two", "three", "four"}
	if !slices.Equal(observed, want) {
		t.Errorf("observed = %q, want %q", observed, want)
	}
	if result.Output != "one\ntwo\nthree\nfour\n" {
		t.Errorf("Output = %q", result.Output)
	}
	if !result.Success() {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
}

func TestShellNonZeroExitIsNotAnError(t *testing.T) {
	var observed []string
	runner := newTestRunner(&observed)

	result, err := runner.Shell(context.Background(), "echo failing; exit 3", nil)
	if err != nil {
		t.Fatalf("Shell returned error for non-zero exit: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if result.Success() {
		t.Error("Success() = true for exit 3")
	}
	if result.Output != "failing\n" {
		t.Errorf("Output = %q, want %q", result.Output, "failing\n")
	}
}

func TestShellLongLineDoesNotBlock(t *testing.T) {
	var observed []string
	runner := newTestRunner(&observed)

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := runner.Shell(context.Background(),
			"head -c 2000000 /dev/zero | tr '\\0' 'a'; echo; echo after; head -c 3000000 /dev/zero | tr '\\0' 'b'", nil)
		done <- outcome{result, err}
	}()

	got := testutil.RequireReceive(t, done, 30*time.Second, "Shell with a 2MB line")
	if got.err != nil {
		t.Fatalf("Shell: %v", got.err)
	}
	if len(observed) != 3 {
		t.Fatalf("observed %d lines, want 3", len(observed))
	}
	if len(observed[0]) != 2000000 || strings.Trim(observed[0], "a") != "" {
		t.Errorf("first line has %d bytes, want 2000000 x 'a'", len(observed[0]))
	}
	if observed[1] != "after" {
		t.Errorf("second line = %q, want after", observed[1])
	}
	// The unterminated tail is still delivered.
	if len(observed[2]) != 3000000 {
		t.Errorf("final line has %d bytes, want 3000000", len(observed[2]))
	}
	if len(got.result.Output) != 2000000+1+len("after\n")+3000000+1 {
		t.Errorf("Output has %d bytes", len(got.result.Output))
	}
}

func TestRunEnvOverridesWin(t *testing.T) {
	t.Setenv("RUNNER_TEST_VALUE", "from-parent")
	t.Setenv("RUNNER_TEST_KEPT", "kept")

	var observed []string
	runner := newTestRunner(&observed)

	result, err := runner.Shell(context.Background(), `echo "$RUNNER_TEST_VALUE $RUNNER_TEST_KEPT $RUNNER_TEST_NEW"`, map[string]string{
		"RUNNER_TEST_VALUE": "from-override",
		"RUNNER_TEST_NEW":   "added",
	})
	if err != nil {
		t.Fatalf("Shell: %v", err)
	}
	if got := strings.TrimSpace(result.Output); got != "from-override kept added" {
		t.Errorf("Output = %q, want %q", got, "from-override kept added")
	}
}

func TestRunInDirectory(t *testing.T) {
	directory := t.TempDir()
	var observed []string
	runner := newTestRunner(&observed)

	result, err := runner.Run(context.Background(), Command{Args: []string{"/bin/sh", "-c", "pwd -P"}, Dir: directory})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	resolved, err := filepath.EvalSymlinks(directory)
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	if got := strings.TrimSpace(result.Output); got != resolved {
		t.Errorf("pwd = %q, want %q", got, resolved)
	}
}

func TestRunMissingExecutable(t *testing.T) {
	var observed []string
	runner := newTestRunner(&observed)

	result, err := runner.Run(context.Background(), Command{Args: []string{"/nonexistent/definitely-not-here"}})
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("Run error = %v, want ErrLaunchFailed", err)
	}
	if result.ExitCode != ExitNotFound {
		t.Errorf("ExitCode = %d, want %d", result.ExitCode, ExitNotFound)
	}
}

func TestRunNotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain-file")
	if err := os.WriteFile(path, []byte("not a program"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	var observed []string
	runner := newTestRunner(&observed)

	result, err := runner.Run(context.Background(), Command{Args: []string{path}})
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("Run error = %v, want ErrLaunchFailed", err)
	}
	if result.ExitCode != ExitNotExecutable {
		t.Errorf("ExitCode = %d, want %d", result.ExitCode, ExitNotExecutable)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	var observed []string
	if _, err := newTestRunner(&observed).Run(context.Background(), Command{}); !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("Run(empty) error = %v, want ErrLaunchFailed", err)
	}
}

func TestMergeEnv(t *testing.T) {
	base := []string{"A=1", "B=2", "C=3"}
	got := MergeEnv(base, map[string]string{"B": "20", "D": "4"})
	want := []string{"A=1", "C=3", "B=20", "D=4"}
	if !slices.Equal(got, want) {
		t.Errorf("MergeEnv = %v, want %v", got, want)
	}
}

func TestResultTail(t *testing.T) {
	result := Result{Output: "a\nb\nc\nd\n"}
	if got := result.Tail(2); got != "c\nd" {
		t.Errorf("Tail(2) = %q, want %q", got, "c\nd")
	}
	if got := result.Tail(10); got != "a\nb\nc\nd" {
		t.Errorf("Tail(10) = %q", got)
	}
}
