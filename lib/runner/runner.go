// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner executes external commands with a single interleaved
// output stream.
//
// The child's stdout and stderr share one pipe, so the captured output
// preserves the exact order the child wrote it in. Each line is passed
// to an [Observer] as soon as it arrives and also accumulated into
// [Result].Output. Exit status is reported, not interpreted: a
// non-zero exit is a successful Run with a non-zero [Result].ExitCode.
// Only failing to launch the command at all is an error
// ([ErrLaunchFailed]).
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// ErrLaunchFailed is returned when the executable is missing or the
// process cannot be spawned.
var ErrLaunchFailed = errors.New("runner: launch failed")

// Exit codes reported in Result when the command never ran, following
// the shell convention.
const (
	ExitNotFound      = 127
	ExitNotExecutable = 126
)

// defaultShell is used by Shell when Config.Shell is empty.
const defaultShell = "/bin/sh"

// Observer receives each output line without its trailing newline.
type Observer func(line string)

// WriterObserver writes each line, newline-terminated, to w.
func WriterObserver(w io.Writer) Observer {
	return func(line string) {
		fmt.Fprintln(w, line)
	}
}

// LoggerObserver logs each line at Info with the given message.
func LoggerObserver(logger *slog.Logger, message string) Observer {
	return func(line string) {
		logger.Info(message, "line", line)
	}
}

// Command describes one invocation.
type Command struct {
	// Args is the executable followed by its arguments. Args[0] is
	// resolved through PATH when it contains no slash.
	Args []string

	// Dir is the working directory. Empty means the caller's.
	Dir string

	// Env is merged over the current process environment. Keys in Env
	// win on collision.
	Env map[string]string
}

// Result is the outcome of a command that was launched.
type Result struct {
	// Output is the combined stdout and stderr, one newline-terminated
	// line per line the child wrote.
	Output string

	// ExitCode is the child's exit status, or -1 if it was killed by a
	// signal.
	ExitCode int
}

// Success reports whether the command exited zero.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Tail returns at most the last n lines of Output. Used to keep error
// messages readable when a build log runs to thousands of lines.
func (r Result) Tail(n int) string {
	lines := strings.Split(strings.TrimRight(r.Output, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Config holds Runner construction parameters. All fields are
// optional.
type Config struct {
	// Shell interprets scripts passed to Runner.Shell. Default /bin/sh.
	Shell string

	// Observer receives output lines as they arrive. Default: each line
	// is written to os.Stdout.
	Observer Observer

	// Logger receives one record per command launched and exited.
	Logger *slog.Logger
}

// Runner executes commands. The zero value is not usable; call New.
type Runner struct {
	shell    string
	observer Observer
	logger   *slog.Logger
}

// New creates a Runner.
func New(config Config) *Runner {
	shell := config.Shell
	if shell == "" {
		shell = defaultShell
	}
	observer := config.Observer
	if observer == nil {
		observer = WriterObserver(os.Stdout)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{shell: shell, observer: observer, logger: logger}
}

// Shell runs script through the configured shell with -c.
func (r *Runner) Shell(ctx context.Context, script string, env map[string]string) (Result, error) {
	return r.Run(ctx, Command{Args: []string{r.shell, "-c", script}, Env: env})
}

// Run executes command and blocks until it exits and all output has
// been delivered to the observer.
func (r *Runner) Run(ctx context.Context, command Command) (Result, error) {
	if len(command.Args) == 0 {
		return Result{ExitCode: ExitNotFound}, fmt.Errorf("%w: empty command", ErrLaunchFailed)
	}

	reader, writer, err := os.Pipe()
	if err != nil {
		return Result{ExitCode: ExitNotExecutable}, fmt.Errorf("%w: creating output pipe: %v", ErrLaunchFailed, err)
	}
	defer reader.Close()

	cmd := exec.CommandContext(ctx, command.Args[0], command.Args[1:]...)
	cmd.Dir = command.Dir
	cmd.Env = MergeEnv(os.Environ(), command.Env)
	cmd.Stdout = writer
	cmd.Stderr = writer

	r.logger.Debug("running command", "args", command.Args, "dir", command.Dir)

	if err := cmd.Start(); err != nil {
		writer.Close()
		return Result{ExitCode: launchExitCode(err)}, fmt.Errorf("%w: %s: %v", ErrLaunchFailed, command.Args[0], err)
	}
	// The child holds its own copy of the write end. Closing ours lets
	// the scanner see EOF once the child (and anything it spawned that
	// inherited the descriptor) exits.
	writer.Close()

	var output strings.Builder
	readErr := r.collect(reader, &output)

	waitErr := cmd.Wait()
	result := Result{Output: output.String(), ExitCode: exitCode(cmd, waitErr)}

	r.logger.Debug("command exited", "args", command.Args, "exit_code", result.ExitCode)

	if readErr != nil {
		return result, fmt.Errorf("reading output of %s: %w", command.Args[0], readErr)
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return result, fmt.Errorf("waiting for %s: %w", command.Args[0], waitErr)
	}
	return result, nil
}

// collect reads lines until EOF. Lines have no length limit. After a
// read error the rest of the stream is discarded so the child never
// blocks on a full pipe.
func (r *Runner) collect(reader io.Reader, output *strings.Builder) error {
	buffered := bufio.NewReaderSize(reader, 64*1024)
	for {
		line, err := buffered.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			output.WriteString(line)
			output.WriteByte('\n')
			r.observer(line)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			io.Copy(io.Discard, buffered)
			return err
		}
	}
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

func launchExitCode(err error) int {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return ExitNotFound
	}
	return ExitNotExecutable
}

// MergeEnv returns base with overrides applied. Entries from base whose
// key appears in overrides are dropped; overrides are appended in key
// order so the result is deterministic.
func MergeEnv(base []string, overrides map[string]string) []string {
	merged := make([]string, 0, len(base)+len(overrides))
	for _, entry := range base {
		key, _, _ := strings.Cut(entry, "=")
		if _, overridden := overrides[key]; overridden {
			continue
		}
		merged = append(merged, entry)
	}

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		merged = append(merged, key+"="+overrides[key])
	}
	return merged
}
