// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/proxysandbox/lib/process"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		process.Fatal(err)
	}
}

// exitError carries a non-zero exit status without an error message.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e exitError) ExitCode() int { return e.code }

type environment struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		printUsage(stderr)
		return exitError{code: 2}
	}

	env := environment{stdout: stdout, stderr: stderr, logger: newLogger(stderr)}
	command, rest := args[0], args[1:]

	switch command {
	case "install":
		return installCmd(ctx, rest, env)
	case "run":
		return runCmd(ctx, rest, env)
	case "render":
		return renderCmd(rest, env)
	case "fingerprint":
		return fingerprintCmd(rest, env)
	case "should-compile":
		return shouldCompileCmd(rest, env)
	case "check":
		return checkCmd(rest, env)
	case "version", "--version", "-v":
		return versionCmd(rest, env)
	case "help", "--help", "-h":
		printUsage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return exitError{code: 2}
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `proxysandbox - Build and supervise the sandbox TLS proxy

USAGE
    proxysandbox <command> [flags]

COMMANDS
    install         Prepare sources and compile the proxy when stale
    run             Start the proxy and supervise it until interrupted
    render          Render the proxy configuration without starting it
    fingerprint     Print the content fingerprint of a directory
    should-compile  Report whether the installed proxy is stale
    check           Run pre-flight checks
    version         Show version

EXAMPLES
    # Compile once, then reuse the binary until the sources change
    proxysandbox install --config=sandbox.yaml

    # Serve the wrong-CA certificate
    proxysandbox run --config=sandbox.yaml --tls-mode=wrong-ca

    # Inspect the recorded build manifest
    proxysandbox fingerprint --manifest --config=sandbox.yaml

SIGNALS (run)
    SIGUSR1   switch to the wrong-CA certificate and restart
    SIGUSR2   switch back to the normal certificate and restart
    SIGINT, SIGTERM  stop the proxy and exit

ENVIRONMENT
    PROXYSANDBOX_CONFIG  Path to the config file when --config is not given
    PROXYSANDBOX_DEBUG   Enable debug logging
`)
}
