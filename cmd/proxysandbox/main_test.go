// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/proxysandbox/lib/fingerprint"
	"github.com/bureau-foundation/proxysandbox/lib/testutil"
)

// sandboxFiles lays out a complete sandbox under a temporary directory
// and returns the config file path.
func sandboxFiles(t *testing.T) (configPath string, root string) {
	t.Helper()
	root = t.TempDir()

	sources := filepath.Join(root, "sources")
	testutil.WriteFile(t, filepath.Join(sources, "nginx.tar.gz.stub"), "sources\n", 0o644)
	testutil.WriteScript(t, sources, "packaging", `set -e
mkdir -p "$BOSH_INSTALL_TARGET/sbin"
printf '#!/bin/sh\nexit 0\n' > "$BOSH_INSTALL_TARGET/sbin/nginx"
chmod +x "$BOSH_INSTALL_TARGET/sbin/nginx"
echo built
`)

	certs := filepath.Join(root, "certs")
	for _, name := range []string{"server.crt", "server.key", "serverWithWrongCA.crt", "serverWithWrongCA.key"} {
		testutil.WriteFile(t, filepath.Join(certs, name), "pem\n", 0o600)
	}

	var ports []int
	for len(ports) < 3 {
		port := testutil.FreePort(t)
		if !slices.Contains(ports, port) {
			ports = append(ports, port)
		}
	}
	configPath = testutil.WriteFile(t, filepath.Join(root, "proxysandbox.yaml"), fmt.Sprintf(`
paths:
  root: %[1]s
  sandbox_root: ${PROXYSANDBOX_ROOT}/sandbox
  logs: ${PROXYSANDBOX_ROOT}/logs
  certs: ${PROXYSANDBOX_ROOT}/certs
  sources: ${PROXYSANDBOX_ROOT}/sources
  working_dir: ${PROXYSANDBOX_ROOT}/work
  install_dir: ${PROXYSANDBOX_ROOT}/install
proxy:
  service_port: %[2]d
  upstream_ports: [%[3]d, %[4]d]
`, root, ports[0], ports[1], ports[2]), 0o644)
	return configPath, root
}

func runCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var outBuffer, errBuffer bytes.Buffer
	err = run(context.Background(), args, &outBuffer, &errBuffer)
	return outBuffer.String(), errBuffer.String(), err
}

func exitCodeOf(err error) int {
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}

func TestUsage(t *testing.T) {
	_, stderr, err := runCommand(t)
	if exitCodeOf(err) != 2 {
		t.Errorf("no arguments: err = %v, want exit 2", err)
	}
	if !strings.Contains(stderr, "COMMANDS") {
		t.Errorf("usage not printed: %q", stderr)
	}

	_, stderr, err = runCommand(t, "frobnicate")
	if exitCodeOf(err) != 2 || !strings.Contains(stderr, "Unknown command: frobnicate") {
		t.Errorf("unknown command: err = %v, stderr = %q", err, stderr)
	}

	stdout, _, err := runCommand(t, "help")
	if err != nil || !strings.Contains(stdout, "should-compile") {
		t.Errorf("help: err = %v, stdout = %q", err, stdout)
	}
}

func TestVersion(t *testing.T) {
	stdout, _, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(stdout, "proxysandbox ") {
		t.Errorf("version output = %q", stdout)
	}

	stdout, _, err = runCommand(t, "version", "--full")
	if err != nil {
		t.Fatalf("version --full: %v", err)
	}
	for _, want := range []string{"Platform: " + fingerprint.Platform(), "Digest: sha256:"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("version --full output %q lacks %q", stdout, want)
		}
	}
}

func TestFingerprintDirectory(t *testing.T) {
	directory := t.TempDir()
	testutil.WriteFile(t, filepath.Join(directory, "a.txt"), "alpha\n", 0o644)
	testutil.WriteFile(t, filepath.Join(directory, "nested", "b.txt"), "beta\n", 0o644)

	for _, algorithm := range []string{"sha256", "blake3"} {
		t.Run(algorithm, func(t *testing.T) {
			stdout, _, err := runCommand(t, "fingerprint", "--algorithm", algorithm, directory)
			if err != nil {
				t.Fatalf("fingerprint: %v", err)
			}
			lines := strings.Split(strings.TrimSpace(stdout), "\n")
			if len(lines) != 2 {
				t.Fatalf("expected 2 lines, got %q", stdout)
			}
			want, err := fingerprint.HashFile(filepath.Join(directory, "a.txt"), fingerprint.Algorithm(algorithm))
			if err != nil {
				t.Fatalf("HashFile: %v", err)
			}
			if !strings.Contains(stdout, want.String()+"  a.txt") {
				t.Errorf("output %q lacks digest of a.txt", stdout)
			}
		})
	}

	_, _, err := runCommand(t, "fingerprint")
	if exitCodeOf(err) != 2 {
		t.Errorf("missing directory argument: err = %v, want exit 2", err)
	}
	_, _, err = runCommand(t, "fingerprint", "--algorithm", "md5", directory)
	if err == nil {
		t.Error("expected error for unknown algorithm")
	}
}

func TestInstallThenShouldCompile(t *testing.T) {
	configPath, root := sandboxFiles(t)

	stdout, _, err := runCommand(t, "should-compile", "--config", configPath)
	if err != nil {
		t.Fatalf("should-compile: %v", err)
	}
	if strings.TrimSpace(stdout) != "true" {
		t.Errorf("before install: should-compile = %q, want true", stdout)
	}

	stdout, stderr, err := runCommand(t, "install", "--config", configPath)
	if err != nil {
		t.Fatalf("install: %v\n%s", err, stderr)
	}
	executable := filepath.Join(root, "install", "sbin", "nginx")
	if strings.TrimSpace(stdout) != executable {
		t.Errorf("install printed %q, want %q", stdout, executable)
	}
	if !strings.Contains(stderr, "built") {
		t.Errorf("build output not streamed to stderr: %q", stderr)
	}

	stdout, _, err = runCommand(t, "should-compile", "--config", configPath)
	if err != nil {
		t.Fatalf("should-compile: %v", err)
	}
	if strings.TrimSpace(stdout) != "false" {
		t.Errorf("after install: should-compile = %q, want false", stdout)
	}
	_, _, err = runCommand(t, "should-compile", "--config", configPath, "--exit-code")
	if exitCodeOf(err) != 1 {
		t.Errorf("should-compile --exit-code: err = %v, want exit 1", err)
	}

	// A second install reuses the cached binary.
	_, stderr, err = runCommand(t, "install", "--config", configPath)
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if strings.Contains(stderr, "built") {
		t.Errorf("second install rebuilt: %q", stderr)
	}

	stdout, _, err = runCommand(t, "fingerprint", "--manifest", "--config", configPath)
	if err != nil {
		t.Fatalf("fingerprint --manifest: %v", err)
	}
	if !strings.Contains(stdout, `"algorithm"`) {
		t.Errorf("manifest diagnostic = %q", stdout)
	}
}

func TestRender(t *testing.T) {
	configPath, root := sandboxFiles(t)

	stdout, _, err := runCommand(t, "render", "--config", configPath)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	renderedPath := filepath.Join(root, "sandbox", "nginx.conf")
	if strings.TrimSpace(stdout) != renderedPath {
		t.Errorf("render printed %q, want %q", stdout, renderedPath)
	}

	stdout, _, err = runCommand(t, "render", "--config", configPath, "--tls-mode", "wrong-ca", "--print")
	if err != nil {
		t.Fatalf("render --print: %v", err)
	}
	if !strings.Contains(stdout, filepath.Join(root, "certs", "serverWithWrongCA.crt")) {
		t.Errorf("rendered config does not use the wrong-CA certificate:\n%s", stdout)
	}

	_, _, err = runCommand(t, "render", "--config", configPath, "--tls-mode", "expired")
	if err == nil {
		t.Error("expected error for unknown TLS mode")
	}
}

func TestCheck(t *testing.T) {
	configPath, root := sandboxFiles(t)

	stdout, _, err := runCommand(t, "check", "--config", configPath)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, stdout)
	}
	if !strings.Contains(stdout, "Ready to start proxy") {
		t.Errorf("check output = %q", stdout)
	}

	if err := os.Remove(filepath.Join(root, "certs", "serverWithWrongCA.key")); err != nil {
		t.Fatal(err)
	}
	stdout, _, err = runCommand(t, "check", "--config", configPath)
	if exitCodeOf(err) != 1 {
		t.Errorf("check with missing key: err = %v, want exit 1", err)
	}
	if !strings.Contains(stdout, "✗") {
		t.Errorf("check output lacks a failure marker: %q", stdout)
	}
}

func TestConfigRequired(t *testing.T) {
	t.Setenv("PROXYSANDBOX_CONFIG", "")
	_, _, err := runCommand(t, "should-compile")
	if err == nil || !strings.Contains(err.Error(), "PROXYSANDBOX_CONFIG") {
		t.Errorf("expected missing config error, got %v", err)
	}
}
