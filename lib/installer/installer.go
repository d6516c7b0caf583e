// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/proxysandbox/lib/archive"
	"github.com/bureau-foundation/proxysandbox/lib/atomicfile"
	"github.com/bureau-foundation/proxysandbox/lib/codec"
	"github.com/bureau-foundation/proxysandbox/lib/fingerprint"
	"github.com/bureau-foundation/proxysandbox/lib/runner"
)

var (
	// ErrPrepareFailed is returned when a prepare command exits
	// non-zero or the prepared sources are unusable.
	ErrPrepareFailed = errors.New("installer: prepare failed")

	// ErrBuildScriptFailed is returned when the build script exits
	// non-zero.
	ErrBuildScriptFailed = errors.New("installer: build script failed")
)

const (
	defaultBuildScript   = "packaging"
	defaultExecutable    = "sbin/nginx"
	defaultInstallEnvVar = "BOSH_INSTALL_TARGET"

	platformFile = "platform"
	manifestFile = "fingerprint.cbor"

	// failureTailLines is how much build output an error carries.
	failureTailLines = 20
)

// CommandRunner runs external commands. [runner.Runner] satisfies it.
type CommandRunner interface {
	Run(ctx context.Context, command runner.Command) (runner.Result, error)
}

// Config holds Installer construction parameters.
type Config struct {
	Workspace Workspace

	// SourceDir is where prepared sources live. Compile copies it
	// into WorkingDir and fingerprints it for the cache record.
	SourceDir string

	// SourceArchive, when set, is extracted into a freshly emptied
	// SourceDir by Prepare.
	SourceArchive string

	// PrepareCommands are shell commands Prepare runs in PrepareDir
	// before extracting SourceArchive. Each must exit zero.
	PrepareCommands []string
	PrepareDir      string

	// BuildScript is the script path relative to SourceDir (and so
	// relative to WorkingDir after the copy). Default "packaging".
	BuildScript string

	// Executable is the artifact path relative to InstallDir.
	// Default "sbin/nginx".
	Executable string

	// InstallEnvVar names the variable that tells the build script
	// where to install. Default "BOSH_INSTALL_TARGET".
	InstallEnvVar string

	// Platform overrides the platform identifier. Default
	// fingerprint.Platform().
	Platform string

	// Algorithm selects the content digest. Default SHA-256.
	Algorithm fingerprint.Algorithm

	// Runner executes prepare commands and the build script. Default
	// a runner.Runner that echoes output to stdout.
	Runner CommandRunner

	Logger *slog.Logger
}

// Installer prepares, fingerprints and compiles the proxy.
type Installer struct {
	workspace       Workspace
	sourceDir       string
	sourceArchive   string
	prepareCommands []string
	prepareDir      string
	buildScript     string
	executable      string
	installEnvVar   string
	platform        string
	algorithm       fingerprint.Algorithm
	runner          CommandRunner
	logger          *slog.Logger
}

// New validates config and applies defaults.
func New(config Config) (*Installer, error) {
	if err := config.Workspace.Validate(); err != nil {
		return nil, err
	}
	if config.SourceDir == "" {
		return nil, errors.New("installer: source directory is required")
	}
	if err := config.Workspace.CheckSourceDir(config.SourceDir); err != nil {
		return nil, err
	}
	if config.Algorithm == "" {
		config.Algorithm = fingerprint.SHA256
	}
	if _, err := fingerprint.ParseAlgorithm(string(config.Algorithm)); err != nil {
		return nil, fmt.Errorf("installer: %w", err)
	}

	installer := &Installer{
		workspace:       config.Workspace,
		sourceDir:       config.SourceDir,
		sourceArchive:   config.SourceArchive,
		prepareCommands: config.PrepareCommands,
		prepareDir:      config.PrepareDir,
		buildScript:     withDefault(config.BuildScript, defaultBuildScript),
		executable:      withDefault(config.Executable, defaultExecutable),
		installEnvVar:   withDefault(config.InstallEnvVar, defaultInstallEnvVar),
		platform:        withDefault(config.Platform, fingerprint.Platform()),
		algorithm:       config.Algorithm,
		runner:          config.Runner,
		logger:          config.Logger,
	}
	if installer.logger == nil {
		installer.logger = slog.New(slog.DiscardHandler)
	}
	if installer.runner == nil {
		installer.runner = runner.New(runner.Config{Logger: installer.logger})
	}
	return installer, nil
}

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// ExecutablePath is the absolute path of the compiled artifact.
func (i *Installer) ExecutablePath() string {
	return filepath.Join(i.workspace.InstallDir, i.executable)
}

// Workspace returns the directories this installer owns.
func (i *Installer) Workspace() Workspace {
	return i.workspace
}

// Prepare makes the sources available at SourceDir. Running it twice
// leaves the same tree.
func (i *Installer) Prepare(ctx context.Context) error {
	for _, command := range i.prepareCommands {
		i.logger.Info("running prepare command", "command", command, "dir", i.prepareDir)
		result, err := i.runner.Run(ctx, runner.Command{
			Args: []string{"/bin/sh", "-c", command},
			Dir:  i.prepareDir,
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPrepareFailed, command, err)
		}
		if !result.Success() {
			return fmt.Errorf("%w: %q exited with code %d:\n%s",
				ErrPrepareFailed, command, result.ExitCode, result.Tail(failureTailLines))
		}
	}

	if i.sourceArchive != "" {
		if err := os.RemoveAll(i.sourceDir); err != nil {
			return fmt.Errorf("%w: clearing %s: %w", ErrPrepareFailed, i.sourceDir, err)
		}
		if err := archive.Extract(i.sourceArchive, i.sourceDir); err != nil {
			return fmt.Errorf("%w: %w", ErrPrepareFailed, err)
		}
		i.logger.Info("extracted sources", "archive", i.sourceArchive, "source_dir", i.sourceDir)
	}

	script := filepath.Join(i.sourceDir, i.buildScript)
	if _, err := os.Stat(script); err != nil {
		return fmt.Errorf("%w: build script: %w", ErrPrepareFailed, err)
	}
	return nil
}

// ShouldCompile reports whether the installed artifact is missing or
// stale. A missing executable, platform record or manifest means true,
// never an error. Errors come only from fingerprinting SourceDir.
func (i *Installer) ShouldCompile() (bool, error) {
	reason, err := i.staleness()
	if err != nil {
		return false, err
	}
	if reason != "" {
		i.logger.Info("compile required", "reason", reason, "install_dir", i.workspace.InstallDir)
		return true, nil
	}
	return false, nil
}

// staleness returns a non-empty reason when a compile is needed.
func (i *Installer) staleness() (string, error) {
	info, err := os.Stat(i.ExecutablePath())
	if err != nil || !info.Mode().IsRegular() {
		return "executable missing", nil
	}

	recordedPlatform, err := os.ReadFile(filepath.Join(i.workspace.InstallDir, platformFile))
	if err != nil {
		return "platform record missing", nil
	}
	if strings.TrimSpace(string(recordedPlatform)) != i.platform {
		return fmt.Sprintf("platform changed from %q to %q", strings.TrimSpace(string(recordedPlatform)), i.platform), nil
	}

	var recorded fingerprint.Fingerprint
	if err := codec.ReadFile(filepath.Join(i.workspace.InstallDir, manifestFile), &recorded); err != nil {
		return "content manifest missing or unreadable", nil
	}

	current, err := fingerprint.Tree(i.sourceDir, i.algorithm)
	if err != nil {
		return "", fmt.Errorf("installer: fingerprinting sources: %w", err)
	}
	if !current.Matches(recorded) {
		return "source content changed", nil
	}
	return "", nil
}

// Compile rebuilds the artifact from scratch. It holds the workspace
// lock throughout.
func (i *Installer) Compile(ctx context.Context) error {
	lock, err := lockWorkspace(i.workspace.lockPath())
	if err != nil {
		return fmt.Errorf("installer: %w", err)
	}
	defer func() {
		if err := lock.release(); err != nil {
			i.logger.Warn("releasing workspace lock", "error", err)
		}
	}()

	working := i.workspace.WorkingDir
	install := i.workspace.InstallDir
	i.logger.Info("compiling", "working_dir", working, "install_dir", install)

	for _, directory := range []string{working, install} {
		if err := os.RemoveAll(directory); err != nil {
			return fmt.Errorf("installer: removing %s: %w", directory, err)
		}
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return fmt.Errorf("installer: creating %s: %w", directory, err)
		}
	}

	if err := atomicfile.Write(filepath.Join(install, platformFile), []byte(i.platform+"\n"), 0o644); err != nil {
		return fmt.Errorf("installer: recording platform: %w", err)
	}

	sources, err := fingerprint.Tree(i.sourceDir, i.algorithm)
	if err != nil {
		return fmt.Errorf("installer: fingerprinting sources: %w", err)
	}
	if err := copyTree(i.sourceDir, working); err != nil {
		return fmt.Errorf("installer: copying sources into %s: %w", working, err)
	}

	script := filepath.Join(working, i.buildScript)
	result, err := i.runner.Run(ctx, runner.Command{
		Args: []string{"/bin/sh", script},
		Dir:  working,
		Env:  map[string]string{i.installEnvVar: install},
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBuildScriptFailed, script, err)
	}
	if !result.Success() {
		i.logger.Error("build script failed", "script", script, "exit_code", result.ExitCode)
		return fmt.Errorf("%w: %s exited with code %d:\n%s",
			ErrBuildScriptFailed, script, result.ExitCode, result.Tail(failureTailLines))
	}

	data, err := codec.Marshal(sources)
	if err != nil {
		return fmt.Errorf("installer: encoding manifest: %w", err)
	}
	if err := atomicfile.Write(filepath.Join(install, manifestFile), data, 0o644); err != nil {
		return fmt.Errorf("installer: recording manifest: %w", err)
	}

	i.logger.Info("compile finished", "executable", i.ExecutablePath(), "files", len(sources.Entries))
	return nil
}

// Ensure prepares the sources and compiles only when needed. compiled
// reports whether a build ran.
func (i *Installer) Ensure(ctx context.Context) (compiled bool, err error) {
	if err := i.Prepare(ctx); err != nil {
		return false, err
	}
	needed, err := i.ShouldCompile()
	if err != nil {
		return false, err
	}
	if !needed {
		i.logger.Info("skipping compile, installed artifact is current", "executable", i.ExecutablePath())
		return false, nil
	}
	if err := i.Compile(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Manifest returns the recorded content manifest.
func (i *Installer) Manifest() (fingerprint.Fingerprint, error) {
	var recorded fingerprint.Fingerprint
	if err := codec.ReadFile(filepath.Join(i.workspace.InstallDir, manifestFile), &recorded); err != nil {
		return fingerprint.Fingerprint{}, fmt.Errorf("installer: reading manifest: %w", err)
	}
	return recorded, nil
}

// ManifestPath is the location of the recorded content manifest.
func (i *Installer) ManifestPath() string {
	return filepath.Join(i.workspace.InstallDir, manifestFile)
}
