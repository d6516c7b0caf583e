// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/proxysandbox/lib/codec"
	"github.com/bureau-foundation/proxysandbox/lib/fingerprint"
	"github.com/bureau-foundation/proxysandbox/lib/version"
	"github.com/bureau-foundation/proxysandbox/sandbox"
)

// parseFlags parses args and reports whether --help was requested.
func parseFlags(flagSet *pflag.FlagSet, args []string, env environment) (bool, error) {
	flagSet.SetOutput(env.stderr)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return false, exitError{code: 2}
	}
	return false, nil
}

// installCmd implements "install".
func installCmd(ctx context.Context, args []string, env environment) error {
	flagSet := pflag.NewFlagSet("install", pflag.ContinueOnError)
	configPath := addConfigFlag(flagSet)
	force := flagSet.Bool("force", false, "compile even when the cached binary is current")
	if help, err := parseFlags(flagSet, args, env); help || err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := env.logger.With("command", "install")
	proxyInstaller, err := newInstaller(cfg, env.stderr, logger)
	if err != nil {
		return err
	}

	if *force {
		if err := proxyInstaller.Prepare(ctx); err != nil {
			return err
		}
		if err := proxyInstaller.Compile(ctx); err != nil {
			return err
		}
	} else if err := sandbox.Install(ctx, proxyInstaller, logger); err != nil {
		return err
	}
	fmt.Fprintln(env.stdout, proxyInstaller.ExecutablePath())
	return nil
}

// runCmd implements "run". It installs the proxy if needed, starts it,
// and supervises it until ctx is cancelled. SIGUSR1 and SIGUSR2 switch
// the TLS credentials.
func runCmd(ctx context.Context, args []string, env environment) error {
	flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
	configPath := addConfigFlag(flagSet)
	tlsModeFlag := flagSet.String("tls-mode", "", "initial TLS mode: normal or wrong-ca (default: config proxy.tls_mode)")
	noInstall := flagSet.Bool("no-install", false, "do not compile; fail if the binary is missing")
	verbose := flagSet.BoolP("verbose", "V", false, "print each readiness probe")
	if help, err := parseFlags(flagSet, args, env); help || err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *tlsModeFlag != "" {
		cfg.Proxy.TLSMode = *tlsModeFlag
	}
	mode, err := sandbox.ParseTLSMode(cfg.Proxy.TLSMode)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := env.logger.With("command", "run")
	if !*noInstall {
		proxyInstaller, err := newInstaller(cfg, env.stderr, logger)
		if err != nil {
			return err
		}
		if err := sandbox.Install(ctx, proxyInstaller, logger); err != nil {
			return err
		}
	}

	var probeOutput io.Writer
	if *verbose {
		probeOutput = env.stderr
	}
	serviceConfig, err := sandboxConfig(cfg, probeOutput, logger)
	if err != nil {
		return err
	}
	service, err := sandbox.New(serviceConfig)
	if err != nil {
		return err
	}
	if err := service.Reconfigure(mode); err != nil {
		return err
	}

	// Registered before the proxy starts so an early switch is queued
	// rather than killing this process.
	switches := make(chan os.Signal, 1)
	signal.Notify(switches, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(switches)

	if err := service.Start(ctx); err != nil {
		return err
	}
	defer service.Stop()

	fmt.Fprintf(env.stdout, "proxy listening on port %d (pid %d, tls %s)\n", service.Port(), service.Pid(), service.TLSMode())

	return supervise(ctx, service, switches, env)
}

// supervise applies TLS switches until ctx ends or the proxy dies.
func supervise(ctx context.Context, service *sandbox.ProxyService, switches <-chan os.Signal, env environment) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-service.Done():
			return fmt.Errorf("proxy exited unexpectedly (%v), see %s", service.ExitError(), service.LogPath())
		case received := <-switches:
			mode := sandbox.TLSNormal
			if received == syscall.SIGUSR1 {
				mode = sandbox.TLSWrongCA
			}
			if err := service.Reconfigure(mode); err != nil {
				return err
			}
			restarted, err := service.RestartIfNeeded(ctx)
			if err != nil {
				return err
			}
			if restarted {
				fmt.Fprintf(env.stdout, "proxy restarted (pid %d, tls %s)\n", service.Pid(), service.TLSMode())
			}
		}
	}
}

// renderCmd implements "render".
func renderCmd(args []string, env environment) error {
	flagSet := pflag.NewFlagSet("render", pflag.ContinueOnError)
	configPath := addConfigFlag(flagSet)
	tlsModeFlag := flagSet.String("tls-mode", "", "TLS mode to render (default: config proxy.tls_mode)")
	printConfig := flagSet.Bool("print", false, "write the rendered configuration to stdout")
	if help, err := parseFlags(flagSet, args, env); help || err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *tlsModeFlag != "" {
		cfg.Proxy.TLSMode = *tlsModeFlag
	}
	mode, err := sandbox.ParseTLSMode(cfg.Proxy.TLSMode)
	if err != nil {
		return err
	}

	serviceConfig, err := sandboxConfig(cfg, nil, env.logger.With("command", "render"))
	if err != nil {
		return err
	}
	service, err := sandbox.New(serviceConfig)
	if err != nil {
		return err
	}
	if err := service.Reconfigure(mode); err != nil {
		return err
	}

	if !*printConfig {
		fmt.Fprintln(env.stdout, service.ConfigPath())
		return nil
	}
	rendered, err := os.ReadFile(service.ConfigPath())
	if err != nil {
		return err
	}
	_, err = env.stdout.Write(rendered)
	return err
}

// fingerprintCmd implements "fingerprint".
func fingerprintCmd(args []string, env environment) error {
	flagSet := pflag.NewFlagSet("fingerprint", pflag.ContinueOnError)
	configPath := addConfigFlag(flagSet)
	algorithmFlag := flagSet.String("algorithm", "", "digest algorithm: sha256 or blake3")
	manifest := flagSet.Bool("manifest", false, "dump the recorded build manifest instead of hashing a directory")
	if help, err := parseFlags(flagSet, args, env); help || err != nil {
		return err
	}

	if *manifest {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		proxyInstaller, err := newInstaller(cfg, io.Discard, env.logger)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(proxyInstaller.ManifestPath())
		if err != nil {
			return fmt.Errorf("reading manifest: %w", err)
		}
		diagnostic, err := codec.Diagnose(data)
		if err != nil {
			return fmt.Errorf("decoding manifest: %w", err)
		}
		fmt.Fprintln(env.stdout, diagnostic)
		return nil
	}

	if flagSet.NArg() != 1 {
		fmt.Fprintln(env.stderr, "usage: proxysandbox fingerprint [--algorithm=sha256|blake3] <directory>")
		return exitError{code: 2}
	}
	algorithm, err := fingerprint.ParseAlgorithm(*algorithmFlag)
	if err != nil {
		return err
	}
	tree, err := fingerprint.Tree(flagSet.Arg(0), algorithm)
	if err != nil {
		return err
	}
	for _, entry := range tree.Entries {
		fmt.Fprintf(env.stdout, "%s  %s\n", entry.Digest, entry.Path)
	}
	return nil
}

// shouldCompileCmd implements "should-compile". It prints true or
// false, and with --exit-code exits 1 when the binary is current.
func shouldCompileCmd(args []string, env environment) error {
	flagSet := pflag.NewFlagSet("should-compile", pflag.ContinueOnError)
	configPath := addConfigFlag(flagSet)
	exitCode := flagSet.Bool("exit-code", false, "exit 1 instead of printing false when no compile is needed")
	if help, err := parseFlags(flagSet, args, env); help || err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	proxyInstaller, err := newInstaller(cfg, io.Discard, env.logger)
	if err != nil {
		return err
	}
	stale, err := proxyInstaller.ShouldCompile()
	if err != nil {
		return err
	}
	if *exitCode {
		if !stale {
			return exitError{code: 1}
		}
		return nil
	}
	fmt.Fprintln(env.stdout, stale)
	return nil
}

// checkCmd implements "check".
func checkCmd(args []string, env environment) error {
	flagSet := pflag.NewFlagSet("check", pflag.ContinueOnError)
	configPath := addConfigFlag(flagSet)
	if help, err := parseFlags(flagSet, args, env); help || err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	serviceConfig, err := sandboxConfig(cfg, nil, env.logger)
	if err != nil {
		return err
	}

	validator := sandbox.NewValidator()
	validator.ValidateAll(serviceConfig)
	validator.PrintResults(env.stdout)
	if validator.HasErrors() {
		return exitError{code: 1}
	}
	return nil
}

// versionCmd implements "version".
func versionCmd(args []string, env environment) error {
	flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
	full := flagSet.Bool("full", false, "include Go version, platform and binary digest")
	if help, err := parseFlags(flagSet, args, env); help || err != nil {
		return err
	}

	if !*full {
		fmt.Fprintf(env.stdout, "proxysandbox %s\n", version.Info())
		return nil
	}
	fmt.Fprintf(env.stdout, "proxysandbox %s\n", version.Full())
	digest, err := version.SelfDigest(fingerprint.SHA256)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "  Digest: sha256:%s\n", digest)
	return nil
}
