// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/proxysandbox/lib/config"
	"github.com/bureau-foundation/proxysandbox/lib/fingerprint"
	"github.com/bureau-foundation/proxysandbox/lib/installer"
	"github.com/bureau-foundation/proxysandbox/lib/runner"
	"github.com/bureau-foundation/proxysandbox/sandbox"
)

// addConfigFlag registers --config on flagSet.
func addConfigFlag(flagSet *pflag.FlagSet) *string {
	return flagSet.String("config", "", "path to the config file (default: $PROXYSANDBOX_CONFIG)")
}

// loadConfig reads path, or PROXYSANDBOX_CONFIG when path is empty,
// and validates the result.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newInstaller builds the build cache for cfg. Build output streams to
// output so long compiles show progress.
func newInstaller(cfg *config.Config, output io.Writer, logger *slog.Logger) (*installer.Installer, error) {
	algorithm, err := fingerprint.ParseAlgorithm(cfg.Build.Algorithm)
	if err != nil {
		return nil, err
	}
	return installer.New(installer.Config{
		Workspace:       cfg.Workspace(),
		SourceDir:       cfg.Paths.Sources,
		SourceArchive:   cfg.Build.SourceArchive,
		PrepareCommands: cfg.Build.PrepareCommands,
		PrepareDir:      cfg.Build.PrepareDir,
		BuildScript:     cfg.Build.BuildScript,
		Executable:      cfg.Build.Executable,
		InstallEnvVar:   cfg.Build.InstallEnvVar,
		Algorithm:       algorithm,
		Runner: runner.New(runner.Config{
			Observer: runner.WriterObserver(output),
			Logger:   logger,
		}),
		Logger: logger,
	})
}

// sandboxConfig translates cfg into a ProxyService configuration.
func sandboxConfig(cfg *config.Config, probeOutput io.Writer, logger *slog.Logger) (sandbox.Config, error) {
	durations, err := cfg.Durations()
	if err != nil {
		return sandbox.Config{}, err
	}
	return sandbox.Config{
		SandboxRoot:   cfg.Paths.SandboxRoot,
		ServicePort:   cfg.Proxy.ServicePort,
		UpstreamPorts: [2]int{cfg.Proxy.UpstreamPorts[0], cfg.Proxy.UpstreamPorts[1]},
		BaseLogPath:   cfg.BaseLogPath(),
		Executable:    cfg.ExecutablePath(),
		TemplatePath:  cfg.Proxy.Template,
		CertsDir:      cfg.Paths.Certs,
		ConfigName:    cfg.Proxy.ConfigName,
		ReadyTimeout:  durations.ReadyTimeout,
		ProbeInterval: durations.ProbeInterval,
		StopTimeout:   durations.StopTimeout,
		ProbeOutput:   probeOutput,
		Logger:        logger,
	}, nil
}
