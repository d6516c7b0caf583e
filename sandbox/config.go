// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/proxysandbox/lib/clock"
)

const (
	// DefaultConfigName is the rendered configuration's file name
	// inside SandboxRoot.
	DefaultConfigName = "nginx.conf"

	// DefaultReadyTimeout bounds the wait for the service port after
	// each start.
	DefaultReadyTimeout = 30 * time.Second

	// defaultTemplateName is where the embedded template is written
	// when TemplatePath is empty.
	defaultTemplateName = "nginx.conf.tmpl"

	logSuffix = ".service.out"
)

// Config holds ProxyService construction parameters.
type Config struct {
	// SandboxRoot is the proxy's prefix directory (nginx -p) and
	// holds the rendered configuration. Created if missing.
	SandboxRoot string

	// ServicePort is the TLS port the proxy listens on and readiness
	// is probed against.
	ServicePort int

	// UpstreamPorts are the two backend ports the proxy forwards to.
	UpstreamPorts [2]int

	// BaseLogPath is the prefix of the process log. Output goes to
	// "<BaseLogPath>.service.out".
	BaseLogPath string

	// Executable is the compiled proxy binary.
	Executable string

	// TemplatePath is the configuration template. Empty selects the
	// embedded default template.
	TemplatePath string

	// CertsDir holds server.{crt,key} and serverWithWrongCA.{crt,key}.
	CertsDir string

	// ConfigName is the rendered file's name. Default "nginx.conf".
	ConfigName string

	// Env overrides entries of the proxy's environment.
	Env map[string]string

	// ReadyTimeout bounds the readiness wait. Default 30s.
	ReadyTimeout time.Duration

	// ProbeInterval is the delay between readiness attempts. Default
	// lib/probe's.
	ProbeInterval time.Duration

	// StopTimeout is the grace period between SIGTERM and SIGKILL.
	// Default lib/process's.
	StopTimeout time.Duration

	// ProbeOutput receives one line per readiness attempt. Default
	// the process log, so attempts sit next to the proxy's output.
	ProbeOutput io.Writer

	Clock  clock.Clock
	Logger *slog.Logger
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.SandboxRoot == "" {
		errs = append(errs, errors.New("sandbox root is required"))
	} else if !filepath.IsAbs(c.SandboxRoot) {
		errs = append(errs, fmt.Errorf("sandbox root %q must be absolute", c.SandboxRoot))
	}
	if c.Executable == "" {
		errs = append(errs, errors.New("executable is required"))
	}
	if c.BaseLogPath == "" {
		errs = append(errs, errors.New("base log path is required"))
	}
	if c.CertsDir == "" {
		errs = append(errs, errors.New("certs directory is required"))
	}
	for _, port := range []struct {
		name  string
		value int
	}{
		{"service port", c.ServicePort},
		{"upstream port 1", c.UpstreamPorts[0]},
		{"upstream port 2", c.UpstreamPorts[1]},
	} {
		if port.value <= 0 || port.value > 65535 {
			errs = append(errs, fmt.Errorf("%s %d is out of range", port.name, port.value))
		}
	}
	if c.ServicePort != 0 && (c.ServicePort == c.UpstreamPorts[0] || c.ServicePort == c.UpstreamPorts[1]) {
		errs = append(errs, fmt.Errorf("service port %d collides with an upstream port", c.ServicePort))
	}
	if c.ReadyTimeout < 0 {
		errs = append(errs, fmt.Errorf("ready timeout %s is negative", c.ReadyTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("sandbox: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ConfigName == "" {
		c.ConfigName = DefaultConfigName
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.ProbeOutput == nil {
		c.ProbeOutput = appendFile{path: c.LogPath()}
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// ConfigPath is where the rendered configuration lives.
func (c *Config) ConfigPath() string {
	name := c.ConfigName
	if name == "" {
		name = DefaultConfigName
	}
	return filepath.Join(c.SandboxRoot, name)
}

// LogPath is the process's combined output log.
func (c *Config) LogPath() string {
	return c.BaseLogPath + logSuffix
}

// appendFile opens path for append on every write. The supervised
// process holds its own O_APPEND descriptor on the same file, so lines
// from both interleave whole.
type appendFile struct {
	path string
}

func (a appendFile) Write(p []byte) (int, error) {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return 0, err
	}
	file, err := os.OpenFile(a.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := file.Write(p)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
