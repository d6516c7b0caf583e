// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/bureau-foundation/proxysandbox/lib/probe"
	"github.com/bureau-foundation/proxysandbox/lib/process"
	"github.com/bureau-foundation/proxysandbox/lib/render"
)

// ErrProcessExited is returned by Start when the proxy exits before
// its port accepts connections.
var ErrProcessExited = errors.New("sandbox: process exited before becoming ready")

// readinessHost is where the service port is probed.
const readinessHost = "localhost"

// ProxyService supervises one proxy process and its configuration.
type ProxyService struct {
	config   Config
	renderer *render.Renderer
	process  *process.ServiceProcess
	prober   *probe.Prober
	logger   *slog.Logger

	mu sync.Mutex
	// mode is the most recently requested TLS mode; appliedMode is
	// the mode the running process was started with.
	mode        TLSMode
	appliedMode TLSMode
	dirty       bool
}

// New validates config, renders the initial configuration with the
// normal credential pair, and prepares the process. The proxy is not
// started.
func New(config Config) (*ProxyService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := os.MkdirAll(config.SandboxRoot, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: creating sandbox root: %w", err)
	}
	if config.TemplatePath == "" {
		config.TemplatePath = filepath.Join(config.SandboxRoot, defaultTemplateName)
		if err := writeDefaultTemplate(config.TemplatePath); err != nil {
			return nil, err
		}
	}

	cert, key := Credentials(config.CertsDir, TLSNormal)
	defaults := render.Attributes{
		render.SlotSandboxRoot:    config.SandboxRoot,
		render.SlotServicePort:    strconv.Itoa(config.ServicePort),
		render.SlotUpstreamPort1:  strconv.Itoa(config.UpstreamPorts[0]),
		render.SlotUpstreamPort2:  strconv.Itoa(config.UpstreamPorts[1]),
		render.SlotTLSCertPath:    cert,
		render.SlotTLSCertKeyPath: key,
	}
	renderer, err := render.New(config.TemplatePath, config.ConfigPath(), defaults)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	if err := renderer.Write(nil); err != nil {
		return nil, fmt.Errorf("sandbox: rendering initial config: %w", err)
	}

	logger := config.Logger.With("service", "proxy", "port", config.ServicePort)
	child, err := process.NewServiceProcess(process.ServiceConfig{
		Name:        "nginx",
		Args:        []string{config.Executable, "-c", config.ConfigPath(), "-p", config.SandboxRoot},
		LogPath:     config.LogPath(),
		Env:         config.Env,
		Logger:      logger,
		StopTimeout: config.StopTimeout,
		Clock:       config.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}

	prober := probe.New(probe.Config{
		Name:     "proxy",
		Interval: config.ProbeInterval,
		Log:      config.ProbeOutput,
		Logger:   logger,
		Clock:    config.Clock,
	})

	return &ProxyService{
		config:      config,
		renderer:    renderer,
		process:     child,
		prober:      prober,
		logger:      logger,
		mode:        TLSNormal,
		appliedMode: TLSNormal,
	}, nil
}

// Start spawns the proxy and blocks until its service port accepts a
// connection. If the port does not open within ReadyTimeout, or the
// process exits first, the process is stopped and the error returned.
func (s *ProxyService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *ProxyService) startLocked(ctx context.Context) error {
	if err := s.process.Start(); err != nil {
		return fmt.Errorf("sandbox: starting proxy: %w", err)
	}

	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-s.process.Done():
			cancel(fmt.Errorf("%w: %v (see %s)", ErrProcessExited, s.process.ExitError(), s.process.LogPath()))
		case <-waitCtx.Done():
		}
	}()

	err := s.prober.WaitUntilConnectable(waitCtx, readinessHost, s.config.ServicePort, s.config.ReadyTimeout)
	if err != nil {
		if stopErr := s.process.Stop(); stopErr != nil {
			s.logger.Error("stopping proxy after failed start", "error", stopErr)
		}
		return fmt.Errorf("sandbox: proxy on port %d not ready: %w", s.config.ServicePort, err)
	}

	s.appliedMode = s.mode
	s.dirty = false
	return nil
}

// Stop terminates the proxy. Stopping a stopped proxy does nothing.
func (s *ProxyService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *ProxyService) stopLocked() error {
	if err := s.process.Stop(); err != nil {
		return fmt.Errorf("sandbox: stopping proxy: %w", err)
	}
	return nil
}

// Reconfigure rewrites the configuration with mode's credential pair.
// The service becomes dirty when mode differs from the mode the
// running process was started with; calling it with that same mode
// clears an earlier pending change. Repeating a call with the mode
// already pending leaves the service dirty, so one RestartIfNeeded
// still applies it. The process is not touched.
func (s *ProxyService) Reconfigure(mode TLSMode) error {
	if !mode.valid() {
		return fmt.Errorf("sandbox: unknown TLS mode %q", mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cert, key := Credentials(s.config.CertsDir, mode)
	err := s.renderer.Write(render.Attributes{
		render.SlotTLSCertPath:    cert,
		render.SlotTLSCertKeyPath: key,
	})
	if err != nil {
		return fmt.Errorf("sandbox: reconfiguring TLS: %w", err)
	}

	s.mode = mode
	s.dirty = mode != s.appliedMode
	s.logger.Info("proxy reconfigured", "tls_mode", mode, "dirty", s.dirty)
	return nil
}

// Update applies attribute overrides to the rendered configuration
// without marking the service dirty. The change reaches the process at
// its next start.
func (s *ProxyService) Update(overrides render.Attributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.renderer.Write(overrides); err != nil {
		return fmt.Errorf("sandbox: updating config: %w", err)
	}
	return nil
}

// RestartIfNeeded restarts the proxy when a reconfiguration is
// pending and reports whether it did. The dirty flag clears only when
// the new process becomes ready.
func (s *ProxyService) RestartIfNeeded(ctx context.Context) (restarted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return false, nil
	}
	s.logger.Info("restarting proxy for pending reconfiguration", "from", s.appliedMode, "to", s.mode)
	if err := s.stopLocked(); err != nil {
		return false, err
	}
	if err := s.startLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Dirty reports whether a reconfiguration is waiting for a restart.
func (s *ProxyService) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// TLSMode returns the most recently requested mode.
func (s *ProxyService) TLSMode() TLSMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Running reports whether the proxy process is alive.
func (s *ProxyService) Running() bool {
	return s.process.Running()
}

// Pid returns the current or most recent proxy pid.
func (s *ProxyService) Pid() int {
	return s.process.Pid()
}

// ConfigPath returns the rendered configuration file.
func (s *ProxyService) ConfigPath() string {
	return s.renderer.OutputPath()
}

// LogPath returns the proxy's combined output log.
func (s *ProxyService) LogPath() string {
	return s.process.LogPath()
}

// Command returns the proxy's argv.
func (s *ProxyService) Command() []string {
	return s.process.Args()
}

// Attributes returns the last rendered attribute set.
func (s *ProxyService) Attributes() render.Attributes {
	return s.renderer.Current()
}

// Port returns the service port.
func (s *ProxyService) Port() int {
	return s.config.ServicePort
}

// Done is closed when the current proxy process exits.
func (s *ProxyService) Done() <-chan struct{} {
	return s.process.Done()
}

// ExitError returns how the most recent proxy process exited.
func (s *ProxyService) ExitError() error {
	return s.process.ExitError()
}
