// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/proxysandbox/lib/clock"
	"github.com/bureau-foundation/proxysandbox/lib/runner"
)

var (
	// ErrLaunchFailed is returned when the executable cannot be
	// spawned or its log file cannot be opened.
	ErrLaunchFailed = errors.New("process: launch failed")

	// ErrAlreadyRunning is returned by Start while a previous start
	// has not exited.
	ErrAlreadyRunning = errors.New("process: already running")
)

// DefaultStopTimeout is how long Stop waits after SIGTERM before
// sending SIGKILL.
const DefaultStopTimeout = 5 * time.Second

// ServiceConfig describes one supervised program.
type ServiceConfig struct {
	// Name labels log records. Default: the executable's base name.
	Name string

	// Args is the full argv; Args[0] is the executable.
	Args []string

	// LogPath receives the child's stdout and stderr, appended.
	LogPath string

	// Env overrides entries of the parent environment.
	Env map[string]string

	Logger      *slog.Logger
	StopTimeout time.Duration
	Clock       clock.Clock
}

// ServiceProcess starts and stops one external program. It can be
// started again after it exits.
type ServiceProcess struct {
	name        string
	args        []string
	logPath     string
	env         map[string]string
	logger      *slog.Logger
	stopTimeout time.Duration
	clock       clock.Clock

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// NewServiceProcess validates config and returns a stopped process.
func NewServiceProcess(config ServiceConfig) (*ServiceProcess, error) {
	if len(config.Args) == 0 || config.Args[0] == "" {
		return nil, errors.New("process: executable is required")
	}
	if config.LogPath == "" {
		return nil, errors.New("process: log path is required")
	}
	service := &ServiceProcess{
		name:        config.Name,
		args:        slices.Clone(config.Args),
		logPath:     config.LogPath,
		env:         config.Env,
		logger:      config.Logger,
		stopTimeout: config.StopTimeout,
		clock:       config.Clock,
	}
	if service.name == "" {
		service.name = filepath.Base(config.Args[0])
	}
	if service.logger == nil {
		service.logger = slog.New(slog.DiscardHandler)
	}
	if service.stopTimeout <= 0 {
		service.stopTimeout = DefaultStopTimeout
	}
	if service.clock == nil {
		service.clock = clock.Real()
	}
	return service, nil
}

// Start spawns the program. It returns once the child exists; it does
// not wait for the program to become useful.
func (s *ServiceProcess) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		return fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, s.name, s.cmd.Process.Pid)
	}

	if err := os.MkdirAll(filepath.Dir(s.logPath), 0o755); err != nil {
		return fmt.Errorf("%w: creating log directory for %s: %v", ErrLaunchFailed, s.name, err)
	}
	logFile, err := os.OpenFile(s.logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening log %s: %v", ErrLaunchFailed, s.logPath, err)
	}

	cmd := exec.Command(s.args[0], s.args[1:]...)
	cmd.Env = runner.MergeEnv(os.Environ(), s.env)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("%w: %s: %v", ErrLaunchFailed, s.args[0], err)
	}

	done := make(chan struct{})
	s.cmd = cmd
	s.done = done
	s.waitErr = nil
	s.logger.Info("process started", "name", s.name, "pid", cmd.Process.Pid, "log", s.logPath)

	go s.reap(cmd, logFile, done)
	return nil
}

func (s *ServiceProcess) reap(cmd *exec.Cmd, logFile *os.File, done chan struct{}) {
	err := cmd.Wait()
	logFile.Close()

	s.mu.Lock()
	if s.cmd == cmd {
		s.waitErr = err
	}
	s.mu.Unlock()

	s.logger.Info("process exited", "name", s.name, "pid", cmd.Process.Pid, "status", describeExit(err))
	close(done)
}

// Stop terminates the process group and waits for the child to be
// reaped. Stopping a process that is not running does nothing.
func (s *ServiceProcess) Stop() error {
	s.mu.Lock()
	if !s.runningLocked() {
		s.mu.Unlock()
		return nil
	}
	pid := s.cmd.Process.Pid
	done := s.done
	s.mu.Unlock()

	s.logger.Info("stopping process", "name", s.name, "pid", pid)
	if err := signalGroup(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("process: terminating %s: %w", s.name, err)
	}

	select {
	case <-done:
		return nil
	case <-s.clock.After(s.stopTimeout):
	}

	s.logger.Warn("process ignored SIGTERM, killing", "name", s.name, "pid", pid, "timeout", s.stopTimeout)
	if err := signalGroup(pid, unix.SIGKILL); err != nil {
		return fmt.Errorf("process: killing %s: %w", s.name, err)
	}
	<-done
	return nil
}

// signalGroup signals the process group led by pid. A group that has
// already gone is not an error.
func signalGroup(pid int, signal unix.Signal) error {
	err := unix.Kill(-pid, signal)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func (s *ServiceProcess) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Running reports whether the child has been started and not yet
// reaped.
func (s *ServiceProcess) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

var closedChannel = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Done is closed when the most recently started child exits. Before
// the first Start it returns an already closed channel.
func (s *ServiceProcess) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return closedChannel
	}
	return s.done
}

// ExitError is the most recent child's wait result: nil for a clean
// exit or while still running, otherwise an *exec.ExitError.
func (s *ServiceProcess) ExitError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitErr
}

// Pid returns the most recent child's pid, or 0 if never started.
func (s *ServiceProcess) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Args returns a copy of the argv.
func (s *ServiceProcess) Args() []string {
	return slices.Clone(s.args)
}

// LogPath returns the combined output log.
func (s *ServiceProcess) LogPath() string {
	return s.logPath
}

// Name returns the label used in log records.
func (s *ServiceProcess) Name() string {
	return s.name
}

func describeExit(err error) string {
	if err == nil {
		return "exited cleanly"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return "killed by " + status.Signal().String()
		}
		return fmt.Sprintf("exit code %d", exitErr.ExitCode())
	}
	return err.Error()
}
