// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package probe waits for a TCP service to accept connections.
//
// [Prober.WaitUntilConnectable] dials host:port, and on failure records
// the attempt and retries after a fixed interval until the dial
// succeeds or the timeout elapses. It is the only blocking retry loop
// in the sandbox: callers invoke it right after spawning a process and
// must not treat the service as available until it returns nil.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/bureau-foundation/proxysandbox/lib/clock"
)

// ErrConnectionTimeout is returned when no dial succeeded before the
// timeout.
var ErrConnectionTimeout = errors.New("probe: connection timeout")

const (
	defaultInterval    = 100 * time.Millisecond
	defaultDialTimeout = time.Second
)

// DialFunc opens a connection. net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config holds Prober parameters. All fields are optional.
type Config struct {
	// Name labels log lines, e.g. "director_nginx".
	Name string

	// Interval is the fixed delay between failed attempts. Default
	// 100ms.
	Interval time.Duration

	// DialTimeout bounds a single attempt. Default 1s.
	DialTimeout time.Duration

	// Log receives one human-readable line per attempt. Typically the
	// supervised process's log file, so the probe history sits next to
	// the service output.
	Log io.Writer

	// Logger receives structured records for the start and end of a
	// wait.
	Logger *slog.Logger

	// Clock drives the retry delay and the deadline. Default real.
	Clock clock.Clock

	// Dial overrides the dialer. Used by tests.
	Dial DialFunc
}

// Prober polls a TCP endpoint until it accepts a connection.
type Prober struct {
	name        string
	interval    time.Duration
	dialTimeout time.Duration
	log         io.Writer
	logger      *slog.Logger
	clock       clock.Clock
	dial        DialFunc
}

// New creates a Prober.
func New(config Config) *Prober {
	prober := &Prober{
		name:        config.Name,
		interval:    config.Interval,
		dialTimeout: config.DialTimeout,
		log:         config.Log,
		logger:      config.Logger,
		clock:       config.Clock,
		dial:        config.Dial,
	}
	if prober.name == "" {
		prober.name = "service"
	}
	if prober.interval <= 0 {
		prober.interval = defaultInterval
	}
	if prober.dialTimeout <= 0 {
		prober.dialTimeout = defaultDialTimeout
	}
	if prober.log == nil {
		prober.log = io.Discard
	}
	if prober.logger == nil {
		prober.logger = slog.New(slog.DiscardHandler)
	}
	if prober.clock == nil {
		prober.clock = clock.Real()
	}
	if prober.dial == nil {
		dialer := &net.Dialer{}
		prober.dial = dialer.DialContext
	}
	return prober
}

// WaitUntilConnectable returns nil as soon as a TCP connection to
// host:port succeeds; the connection is closed immediately. It returns
// an error wrapping ErrConnectionTimeout if the timeout passes first.
// If ctx is done first, the ctx cause is returned; the supervisor uses
// this to stop waiting on a process that already exited.
func (p *Prober) WaitUntilConnectable(ctx context.Context, host string, port int, timeout time.Duration) error {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	deadline := p.clock.Now().Add(timeout)

	p.logger.Info("waiting for service", "name", p.name, "address", address, "timeout", timeout)

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := context.Cause(ctx); err != nil {
			return err
		}

		err := p.tryOnce(ctx, address)
		if err == nil {
			fmt.Fprintf(p.log, "%s is accepting connections on %s (attempt %d)\n", p.name, address, attempt)
			p.logger.Info("service ready", "name", p.name, "address", address, "attempts", attempt)
			return nil
		}
		lastErr = err
		fmt.Fprintf(p.log, "Waiting for %s to come up on %s (attempt %d): %v\n", p.name, address, attempt, err)
		p.logger.Debug("service not ready", "name", p.name, "address", address, "attempt", attempt, "error", err)

		remaining := deadline.Sub(p.clock.Now())
		if remaining <= 0 {
			break
		}

		// The final sleep is clipped to the deadline so one last attempt
		// happens exactly at it.
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-p.clock.After(min(p.interval, remaining)):
		}
	}

	p.logger.Warn("service did not become ready", "name", p.name, "address", address, "timeout", timeout, "error", lastErr)
	return fmt.Errorf("%w: %s on %s not reachable after %s: %v", ErrConnectionTimeout, p.name, address, timeout, lastErr)
}

func (p *Prober) tryOnce(ctx context.Context, address string) error {
	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()
	conn, err := p.dial(dialCtx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}
