// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox supervises the reverse proxy that fronts an
// integration-test sandbox.
//
// The central type is [ProxyService]. It owns one rendered nginx
// configuration (via lib/render), one child process (via lib/process)
// and the readiness wait that follows every start (via lib/probe).
// Callers drive it synchronously from a single goroutine:
//
//	service, _ := sandbox.New(config)
//	service.Start(ctx)              // spawn, then wait for the port
//	service.Reconfigure(TLSWrongCA) // swap credentials, mark dirty
//	service.RestartIfNeeded(ctx)    // restart only when dirty
//	service.Stop()
//
// [ProxyService.Reconfigure] never touches the process. It rewrites the
// configuration with the credential pair for the requested [TLSMode]
// and marks the service dirty when that mode differs from the one the
// running process was started with. [ProxyService.RestartIfNeeded] is
// the only place a reconfiguration takes effect, so several test steps
// can adjust the configuration and pay for at most one restart.
//
// The process is never restarted automatically when it crashes. An
// exit during the readiness wait aborts the wait with
// [ErrProcessExited] instead of waiting out the full timeout.
//
// [Validator] runs pre-flight checks (executable, template, credential
// files, port availability) and prints them the way an operator
// expects before a long test run.
//
// The compiled proxy binary comes from lib/installer; [Install] is the
// convenience entry point that guarantees it is current.
package sandbox
