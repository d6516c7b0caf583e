// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process owns the lifecycle of supervised child processes and
// the binary entrypoint error helper.
//
// [ServiceProcess] runs one long-lived external program with its
// combined stdout and stderr appended to a log file. The child is
// placed in its own process group so [ServiceProcess.Stop] can signal
// it together with anything it forked: SIGTERM first, then SIGKILL if
// the group has not exited within the stop timeout. A reaper goroutine
// waits on the child and closes [ServiceProcess.Done] when it exits,
// whether the exit was requested or not.
//
// [Fatal] reports an error to stderr and exits. Use it in main() for
// errors that occur before or after the structured logger exists.
package process
