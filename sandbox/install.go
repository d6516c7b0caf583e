// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/proxysandbox/lib/installer"
)

// Install guarantees the proxy binary is compiled and current. It
// prepares the sources and compiles only when the installer reports
// the artifact is stale.
func Install(ctx context.Context, proxyInstaller *installer.Installer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	compiled, err := proxyInstaller.Ensure(ctx)
	if err != nil {
		return fmt.Errorf("sandbox: installing proxy: %w", err)
	}
	logger.Info("proxy binary ready", "executable", proxyInstaller.ExecutablePath(), "compiled", compiled)
	return nil
}
