// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

//go:build !windows

package config

import (
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs a warning when the loaded config file is
// accessible to anyone besides its owner. Endpoint overrides can point at
// internal gateways, which other local users should not learn about.
// Startup proceeds either way; an empty path means defaults-only and
// there is nothing to check.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("permission check skipped", "path", path, "error", err)
		return
	}

	if mode := info.Mode(); mode.Perm()&0o077 != 0 {
		slog.Warn("config file is accessible to other users",
			"path", path,
			"mode", mode,
			"recommended", "0600",
		)
	}
}
