// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

// defaultYAML is the commented starter config written on first run. Every
// value in it matches the built-in defaults, so the fresh file changes
// nothing until the user edits it.
//
//go:embed parley.yaml.default
var defaultYAML []byte

// DefaultConfigPath returns ~/.config/parley/parley.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", parleyerr.Errorf(parleyerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "parley", "parley.yaml"), nil
}

// BootstrapConfig writes the starter config to the default path when no
// config exists there yet, and returns the path it wrote. First-run
// convenience only: any failure is logged and the command proceeds on
// built-in defaults, so the returned path may be empty.
func BootstrapConfig() string {
	path, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("config bootstrap skipped", "error", err)
		return ""
	}
	if _, err := os.Stat(path); err == nil {
		return ""
	}

	if err := writeStarterConfig(path); err != nil {
		slog.Debug("config bootstrap skipped", "path", path, "error", err)
		return ""
	}
	slog.Info("created default config", "path", path)
	return path
}

// writeStarterConfig creates the config directory and file with
// owner-only permissions, since the file may later hold provider endpoint
// overrides.
func writeStarterConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, defaultYAML, 0o600)
}
