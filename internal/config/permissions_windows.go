// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

//go:build windows

package config

// POSIX permission bits carry no meaning under the Windows ACL model, so
// the check is skipped there.
func WarnInsecurePermissions(path string) {}
