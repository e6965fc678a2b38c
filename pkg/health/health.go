// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package health

import "time"

// Metrics is a point-in-time snapshot of one provider's health, safe to
// serialize to JSON for diagnostics output.
type Metrics struct {
	Provider         string    `json:"provider"`
	Available        bool      `json:"available"`
	CredentialNeeded bool      `json:"credential_needed"`
	CredentialStored bool      `json:"credential_stored"`
	CatalogSize      int       `json:"catalog_size"`
	CheckedAt        time.Time `json:"checked_at"`
	Error            string    `json:"error,omitempty"`
}

// Report aggregates provider snapshots for one diagnostics run.
type Report struct {
	Providers []Metrics `json:"providers"`
	Database  string    `json:"database"`
	Config    string    `json:"config"`
}
