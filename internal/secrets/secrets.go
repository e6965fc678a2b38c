// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package secrets keeps provider credentials out of the session database
// and the config file. Keys are provider IDs; values are opaque bearer
// credentials. Nothing else in the engine ever persists the secret.
package secrets

import (
	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

// Store is the credential backend handed to the provider router and the
// secret commands.
type Store interface {
	// Get returns the credential stored for a provider, or a
	// CodeSecretNotFound error when none is stored.
	Get(providerID string) (string, error)

	// Has reports whether a credential is stored for the provider. Backend
	// failures count as "no credential" so callers fall through to the
	// needs-setup path rather than crashing.
	Has(providerID string) bool

	// Set stores the credential for a provider, replacing any prior one.
	Set(providerID, credential string) error

	// Delete removes the provider's credential. Returns CodeSecretNotFound
	// when none was stored.
	Delete(providerID string) error

	// List returns the provider IDs with a stored credential, sorted.
	List() ([]string, error)
}

// checkSetInput rejects the inputs no backend should accept.
func checkSetInput(providerID, credential string) error {
	if providerID == "" {
		return parleyerr.New(parleyerr.CodeSecretInvalidInput, "set credential: provider id must not be empty")
	}
	if credential == "" {
		return parleyerr.New(parleyerr.CodeSecretInvalidInput, "set credential: credential must not be empty")
	}
	return nil
}
