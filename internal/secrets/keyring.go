// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"slices"

	parleyerr "github.com/parley-dev/parley/pkg/errors"
	"github.com/zalando/go-keyring"
)

// service is the single keyring service every credential lives under.
// On macOS this is a Keychain item, on Linux a secret-service entry over
// D-Bus, on Windows a Credential Manager entry.
const service = "parley"

// indexEntry holds a JSON array of the provider IDs that have a stored
// credential. go-keyring cannot enumerate a service's entries, so List
// reads this instead.
const indexEntry = "providers.index"

// Keyring is the OS-keyring Store. Provider IDs map directly to keyring
// entry names under the parley service.
type Keyring struct{}

// NewKeyring returns the OS-keyring credential store.
func NewKeyring() *Keyring {
	return &Keyring{}
}

var _ Store = (*Keyring)(nil)

func (k *Keyring) Get(providerID string) (string, error) {
	credential, err := keyring.Get(service, providerID)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", parleyerr.Errorf(parleyerr.CodeSecretNotFound, "no credential stored for provider %s", providerID)
		}
		return "", parleyerr.Wrapf(err, parleyerr.CodeSecretStoreFailure, "reading credential for provider %s", providerID)
	}
	return credential, nil
}

func (k *Keyring) Has(providerID string) bool {
	_, err := k.Get(providerID)
	return err == nil
}

func (k *Keyring) Set(providerID, credential string) error {
	if err := checkSetInput(providerID, credential); err != nil {
		return err
	}
	if err := keyring.Set(service, providerID, credential); err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeSecretStoreFailure, "storing credential for provider %s", providerID)
	}
	return k.updateIndex(func(ids []string) []string {
		if slices.Contains(ids, providerID) {
			return ids
		}
		return append(ids, providerID)
	})
}

func (k *Keyring) Delete(providerID string) error {
	if err := keyring.Delete(service, providerID); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return parleyerr.Errorf(parleyerr.CodeSecretNotFound, "no credential stored for provider %s", providerID)
		}
		return parleyerr.Wrapf(err, parleyerr.CodeSecretStoreFailure, "deleting credential for provider %s", providerID)
	}
	return k.updateIndex(func(ids []string) []string {
		return slices.DeleteFunc(ids, func(id string) bool { return id == providerID })
	})
}

func (k *Keyring) List() ([]string, error) {
	ids, err := k.readIndex()
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

func (k *Keyring) readIndex() ([]string, error) {
	raw, err := keyring.Get(service, indexEntry)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, parleyerr.Wrapf(err, parleyerr.CodeSecretStoreFailure, "reading credential index")
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeSecretStoreFailure, "decoding credential index")
	}
	return ids, nil
}

func (k *Keyring) updateIndex(mutate func([]string) []string) error {
	ids, err := k.readIndex()
	if err != nil {
		return err
	}

	ids = mutate(ids)
	if len(ids) == 0 {
		// Best effort: a stale empty index only costs one extra read.
		_ = keyring.Delete(service, indexEntry)
		return nil
	}

	raw, err := json.Marshal(ids)
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeSecretStoreFailure, "encoding credential index")
	}
	if err := keyring.Set(service, indexEntry, string(raw)); err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeSecretStoreFailure, "saving credential index")
	}
	return nil
}
