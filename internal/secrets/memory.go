// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package secrets

import (
	"sort"
	"sync"

	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

// MemStore is an in-memory Store for tests and for environments without
// an OS keyring (CI, containers).
type MemStore struct {
	mu    sync.RWMutex
	creds map[string]string
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{creds: make(map[string]string)}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) Get(providerID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credential, ok := s.creds[providerID]
	if !ok {
		return "", parleyerr.Errorf(parleyerr.CodeSecretNotFound, "no credential stored for provider %s", providerID)
	}
	return credential, nil
}

func (s *MemStore) Has(providerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.creds[providerID]
	return ok
}

func (s *MemStore) Set(providerID, credential string) error {
	if err := checkSetInput(providerID, credential); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[providerID] = credential
	return nil
}

func (s *MemStore) Delete(providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.creds[providerID]; !ok {
		return parleyerr.Errorf(parleyerr.CodeSecretNotFound, "no credential stored for provider %s", providerID)
	}
	delete(s.creds, providerID)
	return nil
}

func (s *MemStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.creds))
	for id := range s.creds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
