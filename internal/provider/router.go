// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/parley-dev/parley/internal/store"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

// Router owns the active provider/model selection, the per-provider model
// catalog cache, and the dispatch of normalized conversations to the
// matching adapter. Selection survives restarts through the pref store.
type Router struct {
	mu       sync.RWMutex
	registry *Registry
	adapters map[string]Adapter
	creds    CredentialSource
	prefs    store.PrefStore

	selectedProvider string
	selectedModel    string
	catalogs         map[string][]string
}

// NewRouter creates a Router over the given registry, credential source,
// and pref store. Adapters are registered separately so tests can swap in
// fakes per backend.
func NewRouter(registry *Registry, creds CredentialSource, prefs store.PrefStore) *Router {
	return &Router{
		registry: registry,
		adapters: make(map[string]Adapter),
		creds:    creds,
		prefs:    prefs,
		catalogs: make(map[string][]string),
	}
}

// RegisterAdapter binds an adapter to its provider ID.
func (r *Router) RegisterAdapter(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ID()] = a
}

// Adapter returns the adapter registered for the given provider ID.
func (r *Router) Adapter(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[id]
	if !ok {
		return nil, parleyerr.New(
			parleyerr.CodeProviderNotFound,
			"no adapter registered for provider: "+id,
			parleyerr.FieldProvider(id),
		)
	}
	return a, nil
}

// Registry exposes the static descriptors for listing in the shell.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Load restores the persisted provider/model selection. When nothing has
// been persisted yet the selection defaults to the local backend, which
// needs no credential and is always usable.
func (r *Router) Load(ctx context.Context) error {
	providerID, err := r.prefs.GetPref(ctx, store.PrefSelectedProvider)
	if err != nil {
		return err
	}
	model, err := r.prefs.GetPref(ctx, store.PrefSelectedModel)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if providerID == "" {
		providerID = ProviderOllama
	}
	if _, ok := r.registry.byID[providerID]; !ok {
		// Persisted selection refers to a provider that no longer exists.
		providerID = ProviderOllama
		model = ""
	}
	if model == "" {
		model = r.registry.byID[providerID].DefaultModel
	}

	r.selectedProvider = providerID
	r.selectedModel = model
	return nil
}

// Selected returns the active provider ID and model.
func (r *Router) Selected() (providerID, model string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selectedProvider, r.selectedModel
}

// SelectProvider switches the active provider. When the target requires a
// credential and none is stored, the selection is left untouched and a
// needs-setup error (CodeProviderCredentialMissing) is returned so the
// shell can prompt for one. Switching auto-selects the provider's default
// model when the previously selected model is not in its catalog.
func (r *Router) SelectProvider(ctx context.Context, id string) error {
	desc, err := r.registry.Get(id)
	if err != nil {
		return err
	}

	if desc.RequiresCredential && !r.creds.Has(id) {
		return parleyerr.New(
			parleyerr.CodeProviderCredentialMissing,
			"provider "+id+" needs a credential before it can be selected",
			parleyerr.FieldProvider(id),
		)
	}

	catalog := r.Models(ctx, id)

	r.mu.Lock()
	r.selectedProvider = id
	if !slices.Contains(catalog, r.selectedModel) {
		r.selectedModel = desc.DefaultModel
	}
	model := r.selectedModel
	r.mu.Unlock()

	return r.persistSelection(ctx, id, model)
}

// SelectModel switches the active model within the current provider.
func (r *Router) SelectModel(ctx context.Context, model string) error {
	if model == "" {
		return parleyerr.New(parleyerr.CodeChatInvalidInput, "model name must not be empty")
	}

	r.mu.Lock()
	r.selectedModel = model
	providerID := r.selectedProvider
	r.mu.Unlock()

	return r.persistSelection(ctx, providerID, model)
}

func (r *Router) persistSelection(ctx context.Context, providerID, model string) error {
	if err := r.prefs.SetPref(ctx, store.PrefSelectedProvider, providerID); err != nil {
		return err
	}
	return r.prefs.SetPref(ctx, store.PrefSelectedModel, model)
}

// Models returns the cached model catalog for a provider, refreshing it on
// first use. Catalog failures never propagate: a stale or fallback catalog
// is preferable to blocking chat.
func (r *Router) Models(ctx context.Context, providerID string) []string {
	r.mu.RLock()
	cached, ok := r.catalogs[providerID]
	r.mu.RUnlock()
	if ok {
		return cached
	}
	return r.RefreshModels(ctx, providerID)
}

// RefreshModels re-queries the backend's model listing when the adapter
// supports discovery, falling back to the descriptor's static candidate
// list on any failure. The result is sorted newest-first and cached.
func (r *Router) RefreshModels(ctx context.Context, providerID string) []string {
	desc, err := r.registry.Get(providerID)
	if err != nil {
		return nil
	}

	models := r.discoverModels(ctx, desc)
	if len(models) == 0 {
		models = slices.Clone(desc.CandidateModels)
	}
	SortModels(models)

	r.mu.Lock()
	r.catalogs[providerID] = models
	r.mu.Unlock()

	return models
}

func (r *Router) discoverModels(ctx context.Context, desc Descriptor) []string {
	r.mu.RLock()
	a, ok := r.adapters[desc.ID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	catalog, ok := a.(Catalog)
	if !ok {
		return nil
	}

	credential := ""
	if desc.RequiresCredential {
		credential, _ = r.creds.Get(desc.ID)
	}

	models, err := catalog.ListModels(ctx, credential)
	if err != nil {
		slog.Warn("model discovery failed, using candidate list",
			"provider", desc.ID,
			"error", err,
		)
		return nil
	}
	return models
}

// EnabledModels returns the user's enabled-model preference for a
// provider, or nil when every catalog model is enabled.
func (r *Router) EnabledModels(ctx context.Context, providerID string) ([]string, error) {
	raw, err := r.prefs.GetPref(ctx, store.PrefEnabledModelsPrefix+providerID)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	var models []string
	if err := json.Unmarshal([]byte(raw), &models); err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreInvalidInput, "decoding enabled models for %s", providerID)
	}
	return models, nil
}

// SetEnabledModels stores the enabled-model preference for a provider.
func (r *Router) SetEnabledModels(ctx context.Context, providerID string, models []string) error {
	raw, err := json.Marshal(models)
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreInvalidInput, "encoding enabled models for %s", providerID)
	}
	return r.prefs.SetPref(ctx, store.PrefEnabledModelsPrefix+providerID, string(raw))
}

// Dispatch resolves the active provider/model pair and hands the
// conversation to the matching adapter.
func (r *Router) Dispatch(ctx context.Context, conversation []Turn) (<-chan Delta, error) {
	r.mu.RLock()
	providerID, model := r.selectedProvider, r.selectedModel
	r.mu.RUnlock()

	if providerID == "" {
		return nil, parleyerr.New(parleyerr.CodeChatModelNotSelected, "no provider selected")
	}
	if model == "" {
		return nil, parleyerr.New(
			parleyerr.CodeChatModelNotSelected,
			"no model selected for provider "+providerID,
			parleyerr.FieldProvider(providerID),
		)
	}

	desc, err := r.registry.Get(providerID)
	if err != nil {
		return nil, err
	}

	credential := ""
	if desc.RequiresCredential {
		credential, err = r.creds.Get(providerID)
		if err != nil {
			return nil, parleyerr.Wrap(err,
				parleyerr.CodeProviderCredentialMissing,
				"no credential stored for provider "+providerID,
				parleyerr.FieldProvider(providerID),
			)
		}
	}

	adapter, err := r.Adapter(providerID)
	if err != nil {
		return nil, err
	}

	return adapter.Stream(ctx, conversation, model, credential)
}
