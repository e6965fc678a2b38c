// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package provider

import (
	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

// Descriptor is the static description of one backend: identity, endpoint,
// credential requirement, and the model catalog fallback. Immutable.
type Descriptor struct {
	ID                 string
	DisplayName        string
	BaseEndpoint       string
	RequiresCredential bool
	DefaultModel       string
	// CandidateModels is used only when live model discovery fails or the
	// backend has no listing endpoint.
	CandidateModels []string
}

// Built-in provider IDs.
const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
)

// builtins returns the descriptors for the supported backends, in display
// order.
func builtins() []Descriptor {
	return []Descriptor{
		{
			ID:                 ProviderOpenAI,
			DisplayName:        "OpenAI",
			BaseEndpoint:       "https://api.openai.com/v1",
			RequiresCredential: true,
			DefaultModel:       "gpt-4o",
			CandidateModels: []string{
				"gpt-4o",
				"gpt-4o-mini",
				"gpt-4.1",
				"gpt-4.1-mini",
				"o4-mini",
			},
		},
		{
			ID:                 ProviderDeepSeek,
			DisplayName:        "DeepSeek",
			BaseEndpoint:       "https://api.deepseek.com/v1",
			RequiresCredential: true,
			DefaultModel:       "deepseek-chat",
			CandidateModels: []string{
				"deepseek-chat",
				"deepseek-reasoner",
			},
		},
		{
			ID:                 ProviderGemini,
			DisplayName:        "Gemini",
			BaseEndpoint:       "https://generativelanguage.googleapis.com/v1beta",
			RequiresCredential: true,
			DefaultModel:       "gemini-2.5-flash",
			CandidateModels: []string{
				"gemini-2.5-pro",
				"gemini-2.5-flash",
				"gemini-2.0-flash",
			},
		},
		{
			ID:                 ProviderOllama,
			DisplayName:        "Ollama",
			BaseEndpoint:       "http://localhost:11434",
			RequiresCredential: false,
			DefaultModel:       "llama3.2",
			CandidateModels: []string{
				"llama3.2",
				"llama3.1",
				"qwen2.5",
				"mistral",
			},
		},
	}
}

// Registry holds the static provider descriptors.
type Registry struct {
	order []string
	byID  map[string]Descriptor
}

// NewRegistry returns a Registry populated with the built-in descriptors.
func NewRegistry() *Registry {
	r := &Registry{byID: make(map[string]Descriptor)}
	for _, d := range builtins() {
		r.order = append(r.order, d.ID)
		r.byID[d.ID] = d
	}
	return r
}

// Get returns the descriptor for the given provider ID.
func (r *Registry) Get(id string) (Descriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return Descriptor{}, parleyerr.New(
			parleyerr.CodeProviderNotFound,
			"provider not found: "+id,
			parleyerr.FieldProvider(id),
		)
	}
	return d, nil
}

// All returns every descriptor in display order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
