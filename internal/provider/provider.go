// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package provider

import (
	"context"
)

// Role identifies the author of a conversation turn as sent to a backend.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one entry of the normalized conversation context handed to an
// adapter. Built fresh for every dispatch; never persisted.
type Turn struct {
	Role    Role
	Content string
}

// Delta is one streaming event from an adapter. Exactly one of Text or Err
// is meaningful; an Err delta is terminal and the channel closes after it.
// Text deltas arrive in exact network order.
type Delta struct {
	Text string
	Err  error
}

// Adapter translates one backend family's wire format into a uniform
// stream of text deltas. A non-2xx status observed before streaming begins
// is returned synchronously from Stream (classified per the error
// taxonomy); failures mid-stream surface as a terminal Err delta. The
// channel is closed when the backend signals completion, after a terminal
// error, or once ctx cancellation is observed between reads.
type Adapter interface {
	// ID returns the provider this adapter serves.
	ID() string

	// Stream issues the generation request and returns the delta channel.
	// credential is empty for providers that require none.
	Stream(ctx context.Context, conversation []Turn, model, credential string) (<-chan Delta, error)
}

// Catalog is implemented by adapters whose backend has a live
// model-listing endpoint. Backends without one fall back to the
// descriptor's static candidate list.
type Catalog interface {
	ListModels(ctx context.Context, credential string) ([]string, error)
}

// CredentialSource is the opaque credential collaborator. Backed by a
// platform secret store; the engine never persists the secret itself.
type CredentialSource interface {
	Get(providerID string) (string, error)
	Has(providerID string) bool
}
