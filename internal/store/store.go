// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package store

import "context"

// SessionStore is the durable persistence surface for sessions and their
// messages. Mutations flow through here synchronously relative to the
// in-memory change that triggered them, so a crash mid-stream loses at most
// the in-flight partial tokens.
type SessionStore interface {
	// CreateSession materializes a session in durable storage.
	CreateSession(ctx context.Context, s *Session) error

	// GetSession loads a session with its full ordered message history.
	// Returns CodeStoreSessionNotFound when absent.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ListSessions returns session metadata (no messages) ordered by most
	// recently modified first.
	ListSessions(ctx context.Context) ([]*Session, error)

	// UpdateTitle replaces a session's title and bumps its modified time.
	UpdateTitle(ctx context.Context, sessionID, title string) error

	// SetModel records the session's active model and bumps its modified time.
	SetModel(ctx context.Context, sessionID, model string) error

	// DeleteSession removes a session and all of its messages.
	DeleteSession(ctx context.Context, id string) error

	// AppendMessage adds a message to the end of a session's history and
	// bumps the session's modified time.
	AppendMessage(ctx context.Context, sessionID string, m *Message) error

	// UpdateMessage rewrites a message's stored responses and selection.
	UpdateMessage(ctx context.Context, sessionID string, m *Message) error

	// TruncateAfter deletes every message ordered after the given message.
	TruncateAfter(ctx context.Context, sessionID, messageID string) error

	Close() error
}

// PrefStore is a small key-value persistence surface for engine preferences:
// the selected provider/model pair and per-provider enabled-model lists.
// Values are JSON-serializable strings under stable keys.
type PrefStore interface {
	// SetPref stores value under key, replacing any prior value.
	SetPref(ctx context.Context, key, value string) error

	// GetPref returns the stored value, or "" (and no error) when the key
	// has never been written.
	GetPref(ctx context.Context, key string) (string, error)
}

// Preference keys. Kept as stable strings so stored data survives renames
// in code.
const (
	PrefSelectedProvider = "provider.selected"
	PrefSelectedModel    = "model.selected"
	// PrefEnabledModelsPrefix is followed by the provider ID; the value is a
	// JSON array of model names the user has enabled for that provider.
	PrefEnabledModelsPrefix = "models.enabled."
)
