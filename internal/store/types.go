// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package store

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is the placeholder title a session carries until the title
// synthesizer (or the user) replaces it.
const DefaultTitle = "New Chat"

// Role identifies the sender of a message in a session.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Session is a persisted conversation: ordered messages plus metadata.
// The live entity is owned by the lifecycle controller; persistence goes
// through the Record codec, never through this struct directly.
type Session struct {
	ID             string
	Title          string
	Model          string
	Messages       []*Message
	CreatedAt      time.Time
	LastModifiedAt time.Time

	// Materialized is true once the session has been written to durable
	// storage. A session created for a new conversation stays unmaterialized
	// (and invisible to List) until its first message is appended, so
	// abandoned empty chats never pollute storage.
	Materialized bool
}

// NewSession returns an unmaterialized session with a placeholder title.
func NewSession(model string) *Session {
	now := time.Now()
	return &Session{
		ID:             uuid.New().String(),
		Title:          DefaultTitle,
		Model:          model,
		CreatedAt:      now,
		LastModifiedAt: now,
	}
}

// Message is one conversational turn. An assistant turn may hold multiple
// response variants, one per regeneration; the effective content is
// Responses[CurrentResponse]. A user turn always has exactly one response.
type Message struct {
	ID              string
	Role            Role
	Responses       []string
	CurrentResponse int
	IsGenerating    bool
	CreatedAt       time.Time
}

// NewUserMessage returns a user message holding content as its sole response.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Responses: []string{content},
		CreatedAt: time.Now(),
	}
}

// NewAssistantPlaceholder returns an assistant message in its pre-stream
// placeholder form: no responses yet, generation in progress.
func NewAssistantPlaceholder() *Message {
	return &Message{
		ID:           uuid.New().String(),
		Role:         RoleAssistant,
		IsGenerating: true,
		CreatedAt:    time.Now(),
	}
}

// NewAssistantMessage returns a finalized assistant message holding content
// as its sole response. Used for error turns that never stream.
func NewAssistantMessage(content string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Responses: []string{content},
		CreatedAt: time.Now(),
	}
}

// Content returns the currently selected response variant, or "" when no
// response has landed yet.
func (m *Message) Content() string {
	if len(m.Responses) == 0 {
		return ""
	}
	idx := m.CurrentResponse
	if idx < 0 || idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx]
}

// SetCurrentContent replaces the currently selected response variant,
// creating it if the message has none yet. Streaming applies each
// accumulator snapshot through this so observers only ever see the text
// grow.
func (m *Message) SetCurrentContent(content string) {
	if len(m.Responses) == 0 {
		m.Responses = []string{content}
		m.CurrentResponse = 0
		return
	}
	if m.CurrentResponse < 0 || m.CurrentResponse >= len(m.Responses) {
		m.CurrentResponse = len(m.Responses) - 1
	}
	m.Responses[m.CurrentResponse] = content
}

// AddVariant appends a new response variant and selects it. Prior variants
// are never discarded.
func (m *Message) AddVariant(content string) {
	m.Responses = append(m.Responses, content)
	m.CurrentResponse = len(m.Responses) - 1
}

// FindMessage returns the message with the given ID and its index, or
// (nil, -1) when absent.
func (s *Session) FindMessage(id string) (*Message, int) {
	for i, m := range s.Messages {
		if m.ID == id {
			return m, i
		}
	}
	return nil, -1
}
