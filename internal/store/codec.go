// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package store

import "time"

// SessionRecord is the plain-data mirror of a Session used for persistence.
// The live entity is never written to storage directly.
type SessionRecord struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Model          string          `json:"model"`
	Messages       []MessageRecord `json:"messages"`
	CreatedAt      time.Time       `json:"created_at"`
	LastModifiedAt time.Time       `json:"last_modified_at"`
}

// MessageRecord is the plain-data mirror of a Message. IsGenerating is
// persisted as written but always reset on decode: a generation cannot
// survive a process restart.
type MessageRecord struct {
	ID              string    `json:"id"`
	Role            Role      `json:"role"`
	Responses       []string  `json:"responses"`
	CurrentResponse int       `json:"current_response"`
	IsGenerating    bool      `json:"is_generating"`
	CreatedAt       time.Time `json:"created_at"`
}

// EncodeSession converts a live session into its storage record.
func EncodeSession(s *Session) SessionRecord {
	rec := SessionRecord{
		ID:             s.ID,
		Title:          s.Title,
		Model:          s.Model,
		CreatedAt:      s.CreatedAt,
		LastModifiedAt: s.LastModifiedAt,
	}
	for _, m := range s.Messages {
		rec.Messages = append(rec.Messages, EncodeMessage(m))
	}
	return rec
}

// DecodeSession reconstructs a live session from its storage record.
// Decoded sessions are materialized by definition.
func DecodeSession(rec SessionRecord) *Session {
	s := &Session{
		ID:             rec.ID,
		Title:          rec.Title,
		Model:          rec.Model,
		CreatedAt:      rec.CreatedAt,
		LastModifiedAt: rec.LastModifiedAt,
		Materialized:   true,
	}
	for _, mr := range rec.Messages {
		s.Messages = append(s.Messages, DecodeMessage(mr))
	}
	return s
}

// EncodeMessage converts a live message into its storage record.
func EncodeMessage(m *Message) MessageRecord {
	responses := make([]string, len(m.Responses))
	copy(responses, m.Responses)

	return MessageRecord{
		ID:              m.ID,
		Role:            m.Role,
		Responses:       responses,
		CurrentResponse: m.CurrentResponse,
		IsGenerating:    m.IsGenerating,
		CreatedAt:       m.CreatedAt,
	}
}

// DecodeMessage reconstructs a live message from its storage record,
// clearing the transient generation flag and clamping the response index
// into range so a corrupt record cannot produce an out-of-bounds read.
func DecodeMessage(rec MessageRecord) *Message {
	m := &Message{
		ID:              rec.ID,
		Role:            rec.Role,
		Responses:       append([]string(nil), rec.Responses...),
		CurrentResponse: rec.CurrentResponse,
		IsGenerating:    false,
		CreatedAt:       rec.CreatedAt,
	}

	if len(m.Responses) == 0 {
		m.CurrentResponse = 0
		return m
	}
	if m.CurrentResponse < 0 {
		m.CurrentResponse = 0
	}
	if m.CurrentResponse >= len(m.Responses) {
		m.CurrentResponse = len(m.Responses) - 1
	}
	return m
}
