// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package store_test

import (
	"testing"
	"time"

	"github.com/parley-dev/parley/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeSession_RoundTrip(t *testing.T) {
	sess := store.NewSession("gpt-4.1")
	sess.Title = "Sorting Algorithms"
	sess.Messages = append(sess.Messages,
		store.NewUserMessage("explain quicksort"),
		&store.Message{
			ID:              "m2",
			Role:            store.RoleAssistant,
			Responses:       []string{"first take", "second take"},
			CurrentResponse: 1,
			CreatedAt:       time.Now(),
		},
	)

	got := store.DecodeSession(store.EncodeSession(sess))

	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "Sorting Algorithms", got.Title)
	assert.Equal(t, "gpt-4.1", got.Model)
	assert.True(t, got.Materialized, "decoded sessions are materialized by definition")
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "explain quicksort", got.Messages[0].Content())
	assert.Equal(t, "second take", got.Messages[1].Content())
	assert.Equal(t, []string{"first take", "second take"}, got.Messages[1].Responses)
}

func TestDecodeMessage_ClearsGeneratingFlag(t *testing.T) {
	rec := store.MessageRecord{
		ID:           "m1",
		Role:         store.RoleAssistant,
		Responses:    []string{"partial outp"},
		IsGenerating: true,
	}

	got := store.DecodeMessage(rec)
	assert.False(t, got.IsGenerating, "a generation cannot survive a restart")
	assert.Equal(t, "partial outp", got.Content())
}

func TestDecodeMessage_ClampsIndex(t *testing.T) {
	tests := []struct {
		name      string
		responses []string
		index     int
		wantIndex int
	}{
		{"negative index", []string{"a", "b"}, -3, 0},
		{"index past end", []string{"a", "b"}, 7, 1},
		{"valid index unchanged", []string{"a", "b", "c"}, 1, 1},
		{"empty responses", nil, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := store.DecodeMessage(store.MessageRecord{
				ID:              "m",
				Role:            store.RoleAssistant,
				Responses:       tt.responses,
				CurrentResponse: tt.index,
			})
			assert.Equal(t, tt.wantIndex, got.CurrentResponse)
		})
	}
}

func TestEncodeMessage_CopiesResponses(t *testing.T) {
	m := &store.Message{ID: "m", Role: store.RoleAssistant, Responses: []string{"one"}}

	rec := store.EncodeMessage(m)
	rec.Responses[0] = "mutated"

	assert.Equal(t, "one", m.Responses[0], "encoding must not alias the live slice")
}

func TestMessage_SetCurrentContent(t *testing.T) {
	m := store.NewAssistantPlaceholder()
	assert.Empty(t, m.Content())
	assert.True(t, m.IsGenerating)

	m.SetCurrentContent("Hel")
	m.SetCurrentContent("Hello")

	require.Len(t, m.Responses, 1)
	assert.Equal(t, "Hello", m.Content())
}

func TestMessage_AddVariant(t *testing.T) {
	m := &store.Message{Role: store.RoleAssistant, Responses: []string{"first"}}

	m.AddVariant("second")

	assert.Equal(t, []string{"first", "second"}, m.Responses)
	assert.Equal(t, 1, m.CurrentResponse)
	assert.Equal(t, "second", m.Content())
}

func TestNewSession_StartsUnmaterialized(t *testing.T) {
	sess := store.NewSession("llama3")

	assert.False(t, sess.Materialized)
	assert.Equal(t, store.DefaultTitle, sess.Title)
	assert.NotEmpty(t, sess.ID)
	assert.Empty(t, sess.Messages)
}

func TestSession_FindMessage(t *testing.T) {
	sess := store.NewSession("m")
	u := store.NewUserMessage("hi")
	sess.Messages = append(sess.Messages, u)

	got, idx := sess.FindMessage(u.ID)
	assert.Same(t, u, got)
	assert.Equal(t, 0, idx)

	got, idx = sess.FindMessage("nope")
	assert.Nil(t, got)
	assert.Equal(t, -1, idx)
}
