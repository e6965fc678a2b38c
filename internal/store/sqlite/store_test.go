// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/parley-dev/parley/internal/store"
	"github.com/parley-dev/parley/internal/store/sqlite"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "parley.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func materialized(t *testing.T, s *sqlite.Store, model string) *store.Session {
	t.Helper()
	sess := store.NewSession(model)
	require.NoError(t, s.CreateSession(context.Background(), sess))
	sess.Materialized = true
	return sess
}

func TestStore_CreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := materialized(t, s, "gpt-4.1")

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, store.DefaultTitle, got.Title)
	assert.Equal(t, "gpt-4.1", got.Model)
	assert.True(t, got.Materialized)
	assert.Empty(t, got.Messages)
}

func TestStore_GetSessionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, parleyerr.HasCode(err, parleyerr.CodeStoreSessionNotFound))
}

func TestStore_AppendAndLoadMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := materialized(t, s, "gpt-4.1")

	u := store.NewUserMessage("hello")
	a := store.NewAssistantPlaceholder()
	a.SetCurrentContent("hi there")
	a.IsGenerating = false

	require.NoError(t, s.AppendMessage(ctx, sess.ID, u))
	require.NoError(t, s.AppendMessage(ctx, sess.ID, a))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, store.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[0].Content())
	assert.Equal(t, store.RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, "hi there", got.Messages[1].Content())
}

func TestStore_GeneratingFlagClearedOnLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := materialized(t, s, "gpt-4.1")

	a := store.NewAssistantPlaceholder()
	a.SetCurrentContent("partial")
	require.True(t, a.IsGenerating)
	require.NoError(t, s.AppendMessage(ctx, sess.ID, a))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.False(t, got.Messages[0].IsGenerating)
	assert.Equal(t, "partial", got.Messages[0].Content())
}

func TestStore_UpdateMessageVariants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := materialized(t, s, "gpt-4.1")

	a := store.NewAssistantPlaceholder()
	a.SetCurrentContent("first answer")
	a.IsGenerating = false
	require.NoError(t, s.AppendMessage(ctx, sess.ID, a))

	a.AddVariant("second answer")
	require.NoError(t, s.UpdateMessage(ctx, sess.ID, a))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, []string{"first answer", "second answer"}, got.Messages[0].Responses)
	assert.Equal(t, 1, got.Messages[0].CurrentResponse)
	assert.Equal(t, "second answer", got.Messages[0].Content())
}

func TestStore_UpdateMessageNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := materialized(t, s, "gpt-4.1")

	ghost := store.NewUserMessage("never stored")
	err := s.UpdateMessage(ctx, sess.ID, ghost)
	require.Error(t, err)
	assert.True(t, parleyerr.HasCode(err, parleyerr.CodeStoreMessageNotFound))
}

func TestStore_TruncateAfter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := materialized(t, s, "gpt-4.1")

	msgs := []*store.Message{
		store.NewUserMessage("a"),
		store.NewUserMessage("x"),
		store.NewUserMessage("b"),
		store.NewUserMessage("y"),
	}
	for _, m := range msgs {
		require.NoError(t, s.AppendMessage(ctx, sess.ID, m))
	}

	require.NoError(t, s.TruncateAfter(ctx, sess.ID, msgs[2].ID))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "a", got.Messages[0].Content())
	assert.Equal(t, "x", got.Messages[1].Content())
	assert.Equal(t, "b", got.Messages[2].Content())
}

func TestStore_TruncateAfterMissingMessage(t *testing.T) {
	s := newTestStore(t)
	sess := materialized(t, s, "gpt-4.1")

	err := s.TruncateAfter(context.Background(), sess.ID, "missing")
	require.Error(t, err)
	assert.True(t, parleyerr.HasCode(err, parleyerr.CodeStoreMessageNotFound))
}

func TestStore_ListSessionsOrderedByModified(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := materialized(t, s, "gpt-4.1")
	time.Sleep(5 * time.Millisecond)
	second := materialized(t, s, "gpt-4.1")
	time.Sleep(5 * time.Millisecond)

	// Touching the older session moves it to the head of the list.
	require.NoError(t, s.AppendMessage(ctx, first.ID, store.NewUserMessage("bump")))

	got, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
}

func TestStore_UpdateTitleAndSetModel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := materialized(t, s, "gpt-4.1")

	require.NoError(t, s.UpdateTitle(ctx, sess.ID, "Quicksort Overview"))
	require.NoError(t, s.SetModel(ctx, sess.ID, "deepseek-chat"))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quicksort Overview", got.Title)
	assert.Equal(t, "deepseek-chat", got.Model)

	assert.True(t, parleyerr.IsNotFound(s.UpdateTitle(ctx, "missing", "t")))
	assert.True(t, parleyerr.IsNotFound(s.SetModel(ctx, "missing", "m")))
}

func TestStore_DeleteSessionCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := materialized(t, s, "gpt-4.1")
	require.NoError(t, s.AppendMessage(ctx, sess.ID, store.NewUserMessage("hi")))

	require.NoError(t, s.DeleteSession(ctx, sess.ID))

	_, err := s.GetSession(ctx, sess.ID)
	assert.True(t, parleyerr.IsNotFound(err))

	err = s.DeleteSession(ctx, sess.ID)
	assert.True(t, parleyerr.IsNotFound(err))
}

func TestStore_Prefs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Unset keys read as empty without error.
	got, err := s.GetPref(ctx, store.PrefSelectedProvider)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.SetPref(ctx, store.PrefSelectedProvider, "ollama"))
	require.NoError(t, s.SetPref(ctx, store.PrefSelectedProvider, "openai")) // overwrite

	got, err = s.GetPref(ctx, store.PrefSelectedProvider)
	require.NoError(t, err)
	assert.Equal(t, "openai", got)

	err = s.SetPref(ctx, "", "x")
	require.Error(t, err)
	assert.True(t, parleyerr.IsInvalidInput(err))
}
