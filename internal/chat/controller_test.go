// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/parley-dev/parley/internal/chat"
	"github.com/parley-dev/parley/internal/provider"
	"github.com/parley-dev/parley/internal/store"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory SessionStore recording the persistence calls
// the controller makes.
type memStore struct {
	mu        sync.Mutex
	created   map[string]bool
	titles    map[string]string
	appends   map[string]int
	updates   int
	truncated []string
}

func newMemStore() *memStore {
	return &memStore{
		created: make(map[string]bool),
		titles:  make(map[string]string),
		appends: make(map[string]int),
	}
}

func (m *memStore) CreateSession(_ context.Context, s *store.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created[s.ID] = true
	return nil
}

func (m *memStore) GetSession(_ context.Context, id string) (*store.Session, error) {
	return nil, parleyerr.New(parleyerr.CodeStoreSessionNotFound, "not found: "+id)
}

func (m *memStore) ListSessions(context.Context) ([]*store.Session, error) { return nil, nil }

func (m *memStore) UpdateTitle(_ context.Context, sessionID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles[sessionID] = title
	return nil
}

func (m *memStore) SetModel(context.Context, string, string) error { return nil }

func (m *memStore) DeleteSession(context.Context, string) error { return nil }

func (m *memStore) AppendMessage(_ context.Context, sessionID string, _ *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends[sessionID]++
	return nil
}

func (m *memStore) UpdateMessage(_ context.Context, _ string, _ *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	return nil
}

func (m *memStore) TruncateAfter(_ context.Context, _ string, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.truncated = append(m.truncated, messageID)
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) titleOf(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.titles[sessionID]
}

var _ store.SessionStore = (*memStore)(nil)

// fakeDispatcher replays a per-call script and records the contexts it
// was handed.
type fakeDispatcher struct {
	mu       sync.Mutex
	run      func(ctx context.Context, turns []provider.Turn) (<-chan provider.Delta, error)
	gotTurns [][]provider.Turn
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, turns []provider.Turn) (<-chan provider.Delta, error) {
	d.mu.Lock()
	d.gotTurns = append(d.gotTurns, turns)
	d.mu.Unlock()
	return d.run(ctx, turns)
}

func (d *fakeDispatcher) lastTurns(t *testing.T) []provider.Turn {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.gotTurns)
	return d.gotTurns[len(d.gotTurns)-1]
}

// scripted returns a dispatcher run func emitting the given deltas and
// closing.
func scripted(deltas ...provider.Delta) func(context.Context, []provider.Turn) (<-chan provider.Delta, error) {
	return func(context.Context, []provider.Turn) (<-chan provider.Delta, error) {
		out := make(chan provider.Delta, len(deltas))
		for _, d := range deltas {
			out <- d
		}
		close(out)
		return out, nil
	}
}

func texts(ss ...string) []provider.Delta {
	out := make([]provider.Delta, len(ss))
	for i, s := range ss {
		out[i] = provider.Delta{Text: s}
	}
	return out
}

func newTestController(d *fakeDispatcher, st *memStore) *chat.Controller {
	return chat.NewController(chat.ControllerConfig{Dispatcher: d, Sessions: st})
}

func TestSend_StreamsIntoPlaceholder(t *testing.T) {
	st := newMemStore()
	d := &fakeDispatcher{run: scripted(texts("Hel", "lo", ", world")...)}
	c := newTestController(d, st)
	s := store.NewSession("llama3.2")

	msg, err := c.Send(context.Background(), s, chat.SendInput{Content: "greet me"})
	require.NoError(t, err)
	state := c.Wait(s.ID)

	assert.Equal(t, "Hello, world", msg.Content())
	assert.False(t, msg.IsGenerating)
	assert.Equal(t, chat.StateCompleted, state)
	assert.Equal(t, chat.StateIdle, c.SessionState(s.ID), "finished generation returns the session to idle")

	// User message plus placeholder, nothing else.
	require.Len(t, s.Messages, 2)
	assert.Equal(t, store.RoleUser, s.Messages[0].Role)
	assert.Equal(t, "greet me", s.Messages[0].Content())

	// Session materialized on first message, both appends persisted.
	assert.True(t, s.Materialized)
	assert.True(t, st.created[s.ID])
	assert.Equal(t, 2, st.appends[s.ID])

	turns := d.lastTurns(t)
	require.Len(t, turns, 1)
	assert.Equal(t, provider.RoleUser, turns[0].Role)
	assert.Equal(t, "greet me", turns[0].Content)
}

func TestSend_EmptyCompletionCommitsResponse(t *testing.T) {
	st := newMemStore()
	d := &fakeDispatcher{run: scripted()}
	c := newTestController(d, st)
	s := store.NewSession("llama3.2")

	msg, err := c.Send(context.Background(), s, chat.SendInput{Content: "say nothing"})
	require.NoError(t, err)
	state := c.Wait(s.ID)

	// A stream that closes without deltas still completes: the placeholder
	// commits an empty current response instead of finishing response-less.
	assert.Equal(t, chat.StateCompleted, state)
	assert.False(t, msg.IsGenerating)
	require.Len(t, msg.Responses, 1)
	assert.Equal(t, "", msg.Responses[0])
	assert.Equal(t, 0, msg.CurrentResponse)
}

func TestSend_EmptyContentRejected(t *testing.T) {
	c := newTestController(&fakeDispatcher{run: scripted()}, newMemStore())
	s := store.NewSession("llama3.2")

	_, err := c.Send(context.Background(), s, chat.SendInput{Content: "  \n "})
	require.Error(t, err)
	assert.True(t, parleyerr.HasCode(err, parleyerr.CodeChatInvalidInput))
	assert.Empty(t, s.Messages)
}

func TestSend_SelectionBecomesSystemTurn(t *testing.T) {
	d := &fakeDispatcher{run: scripted(texts("ok")...)}
	c := newTestController(d, newMemStore())
	s := store.NewSession("llama3.2")

	_, err := c.Send(context.Background(), s, chat.SendInput{
		Content:   "explain this",
		Selection: "func main() {}",
	})
	require.NoError(t, err)
	c.Wait(s.ID)

	turns := d.lastTurns(t)
	require.Len(t, turns, 2)
	assert.Equal(t, provider.RoleSystem, turns[0].Role)
	assert.Contains(t, turns[0].Content, "func main() {}")
	assert.Equal(t, provider.RoleUser, turns[1].Role)
}

func TestSend_ContextIsTrailingWindow(t *testing.T) {
	d := &fakeDispatcher{run: scripted(texts("ok")...)}
	c := newTestController(d, newMemStore())

	s := store.NewSession("llama3.2")
	s.Materialized = true
	for i := 0; i < 3; i++ {
		s.Messages = append(s.Messages, store.NewUserMessage("q"))
		reply := store.NewAssistantMessage("a")
		s.Messages = append(s.Messages, reply)
	}
	s.Messages[0].SetCurrentContent("oldest question")

	_, err := c.Send(context.Background(), s, chat.SendInput{Content: "latest"})
	require.NoError(t, err)
	c.Wait(s.ID)

	// Seven candidate messages, only the trailing six are sent.
	turns := d.lastTurns(t)
	require.Len(t, turns, 6)
	for _, turn := range turns {
		assert.NotEqual(t, "oldest question", turn.Content)
	}
	assert.Equal(t, "latest", turns[5].Content)
}

func TestSend_ConfigurableContextWindow(t *testing.T) {
	d := &fakeDispatcher{run: scripted(texts("ok")...)}
	c := chat.NewController(chat.ControllerConfig{Dispatcher: d, Sessions: newMemStore(), ContextWindow: 2})

	s := store.NewSession("llama3.2")
	s.Materialized = true
	s.Messages = append(s.Messages, store.NewUserMessage("old question"), store.NewAssistantMessage("old reply"))

	_, err := c.Send(context.Background(), s, chat.SendInput{Content: "new"})
	require.NoError(t, err)
	c.Wait(s.ID)

	turns := d.lastTurns(t)
	require.Len(t, turns, 2)
	assert.Equal(t, "old reply", turns[0].Content)
	assert.Equal(t, "new", turns[1].Content)
}

func TestStop_KeepsPartialContent(t *testing.T) {
	st := newMemStore()
	streamed := make(chan struct{})
	d := &fakeDispatcher{run: func(ctx context.Context, _ []provider.Turn) (<-chan provider.Delta, error) {
		out := make(chan provider.Delta)
		go func() {
			defer close(out)
			out <- provider.Delta{Text: "Hel"}
			out <- provider.Delta{Text: "lo"}
			close(streamed)
			<-ctx.Done()
		}()
		return out, nil
	}}
	c := newTestController(d, st)
	s := store.NewSession("llama3.2")

	msg, err := c.Send(context.Background(), s, chat.SendInput{Content: "greet me"})
	require.NoError(t, err)

	select {
	case <-streamed:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never delivered its deltas")
	}
	state := c.Stop(s.ID)

	assert.Equal(t, "Hello", msg.Content())
	assert.False(t, msg.IsGenerating)
	assert.Equal(t, chat.StateCancelled, state)
	assert.Equal(t, chat.StateIdle, c.SessionState(s.ID))

	// No error turn on cancellation.
	assert.Len(t, s.Messages, 2)
}

func TestSend_StreamErrorAppendsErrorTurn(t *testing.T) {
	st := newMemStore()
	d := &fakeDispatcher{run: scripted(
		provider.Delta{Text: "partial"},
		provider.Delta{Err: parleyerr.New(parleyerr.CodeProviderRateLimited, "slow down")},
	)}
	c := newTestController(d, st)
	s := store.NewSession("llama3.2")

	msg, err := c.Send(context.Background(), s, chat.SendInput{Content: "hi"})
	require.NoError(t, err)
	state := c.Wait(s.ID)

	// Partial output survives on the placeholder.
	assert.Equal(t, "partial", msg.Content())
	assert.False(t, msg.IsGenerating)
	assert.Equal(t, chat.StateErrored, state)

	// The failure lands as a separate assistant turn.
	require.Len(t, s.Messages, 3)
	errTurn := s.Messages[2]
	assert.Equal(t, store.RoleAssistant, errTurn.Role)
	assert.Contains(t, errTurn.Content(), "rate limiting")
	assert.False(t, errTurn.IsGenerating)
}

func TestSend_DispatchFailureBeforeStreaming(t *testing.T) {
	d := &fakeDispatcher{run: func(context.Context, []provider.Turn) (<-chan provider.Delta, error) {
		return nil, parleyerr.New(parleyerr.CodeChatModelNotSelected, "no provider selected")
	}}
	c := newTestController(d, newMemStore())
	s := store.NewSession("llama3.2")

	msg, err := c.Send(context.Background(), s, chat.SendInput{Content: "hi"})
	require.NoError(t, err)
	state := c.Wait(s.ID)

	assert.Equal(t, "", msg.Content())
	assert.False(t, msg.IsGenerating)
	assert.Equal(t, chat.StateErrored, state)

	require.Len(t, s.Messages, 3)
	assert.Contains(t, s.Messages[2].Content(), "No model is selected")
}

func TestRegenerate_AppendsVariant(t *testing.T) {
	d := &fakeDispatcher{run: scripted(texts("second ", "answer")...)}
	c := newTestController(d, newMemStore())

	s := store.NewSession("llama3.2")
	s.Materialized = true
	user := store.NewUserMessage("question")
	reply := store.NewAssistantMessage("first answer")
	s.Messages = append(s.Messages, user, reply)

	require.NoError(t, c.Regenerate(context.Background(), s, reply.ID))
	c.Wait(s.ID)

	require.Len(t, reply.Responses, 2)
	assert.Equal(t, "first answer", reply.Responses[0])
	assert.Equal(t, "second answer", reply.Responses[1])
	assert.Equal(t, 1, reply.CurrentResponse)
	assert.False(t, reply.IsGenerating)

	// Context is everything before the regenerated message.
	turns := d.lastTurns(t)
	require.Len(t, turns, 1)
	assert.Equal(t, "question", turns[0].Content)
}

func TestRegenerate_UnknownMessage(t *testing.T) {
	c := newTestController(&fakeDispatcher{run: scripted()}, newMemStore())
	s := store.NewSession("llama3.2")
	s.Materialized = true

	err := c.Regenerate(context.Background(), s, "missing")
	require.Error(t, err)
	assert.True(t, parleyerr.HasCode(err, parleyerr.CodeChatMessageNotFound))
}

func TestRegenerate_UserMessageRejected(t *testing.T) {
	c := newTestController(&fakeDispatcher{run: scripted()}, newMemStore())
	s := store.NewSession("llama3.2")
	s.Materialized = true
	user := store.NewUserMessage("question")
	s.Messages = append(s.Messages, user)

	err := c.Regenerate(context.Background(), s, user.ID)
	require.Error(t, err)
	assert.True(t, parleyerr.HasCode(err, parleyerr.CodeChatInvalidInput))
}

func TestEditAndResend_TruncatesAndUsesUserTurnsOnly(t *testing.T) {
	st := newMemStore()
	d := &fakeDispatcher{run: scripted(texts("fresh reply")...)}
	c := newTestController(d, st)

	s := store.NewSession("llama3.2")
	s.Materialized = true
	userA := store.NewUserMessage("a")
	asstX := store.NewAssistantMessage("x")
	userB := store.NewUserMessage("b")
	asstY := store.NewAssistantMessage("y")
	s.Messages = append(s.Messages, userA, asstX, userB, asstY)

	msg, err := c.EditAndResend(context.Background(), s, userB.ID, "b")
	require.NoError(t, err)
	c.Wait(s.ID)

	// Everything after the edited turn is gone; the new placeholder follows.
	require.Len(t, s.Messages, 4)
	assert.Equal(t, userA.ID, s.Messages[0].ID)
	assert.Equal(t, asstX.ID, s.Messages[1].ID)
	assert.Equal(t, userB.ID, s.Messages[2].ID)
	assert.Equal(t, msg.ID, s.Messages[3].ID)
	assert.Equal(t, []string{userB.ID}, st.truncated)

	// Context carries the user turns only.
	turns := d.lastTurns(t)
	require.Len(t, turns, 2)
	assert.Equal(t, provider.Turn{Role: provider.RoleUser, Content: "a"}, turns[0])
	assert.Equal(t, provider.Turn{Role: provider.RoleUser, Content: "b"}, turns[1])

	assert.Equal(t, "fresh reply", msg.Content())
}

func TestEditAndResend_AssistantMessageRejected(t *testing.T) {
	c := newTestController(&fakeDispatcher{run: scripted()}, newMemStore())
	s := store.NewSession("llama3.2")
	s.Materialized = true
	reply := store.NewAssistantMessage("x")
	s.Messages = append(s.Messages, reply)

	_, err := c.EditAndResend(context.Background(), s, reply.ID, "edited")
	require.Error(t, err)
	assert.True(t, parleyerr.HasCode(err, parleyerr.CodeChatInvalidInput))
}

func TestSend_ImplicitlyCancelsPriorGeneration(t *testing.T) {
	var calls int
	d := &fakeDispatcher{}
	d.run = func(ctx context.Context, _ []provider.Turn) (<-chan provider.Delta, error) {
		d.mu.Lock()
		calls++
		first := calls == 1
		d.mu.Unlock()

		out := make(chan provider.Delta)
		go func() {
			defer close(out)
			if first {
				out <- provider.Delta{Text: "never finishes"}
				<-ctx.Done()
				return
			}
			out <- provider.Delta{Text: "done"}
		}()
		return out, nil
	}
	c := newTestController(d, newMemStore())
	s := store.NewSession("llama3.2")

	first, err := c.Send(context.Background(), s, chat.SendInput{Content: "one"})
	require.NoError(t, err)

	second, err := c.Send(context.Background(), s, chat.SendInput{Content: "two"})
	require.NoError(t, err)
	state := c.Wait(s.ID)

	assert.False(t, first.IsGenerating, "older generation must be finalized by the newer dispatch")
	assert.Equal(t, "done", second.Content())
	assert.Equal(t, chat.StateCompleted, state)
}

func TestSend_FirstMessageTriggersTitleSynthesis(t *testing.T) {
	st := newMemStore()
	d := &fakeDispatcher{run: scripted(texts("Sure, quicksort works by")...)}
	titles := chat.NewSynthesizer(&scriptedAdapter{deltas: texts("<think>musing</think>Quicksort Algorithm Overview")}, "llama3.2")
	c := chat.NewController(chat.ControllerConfig{Dispatcher: d, Sessions: st, Titles: titles})
	s := store.NewSession("llama3.2")

	_, err := c.Send(context.Background(), s, chat.SendInput{Content: "Explain quicksort"})
	require.NoError(t, err)
	c.Wait(s.ID)

	require.Eventually(t, func() bool {
		return st.titleOf(s.ID) == "Quicksort Algorithm Overview"
	}, 2*time.Second, 10*time.Millisecond, "synthesized title never persisted")
}

func TestSend_TitleFailureKeepsPlaceholder(t *testing.T) {
	st := newMemStore()
	d := &fakeDispatcher{run: scripted(texts("reply")...)}
	titles := chat.NewSynthesizer(&scriptedAdapter{
		err: parleyerr.New(parleyerr.CodeProviderNetworkFailure, "local backend down"),
	}, "llama3.2")
	c := chat.NewController(chat.ControllerConfig{Dispatcher: d, Sessions: st, Titles: titles})
	s := store.NewSession("llama3.2")

	msg, err := c.Send(context.Background(), s, chat.SendInput{Content: "hello"})
	require.NoError(t, err)
	c.Wait(s.ID)

	assert.Equal(t, "reply", msg.Content())
	assert.Empty(t, st.titleOf(s.ID))
}
