// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/parley-dev/parley/internal/provider"
	"github.com/parley-dev/parley/internal/store"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

// DefaultContextWindow is how many trailing messages a regular send
// carries as conversation context. Edit-and-resend deliberately uses a
// different policy (prior user turns only); both are kept as the product
// defines them.
const DefaultContextWindow = 6

// State is the lifecycle phase of a session's generation.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateStreaming
	StateCompleted
	StateCancelled
	StateErrored
)

// terminal reports whether the state marks a finished generation.
func (s State) terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateErrored:
		return true
	}
	return false
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Dispatcher resolves the active provider/model pair and streams a
// normalized conversation. Satisfied by provider.Router.
type Dispatcher interface {
	Dispatch(ctx context.Context, conversation []provider.Turn) (<-chan provider.Delta, error)
}

// generation is one in-flight streaming task for a session.
type generation struct {
	cancel context.CancelFunc
	done   chan struct{}
	state  State
}

// Controller drives the generation lifecycle: it owns all mutations to
// live session state, holds at most one in-flight generation per session,
// and persists every committed change synchronously. Network streaming
// runs on its own goroutine and reports back under the controller mutex,
// so no two deltas for the same message apply concurrently.
type Controller struct {
	mu         sync.Mutex
	dispatcher Dispatcher
	sessions   store.SessionStore
	titles     *Synthesizer
	logger     *slog.Logger
	window     int

	active map[string]*generation
}

// ControllerConfig wires the controller's collaborators.
type ControllerConfig struct {
	Dispatcher Dispatcher
	Sessions   store.SessionStore
	// Titles may be nil to disable title synthesis.
	Titles *Synthesizer
	Logger *slog.Logger
	// ContextWindow bounds the trailing context for regular sends.
	// Zero means DefaultContextWindow.
	ContextWindow int
}

// SendInput carries the user's message and an optional external text
// selection. A non-empty selection is prefixed to the context as a
// synthetic system turn.
type SendInput struct {
	Content   string
	Selection string
}

// NewController builds the controller from its config.
func NewController(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := cfg.ContextWindow
	if window <= 0 {
		window = DefaultContextWindow
	}
	return &Controller{
		dispatcher: cfg.Dispatcher,
		sessions:   cfg.Sessions,
		titles:     cfg.Titles,
		logger:     logger,
		window:     window,
		active:     make(map[string]*generation),
	}
}

// Send appends the user's message and a placeholder assistant message to
// the session, persists both, and starts streaming into the placeholder.
// The session is materialized in storage on its first message. Any
// generation still running for the session is cancelled first. Returns
// the placeholder so the shell can observe it stream.
func (c *Controller) Send(ctx context.Context, s *store.Session, in SendInput) (*store.Message, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, parleyerr.New(parleyerr.CodeChatInvalidInput, "message content must not be empty")
	}

	c.cancelActive(s.ID)

	c.mu.Lock()
	if err := c.materialize(ctx, s); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	firstUserTurn := !hasUserMessage(s) && s.Title == store.DefaultTitle

	userMsg := store.NewUserMessage(in.Content)
	s.Messages = append(s.Messages, userMsg)
	if err := c.sessions.AppendMessage(ctx, s.ID, userMsg); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	turns := trailingContext(s.Messages, len(s.Messages), c.window, in.Selection)

	placeholder := store.NewAssistantPlaceholder()
	s.Messages = append(s.Messages, placeholder)
	if err := c.sessions.AppendMessage(ctx, s.ID, placeholder); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	if firstUserTurn && c.titles != nil {
		go c.synthesizeTitle(context.WithoutCancel(ctx), s, in.Content)
	}

	c.startGeneration(ctx, s, placeholder, turns, streamIntoCurrent)
	return placeholder, nil
}

// Regenerate re-runs generation for an existing assistant message against
// the same context and streams the result into a new response variant.
// Prior variants are never discarded.
func (c *Controller) Regenerate(ctx context.Context, s *store.Session, messageID string) error {
	c.cancelActive(s.ID)

	c.mu.Lock()
	msg, idx := s.FindMessage(messageID)
	if msg == nil {
		c.mu.Unlock()
		return parleyerr.New(
			parleyerr.CodeChatMessageNotFound,
			"message not found: "+messageID,
			parleyerr.FieldMessageID(messageID),
		)
	}
	if msg.Role != store.RoleAssistant {
		c.mu.Unlock()
		return parleyerr.New(parleyerr.CodeChatInvalidInput, "only assistant messages can be regenerated")
	}

	turns := trailingContext(s.Messages, idx, c.window, "")
	msg.AddVariant("")
	msg.IsGenerating = true
	c.mu.Unlock()

	c.startGeneration(ctx, s, msg, turns, streamIntoCurrent)
	return nil
}

// EditAndResend replaces the content of a prior user message, discards
// every message after it, and re-dispatches using only the user turns up
// to and including the edited one as context. Intermediate assistant
// turns are dropped from the context as well as from the session.
func (c *Controller) EditAndResend(ctx context.Context, s *store.Session, messageID, newContent string) (*store.Message, error) {
	if strings.TrimSpace(newContent) == "" {
		return nil, parleyerr.New(parleyerr.CodeChatInvalidInput, "message content must not be empty")
	}

	c.cancelActive(s.ID)

	c.mu.Lock()
	msg, idx := s.FindMessage(messageID)
	if msg == nil {
		c.mu.Unlock()
		return nil, parleyerr.New(
			parleyerr.CodeChatMessageNotFound,
			"message not found: "+messageID,
			parleyerr.FieldMessageID(messageID),
		)
	}
	if msg.Role != store.RoleUser {
		c.mu.Unlock()
		return nil, parleyerr.New(parleyerr.CodeChatInvalidInput, "only user messages can be edited")
	}

	msg.SetCurrentContent(newContent)
	if err := c.sessions.UpdateMessage(ctx, s.ID, msg); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	s.Messages = s.Messages[:idx+1]
	if err := c.sessions.TruncateAfter(ctx, s.ID, messageID); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	turns := userOnlyContext(s.Messages)

	placeholder := store.NewAssistantPlaceholder()
	s.Messages = append(s.Messages, placeholder)
	if err := c.sessions.AppendMessage(ctx, s.ID, placeholder); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	c.startGeneration(ctx, s, placeholder, turns, streamIntoCurrent)
	return placeholder, nil
}

// Stop cancels the session's in-flight generation, if any, and waits for
// it to finalize. Partial content already streamed is kept. Returns the
// terminal state of the stopped generation, or StateIdle when nothing was
// in flight.
func (c *Controller) Stop(sessionID string) State {
	return c.cancelActive(sessionID)
}

// Wait blocks until the session's current generation finishes and returns
// its terminal state. A session with no generation in flight returns
// StateIdle immediately.
func (c *Controller) Wait(sessionID string) State {
	c.mu.Lock()
	g := c.active[sessionID]
	c.mu.Unlock()
	if g == nil {
		return StateIdle
	}
	<-g.done
	c.reap(sessionID, g)
	return g.state
}

// SessionState reports whether a generation is in flight for the session.
// A finished generation returns the session to StateIdle; its terminal
// outcome is what Stop and Wait return.
func (c *Controller) SessionState(sessionID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.active[sessionID]
	if !ok {
		return StateIdle
	}
	if g.state.terminal() {
		delete(c.active, sessionID)
		return StateIdle
	}
	return g.state
}

func (c *Controller) cancelActive(sessionID string) State {
	c.mu.Lock()
	g := c.active[sessionID]
	c.mu.Unlock()
	if g == nil {
		return StateIdle
	}
	g.cancel()
	<-g.done
	c.reap(sessionID, g)
	return g.state
}

// reap drops the bookkeeping entry once a generation has finished, unless
// a newer generation has already replaced it.
func (c *Controller) reap(sessionID string, g *generation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[sessionID] == g {
		delete(c.active, sessionID)
	}
}

// materialize writes the session to storage on first use, holding c.mu.
func (c *Controller) materialize(ctx context.Context, s *store.Session) error {
	if s.Materialized {
		return nil
	}
	if err := c.sessions.CreateSession(ctx, s); err != nil {
		return err
	}
	s.Materialized = true
	return nil
}

// applyDelta mutates the target message with the accumulator snapshot.
type applyDelta func(m *store.Message, accumulated string)

func streamIntoCurrent(m *store.Message, accumulated string) {
	m.SetCurrentContent(accumulated)
}

// startGeneration registers the in-flight task and launches the streaming
// goroutine. The generation's lifetime is detached from the caller's
// context so it survives the Send call returning; only Stop or a newer
// dispatch for the same session cancels it.
func (c *Controller) startGeneration(ctx context.Context, s *store.Session, target *store.Message, turns []provider.Turn, apply applyDelta) {
	genCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g := &generation{cancel: cancel, done: make(chan struct{}), state: StateDispatching}

	c.mu.Lock()
	c.active[s.ID] = g
	c.mu.Unlock()

	go c.run(genCtx, g, s, target, turns, apply)
}

func (c *Controller) run(ctx context.Context, g *generation, s *store.Session, target *store.Message, turns []provider.Turn, apply applyDelta) {
	defer g.cancel()
	defer close(g.done)

	deltas, err := c.dispatcher.Dispatch(ctx, turns)
	if err != nil {
		c.finalize(s, target, g, err)
		return
	}

	c.mu.Lock()
	g.state = StateStreaming
	c.mu.Unlock()

	var acc strings.Builder
	var streamErr error
	for d := range deltas {
		if d.Err != nil {
			streamErr = d.Err
			break
		}
		acc.WriteString(d.Text)

		c.mu.Lock()
		apply(target, acc.String())
		c.mu.Unlock()
	}

	if streamErr == nil && ctx.Err() != nil {
		streamErr = ctx.Err()
	}
	if streamErr == nil {
		// Commit the finished text even when the backend sent no deltas,
		// so a completed message always holds a current response variant.
		c.mu.Lock()
		apply(target, acc.String())
		c.mu.Unlock()
	}
	c.finalize(s, target, g, streamErr)
}

// finalize commits the target message and records the terminal state.
// On cancellation the partial text is kept. On failure the placeholder
// keeps whatever partial state it had and a new assistant turn carrying a
// readable description is appended instead.
func (c *Controller) finalize(s *store.Session, target *store.Message, g *generation, genErr error) {
	ctx := context.Background()

	c.mu.Lock()
	defer c.mu.Unlock()

	target.IsGenerating = false
	if err := c.sessions.UpdateMessage(ctx, s.ID, target); err != nil {
		c.logger.Error("persisting finalized message failed",
			"session_id", s.ID,
			"message_id", target.ID,
			"error", err,
		)
	}

	switch {
	case genErr == nil:
		g.state = StateCompleted
	case errors.Is(genErr, context.Canceled) || errors.Is(genErr, context.DeadlineExceeded):
		g.state = StateCancelled
	default:
		g.state = StateErrored
		errMsg := store.NewAssistantMessage(describeFailure(genErr))
		s.Messages = append(s.Messages, errMsg)
		if err := c.sessions.AppendMessage(ctx, s.ID, errMsg); err != nil {
			c.logger.Error("persisting error message failed",
				"session_id", s.ID,
				"error", err,
			)
		}
	}
}

func (c *Controller) synthesizeTitle(ctx context.Context, s *store.Session, firstUserMessage string) {
	title, err := c.titles.Synthesize(ctx, firstUserMessage)
	if err != nil {
		c.logger.Debug("title synthesis failed, keeping placeholder",
			"session_id", s.ID,
			"error", err,
		)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s.Title != store.DefaultTitle {
		return
	}
	s.Title = title
	if err := c.sessions.UpdateTitle(ctx, s.ID, title); err != nil {
		c.logger.Debug("persisting synthesized title failed",
			"session_id", s.ID,
			"error", err,
		)
	}
}

// describeFailure renders a generation error as the content of an
// assistant error turn.
func describeFailure(err error) string {
	switch {
	case parleyerr.IsInvalidCredential(err):
		return "The provider rejected the stored credential. Update it and try again."
	case parleyerr.IsRateLimited(err):
		return "The provider is rate limiting requests. Wait a moment and try again."
	case parleyerr.HasCode(err, parleyerr.CodeChatModelNotSelected):
		return "No model is selected. Pick a provider and model first."
	default:
		return fmt.Sprintf("The response could not be completed: %v", err)
	}
}

func hasUserMessage(s *store.Session) bool {
	for _, m := range s.Messages {
		if m.Role == store.RoleUser {
			return true
		}
	}
	return false
}

// trailingContext builds the normalized context for a regular send: the
// last window messages before upto, with an optional synthetic system
// turn carrying an external text selection at the head.
func trailingContext(messages []*store.Message, upto, window int, selection string) []provider.Turn {
	start := upto - window
	if start < 0 {
		start = 0
	}

	var turns []provider.Turn
	if selection != "" {
		turns = append(turns, provider.Turn{
			Role:    provider.RoleSystem,
			Content: "The user has selected the following text:\n" + selection,
		})
	}
	for _, m := range messages[start:upto] {
		turns = append(turns, provider.Turn{Role: provider.Role(m.Role), Content: m.Content()})
	}
	return turns
}

// userOnlyContext builds the edit-and-resend context: every user turn in
// order, assistant turns excluded.
func userOnlyContext(messages []*store.Message) []provider.Turn {
	var turns []provider.Turn
	for _, m := range messages {
		if m.Role != store.RoleUser {
			continue
		}
		turns = append(turns, provider.Turn{Role: provider.RoleUser, Content: m.Content()})
	}
	return turns
}
