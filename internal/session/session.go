// Package session coordinates one logical conversation: it owns the
// message history and the tool registry, applies the idle-reconnection
// policy, and drives the chat backend for each user turn.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"parley/internal/chat"
	"parley/internal/config"
	"parley/internal/llm"
	"parley/internal/mcp"
)

// ToolRegistry is the slice of mcp.Registry the session drives.
type ToolRegistry interface {
	Reset()
	Initialize(ctx context.Context, servers []config.ToolServerConfig)
	Tools() []mcp.Tool
}

// Session is the single entry point mutating conversation state. Methods
// serialize on an internal mutex, so one Session can back a concurrent
// caller such as the HTTP gateway; turn ordering within a session is
// whatever order callers win the lock in.
type Session struct {
	mu       sync.Mutex
	cfg      *config.Configuration
	registry ToolRegistry
	backend  llm.Backend
	history  []chat.Message
	last     time.Time

	// now is swapped for a fake clock in tests.
	now func() time.Time
}

func New(cfg *config.Configuration, registry ToolRegistry, backend llm.Backend) *Session {
	return &Session{
		cfg:      cfg,
		registry: registry,
		backend:  backend,
		history:  []chat.Message{chat.SystemMessage(cfg.Chat.Prompt)},
		now:      time.Now,
		// last stays at the zero time so the first Send always rebuilds
	}
}

// Send runs one turn: refresh stale tool connections, append the user
// message, complete against the backend, log each new message, append
// them all, and return the final message's text.
//
// On backend failure the user message stays in history; callers see the
// error and may retry, which produces a second user turn. Preserved as
// observed behavior, see DESIGN.md.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.now().Sub(s.last) > s.cfg.Chat.StaleAfter {
		zap.S().Infow("Tool connections stale, rebuilding", "idle", s.now().Sub(s.last))
		s.rebuild(ctx)
	}

	s.history = append(s.history, chat.UserMessage(text))

	msgs, err := s.backend.Complete(ctx, s.history, s.registry.Tools())
	if err != nil {
		return "", err
	}

	for _, m := range msgs {
		zap.S().Info(chat.Render(m))
	}
	s.history = append(s.history, msgs...)
	s.last = s.now()

	if len(msgs) == 0 {
		return "", nil
	}
	return msgs[len(msgs)-1].Text(), nil
}

// NewSession discards the conversation and reseeds it with a system
// message. An empty prompt falls back to the configured one. The next
// Send treats the registry as stale regardless of elapsed time.
func (s *Session) NewSession(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prompt == "" {
		prompt = s.cfg.Chat.Prompt
	}
	s.history = []chat.Message{chat.SystemMessage(prompt)}
	s.last = time.Time{}
}

// ReconnectTools rebuilds the tool registry immediately, independent of
// staleness. Idempotent; safe to call repeatedly.
func (s *Session) ReconnectTools(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuild(ctx)
}

func (s *Session) rebuild(ctx context.Context) {
	s.registry.Reset()
	s.registry.Initialize(ctx, s.cfg.ToolServers)
}

// History returns a copy of the message history.
func (s *Session) History() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]chat.Message, len(s.history))
	copy(history, s.history)
	return history
}

// Tools exposes the registry's current tool list for the gateway.
func (s *Session) Tools() []mcp.Tool {
	return s.registry.Tools()
}
