// Package llm is the chat backend boundary: it turns a conversation
// history plus a tool list into the set of new messages for one turn,
// resolving any tool invocations the model makes along the way.
package llm

import (
	"context"
	"fmt"

	"parley/internal/chat"
	"parley/internal/mcp"
)

// Backend is the black-box completion contract the orchestrator consumes.
// One call may internally perform several model rounds (tool call, tool
// result, resubmit); the caller always sees a single blocking request
// that yields the full ordered set of new messages.
type Backend interface {
	Complete(ctx context.Context, history []chat.Message, tools []mcp.Tool) ([]chat.Message, error)
}

// BackendError wraps a chat backend failure. There is no safe fallback
// reply, so these always propagate to the caller of Send.
type BackendError struct {
	Provider string
	Cause    error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("chat backend %s: %v", e.Provider, e.Cause)
}

func (e *BackendError) Unwrap() error {
	return e.Cause
}
