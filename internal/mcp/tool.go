package mcp

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// Caller invokes a named tool on a live tool server connection.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
}

// Tool is one callable capability exposed by a tool server. The input
// schema is passed through to the chat backend unmodified; this package
// never interprets it.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Server      string

	Caller Caller
}

// Call executes the tool and returns the server's raw result document.
func (t Tool) Call(ctx context.Context, args map[string]any) (json.RawMessage, error) {
	if t.Caller == nil {
		return nil, &ProtocolError{Server: t.Server, Message: "tool " + t.Name + " has no live connection"}
	}
	return t.Caller.CallTool(ctx, t.Name, args)
}
