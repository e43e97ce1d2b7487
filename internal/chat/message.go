// Package chat defines the provider-agnostic conversation model: roles,
// polymorphic message content, and the operator-facing turn renderer.
package chat

import (
	"encoding/json"
	"strings"
)

// Role identifies the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Content is one piece of content within a message. The Kind discriminator
// drives the renderer's dispatch; external packages never type-switch on
// content outside this package.
type Content interface {
	Kind() string
}

// Text is a plain text content part.
type Text struct {
	Text string
}

func (Text) Kind() string { return "text" }

// FunctionCall is an assistant's request to invoke a tool.
type FunctionCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

func (FunctionCall) Kind() string { return "function_call" }

// FunctionResult carries a tool invocation's raw result. Raw is an opaque
// JSON document produced by the tool server and is never interpreted
// outside of rendering.
type FunctionResult struct {
	CallID string
	Name   string
	Raw    json.RawMessage
}

func (FunctionResult) Kind() string { return "function_result" }

// Reasoning is a model thinking trace. Advisory only; it is never sent
// back to the backend.
type Reasoning struct {
	Text string
}

func (Reasoning) Kind() string { return "reasoning" }

// Message is one turn in a conversation. Messages are immutable once
// appended to a session's history.
type Message struct {
	Role     Role
	Contents []Content
}

// Text returns the concatenation of all plain text parts, or "".
func (m Message) Text() string {
	var sb strings.Builder
	for _, c := range m.Contents {
		if t, ok := c.(Text); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// SystemMessage builds a single-part system message.
func SystemMessage(prompt string) Message {
	return Message{Role: RoleSystem, Contents: []Content{Text{Text: prompt}}}
}

// UserMessage builds a single-part user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Contents: []Content{Text{Text: text}}}
}

// AssistantMessage builds a plain text assistant message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Contents: []Content{Text{Text: text}}}
}
