package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	ai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"parley/internal/chat"
	"parley/internal/config"
	"parley/internal/mcp"
)

// maxToolRounds bounds the tool-call/resubmit loop for one turn.
const maxToolRounds = 25

// OpenAIBackend talks to any OpenAI-compatible completion endpoint.
// Provider selection follows the model prefix convention: "openai/…",
// "ollama/…", or a bare model name (treated as openai).
type OpenAIBackend struct {
	client   *ai.Client
	provider string
	model    string
	cfg      *config.ModelConfig
}

func NewBackend(cfg *config.Configuration) *OpenAIBackend {
	provider, model := splitModel(cfg.Model.Model)

	key := cfg.API.OpenAIKey
	baseURL := cfg.API.OpenAIURL
	if provider == "ollama" {
		key = cfg.API.OllamaKey
		baseURL = strings.TrimRight(cfg.API.OllamaURL, "/") + "/v1"
	}

	clientConfig := ai.DefaultConfig(key)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.API.Timeout}

	return &OpenAIBackend{
		client:   ai.NewClientWithConfig(clientConfig),
		provider: provider,
		model:    model,
		cfg:      cfg.Model,
	}
}

func splitModel(spec string) (provider, model string) {
	provider, model, found := strings.Cut(spec, "/")
	if !found {
		return "openai", spec
	}
	return provider, model
}

// Complete runs one turn: submit history plus tools, execute any tool
// calls the model makes, resubmit results, and return every new message
// in order. The final message is always the assistant's reply unless the
// round limit is hit, which is surfaced as a BackendError.
func (b *OpenAIBackend) Complete(ctx context.Context, history []chat.Message, tools []mcp.Tool) ([]chat.Message, error) {
	byName := make(map[string]mcp.Tool, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}

	wire := make([]ai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		wire = append(wire, toWire(m)...)
	}

	var out []chat.Message
	for range maxToolRounds {
		resp, err := b.client.CreateChatCompletion(ctx, ai.ChatCompletionRequest{
			Model:       b.model,
			Messages:    wire,
			Tools:       wireTools(tools),
			MaxTokens:   b.cfg.MaxTokens,
			Temperature: b.cfg.Temperature,
			TopP:        b.cfg.TopP,
		})
		if err != nil {
			return nil, &BackendError{Provider: b.provider, Cause: err}
		}
		if len(resp.Choices) == 0 {
			return nil, &BackendError{Provider: b.provider, Cause: errors.New("response contained no choices")}
		}

		msg := resp.Choices[0].Message
		out = append(out, fromWire(msg))
		wire = append(wire, msg)

		if len(msg.ToolCalls) == 0 {
			return out, nil
		}
		for _, tc := range msg.ToolCalls {
			result, raw := b.executeCall(ctx, byName, tc)
			out = append(out, result)
			wire = append(wire, ai.ChatCompletionMessage{
				Role:       ai.ChatMessageRoleTool,
				Content:    string(raw),
				ToolCallID: tc.ID,
			})
		}
	}
	return nil, &BackendError{Provider: b.provider, Cause: errors.New("tool call round limit reached")}
}

// executeCall runs one tool call and packages the outcome as a Tool-role
// message. Tool failures are folded into the result document so the model
// can react; they never fail the turn.
func (b *OpenAIBackend) executeCall(ctx context.Context, byName map[string]mcp.Tool, tc ai.ToolCall) (chat.Message, json.RawMessage) {
	args := parseArguments(tc.Function.Arguments)

	var raw json.RawMessage
	tool, ok := byName[tc.Function.Name]
	if !ok {
		raw = errorResult(fmt.Sprintf("tool not found: %s", tc.Function.Name))
	} else {
		zap.S().Infow("Executing tool", "tool", tc.Function.Name, "server", tool.Server, "args", args)
		result, err := tool.Call(ctx, args)
		if err != nil {
			zap.S().Warnw("Tool execution failed", "tool", tc.Function.Name, "error", err)
			raw = errorResult(err.Error())
		} else {
			raw = result
		}
	}

	msg := chat.Message{
		Role: chat.RoleTool,
		Contents: []chat.Content{chat.FunctionResult{
			CallID: tc.ID,
			Name:   tc.Function.Name,
			Raw:    raw,
		}},
	}
	return msg, raw
}

func parseArguments(s string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return map[string]any{"_raw": s}
	}
	return args
}

// errorResult wraps an error message in the MCP content envelope so the
// renderer and the model both see it the same way real results arrive.
func errorResult(text string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"content": []map[string]any{{"type": "text", "text": "Error: " + text}},
		"isError": true,
	})
	return raw
}

func wireTools(tools []mcp.Tool) []ai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]ai.Tool, len(tools))
	for i, t := range tools {
		out[i] = ai.Tool{
			Type: ai.ToolTypeFunction,
			Function: &ai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}
	return out
}

// toWire flattens one message to its wire form. Tool messages expand to
// one wire message per function result, keyed by call ID. Reasoning parts
// are advisory and never resubmitted.
func toWire(m chat.Message) []ai.ChatCompletionMessage {
	switch m.Role {
	case chat.RoleSystem:
		return []ai.ChatCompletionMessage{{Role: ai.ChatMessageRoleSystem, Content: m.Text()}}
	case chat.RoleUser:
		return []ai.ChatCompletionMessage{{Role: ai.ChatMessageRoleUser, Content: m.Text()}}
	case chat.RoleAssistant:
		msg := ai.ChatCompletionMessage{Role: ai.ChatMessageRoleAssistant, Content: m.Text()}
		for _, c := range m.Contents {
			fc, ok := c.(chat.FunctionCall)
			if !ok {
				continue
			}
			args, err := json.Marshal(fc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			msg.ToolCalls = append(msg.ToolCalls, ai.ToolCall{
				ID:   fc.ID,
				Type: ai.ToolTypeFunction,
				Function: ai.FunctionCall{
					Name:      fc.Name,
					Arguments: string(args),
				},
			})
		}
		return []ai.ChatCompletionMessage{msg}
	case chat.RoleTool:
		var msgs []ai.ChatCompletionMessage
		for _, c := range m.Contents {
			fr, ok := c.(chat.FunctionResult)
			if !ok {
				continue
			}
			content := string(fr.Raw)
			if content == "" {
				content = "{}"
			}
			msgs = append(msgs, ai.ChatCompletionMessage{
				Role:       ai.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: fr.CallID,
			})
		}
		return msgs
	}
	return nil
}

func fromWire(msg ai.ChatCompletionMessage) chat.Message {
	out := chat.Message{Role: chat.RoleAssistant}
	if msg.ReasoningContent != "" {
		out.Contents = append(out.Contents, chat.Reasoning{Text: msg.ReasoningContent})
	}
	if msg.Content != "" {
		out.Contents = append(out.Contents, chat.Text{Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		out.Contents = append(out.Contents, chat.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: parseArguments(tc.Function.Arguments),
		})
	}
	return out
}
