package chat

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// resultEnvelope is the MCP content-wrapping convention for tool results:
// {"content":[{"type":"text","text":"..."}]}
type resultEnvelope struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Render maps one message to an annotated human-readable string for the
// operator transcript. It is pure, never mutates the message, and never
// fails; malformed tool results degrade to the content's kind name.
//
// Dispatch order matters and is part of the rendering contract. Note the
// final reasoning pass: it overwrites the block label but appends to the
// already-built text. That asymmetry is preserved deliberately for
// transcript compatibility; see DESIGN.md.
func Render(m Message) string {
	var label string
	var body strings.Builder

	switch {
	case m.Text() != "":
		label = "Plain text"
		body.WriteString(m.Text())

	case m.Role == RoleAssistant:
		label = "Function call"
		var lines []string
		for _, c := range m.Contents {
			if fc, ok := c.(FunctionCall); ok {
				lines = append(lines, renderCall(fc))
			} else {
				lines = append(lines, c.Kind())
			}
		}
		body.WriteString(strings.Join(lines, "\n"))

	case m.Role == RoleTool:
		label = "Function result"
		var lines []string
		for _, c := range m.Contents {
			if fr, ok := c.(FunctionResult); ok {
				lines = append(lines, renderResult(fr))
			} else {
				lines = append(lines, c.Kind())
			}
		}
		body.WriteString(strings.Join(lines, "\n"))

	case m.Role == RoleUser && len(m.Contents) == 1 && m.Contents[0].Kind() == "text":
		label = "User text"
		body.WriteString(m.Contents[0].(Text).Text)

	case m.Role == RoleAssistant && len(m.Contents) > 0 && m.Contents[0].Kind() == "reasoning":
		label = "Assistant reasoning"
		body.WriteString(m.Contents[0].(Reasoning).Text)

	default:
		label = string(m.Role)
		body.WriteString(fmt.Sprintf("%d content item(s)", len(m.Contents)))
	}

	if thoughts, ok := reasoningText(m); ok {
		label = "Thoughts"
		body.WriteString(thoughts)
	}

	return label + ": " + body.String()
}

func renderCall(fc FunctionCall) string {
	keys := make([]string, 0, len(fc.Arguments))
	for k := range fc.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s:%v", k, fc.Arguments[k]))
	}
	return fmt.Sprintf("%s(%s)", fc.Name, strings.Join(pairs, ", "))
}

// renderResult extracts content[0].text from the raw result document.
// Anything unparseable is a protocol error contained here: fall back to
// the content kind so rendering never aborts a turn.
func renderResult(fr FunctionResult) string {
	var env resultEnvelope
	if err := json.Unmarshal(fr.Raw, &env); err != nil || len(env.Content) == 0 {
		return fr.Kind()
	}
	return env.Content[0].Text
}

// reasoningText concatenates all reasoning parts. The second return is
// true when any reasoning item is present, even with empty text; presence
// alone is what flips the block label.
func reasoningText(m Message) (string, bool) {
	var sb strings.Builder
	found := false
	for _, c := range m.Contents {
		if r, ok := c.(Reasoning); ok {
			found = true
			sb.WriteString(r.Text)
		}
	}
	return sb.String(), found
}
