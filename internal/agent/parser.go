package agent

import (
	"encoding/json"
	"strings"

	"agentd/internal/domain"
)

// emptyDecisionMarker stands in for decisions whose content is empty or
// whitespace-only, so the session ends with a visible answer instead of
// looping on nothing.
const emptyDecisionMarker = "(empty decision)"

// ParseAction converts raw decision text into an Action. It never fails:
// output that cannot be parsed as a structured action collapses into a
// TextAction, which the loop treats like a final answer. Handles several
// patterns seen in the wild:
//   - Pure JSON: `{"action":"tool","tool":"calc","args":{...}}`
//   - Code-fenced: ```json\n{...}\n```
//   - Prefixed text: `assistant\n{"action":"final",...}` (common with llama models)
//   - Suffixed text: `{"action":"tool",...}\n\nRunning that now.`
//   - Mixed text:   `Sure.\n{"action":"tool",...}\nOne moment.`
func ParseAction(raw string) domain.Action {
	content := strings.TrimSpace(stripRolePrefix(raw))
	if content == "" {
		return domain.TextAction{Content: emptyDecisionMarker}
	}

	candidate := stripCodeFence(content)

	// Fast path: try the whole content as JSON.
	if act, ok := tryParseActionJSON(candidate); ok {
		return act
	}

	// Fallback: find JSON object/array boundaries within surrounding text.
	// This handles prefix text, suffix text, or both.
	if start, end := findJSONBounds(candidate); start >= 0 && end > start {
		if act, ok := tryParseActionJSON(candidate[start:end]); ok {
			return act
		}
	}

	return domain.TextAction{Content: content}
}

// wireAction mirrors the decision wire contract. Unknown fields are ignored
// by encoding/json; missing required fields are detected after decoding.
type wireAction struct {
	Action  string         `json:"action"`
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args"`
	Content string         `json:"content"`
}

// tryParseActionJSON attempts to decode raw as a single action object or an
// array of them. Only the first element of an array is honored: the loop is
// strictly single-tool-per-step.
func tryParseActionJSON(raw string) (domain.Action, bool) {
	var single wireAction
	text := raw
	if err := json.Unmarshal([]byte(text), &single); err != nil {
		text = sanitizeJSONEscapes(text)
		if err := json.Unmarshal([]byte(text), &single); err != nil {
			single = wireAction{}
		}
	}
	if act, ok := single.toAction(); ok {
		return act, true
	}

	var multi []wireAction
	if err := json.Unmarshal([]byte(text), &multi); err != nil {
		_ = json.Unmarshal([]byte(sanitizeJSONEscapes(raw)), &multi)
	}
	for _, w := range multi {
		if act, ok := w.toAction(); ok {
			return act, true
		}
	}

	return nil, false
}

func (w wireAction) toAction() (domain.Action, bool) {
	switch w.Action {
	case "tool":
		if w.Tool == "" {
			return nil, false
		}
		args := w.Args
		if args == nil {
			args = make(map[string]any)
		}
		return domain.ToolCallAction{Tool: w.Tool, Args: args}, true
	case "final":
		return domain.FinalAction{Content: w.Content}, true
	default:
		return nil, false
	}
}

// stripCodeFence removes a surrounding markdown code fence if present.
func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
		return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
	}
	return content
}

// findJSONBounds locates the first top-level JSON object ({}) or array ([]) in s.
// Returns the start index and end+1 index, or (-1, -1) if not found.
func findJSONBounds(s string) (int, int) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return -1, -1
	}

	openChar := s[start]
	var closeChar byte
	if openChar == '{' {
		closeChar = '}'
	} else {
		closeChar = ']'
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++ // skip escaped character
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

// stripRolePrefix removes role-name prefixes that some models (especially
// smaller local ones) leak into their content. Examples: "assistant\nHello"
// → "Hello", "Assistant: Hello" → "Hello".
func stripRolePrefix(content string) string {
	prefixes := []string{
		"assistant\n",
		"Assistant\n",
		"assistant:\n",
		"Assistant:\n",
		"assistant: ",
		"Assistant: ",
	}
	trimmed := content
	for _, p := range prefixes {
		if strings.HasPrefix(trimmed, p) {
			trimmed = strings.TrimSpace(trimmed[len(p):])
			break
		}
	}
	return trimmed
}

// sanitizeJSONEscapes fixes invalid JSON escape sequences produced by some
// models. Valid JSON escapes: \", \\, \/, \b, \f, \n, \r, \t, \uXXXX.
// Invalid ones (e.g. \% or \Y) are corrected by dropping the backslash.
func sanitizeJSONEscapes(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' && (i == 0 || s[i-1] != '\\') {
			inString = !inString
			buf.WriteByte(ch)
			continue
		}
		if inString && ch == '\\' && i+1 < len(s) {
			next := s[i+1]
			switch next {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch) // valid escape — keep the backslash
			default:
				continue // invalid escape — drop the backslash
			}
		} else {
			buf.WriteByte(ch)
		}
	}
	return buf.String()
}
