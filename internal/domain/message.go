package domain

import "time"

// Role identifies the author of a transcript message.
type Role string

const (
	RoleSystem      Role = "system"
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleObservation Role = "tool_observation"
)

// Message is an immutable transcript entry. The transcript is append-only:
// messages are never edited or removed after being appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ToolName  string    `json:"tool_name,omitempty"`
	IsError   bool      `json:"is_error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CloneMessages returns a copy of the transcript slice so callers cannot
// mutate the session's backing array.
func CloneMessages(in []Message) []Message {
	out := make([]Message, len(in))
	copy(out, in)
	return out
}
