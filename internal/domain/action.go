package domain

// Action is one parsed model decision. It is a closed sum: exactly one of
// ToolCallAction, FinalAction, or TextAction. Parsing failures collapse into
// TextAction rather than raising, so a model that forgets the protocol still
// terminates the loop.
type Action interface {
	actionKind() ActionKind
}

// ActionKind tags the concrete Action variant.
type ActionKind string

const (
	ActionKindToolCall ActionKind = "tool"
	ActionKindFinal    ActionKind = "final"
	ActionKindText     ActionKind = "text"
)

// ToolCallAction asks the runtime to execute a named tool. Args stay untyped
// until validated against the tool's declared schema.
type ToolCallAction struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

func (ToolCallAction) actionKind() ActionKind { return ActionKindToolCall }

// FinalAction carries the model's final answer and ends the session.
type FinalAction struct {
	Content string `json:"content"`
}

func (FinalAction) actionKind() ActionKind { return ActionKindFinal }

// TextAction is the fallback for output that is not valid structured data.
// The runtime treats it identically to FinalAction.
type TextAction struct {
	Content string `json:"content"`
}

func (TextAction) actionKind() ActionKind { return ActionKindText }

// KindOf returns the variant tag for an action.
func KindOf(a Action) ActionKind {
	if a == nil {
		return ActionKindText
	}
	return a.actionKind()
}
