package domain

import (
	"context"
	"time"
)

// MemoryStore persists session turns and retrieves prior context. The runtime
// treats it as optional: store failures degrade the loop gracefully (it
// continues without memory context) and are reported, not fatal.
type MemoryStore interface {
	AppendTurn(ctx context.Context, sessionID string, msg Message) error
	Search(ctx context.Context, query string, limit int) ([]MemorySnippet, error)
	Close() error
}

// MemorySnippet is one retrieved piece of prior context.
type MemorySnippet struct {
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
