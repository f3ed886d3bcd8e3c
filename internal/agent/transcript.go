package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agentd/internal/domain"
)

// PromptBuilder assembles the transcript view sent to the decision provider:
// a system message carrying the policy summary, the tool catalog signature,
// and the action protocol, plus optional context retrieved from memory.
type PromptBuilder struct {
	policySummary string
	memory        domain.MemoryStore
	searchLimit   int
	logger        *slog.Logger
}

// NewPromptBuilder creates a PromptBuilder. memory may be nil; searchLimit
// caps the retrieved context snippets (<= 0 uses a small default).
func NewPromptBuilder(policySummary string, memory domain.MemoryStore, searchLimit int, logger *slog.Logger) *PromptBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	if searchLimit <= 0 {
		searchLimit = 3
	}
	return &PromptBuilder{
		policySummary: policySummary,
		memory:        memory,
		searchLimit:   searchLimit,
		logger:        logger,
	}
}

// BuildSystemMessage renders the session's system message. The catalog
// signature is stable across the session: tools registered later never
// appear mid-session.
func (p *PromptBuilder) BuildSystemMessage(catalog []domain.ToolDescriptor) string {
	var sb strings.Builder

	sb.WriteString(`# agentd

You accomplish one task by taking actions, one per turn. Every reply MUST be a single JSON object, nothing else:

- To run a tool: {"action":"tool","tool":"<name>","args":{...}}
- To finish with an answer: {"action":"final","content":"<answer>"}

## RULES
1. One action per turn. Extra tool calls in the same reply are ignored.
2. Only tools from the catalog below exist. Arguments must match the declared schema.
3. Tool results come back as observations. Errors and denials are observations too; adjust and continue.
4. When you have the answer, return a final action. Do not repeat a tool call that was denied.
`)

	sb.WriteString("\n## Policy\n")
	sb.WriteString(p.policySummary)
	sb.WriteString("\n\n## Tool Catalog\n")
	for _, d := range catalog {
		line, err := json.Marshal(d)
		if err != nil {
			// Descriptors are plain maps and strings; this should not happen.
			p.logger.Warn("failed to render tool descriptor", "tool", d.Name, "err", err)
			continue
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}

	return sb.String()
}

// BuildContext retrieves prior context from memory for the given task.
// Failures degrade gracefully: the loop continues without memory context.
func (p *PromptBuilder) BuildContext(ctx context.Context, task string) string {
	if p.memory == nil {
		return ""
	}
	snippets, err := p.memory.Search(ctx, task, p.searchLimit)
	if err != nil {
		p.logger.Warn("memory search failed", "err", err)
		return ""
	}
	if len(snippets) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Prior Context\n")
	for _, s := range snippets {
		fmt.Fprintf(&sb, "- [%s] %s\n", s.Role, s.Content)
	}
	return sb.String()
}

// InitialTranscript builds the opening transcript for a task: the system
// message, optional memory context, then the user task.
func (p *PromptBuilder) InitialTranscript(ctx context.Context, task string, catalog []domain.ToolDescriptor) []domain.Message {
	now := time.Now()
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: p.BuildSystemMessage(catalog), Timestamp: now},
	}
	if memCtx := p.BuildContext(ctx, task); memCtx != "" {
		messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: memCtx, Timestamp: now})
	}
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: task, Timestamp: now})
	return messages
}

// windowTranscript returns a view of the transcript that fits within
// maxBytes of message content. The oldest non-system turns are dropped
// first; system messages and the most recent turn are never dropped.
// A maxBytes of zero disables windowing.
func windowTranscript(messages []domain.Message, maxBytes int) []domain.Message {
	if maxBytes <= 0 || transcriptBytes(messages) <= maxBytes {
		return messages
	}

	// Collect indexes of droppable turns, oldest first. The last message is
	// always kept even if it alone exceeds the budget.
	dropped := make(map[int]bool)
	total := transcriptBytes(messages)
	for i := 0; i < len(messages)-1 && total > maxBytes; i++ {
		if messages[i].Role == domain.RoleSystem {
			continue
		}
		dropped[i] = true
		total -= len(messages[i].Content)
	}
	if len(dropped) == 0 {
		return messages
	}

	out := make([]domain.Message, 0, len(messages)-len(dropped))
	for i, m := range messages {
		if !dropped[i] {
			out = append(out, m)
		}
	}
	return out
}

func transcriptBytes(messages []domain.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	return total
}
