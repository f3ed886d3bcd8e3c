package domain

import "context"

// RiskClass classifies a tool for policy evaluation.
type RiskClass string

const (
	RiskPure            RiskClass = "pure"
	RiskNetwork         RiskClass = "network"
	RiskFilesystemWrite RiskClass = "filesystem-write"
)

// Tool is a registered capability the model may request. Execute receives
// arguments that already passed schema validation; business-rule checks
// belong to the policy gate, not the tool.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON-Schema-shaped declaration of the tool's input:
	// {"type":"object","properties":{...},"required":[...]}.
	Schema() map[string]any
	Risk() RiskClass
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToolDescriptor is the (name, schema) pair exposed to the decision provider.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
	Risk        RiskClass      `json:"risk,omitempty"`
}

// PolicyTarget is an optional Tool extension that reports the policy-relevant
// target of a concrete call: the domain for network tools, the path for
// filesystem tools. Tools without a scoped target simply don't implement it.
type PolicyTarget interface {
	Target(args map[string]any) string
}
