package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"agentd/internal/domain"
)

var (
	// ErrDuplicateTool is returned when a name is registered twice.
	ErrDuplicateTool = errors.New("tool already registered")
	// ErrUnknownTool is returned when a name resolves to nothing. The runtime
	// converts it into a model-visible observation, never a fatal error.
	ErrUnknownTool = errors.New("unknown tool")
)

// SchemaError reports a structural validation failure of tool arguments.
// It is a protocol-level error fed back to the model, not a policy matter.
type SchemaError struct {
	Tool   string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %s", e.Tool, e.Detail)
}

// Registry is the single source of truth for what is callable. Registration
// order is preserved so the catalog handed to the decision provider is stable
// across calls.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	order  []string
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds a tool under its name. Duplicate names are rejected.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrDuplicateTool)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	r.logger.Debug("registered tool", "name", name, "risk", t.Risk())
	return nil
}

// Resolve returns the tool registered under name.
func (r *Registry) Resolve(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t, nil
}

// Validate checks args against the tool's declared schema: required fields
// and property types only. Business-rule checks belong to the policy gate.
func (r *Registry) Validate(t domain.Tool, args map[string]any) (map[string]any, error) {
	if err := validateArguments(t.Schema(), args); err != nil {
		return nil, &SchemaError{Tool: t.Name(), Detail: err.Error()}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// Catalog returns (name, schema) descriptors in registration order.
func (r *Registry) Catalog() []domain.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, domain.ToolDescriptor{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
			Risk:        t.Risk(),
		})
	}
	return out
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Param describes a single tool parameter.
type Param struct {
	Type        string
	Description string
}

// Parameters builds a JSON Schema object declaration for a tool.
func Parameters(properties map[string]Param, required []string) map[string]any {
	props := make(map[string]any)
	for name, p := range properties {
		props[name] = map[string]any{"type": p.Type, "description": p.Description}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ArgString extracts a string argument, marshaling non-strings as JSON.
func ArgString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
