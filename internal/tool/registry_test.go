package tool

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"agentd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type namedTool struct {
	name string
}

func (n namedTool) Name() string { return n.name }

func (n namedTool) Description() string { return "named" }

func (n namedTool) Schema() map[string]any {
	return Parameters(
		map[string]Param{
			"path":  {Type: "string"},
			"count": {Type: "integer"},
		},
		[]string{"path"},
	)
}

func (n namedTool) Risk() domain.RiskClass { return domain.RiskPure }

func (n namedTool) Execute(context.Context, map[string]any) (string, error) { return "ok", nil }

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(namedTool{name: "a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Resolve("a")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Name() != "a" {
		t.Errorf("resolved wrong tool: %s", got.Name())
	}
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(namedTool{name: "a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(namedTool{name: "a"}); !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("expected ErrDuplicateTool, got %v", err)
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry(testLogger())
	if _, err := r.Resolve("ghost"); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("expected ErrUnknownTool, got %v", err)
	}
}

func TestRegistry_CatalogPreservesOrder(t *testing.T) {
	r := NewRegistry(testLogger())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(namedTool{name: name}); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}

	catalog := r.Catalog()
	want := []string{"zeta", "alpha", "mid"}
	if len(catalog) != len(want) {
		t.Fatalf("expected %d descriptors, got %d", len(want), len(catalog))
	}
	for i, d := range catalog {
		if d.Name != want[i] {
			t.Errorf("catalog[%d] = %s, want %s", i, d.Name, want[i])
		}
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	r := NewRegistry(testLogger())
	tl := namedTool{name: "a"}

	_, err := r.Validate(tl, map[string]any{"count": 1})
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if se.Tool != "a" {
		t.Errorf("error names wrong tool: %s", se.Tool)
	}
}

func TestValidate_WrongType(t *testing.T) {
	r := NewRegistry(testLogger())
	tl := namedTool{name: "a"}

	cases := []map[string]any{
		{"path": 42},
		{"path": "ok", "count": "not a number"},
		{"path": "ok", "count": 1.5},
	}
	for _, args := range cases {
		if _, err := r.Validate(tl, args); err == nil {
			t.Errorf("expected schema error for %v", args)
		}
	}
}

func TestValidate_UnknownArgumentRejected(t *testing.T) {
	r := NewRegistry(testLogger())
	if _, err := r.Validate(namedTool{name: "a"}, map[string]any{"path": "x", "bogus": true}); err == nil {
		t.Error("expected schema error for undeclared argument")
	}
}

func TestValidate_ValidArgs(t *testing.T) {
	r := NewRegistry(testLogger())

	args, err := r.Validate(namedTool{name: "a"}, map[string]any{"path": "x", "count": float64(3)})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if args["path"] != "x" {
		t.Errorf("args not passed through: %v", args)
	}
}

func TestValidate_NilArgsWithNoRequired(t *testing.T) {
	r := NewRegistry(testLogger())

	optional := namedTool{name: "opt"}
	// namedTool requires "path"; nil args must fail.
	if _, err := r.Validate(optional, nil); err == nil {
		t.Error("expected schema error for nil args with a required field")
	}
}
