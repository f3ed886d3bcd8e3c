package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"agentd/internal/domain"
)

// gateTool is a minimal Tool with a configurable risk class and target.
type gateTool struct {
	name   string
	risk   domain.RiskClass
	target string
}

func (g gateTool) Name() string { return g.name }

func (g gateTool) Description() string { return "test tool" }

func (g gateTool) Schema() map[string]any { return map[string]any{"type": "object"} }

func (g gateTool) Risk() domain.RiskClass { return g.risk }

func (g gateTool) Target(map[string]any) string { return g.target }

func (g gateTool) Execute(context.Context, map[string]any) (string, error) {
	return "", nil
}

func TestAuthorize_PureToolAllowed(t *testing.T) {
	gate := NewGate(Snapshot{})
	d := gate.Authorize(gateTool{name: "calc", risk: domain.RiskPure}, nil, nil)
	if !d.Allowed {
		t.Fatalf("pure tool denied: %s", d.Reason)
	}
}

func TestAuthorize_NetworkDisabled(t *testing.T) {
	gate := NewGate(Snapshot{AllowNetwork: false})
	d := gate.Authorize(gateTool{name: "web_fetch", risk: domain.RiskNetwork, target: "example.com"}, nil, nil)
	if d.Allowed {
		t.Fatal("network tool allowed with networking disabled")
	}
	if d.Reason != ReasonNetworkDisabled {
		t.Errorf("expected %q, got %q", ReasonNetworkDisabled, d.Reason)
	}
}

func TestAuthorize_DomainPatterns(t *testing.T) {
	gate := NewGate(Snapshot{
		AllowNetwork:   true,
		AllowedDomains: []string{"example.com", "*.trusted.org"},
	})

	cases := []struct {
		target  string
		allowed bool
	}{
		{"example.com", true},
		{"api.trusted.org", true},
		{"evil.com", false},
		{"example.com.evil.com", false},
	}
	for _, c := range cases {
		d := gate.Authorize(gateTool{name: "web_fetch", risk: domain.RiskNetwork, target: c.target}, nil, nil)
		if d.Allowed != c.allowed {
			t.Errorf("target %q: allowed=%v, want %v (reason %q)", c.target, d.Allowed, c.allowed, d.Reason)
		}
		if !c.allowed && d.Reason != ReasonDomainNotAllowed {
			t.Errorf("target %q: expected %q, got %q", c.target, ReasonDomainNotAllowed, d.Reason)
		}
	}
}

func TestAuthorize_UnscopedNetworkToolAllowedWhenEnabled(t *testing.T) {
	// A network tool that reports no target cannot be domain-checked; the
	// network flag alone governs it.
	gate := NewGate(Snapshot{AllowNetwork: true, AllowedDomains: []string{"example.com"}})
	d := gate.Authorize(gateTool{name: "ping", risk: domain.RiskNetwork}, nil, nil)
	if !d.Allowed {
		t.Fatalf("unscoped network tool denied: %s", d.Reason)
	}
}

func TestAuthorize_WritesDisabled(t *testing.T) {
	ws := t.TempDir()
	gate := NewGate(Snapshot{AllowWrites: false, WorkspaceRoot: ws})
	d := gate.Authorize(gateTool{name: "write_file", risk: domain.RiskFilesystemWrite, target: filepath.Join(ws, "a.txt")}, nil, nil)
	if d.Allowed {
		t.Fatal("write allowed with writes disabled")
	}
	if d.Reason != ReasonWritesDisabled {
		t.Errorf("expected %q, got %q", ReasonWritesDisabled, d.Reason)
	}
}

func TestAuthorize_PathTraversalAlwaysDenied(t *testing.T) {
	ws := t.TempDir()
	gate := NewGate(Snapshot{AllowWrites: true, WorkspaceRoot: ws})

	outside := []string{
		"/etc/passwd",
		filepath.Join(ws, "..", "escape.txt"),
		filepath.Dir(ws),
	}
	for _, target := range outside {
		d := gate.Authorize(gateTool{name: "write_file", risk: domain.RiskFilesystemWrite, target: target}, nil, nil)
		if d.Allowed {
			t.Errorf("write outside workspace allowed: %s", target)
			continue
		}
		if d.Reason != ReasonPathOutsideWorkspace {
			t.Errorf("target %q: expected %q, got %q", target, ReasonPathOutsideWorkspace, d.Reason)
		}
	}
}

func TestAuthorize_WriteInsideWorkspace(t *testing.T) {
	ws := t.TempDir()
	gate := NewGate(Snapshot{AllowWrites: true, WorkspaceRoot: ws})
	d := gate.Authorize(gateTool{name: "write_file", risk: domain.RiskFilesystemWrite, target: filepath.Join(ws, "sub", "a.txt")}, nil, nil)
	if !d.Allowed {
		t.Fatalf("in-workspace write denied: %s", d.Reason)
	}
}

func TestAuthorize_SiblingPrefixDenied(t *testing.T) {
	// "/ws-evil" shares the string prefix of "/ws" but is not inside it.
	ws := t.TempDir()
	gate := NewGate(Snapshot{AllowWrites: true, WorkspaceRoot: ws})
	d := gate.Authorize(gateTool{name: "write_file", risk: domain.RiskFilesystemWrite, target: ws + "-evil/a.txt"}, nil, nil)
	if d.Allowed {
		t.Fatal("sibling directory with shared prefix allowed")
	}
}

func TestAuthorize_DenyList(t *testing.T) {
	gate := NewGate(Snapshot{DenyTools: []string{"calc", "debug_*"}})

	d := gate.Authorize(gateTool{name: "calc", risk: domain.RiskPure}, nil, nil)
	if d.Allowed || d.Reason != ReasonToolDenied {
		t.Errorf("deny-listed tool: allowed=%v reason=%q", d.Allowed, d.Reason)
	}

	d = gate.Authorize(gateTool{name: "debug_dump", risk: domain.RiskPure}, nil, nil)
	if d.Allowed {
		t.Error("glob deny pattern did not match")
	}

	d = gate.Authorize(gateTool{name: "echo", risk: domain.RiskPure}, nil, nil)
	if !d.Allowed {
		t.Errorf("unlisted tool denied: %s", d.Reason)
	}
}

func TestAuthorize_RiskPrecedesDenyList(t *testing.T) {
	// A network tool that is also deny-listed reports the network reason:
	// risk rules are evaluated first.
	gate := NewGate(Snapshot{AllowNetwork: false, DenyTools: []string{"web_fetch"}})
	d := gate.Authorize(gateTool{name: "web_fetch", risk: domain.RiskNetwork}, nil, nil)
	if d.Reason != ReasonNetworkDisabled {
		t.Errorf("expected %q, got %q", ReasonNetworkDisabled, d.Reason)
	}
}

func TestAuthorize_Deterministic(t *testing.T) {
	gate := NewGate(Snapshot{AllowNetwork: true, AllowedDomains: []string{"*.example.com"}})
	tl := gateTool{name: "web_fetch", risk: domain.RiskNetwork, target: "api.example.com"}

	first := gate.Authorize(tl, nil, nil)
	for i := 0; i < 100; i++ {
		if got := gate.Authorize(tl, nil, nil); got != first {
			t.Fatalf("decision changed on repeat %d: %+v vs %+v", i, got, first)
		}
	}
}

func TestLoadRules_MergesPatterns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	rules := "allowedDomains:\n  - \"*.internal.net\"\ndenyTools:\n  - \"shell\"\n"
	if err := os.WriteFile(path, []byte(rules), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	snap, err := LoadRules(path, Snapshot{AllowedDomains: []string{"example.com"}})
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(snap.AllowedDomains) != 2 {
		t.Errorf("expected merged domains, got %v", snap.AllowedDomains)
	}
	if len(snap.DenyTools) != 1 || snap.DenyTools[0] != "shell" {
		t.Errorf("expected merged deny list, got %v", snap.DenyTools)
	}
}

func TestLoadRules_MissingFileIsNotAnError(t *testing.T) {
	snap, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"), Snapshot{AllowNetwork: true})
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if !snap.AllowNetwork {
		t.Error("snapshot must pass through unchanged")
	}
}
