// Package policy implements the authorization gate between what the model
// asked for and what is allowed to run. The gate is a pure decision function
// over an immutable snapshot: identical (tool, args, snapshot) inputs always
// yield the identical decision.
package policy

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"agentd/internal/domain"
)

// Stable deny reason codes. These strings are part of the contract: they are
// fed back to the model as observations and asserted on in tests.
const (
	ReasonNetworkDisabled      = "network_disabled"
	ReasonDomainNotAllowed     = "domain_not_allowed"
	ReasonWritesDisabled       = "writes_disabled"
	ReasonPathOutsideWorkspace = "path_outside_workspace"
	ReasonToolDenied           = "tool_denied"
)

// Snapshot is the immutable policy configuration a session is gated by.
// Updates are whole-snapshot replacements applied only to sessions started
// afterwards; no field is mutated once a snapshot is handed out.
type Snapshot struct {
	AllowNetwork   bool
	AllowedDomains []string // glob patterns, e.g. "*.example.com"
	AllowWrites    bool
	WorkspaceRoot  string
	DenyTools      []string // glob patterns on tool names
}

// Gate evaluates tool calls against a policy snapshot.
type Gate struct {
	snap Snapshot
}

func NewGate(snap Snapshot) *Gate {
	return &Gate{snap: snap}
}

// Snapshot returns the configuration this gate was built with.
func (g *Gate) Snapshot() Snapshot { return g.snap }

// Authorize decides whether one validated tool call may execute. Rules are
// evaluated in fixed precedence order; the first match wins:
//
//  1. network tools: denied unless networking is enabled and the target
//     domain, when the tool reports one, matches an allowed pattern
//  2. filesystem-write tools: denied unless writes are enabled and the target
//     path resolves inside the workspace root
//  3. deny-listed tool names
//  4. allow
func (g *Gate) Authorize(t domain.Tool, args map[string]any, _ *domain.Session) domain.PolicyDecision {
	switch t.Risk() {
	case domain.RiskNetwork:
		if !g.snap.AllowNetwork {
			return domain.Deny(ReasonNetworkDisabled)
		}
		if target := policyTarget(t, args); target != "" {
			if !matchesAny(g.snap.AllowedDomains, target) {
				return domain.Deny(ReasonDomainNotAllowed)
			}
		}
	case domain.RiskFilesystemWrite:
		if !g.snap.AllowWrites {
			return domain.Deny(ReasonWritesDisabled)
		}
		// Path traversal outside the workspace root is always denied,
		// regardless of the write flag.
		if !g.pathInsideWorkspace(policyTarget(t, args)) {
			return domain.Deny(ReasonPathOutsideWorkspace)
		}
	}

	if matchesAny(g.snap.DenyTools, t.Name()) {
		return domain.Deny(ReasonToolDenied)
	}

	return domain.Allow()
}

// Summary renders a short human-readable description of the snapshot for the
// session's system message.
func (g *Gate) Summary() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("network=%v", g.snap.AllowNetwork))
	if g.snap.AllowNetwork && len(g.snap.AllowedDomains) > 0 {
		b.WriteString(fmt.Sprintf(" domains=%s", strings.Join(g.snap.AllowedDomains, ",")))
	}
	b.WriteString(fmt.Sprintf(" writes=%v", g.snap.AllowWrites))
	if len(g.snap.DenyTools) > 0 {
		b.WriteString(fmt.Sprintf(" denied_tools=%s", strings.Join(g.snap.DenyTools, ",")))
	}
	return b.String()
}

func (g *Gate) pathInsideWorkspace(path string) bool {
	if path == "" || g.snap.WorkspaceRoot == "" {
		return false
	}
	root, err := filepath.Abs(g.snap.WorkspaceRoot)
	if err != nil {
		return false
	}
	resolved, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return false
	}
	return resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator))
}

func policyTarget(t domain.Tool, args map[string]any) string {
	if scoped, ok := t.(domain.PolicyTarget); ok {
		return scoped.Target(args)
	}
	return ""
}

func matchesAny(patterns []string, value string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, value); err == nil && ok {
			return true
		}
	}
	return false
}
