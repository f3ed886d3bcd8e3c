package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"agentd/internal/domain"
)

// ResolvePath resolves a file path relative to the workspace and rejects
// paths that escape it. Containment is enforced here so it covers read tools
// too; the policy gate re-checks it independently on write targets.
func ResolvePath(workspace, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if !filepath.IsAbs(path) && workspace != "" {
		path = filepath.Join(workspace, path)
	}
	resolved, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if workspace != "" {
		root, err := filepath.Abs(workspace)
		if err != nil {
			return "", fmt.Errorf("resolve workspace: %w", err)
		}
		if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return "", fmt.Errorf("path %q is outside workspace %q", resolved, root)
		}
	}
	return resolved, nil
}

// --- ReadFileTool ---

// ReadFileTool reads a file inside the workspace. Classified pure: it cannot
// mutate anything, and reads are workspace-resolved.
type ReadFileTool struct {
	workspace string
	maxBytes  int
}

func NewReadFileTool(workspace string, maxBytes int) *ReadFileTool {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return &ReadFileTool{workspace: workspace, maxBytes: maxBytes}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a text file. Provide the path relative to the workspace."
}

func (t *ReadFileTool) Schema() map[string]any {
	return Parameters(
		map[string]Param{
			"path": {Type: "string", Description: "File path to read, relative to workspace"},
		},
		[]string{"path"},
	)
}

func (t *ReadFileTool) Risk() domain.RiskClass { return domain.RiskPure }

func (t *ReadFileTool) Execute(_ context.Context, args map[string]any) (string, error) {
	resolved, err := ResolvePath(t.workspace, ArgString(args, "path"))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if len(data) > t.maxBytes {
		data = data[:t.maxBytes]
	}
	return string(data), nil
}

// --- WriteFileTool ---

// WriteFileTool writes content to a file under the workspace. Classified
// filesystem-write; the policy gate checks workspace containment on Target.
type WriteFileTool struct {
	workspace string
}

func NewWriteFileTool(workspace string) *WriteFileTool {
	return &WriteFileTool{workspace: workspace}
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file, creating it if needed and overwriting if it exists."
}

func (t *WriteFileTool) Schema() map[string]any {
	return Parameters(
		map[string]Param{
			"path":    {Type: "string", Description: "File path to write, relative to workspace"},
			"content": {Type: "string", Description: "Content to write"},
		},
		[]string{"path", "content"},
	)
}

func (t *WriteFileTool) Risk() domain.RiskClass { return domain.RiskFilesystemWrite }

// Target reports the resolved destination path for policy evaluation.
func (t *WriteFileTool) Target(args map[string]any) string {
	resolved, err := ResolvePath(t.workspace, ArgString(args, "path"))
	if err != nil {
		return ""
	}
	return resolved
}

func (t *WriteFileTool) Execute(_ context.Context, args map[string]any) (string, error) {
	resolved, err := ResolvePath(t.workspace, ArgString(args, "path"))
	if err != nil {
		return "", err
	}
	content := ArgString(args, "content")
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), resolved), nil
}

var (
	_ domain.Tool         = (*ReadFileTool)(nil)
	_ domain.Tool         = (*WriteFileTool)(nil)
	_ domain.PolicyTarget = (*WriteFileTool)(nil)
)
