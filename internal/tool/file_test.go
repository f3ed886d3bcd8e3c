package tool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolvePath(t *testing.T) {
	ws := t.TempDir()

	resolved, err := ResolvePath(ws, "sub/a.txt")
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	if resolved != filepath.Join(ws, "sub", "a.txt") {
		t.Errorf("unexpected resolution: %s", resolved)
	}

	if _, err := ResolvePath(ws, "../escape.txt"); err == nil {
		t.Error("expected error for traversal outside the workspace")
	}
	if _, err := ResolvePath(ws, "/etc/passwd"); err == nil {
		t.Error("expected error for an absolute path outside the workspace")
	}
	if _, err := ResolvePath(ws, "   "); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestReadFile(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "note.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	rt := NewReadFileTool(ws, 0)
	out, err := rt.Execute(context.Background(), map[string]any{"path": "note.txt"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "hello" {
		t.Errorf("unexpected content: %q", out)
	}
}

func TestReadFile_CapsOutput(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "big.txt"), []byte(strings.Repeat("x", 100)), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	rt := NewReadFileTool(ws, 10)
	out, err := rt.Execute(context.Background(), map[string]any{"path": "big.txt"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out) != 10 {
		t.Errorf("expected 10 bytes, got %d", len(out))
	}
}

func TestReadFile_CannotEscapeWorkspace(t *testing.T) {
	base := t.TempDir()
	ws := filepath.Join(base, "workspace")
	if err := os.MkdirAll(ws, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	secret := filepath.Join(base, "secret.txt")
	if err := os.WriteFile(secret, []byte("top secret"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	rt := NewReadFileTool(ws, 0)
	for _, path := range []string{"../secret.txt", secret} {
		out, err := rt.Execute(context.Background(), map[string]any{"path": path})
		if err == nil {
			t.Errorf("read of %q escaped the workspace and returned %q", path, out)
		}
	}
}

func TestReadFile_Missing(t *testing.T) {
	rt := NewReadFileTool(t.TempDir(), 0)
	if _, err := rt.Execute(context.Background(), map[string]any{"path": "absent.txt"}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWriteFile(t *testing.T) {
	ws := t.TempDir()
	wt := NewWriteFileTool(ws)

	out, err := wt.Execute(context.Background(), map[string]any{
		"path":    "sub/out.txt",
		"content": "payload",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "7 bytes") {
		t.Errorf("unexpected result message: %q", out)
	}

	data, err := os.ReadFile(filepath.Join(ws, "sub", "out.txt"))
	if err != nil {
		t.Fatalf("readback: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("unexpected file content: %q", data)
	}
}

func TestWriteFile_Target(t *testing.T) {
	ws := t.TempDir()
	wt := NewWriteFileTool(ws)

	target := wt.Target(map[string]any{"path": "a.txt"})
	if target != filepath.Join(ws, "a.txt") {
		t.Errorf("unexpected target: %s", target)
	}

	// A traversal attempt fails resolution, so the gate sees an empty
	// target and denies it as outside the workspace.
	target = wt.Target(map[string]any{"path": "../a.txt"})
	if target != "" {
		t.Errorf("traversal target should not resolve: %s", target)
	}
}

func TestWriteFile_CannotEscapeWorkspace(t *testing.T) {
	wt := NewWriteFileTool(t.TempDir())
	_, err := wt.Execute(context.Background(), map[string]any{
		"path":    "../escape.txt",
		"content": "x",
	})
	if err == nil {
		t.Fatal("expected error for write outside the workspace")
	}
}
