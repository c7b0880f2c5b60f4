package mcptools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/xonecas/tronrun/internal/shell"
)

func callShell(t *testing.T, h *ShellHandler, args ShellArgs) (string, bool) {
	t.Helper()
	argsJSON, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	text, isError, err := h.Handle(context.Background(), argsJSON)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return text, isError
}

func TestShellHandler_RunsCommand(t *testing.T) {
	sh := shell.New(t.TempDir(), nil)
	h := NewShellHandler(sh)

	text, isError := callShell(t, h, ShellArgs{Command: "echo hello", Description: "say hello"})
	if isError {
		t.Fatalf("unexpected error result: %s", text)
	}
	if text != "hello\n" {
		t.Errorf("output = %q, want %q", text, "hello\n")
	}
}

func TestShellHandler_NonZeroExit(t *testing.T) {
	sh := shell.New(t.TempDir(), nil)
	h := NewShellHandler(sh)

	text, isError := callShell(t, h, ShellArgs{Command: "exit 3", Description: "fail"})
	if !isError {
		t.Fatalf("expected error result, got %q", text)
	}
	if !strings.Contains(text, "[exit code: 3]") {
		t.Errorf("output = %q, want exit code marker", text)
	}
}

func TestShellHandler_MissingCommand(t *testing.T) {
	sh := shell.New(t.TempDir(), nil)
	h := NewShellHandler(sh)

	_, isError := callShell(t, h, ShellArgs{Description: "no command"})
	if !isError {
		t.Error("expected error for missing command")
	}
}

func TestShellHandler_InvalidArguments(t *testing.T) {
	sh := shell.New(t.TempDir(), nil)
	h := NewShellHandler(sh)

	text, isError, err := h.Handle(context.Background(), json.RawMessage(`not json`))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !isError {
		t.Errorf("expected error result, got %q", text)
	}
}
