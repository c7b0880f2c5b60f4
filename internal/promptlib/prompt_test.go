package promptlib

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSelectPrompt(t *testing.T) {
	tests := []struct {
		modelID string
		want    string
	}{
		{"claude-opus-4", anthropicPrompt},
		{"gemini-2.5-pro", geminiPrompt},
		{"gpt-4o", gptPrompt},
		{"o1-preview", gptPrompt},
		{"qwen2.5-coder", qwenPrompt},
		{"some-unknown-model", anthropicPrompt},
	}
	for _, tt := range tests {
		if got := SelectPrompt(tt.modelID); got != tt.want {
			t.Errorf("SelectPrompt(%q) returned unexpected prompt", tt.modelID)
		}
	}
}

func TestLoadAgentInstructions_ReadsProjectFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte("project rules"), 0644); err != nil {
		t.Fatalf("write AGENTS.md: %v", err)
	}

	got := LoadAgentInstructions(dir)
	if got == "" {
		t.Fatal("expected non-empty instructions")
	}
}

func TestLoadAgentInstructions_NoFilesReturnsEmpty(t *testing.T) {
	got := LoadAgentInstructions(t.TempDir())
	if got != "" {
		t.Errorf("expected empty instructions, got %q", got)
	}
}
