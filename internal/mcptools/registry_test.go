package mcptools

import (
	"testing"

	"github.com/xonecas/tronrun/internal/shell"
)

func TestNewRegistry_LooksUpRegisteredTools(t *testing.T) {
	reg := NewRegistry(shell.New(t.TempDir(), nil), &Scratchpad{})

	for _, name := range []string{"Shell", "TodoWrite"} {
		if _, ok := reg.Lookup(name); !ok {
			t.Errorf("Lookup(%q) not found", name)
		}
	}
	if _, ok := reg.Lookup("SubAgent"); ok {
		t.Error("SubAgent should not be registered until RegisterSubAgent is called")
	}

	names := make(map[string]bool)
	for _, def := range reg.Defs() {
		names[def.Name] = true
	}
	if !names["Shell"] || !names["TodoWrite"] {
		t.Errorf("Defs() = %v, missing Shell/TodoWrite", reg.Defs())
	}
}

func TestNewRegistry_CompilesSchemas(t *testing.T) {
	reg := NewRegistry(shell.New(t.TempDir(), nil), &Scratchpad{})

	schema, ok := reg.Schema("Shell")
	if !ok {
		t.Fatal("Schema(\"Shell\") not found")
	}
	if err := schema.Validate(map[string]any{"command": "echo hi", "description": "say hi"}); err != nil {
		t.Errorf("valid Shell arguments rejected: %v", err)
	}
	if err := schema.Validate(map[string]any{"description": "missing command"}); err == nil {
		t.Error("expected validation error for missing required \"command\"")
	}
}
