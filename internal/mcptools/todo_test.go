package mcptools

import (
	"context"
	"encoding/json"
	"testing"
)

func TestTodoWriteHandler_UpdatesScratchpad(t *testing.T) {
	pad := &Scratchpad{}
	handler := MakeTodoWriteHandler(pad)

	args, _ := json.Marshal(TodoWriteArgs{Content: "step one\nstep two"})
	text, isError, err := handler(context.Background(), args)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if isError {
		t.Fatalf("unexpected error result: %s", text)
	}
	if got := pad.Content(); got != "step one\nstep two" {
		t.Errorf("pad.Content() = %q", got)
	}
}

func TestTodoWriteHandler_RejectsEmptyContent(t *testing.T) {
	pad := &Scratchpad{}
	handler := MakeTodoWriteHandler(pad)

	args, _ := json.Marshal(TodoWriteArgs{})
	_, isError, err := handler(context.Background(), args)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !isError {
		t.Error("expected error result for empty content")
	}
}

func TestTodoWriteHandler_RejectsInvalidJSON(t *testing.T) {
	pad := &Scratchpad{}
	handler := MakeTodoWriteHandler(pad)

	_, isError, err := handler(context.Background(), json.RawMessage(`not json`))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !isError {
		t.Error("expected error result for invalid json")
	}
}
