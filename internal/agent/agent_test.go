package agent

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/xonecas/tronrun/internal/ctxassembler"
	"github.com/xonecas/tronrun/internal/events"
	"github.com/xonecas/tronrun/internal/eventstore"
	"github.com/xonecas/tronrun/internal/provider"
	"github.com/xonecas/tronrun/internal/streamevent"
	"github.com/xonecas/tronrun/internal/toolpipeline"
	"github.com/xonecas/tronrun/internal/turn"
)

func newTestSession(t *testing.T) (*eventstore.Store, string, string) {
	t.Helper()
	store, err := eventstore.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ws, err := store.CreateWorkspace(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	sess, err := store.CreateSession(ws.ID, "mock-model", ws.Path)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	userMsg, err := events.NewEvent(sess.ID, ws.ID, events.MessageUser, events.NewUserMessage("do the thing"))
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if _, err := store.Append(sess.ID, userMsg); err != nil {
		t.Fatalf("Append: %v", err)
	}

	return store, sess.ID, ws.ID
}

type stubRegistry struct {
	handlers map[string]toolpipeline.Handler
}

func (r *stubRegistry) Lookup(name string) (toolpipeline.Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

func echoHandler(text string, isError bool) toolpipeline.Handler {
	return func(ctx context.Context, arguments json.RawMessage) (string, bool, error) {
		return text, isError, nil
	}
}

func TestRunAgent_NoToolCalls(t *testing.T) {
	store, sessionID, workspaceID := newTestSession(t)
	turnRunner := turn.NewRunner(store, nil)
	runner := NewRunner(store, turnRunner, nil)

	prov := provider.NewMock("mock", "all done")
	pipeline := toolpipeline.New(&stubRegistry{}, nil, nil)

	outcome, err := runner.RunAgent(context.Background(), sessionID, workspaceID, Options{
		Provider:     prov,
		Pipeline:     pipeline,
		BuildRequest: func(messages []events.Message) ctxassembler.Request { return ctxassembler.Request{Messages: messages} },
	})
	if err != nil {
		t.Fatalf("RunAgent: %v", err)
	}
	if outcome.Turns != 1 {
		t.Errorf("Turns = %d, want 1", outcome.Turns)
	}
	if outcome.MaxTurnsExceeded || outcome.Interrupted {
		t.Errorf("unexpected Outcome %+v", outcome)
	}
	if len(outcome.FinalMessage.Blocks) != 1 || outcome.FinalMessage.Blocks[0].Text != "all done" {
		t.Errorf("FinalMessage = %+v", outcome.FinalMessage)
	}
}

func TestRunAgent_ToolCallThenStop(t *testing.T) {
	store, sessionID, workspaceID := newTestSession(t)
	turnRunner := turn.NewRunner(store, nil)
	runner := NewRunner(store, turnRunner, nil)

	prov := provider.NewMock("mock", "").WithToolCalls([]streamevent.ToolCall{
		{ID: "toolu_1", Name: "read_file", Arguments: json.RawMessage(`{"path":"a.go"}`)},
	})
	pipeline := toolpipeline.New(&stubRegistry{handlers: map[string]toolpipeline.Handler{
		"read_file": echoHandler("file contents", false),
	}}, nil, nil)

	// The mock always replies with the same tool call, so with a MaxTurns of
	// 2 the loop exhausts its budget and falls through to the tool-free
	// summary turn rather than looping forever.
	outcome, err := runner.RunAgent(context.Background(), sessionID, workspaceID, Options{
		Provider:     prov,
		Pipeline:     pipeline,
		MaxTurns:     2,
		BuildRequest: func(messages []events.Message) ctxassembler.Request { return ctxassembler.Request{Messages: messages} },
	})
	if err != nil {
		t.Fatalf("RunAgent: %v", err)
	}
	if !outcome.MaxTurnsExceeded {
		t.Errorf("expected MaxTurnsExceeded, got %+v", outcome)
	}
	if outcome.Turns != 3 {
		t.Errorf("Turns = %d, want 3 (2 tool rounds + 1 summary turn)", outcome.Turns)
	}

	stored, err := store.List(sessionID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var toolResults, userMessages int
	for _, e := range stored {
		switch e.Type {
		case events.ToolResult:
			toolResults++
		case events.MessageUser:
			userMessages++
		}
	}
	if toolResults != 2 {
		t.Errorf("persisted %d tool.result events, want 2", toolResults)
	}
	if userMessages != 2 {
		t.Errorf("persisted %d message.user events, want 2 (initial prompt + limit message)", userMessages)
	}
}

func TestRunAgent_Interrupted(t *testing.T) {
	store, sessionID, workspaceID := newTestSession(t)
	turnRunner := turn.NewRunner(store, nil)
	runner := NewRunner(store, turnRunner, nil)

	prov := provider.NewMock("mock", "hi")
	pipeline := toolpipeline.New(&stubRegistry{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := runner.RunAgent(ctx, sessionID, workspaceID, Options{
		Provider:     prov,
		Pipeline:     pipeline,
		BuildRequest: func(messages []events.Message) ctxassembler.Request { return ctxassembler.Request{Messages: messages} },
	})
	if err != nil {
		t.Fatalf("RunAgent: %v", err)
	}
	if !outcome.Interrupted {
		t.Errorf("expected Interrupted, got %+v", outcome)
	}
}
