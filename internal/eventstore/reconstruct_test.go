package eventstore

import (
	"testing"

	"github.com/xonecas/tronrun/internal/content"
	"github.com/xonecas/tronrun/internal/events"
)

func mustEvent(t *testing.T, sessionID string, typ events.Type, payload any) events.Event {
	t.Helper()
	e, err := events.NewEvent(sessionID, "", typ, payload)
	if err != nil {
		t.Fatalf("NewEvent(%s): %v", typ, err)
	}
	return e
}

// TestReconstructMessages_CompactSummaryAfterBoundary covers the canonical
// layout: a compaction run appends its compact_boundary then, in the same
// retained tail, a compact_summary event, followed by fresh conversation.
// The summary must synthesize its user/assistant exchange rather than being
// dropped.
func TestReconstructMessages_CompactSummaryAfterBoundary(t *testing.T) {
	const sess = "sess-1"
	evts := []events.Event{
		mustEvent(t, sess, events.MessageUser, events.NewUserMessage("old question")),
		mustEvent(t, sess, events.MessageAssistant, events.NewAssistantMessage([]content.Block{content.NewText("old response")})),
		mustEvent(t, sess, events.CompactBoundary, map[string]string{"reason": "context_limit"}),
		mustEvent(t, sess, events.CompactSummary, map[string]string{"summary": "The user asked about X and I explained Y."}),
		mustEvent(t, sess, events.MessageUser, events.NewUserMessage("new question")),
		mustEvent(t, sess, events.MessageAssistant, events.NewAssistantMessage([]content.Block{content.NewText("new answer")})),
	}

	messages, err := ReconstructMessages(evts)
	if err != nil {
		t.Fatalf("ReconstructMessages: %v", err)
	}

	// compact_summary synthesizes a user+assistant pair, plus the two
	// retained messages after it: 4 total, matching the ground-truth test.
	if len(messages) != 4 {
		t.Fatalf("len(messages) = %d, want 4: %+v", len(messages), messages)
	}

	if messages[0].Role != events.RoleUser {
		t.Fatalf("messages[0].Role = %q, want user", messages[0].Role)
	}
	if got := messages[0].Blocks[0].Text; got == "" || got[0] != '[' {
		t.Errorf("messages[0] text = %q, want it to start with the context marker", got)
	}
	if messages[1].Role != events.RoleAssistant {
		t.Fatalf("messages[1].Role = %q, want assistant", messages[1].Role)
	}

	if messages[2].Role != events.RoleUser || messages[2].Blocks[0].Text != "new question" {
		t.Errorf("messages[2] = %+v, want user \"new question\"", messages[2])
	}
	if messages[3].Role != events.RoleAssistant || messages[3].Blocks[0].Text != "new answer" {
		t.Errorf("messages[3] = %+v, want assistant \"new answer\"", messages[3])
	}
}

// TestReconstructMessages_CompactSummaryWithNoBoundary covers a summary
// event with no preceding boundary (startIdx stays 0): it still synthesizes
// its exchange rather than being silently skipped.
func TestReconstructMessages_CompactSummaryWithNoBoundary(t *testing.T) {
	const sess = "sess-2"
	evts := []events.Event{
		mustEvent(t, sess, events.CompactSummary, map[string]string{"summary": "prior context"}),
		mustEvent(t, sess, events.MessageUser, events.NewUserMessage("hello")),
	}

	messages, err := ReconstructMessages(evts)
	if err != nil {
		t.Fatalf("ReconstructMessages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("len(messages) = %d, want 3: %+v", len(messages), messages)
	}
	if messages[0].Role != events.RoleUser || messages[1].Role != events.RoleAssistant {
		t.Fatalf("messages[0:2] = %+v, want synthesized user/assistant pair", messages[:2])
	}
}

func TestReconstructMessages_SkipsEventsBeforeLastBoundary(t *testing.T) {
	const sess = "sess-3"
	evts := []events.Event{
		mustEvent(t, sess, events.MessageUser, events.NewUserMessage("before boundary, dropped")),
		mustEvent(t, sess, events.CompactBoundary, map[string]string{"reason": "context_limit"}),
		mustEvent(t, sess, events.MessageUser, events.NewUserMessage("after boundary")),
	}

	messages, err := ReconstructMessages(evts)
	if err != nil {
		t.Fatalf("ReconstructMessages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("len(messages) = %d, want 1: %+v", len(messages), messages)
	}
	if messages[0].Blocks[0].Text != "after boundary" {
		t.Errorf("messages[0] text = %q, want %q", messages[0].Blocks[0].Text, "after boundary")
	}
}
