package eventstore

import (
	"encoding/json"

	"github.com/xonecas/tronrun/internal/content"
	"github.com/xonecas/tronrun/internal/events"
)

// messageEventPayload is the common shape of message.* event payloads.
type messageEventPayload struct {
	Blocks     []content.Block `json:"blocks"`
	ToolCallID string          `json:"toolCallId"`
	IsError    bool            `json:"isError"`
}

type compactionSummaryPayload struct {
	Summary string `json:"summary"`
}

// ReconstructMessages is a pure, deterministic, restartable function: given
// the full event list of a session (in sequence order), produce the ordered
// message sequence to send to a provider (§4.2). Events before the last
// compaction boundary are skipped; a compaction-summary event in the
// retained tail (the events appended after that boundary, which is where a
// compaction run writes its summary) synthesizes a user/assistant exchange
// in place of the history it replaces.
func ReconstructMessages(evts []events.Event) ([]events.Message, error) {
	startIdx := 0
	for i, e := range evts {
		if e.Type == events.CompactBoundary {
			startIdx = i + 1
		}
	}

	var out []events.Message
	for _, e := range evts[startIdx:] {
		msgs, err := translateEvent(e)
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}

func translateEvent(e events.Event) ([]events.Message, error) {
	switch e.Type {
	case events.MessageUser:
		var p messageEventPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, err
		}
		return []events.Message{{Role: events.RoleUser, Blocks: p.Blocks}}, nil
	case events.MessageAssistant:
		var p messageEventPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, err
		}
		return []events.Message{{Role: events.RoleAssistant, Blocks: p.Blocks}}, nil
	case events.ToolResult:
		var p messageEventPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, err
		}
		return []events.Message{{Role: events.RoleToolResult, Blocks: p.Blocks, ToolCallID: p.ToolCallID, IsError: p.IsError}}, nil
	case events.CompactSummary:
		var p compactionSummaryPayload
		if err := e.DecodePayload(&p); err != nil {
			return nil, err
		}
		return []events.Message{
			events.NewUserMessage("[Context from earlier in this conversation]\n\n" + p.Summary),
			events.NewAssistantMessage([]content.Block{content.NewText("Understood, I have the prior context.")}),
		}, nil
	default:
		return nil, nil
	}
}
