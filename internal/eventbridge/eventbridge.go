// Package eventbridge translates the internal vocabulary an
// internal/eventbus.Hub fans out (persisted events.Type strings and the
// turn/agent runners' ephemeral notice names) into the dotted wire-event
// names and envelope shape the RPC transport sends to clients (§4.8).
package eventbridge

import (
	"encoding/json"

	"github.com/xonecas/tronrun/internal/eventbus"
)

// Event is the wire-format envelope sent to a connected client.
type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// wireTypeByEventType maps a persisted events.Type's dotted string to the
// wire name clients expect, for the subset of types the RPC transport
// forwards live. Types not present here pass through unchanged: unlike the
// original runtime's ad hoc event enum, every persisted event here already
// carries a fully named, typed JSON payload, so there is nothing left to
// reshape beyond the name itself.
var wireTypeByEventType = map[string]string{
	"stream.turn_start":         "agent.turn_start",
	"stream.turn_end":           "agent.turn_end",
	"stream.text_delta":         "agent.text_delta",
	"stream.thinking_delta":     "agent.thinking_delta",
	"message.assistant":         "agent.message",
	"tool.result":               "agent.tool_end",
	"notification.interrupted":  "agent.interrupted",
	"error.provider":            "agent.error",
	"error.agent":               "agent.error",
	"error.tool":                "agent.error",
	"hook.triggered":            "hook.triggered",
	"hook.completed":            "hook.completed",
	"hook.background_started":   "hook.background_started",
	"hook.background_completed": "hook.background_completed",
	"compact.boundary":          "agent.compaction",
	"compact.summary":           "agent.compaction",
}

// wireTypeByNoticeName maps an ephemeral notice name (one with no home in
// the persisted events.Type enum) to its wire name, grounded on
// event_bridge.rs's internal-name table.
var wireTypeByNoticeName = map[string]string{
	"turn_start":     "agent.turn_start",
	"turn_end":       "agent.turn_end",
	"api_retry":      "agent.retry",
	"agent_end":      "agent.complete",
	"agent_ready":    "agent.ready",
	"context_growth": "agent.context_growth",
}

// Translate converts one eventbus.Message into its wire Event. Marshaling
// errors on an ephemeral notice's Payload are swallowed into an empty Data
// field rather than dropping the event: a malformed notice payload is a
// bug in the runner that produced it, not a reason to hide the event type
// and timestamp from the client.
func Translate(msg eventbus.Message) Event {
	var typ string
	var data json.RawMessage

	if msg.Name != "" {
		typ = wireTypeByNoticeName[msg.Name]
		if typ == "" {
			typ = "agent." + msg.Name
		}
		if raw, err := json.Marshal(msg.Payload); err == nil {
			data = raw
		}
	} else {
		typ = wireTypeByEventType[string(msg.Event.Type)]
		if typ == "" {
			typ = string(msg.Event.Type)
		}
		data = msg.Event.Payload
	}

	return Event{
		Type:      typ,
		SessionID: msg.SessionID,
		Timestamp: msg.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Data:      data,
	}
}
