package eventstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/xonecas/tronrun/internal/content"
	"github.com/xonecas/tronrun/internal/events"
)

// sessionContribution is the per-event delta applied to a session's
// denormalized counters on append (§3.2 "Counter consistency").
type sessionContribution struct {
	messages       int64
	turns          int64
	inputTokens    int64
	outputTokens   int64
	cacheTokens    int64
	hasInputTokens int64 // 1 when inputTokens should overwrite last_turn_input_tokens
	costUSD        float64
}

// usagePayload is the subset of a stream Done/turn-end payload carrying
// token usage, decoded loosely so unrelated event types simply miss it.
type usagePayload struct {
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	CacheTokens  int64   `json:"cacheTokens"`
	CostUSD      float64 `json:"costUsd"`
}

func contribution(e events.Event) sessionContribution {
	var c sessionContribution
	switch {
	case e.Type.IsMessageType():
		c.messages = 1
	case e.Type == events.StreamTurnEnd:
		c.turns = 1
		var u usagePayload
		if json.Unmarshal(e.Payload, &u) == nil {
			c.inputTokens = u.InputTokens
			c.outputTokens = u.OutputTokens
			c.cacheTokens = u.CacheTokens
			c.costUSD = u.CostUSD
			c.hasInputTokens = 1
		}
	}
	return c
}

// searchablePayload is the loose shape used to extract FTS content; fields
// absent from a given event type's payload are simply zero-valued.
type searchablePayload struct {
	Content  string          `json:"content"`
	Blocks   []content.Block `json:"blocks"` // message.*/tool_result payloads: a list of content blocks, not a bare string
	Text     string          `json:"text"`
	ToolName string          `json:"toolName"`

	// Memory-ledger fields (§4.1 "Searchable content extraction rules").
	Title   string   `json:"title"`
	Kind    string   `json:"kind"`
	Status  string   `json:"status"`
	Input   string   `json:"input"`
	Actions string   `json:"actions"`
	Lessons string   `json:"lessons"`
	Tags    []string `json:"tags"`
	Choice  string   `json:"choice"`
	Reason  string   `json:"reason"`
	Path    string   `json:"path"`
	Why     string   `json:"why"`
}

// extractSearchable derives the FTS row for an event, or ok=false when the
// event type carries nothing worth indexing.
func extractSearchable(e events.Event) (content, toolName string, ok bool) {
	var p searchablePayload
	if json.Unmarshal(e.Payload, &p) != nil {
		return "", "", false
	}

	if e.Type.IsMemoryType() {
		parts := []string{p.Title, p.Kind, p.Status, p.Input, p.Actions, p.Lessons,
			strings.Join(p.Tags, " "), p.Choice, p.Reason, p.Path, p.Why}
		return strings.TrimSpace(strings.Join(parts, " ")), "", true
	}

	switch {
	case p.Content != "":
		return p.Content, p.ToolName, true
	case len(p.Blocks) > 0:
		return blockText(p.Blocks), p.ToolName, true
	case p.Text != "":
		return p.Text, p.ToolName, true
	case p.ToolName != "":
		return "", p.ToolName, true
	default:
		return "", "", false
	}
}

// blockText concatenates the text of every text-typed block, in order,
// ignoring thinking/image/tool_use/tool_result blocks (§4.1).
func blockText(blocks []content.Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == content.BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

func unixToTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
