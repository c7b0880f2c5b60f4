// Package streamevent defines the unified stream-event vocabulary consumed
// by the turn runner from any provider adapter (§3.1, §4.7).
package streamevent

import (
	"encoding/json"

	"github.com/xonecas/tronrun/internal/content"
)

// Type discriminates the stream-event union. Closed set — adding a member
// is an explicit change at every switch (§9 "sum types over duck typing").
type Type string

const (
	Start           Type = "start"
	TextStart       Type = "text_start"
	TextDelta       Type = "text_delta"
	TextEnd         Type = "text_end"
	ThinkingStart   Type = "thinking_start"
	ThinkingDelta   Type = "thinking_delta"
	ThinkingEnd     Type = "thinking_end"
	ToolCallStart   Type = "tool_call_start"
	ToolCallDelta   Type = "tool_call_delta"
	ToolCallEnd     Type = "tool_call_end"
	Retry           Type = "retry"
	SafetyBlock     Type = "safety_block"
	Error           Type = "error"
	Done            Type = "done"
)

// StopReason is the canonical, adapter-normalized stop reason (§4.7).
type StopReason string

const (
	StopEndTurn                 StopReason = "end_turn"
	StopToolUse                 StopReason = "tool_use"
	StopMaxTokens                StopReason = "max_tokens"
	StopStopSequence            StopReason = "stop_sequence"
	StopRefusal                 StopReason = "refusal"
	StopContextWindowExceeded   StopReason = "model_context_window_exceeded"
	StopInterrupted              StopReason = "interrupted"
)

// ErrorInfo describes a retryable or terminal provider-level error.
type ErrorInfo struct {
	Category    string `json:"category"`
	Message     string `json:"message"`
	IsRetryable bool   `json:"isRetryable"`
}

// Usage is a normalized token-usage record. Vendor usage is authoritative
// when present; the token estimator is consulted only for planning (§9).
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	CacheReadTokens  int `json:"cacheReadTokens,omitempty"`
	CacheWriteTokens int `json:"cacheWriteTokens,omitempty"`
}

// FinalMessage is the assistant message a Done event carries, already
// assembled into content blocks by the adapter.
type FinalMessage struct {
	Blocks []content.Block `json:"blocks"`
}

// Event is a single frame of the unified stream-event vocabulary. Exactly
// the fields relevant to Type are populated.
type Event struct {
	Type Type `json:"type"`

	// TextDelta / ThinkingDelta
	Delta string `json:"delta,omitempty"`

	// ThinkingEnd
	Signature string `json:"signature,omitempty"`

	// ToolCallStart / Delta / End
	ToolCallID    string          `json:"toolCallId,omitempty"`
	ToolName      string          `json:"toolName,omitempty"`
	ArgsDelta     string          `json:"argsDelta,omitempty"`
	ToolCallFinal *ToolCall       `json:"toolCall,omitempty"`
	ToolInput     json.RawMessage `json:"toolInput,omitempty"`

	// Retry
	Attempt    int        `json:"attempt,omitempty"`
	MaxAttempt int        `json:"maxAttempt,omitempty"`
	DelayMs    int        `json:"delayMs,omitempty"`
	RetryError *ErrorInfo `json:"retryError,omitempty"`

	// SafetyBlock
	Categories []string `json:"categories,omitempty"`

	// Error
	Message string `json:"message,omitempty"`

	// Done
	Final      *FinalMessage `json:"final,omitempty"`
	StopReason StopReason    `json:"stopReason,omitempty"`
	Usage      *Usage        `json:"usage,omitempty"`
}

// ToolCall is a fully-constructed tool call, emitted verbatim by
// ToolCallEnd when the adapter parses it in one piece (§4.3 edge case).
type ToolCall struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Arguments        json.RawMessage `json:"arguments"`
	ThoughtSignature string          `json:"thoughtSignature,omitempty"`
}
