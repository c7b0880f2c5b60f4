// Package hooks implements the lifecycle hook system: registration,
// priority-ordered execution, and the forced-blocking subset that must run
// before its triggering action proceeds (§4.9).
package hooks

import "encoding/json"

// Type is the closed set of lifecycle points a hook can attach to.
type Type string

const (
	PreToolUse       Type = "PreToolUse"
	PostToolUse      Type = "PostToolUse"
	Stop             Type = "Stop"
	SubagentStop     Type = "SubagentStop"
	SessionStart     Type = "SessionStart"
	SessionEnd       Type = "SessionEnd"
	UserPromptSubmit Type = "UserPromptSubmit"
	PreCompact       Type = "PreCompact"
	Notification     Type = "Notification"
)

// All lists every hook type.
var All = []Type{
	PreToolUse, PostToolUse, Stop, SubagentStop, SessionStart, SessionEnd,
	UserPromptSubmit, PreCompact, Notification,
}

// IsForcedBlocking reports whether hooks of this type always run
// synchronously before the triggering action proceeds, regardless of the
// hook's own declared ExecutionMode.
func (t Type) IsForcedBlocking() bool {
	switch t {
	case PreToolUse, UserPromptSubmit, PreCompact:
		return true
	default:
		return false
	}
}

// Action is a hook's verdict.
type Action string

const (
	ActionContinue Action = "continue"
	ActionBlock    Action = "block"
	ActionModify   Action = "modify"
)

// ExecutionMode controls whether a hook blocks its triggering action or
// runs fire-and-forget in the background.
type ExecutionMode string

const (
	ModeBlocking   ExecutionMode = "blocking"
	ModeBackground ExecutionMode = "background"
)

// Result is the outcome of running one hook.
type Result struct {
	Action        Action          `json:"action"`
	Reason        string          `json:"reason,omitempty"`
	Message       string          `json:"message,omitempty"`
	Modifications json.RawMessage `json:"modifications,omitempty"`
}

// ContinueResult is the default, non-blocking result.
func ContinueResult() Result { return Result{Action: ActionContinue} }

// BlockResult stops the triggering action, recording reason.
func BlockResult(reason string) Result { return Result{Action: ActionBlock, Reason: reason} }

// ModifyResult merges modifications into the triggering action's input,
// with the modification's keys winning on collision.
func ModifyResult(modifications json.RawMessage) Result {
	return Result{Action: ActionModify, Modifications: modifications}
}

// ModifyResultWithMessage is ModifyResult plus an informational message.
func ModifyResultWithMessage(modifications json.RawMessage, message string) Result {
	return Result{Action: ActionModify, Modifications: modifications, Message: message}
}

// IsBlocked reports whether this result stops the triggering action.
func (r Result) IsBlocked() bool { return r.Action == ActionBlock }

// Source identifies where a hook definition came from.
type Source string

const (
	SourceProject Source = "project"
	SourceUser    Source = "user"
	SourceCustom  Source = "custom"
)

// Info describes a registered hook, independent of any one invocation.
type Info struct {
	Name          string        `json:"name"`
	HookType      Type          `json:"hookType"`
	Priority      int           `json:"priority"`
	ExecutionMode ExecutionMode `json:"executionMode"`
	Description   string        `json:"description,omitempty"`
	TimeoutMs     int           `json:"timeoutMs,omitempty"`
	Source        Source        `json:"source,omitempty"`
}

// Context is the per-invocation payload passed to a hook handler. Exactly
// the fields relevant to HookType are populated, mirroring the tagged-union
// style used by streamevent.Event and events.Event (§9 "sum types over
// duck typing").
type Context struct {
	HookType  Type   `json:"hookType"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`

	// PreToolUse / PostToolUse
	ToolName      string          `json:"toolName,omitempty"`
	ToolArguments json.RawMessage `json:"toolArguments,omitempty"`
	ToolCallID    string          `json:"toolCallId,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	DurationMs    int64           `json:"durationMs,omitempty"`

	// Stop / SubagentStop
	SubagentID string `json:"subagentId,omitempty"`
	StopReason string `json:"stopReason,omitempty"`
	FinalMessage string `json:"finalMessage,omitempty"`

	// SessionStart
	WorkingDirectory  string `json:"workingDirectory,omitempty"`
	ParentHandoffID   string `json:"parentHandoffId,omitempty"`

	// SessionEnd
	MessageCount int `json:"messageCount,omitempty"`
	ToolCallCount int `json:"toolCallCount,omitempty"`

	// UserPromptSubmit
	Prompt string `json:"prompt,omitempty"`

	// PreCompact
	CurrentTokens int `json:"currentTokens,omitempty"`
	TargetTokens  int `json:"targetTokens,omitempty"`

	// Notification
	Level string `json:"level,omitempty"`
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}
