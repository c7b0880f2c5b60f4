// Package events defines the closed set of persisted session event types
// (§3.1) and the Event/Session/Workspace entities (§3.1, §3.3).
package events

// Type is one of the ~60 closed persisted event type discriminators. Every
// variant serializes to the exact dot-separated wire string used throughout
// storage, search, and the event bridge.
type Type string

const (
	// Session lifecycle
	SessionStart Type = "session.start"
	SessionEnd   Type = "session.end"
	SessionFork  Type = "session.fork"

	// Messages
	MessageUser      Type = "message.user"
	MessageAssistant Type = "message.assistant"
	MessageSystem    Type = "message.system"
	MessageDeleted   Type = "message.deleted"

	// Tools
	ToolCall   Type = "tool.call"
	ToolResult Type = "tool.result"

	// Streaming
	StreamTextDelta     Type = "stream.text_delta"
	StreamThinkingDelta Type = "stream.thinking_delta"
	StreamTurnStart     Type = "stream.turn_start"
	StreamTurnEnd       Type = "stream.turn_end"

	// Config
	ConfigModelSwitch    Type = "config.model_switch"
	ConfigPromptUpdate   Type = "config.prompt_update"
	ConfigReasoningLevel Type = "config.reasoning_level"

	// Notifications
	NotificationInterrupted    Type = "notification.interrupted"
	NotificationSubagentResult Type = "notification.subagent_result"

	// Compaction
	CompactBoundary Type = "compact.boundary"
	CompactSummary  Type = "compact.summary"

	// Context
	ContextCleared Type = "context.cleared"

	// Skills
	SkillAdded   Type = "skill.added"
	SkillRemoved Type = "skill.removed"

	// Rules
	RulesLoaded  Type = "rules.loaded"
	RulesIndexed Type = "rules.indexed"

	// Metadata
	MetadataUpdate Type = "metadata.update"
	MetadataTag    Type = "metadata.tag"

	// Files
	FileRead  Type = "file.read"
	FileWrite Type = "file.write"
	FileEdit  Type = "file.edit"

	// Worktree
	WorktreeAcquired Type = "worktree.acquired"
	WorktreeCommit   Type = "worktree.commit"
	WorktreeReleased Type = "worktree.released"
	WorktreeMerged   Type = "worktree.merged"

	// Errors
	ErrorAgent    Type = "error.agent"
	ErrorTool     Type = "error.tool"
	ErrorProvider Type = "error.provider"

	// Subagents
	SubagentSpawned         Type = "subagent.spawned"
	SubagentStatusUpdate    Type = "subagent.status_update"
	SubagentCompleted       Type = "subagent.completed"
	SubagentFailed          Type = "subagent.failed"
	SubagentResultsConsumed Type = "subagent.results_consumed"

	// Todo
	TodoWrite Type = "todo.write"

	// Tasks
	TaskCreated Type = "task.created"
	TaskUpdated Type = "task.updated"
	TaskDeleted Type = "task.deleted"

	// Projects
	ProjectCreated Type = "project.created"
	ProjectUpdated Type = "project.updated"
	ProjectDeleted Type = "project.deleted"

	// Areas
	AreaCreated Type = "area.created"
	AreaUpdated Type = "area.updated"
	AreaDeleted Type = "area.deleted"

	// Turn
	TurnFailed Type = "turn.failed"

	// Hooks
	HookTriggered           Type = "hook.triggered"
	HookCompleted           Type = "hook.completed"
	HookBackgroundStarted   Type = "hook.background_started"
	HookBackgroundCompleted Type = "hook.background_completed"

	// Memory
	MemoryLedger Type = "memory.ledger"
	MemoryLoaded Type = "memory.loaded"
)

// All lists every event type in definition order. Useful for tests and
// manifest generation; keep in step with the const block above.
var All = []Type{
	SessionStart, SessionEnd, SessionFork,
	MessageUser, MessageAssistant, MessageSystem, MessageDeleted,
	ToolCall, ToolResult,
	StreamTextDelta, StreamThinkingDelta, StreamTurnStart, StreamTurnEnd,
	ConfigModelSwitch, ConfigPromptUpdate, ConfigReasoningLevel,
	NotificationInterrupted, NotificationSubagentResult,
	CompactBoundary, CompactSummary,
	ContextCleared,
	SkillAdded, SkillRemoved,
	RulesLoaded, RulesIndexed,
	MetadataUpdate, MetadataTag,
	FileRead, FileWrite, FileEdit,
	WorktreeAcquired, WorktreeCommit, WorktreeReleased, WorktreeMerged,
	ErrorAgent, ErrorTool, ErrorProvider,
	SubagentSpawned, SubagentStatusUpdate, SubagentCompleted, SubagentFailed, SubagentResultsConsumed,
	TodoWrite,
	TaskCreated, TaskUpdated, TaskDeleted,
	ProjectCreated, ProjectUpdated, ProjectDeleted,
	AreaCreated, AreaUpdated, AreaDeleted,
	TurnFailed,
	HookTriggered, HookCompleted, HookBackgroundStarted, HookBackgroundCompleted,
	MemoryLedger, MemoryLoaded,
}

// IsMessageType reports whether t is one of the message.* domain types.
func (t Type) IsMessageType() bool {
	switch t {
	case MessageUser, MessageAssistant, MessageSystem, MessageDeleted:
		return true
	default:
		return false
	}
}

// IsStreamingType reports whether t is one of the stream.* domain types.
func (t Type) IsStreamingType() bool {
	switch t {
	case StreamTextDelta, StreamThinkingDelta, StreamTurnStart, StreamTurnEnd:
		return true
	default:
		return false
	}
}

// IsErrorType reports whether t is one of the error.* domain types.
func (t Type) IsErrorType() bool {
	switch t {
	case ErrorAgent, ErrorTool, ErrorProvider:
		return true
	default:
		return false
	}
}

// IsConfigType reports whether t is one of the config.* domain types.
func (t Type) IsConfigType() bool {
	switch t {
	case ConfigModelSwitch, ConfigPromptUpdate, ConfigReasoningLevel:
		return true
	default:
		return false
	}
}

// IsWorktreeType reports whether t is one of the worktree.* domain types.
func (t Type) IsWorktreeType() bool {
	switch t {
	case WorktreeAcquired, WorktreeCommit, WorktreeReleased, WorktreeMerged:
		return true
	default:
		return false
	}
}

// IsSubagentType reports whether t is one of the subagent.* domain types.
func (t Type) IsSubagentType() bool {
	switch t {
	case SubagentSpawned, SubagentStatusUpdate, SubagentCompleted, SubagentFailed, SubagentResultsConsumed:
		return true
	default:
		return false
	}
}

// IsHookType reports whether t is one of the hook.* domain types.
func (t Type) IsHookType() bool {
	switch t {
	case HookTriggered, HookCompleted, HookBackgroundStarted, HookBackgroundCompleted:
		return true
	default:
		return false
	}
}

// IsSkillType reports whether t is one of the skill.* domain types.
func (t Type) IsSkillType() bool {
	switch t {
	case SkillAdded, SkillRemoved:
		return true
	default:
		return false
	}
}

// IsRulesType reports whether t is one of the rules.* domain types.
func (t Type) IsRulesType() bool {
	switch t {
	case RulesLoaded, RulesIndexed:
		return true
	default:
		return false
	}
}

// IsMemoryType reports whether t is one of the memory.* domain types.
func (t Type) IsMemoryType() bool {
	switch t {
	case MemoryLedger, MemoryLoaded:
		return true
	default:
		return false
	}
}

// IsTaskCRUDType reports whether t is one of the task/project/area CRUD
// domain types.
func (t Type) IsTaskCRUDType() bool {
	switch t {
	case TaskCreated, TaskUpdated, TaskDeleted,
		ProjectCreated, ProjectUpdated, ProjectDeleted,
		AreaCreated, AreaUpdated, AreaDeleted:
		return true
	default:
		return false
	}
}

// IsSessionType reports whether t is one of the session.* domain types.
func (t Type) IsSessionType() bool {
	switch t {
	case SessionStart, SessionEnd, SessionFork:
		return true
	default:
		return false
	}
}

// IsFileType reports whether t is one of the file.* domain types.
func (t Type) IsFileType() bool {
	switch t {
	case FileRead, FileWrite, FileEdit:
		return true
	default:
		return false
	}
}

// Domain returns the dot-prefix domain a type belongs to (e.g. "session",
// "message", "tool"). Used by search indexing and observability.
func (t Type) Domain() string {
	for i := 0; i < len(t); i++ {
		if t[i] == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}
