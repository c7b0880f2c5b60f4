package events

import "github.com/xonecas/tronrun/internal/content"

// Role discriminates the three message roles a provider request is built
// from (§3.1 "Message").
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// Message is a logical conversation element reconstructed from events for
// provider requests (§4.2).
type Message struct {
	Role   Role            `json:"role"`
	Blocks []content.Block `json:"blocks"`

	// ToolCallID ties a RoleToolResult message to the tool call it answers.
	ToolCallID string `json:"toolCallId,omitempty"`
	IsError    bool   `json:"isError,omitempty"`
}

// NewUserMessage returns a plain-text user message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Blocks: []content.Block{content.NewText(text)}}
}

// NewAssistantMessage returns an assistant message from already-assembled
// content blocks.
func NewAssistantMessage(blocks []content.Block) Message {
	return Message{Role: RoleAssistant, Blocks: blocks}
}

// NewToolResultMessage returns a tool-result message tied to toolCallID.
func NewToolResultMessage(toolCallID, text string, isError bool) Message {
	return Message{
		Role:       RoleToolResult,
		ToolCallID: toolCallID,
		IsError:    isError,
		Blocks:     []content.Block{content.NewText(text)},
	}
}
