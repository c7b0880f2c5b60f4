// Package content defines the closed set of message content block types
// shared by user, assistant, and tool-result messages.
package content

import (
	"encoding/json"
	"fmt"
)

// BlockType discriminates the content block union.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockDocument   BlockType = "document"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Block is a single content block. Exactly one of the typed fields is
// populated, selected by Type — a closed sum type represented as a tagged
// struct rather than an interface, so JSON round-trips without a custom
// registry.
type Block struct {
	Type BlockType `json:"type"`

	// Text, Thinking
	Text string `json:"text,omitempty"`

	// Thinking signature (provider-opaque). Present only when the thinking
	// block is safe to resend to the provider (see turn runner §4.3).
	Signature string `json:"signature,omitempty"`

	// Image / Document
	MediaType string `json:"mediaType,omitempty"`
	Data      string `json:"data,omitempty"` // base64, mutually exclusive with URL
	URL       string `json:"url,omitempty"`

	// ToolUse
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	ToolInput  json.RawMessage `json:"toolInput,omitempty"`

	// ToolResult
	IsError bool `json:"isError,omitempty"`
}

// NewText returns a text block.
func NewText(text string) Block { return Block{Type: BlockText, Text: text} }

// NewThinking returns a thinking block. Signature may be empty for
// display-only thinking (see turn runner §4.3 edge cases).
func NewThinking(text, signature string) Block {
	return Block{Type: BlockThinking, Text: text, Signature: signature}
}

// NewImageBase64 returns a base64-encoded image block.
func NewImageBase64(mediaType, data string) Block {
	return Block{Type: BlockImage, MediaType: mediaType, Data: data}
}

// NewImageURL returns a url-referenced image block.
func NewImageURL(url string) Block { return Block{Type: BlockImage, URL: url} }

// NewToolUse returns a tool-use block.
func NewToolUse(toolCallID, toolName string, input json.RawMessage) Block {
	return Block{Type: BlockToolUse, ToolCallID: toolCallID, ToolName: toolName, ToolInput: input}
}

// NewToolResultText returns a text tool-result block tied to a tool call.
func NewToolResultText(toolCallID, text string, isError bool) Block {
	return Block{Type: BlockToolResult, ToolCallID: toolCallID, Text: text, IsError: isError}
}

// Validate reports whether the block is internally consistent for its Type.
func (b Block) Validate() error {
	switch b.Type {
	case BlockText, BlockThinking:
		return nil
	case BlockImage, BlockDocument:
		if b.Data == "" && b.URL == "" {
			return fmt.Errorf("content: %s block has neither data nor url", b.Type)
		}
		return nil
	case BlockToolUse:
		if b.ToolCallID == "" || b.ToolName == "" {
			return fmt.Errorf("content: tool_use block missing id or name")
		}
		return nil
	case BlockToolResult:
		if b.ToolCallID == "" {
			return fmt.Errorf("content: tool_result block missing tool call id")
		}
		return nil
	default:
		return fmt.Errorf("content: unknown block type %q", b.Type)
	}
}
