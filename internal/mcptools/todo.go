package mcptools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/xonecas/tronrun/internal/ctxassembler"
)

// Scratchpad holds the agent's current plan/notes. It is safe for concurrent
// access. The content is injected into the LLM context at the tail of the
// history so the agent's goals stay in the model's recent attention window.
type Scratchpad struct {
	mu      sync.RWMutex
	content string
}

// Content returns the current scratchpad text, satisfying agent.Scratchpad.
func (s *Scratchpad) Content() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content
}

// TodoWriteArgs represents arguments for the TodoWrite tool.
type TodoWriteArgs struct {
	Content string `json:"content"`
}

// TodoWriteDef is the TodoWrite tool definition.
func TodoWriteDef() ctxassembler.ToolDef {
	return ctxassembler.ToolDef{
		Name:        "TodoWrite",
		Description: `Write or update your working plan/scratchpad. The content replaces any previous plan and is kept visible at the end of your context window. Use this to track goals, progress, and next steps for tasks with 3+ steps. Rewrite it as you complete steps to stay focused. Skip for simple single-step tasks.`,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"content": {"type": "string", "description": "Your current plan, todo list, or working notes. This replaces the previous content entirely."}
			},
			"required": ["content"]
		}`),
	}
}

// MakeTodoWriteHandler returns a handler that stores content in pad.
func MakeTodoWriteHandler(pad *Scratchpad) func(context.Context, json.RawMessage) (string, bool, error) {
	return func(_ context.Context, arguments json.RawMessage) (string, bool, error) {
		var args TodoWriteArgs
		if err := json.Unmarshal(arguments, &args); err != nil {
			text, isErr := toolError("Invalid arguments: %v", err)
			return text, isErr, nil
		}
		if args.Content == "" {
			text, isErr := toolError("Content cannot be empty")
			return text, isErr, nil
		}

		pad.mu.Lock()
		pad.content = args.Content
		pad.mu.Unlock()

		return "Plan updated.", false, nil
	}
}
