// Package subagent spawns a focused, depth-limited agent run as a child
// session of the session that requested it (§4.4's sub-agent spawn). A
// sub-agent cannot itself spawn further sub-agents: Options carries no
// SubAgent tool, so nothing recurses past depth 1.
package subagent

import (
	"context"
	"fmt"

	"github.com/xonecas/tronrun/internal/agent"
	"github.com/xonecas/tronrun/internal/content"
	"github.com/xonecas/tronrun/internal/events"
	"github.com/xonecas/tronrun/internal/eventstore"
)

const (
	// MaxIterations is the default max tool rounds for a sub-agent.
	MaxIterations = 5

	// MaxAllowedIterations is the upper bound for a caller-specified
	// iteration count.
	MaxAllowedIterations = 20
)

// Options configures one sub-agent run.
type Options struct {
	Store           *eventstore.Store
	Runner          *agent.Runner
	AgentOptions    agent.Options // Provider/Pipeline/BuildRequest; MaxTurns is overridden by Options.MaxIterations
	ParentSessionID string
	WorkspaceID     string
	ModelID         string
	WorkingDir      string
	Prompt          string
	MaxIterations   int
}

// Result reports a sub-agent run's outcome.
type Result struct {
	SessionID    string
	Content      string
	InputTokens  int64
	OutputTokens int64
}

// Run creates a child session spawned by ParentSessionID, drives a full
// agent run against it, and records the spawn/completion lifecycle as
// events on the parent session (§4.4, events.Type's subagent.* family).
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.AgentOptions.Provider == nil {
		return Result{}, fmt.Errorf("subagent: provider is required")
	}
	if opts.Prompt == "" {
		return Result{}, fmt.Errorf("subagent: prompt is required")
	}

	maxIter := MaxIterations
	if opts.MaxIterations > 0 {
		if opts.MaxIterations > MaxAllowedIterations {
			return Result{}, fmt.Errorf("subagent: max_iterations too large (max: %d)", MaxAllowedIterations)
		}
		maxIter = opts.MaxIterations
	}

	sub, err := opts.Store.CreateSubSession(opts.WorkspaceID, opts.ModelID, opts.WorkingDir, opts.ParentSessionID)
	if err != nil {
		return Result{}, fmt.Errorf("subagent: create session: %w", err)
	}

	if err := opts.appendParentEvent(events.SubagentSpawned, map[string]any{
		"subSessionId": sub.ID,
		"prompt":       opts.Prompt,
	}); err != nil {
		return Result{}, err
	}

	userEvent, err := events.NewEvent(sub.ID, opts.WorkspaceID, events.MessageUser, events.NewUserMessage(opts.Prompt))
	if err != nil {
		return Result{}, fmt.Errorf("subagent: build prompt event: %w", err)
	}
	if _, err := opts.Store.Append(sub.ID, userEvent); err != nil {
		return Result{}, fmt.Errorf("subagent: append prompt: %w", err)
	}

	runOpts := opts.AgentOptions
	runOpts.MaxTurns = maxIter

	outcome, err := opts.Runner.RunAgent(ctx, sub.ID, opts.WorkspaceID, runOpts)
	if err != nil {
		_ = opts.appendParentEvent(events.SubagentFailed, map[string]any{
			"subSessionId": sub.ID,
			"error":        err.Error(),
		})
		return Result{}, fmt.Errorf("subagent: run failed: %w", err)
	}

	resultText := blocksToText(outcome.FinalMessage)
	if resultText == "" {
		_ = opts.appendParentEvent(events.SubagentFailed, map[string]any{
			"subSessionId": sub.ID,
			"error":        "sub-agent produced no final response",
		})
		return Result{}, fmt.Errorf("subagent: produced no final response")
	}

	final, err := opts.Store.GetSession(sub.ID)
	if err != nil {
		return Result{}, fmt.Errorf("subagent: reload session: %w", err)
	}

	if err := opts.appendParentEvent(events.SubagentCompleted, map[string]any{
		"subSessionId": sub.ID,
		"turns":        outcome.Turns,
	}); err != nil {
		return Result{}, err
	}
	if err := opts.appendParentEvent(events.NotificationSubagentResult, map[string]any{
		"subSessionId": sub.ID,
		"content":      resultText,
	}); err != nil {
		return Result{}, err
	}

	return Result{
		SessionID:    sub.ID,
		Content:      resultText,
		InputTokens:  final.Counters.TotalInputTokens,
		OutputTokens: final.Counters.TotalOutputTokens,
	}, nil
}

func (opts Options) appendParentEvent(typ events.Type, payload any) error {
	ev, err := events.NewEvent(opts.ParentSessionID, opts.WorkspaceID, typ, payload)
	if err != nil {
		return fmt.Errorf("subagent: build %s event: %w", typ, err)
	}
	if _, err := opts.Store.Append(opts.ParentSessionID, ev); err != nil {
		return fmt.Errorf("subagent: append %s: %w", typ, err)
	}
	return nil
}

func blocksToText(msg events.Message) string {
	var text string
	for _, b := range msg.Blocks {
		if b.Type == content.BlockText {
			text += b.Text
		}
	}
	return text
}
