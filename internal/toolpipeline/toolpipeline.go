// Package toolpipeline runs one tool call through guardrails, PreToolUse
// hooks, the tool handler itself, and PostToolUse hooks, and schedules a
// batch of calls concurrently or sequentially (§4.5).
package toolpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/sync/errgroup"

	"github.com/xonecas/tronrun/internal/guardrails"
	"github.com/xonecas/tronrun/internal/hooks"
	"github.com/xonecas/tronrun/internal/runtimeerr"
)

// postToolUseHardTimeout bounds the fire-and-forget PostToolUse hook run
// regardless of the request's own context (§4.5 "hard 30s overall timeout").
const postToolUseHardTimeout = 30 * time.Second

// Handler executes one tool call and returns its result text (or an error
// result — tool failures are reported as IsError results, not Go errors).
type Handler func(ctx context.Context, arguments json.RawMessage) (text string, isError bool, err error)

// Call is one tool invocation the pipeline is asked to run.
type Call struct {
	ID         string
	ToolName   string
	Arguments  json.RawMessage
	SessionID  string
	Concurrent bool // safe to run alongside other concurrent calls in the batch
}

// Result is what a Call produced, in original-call order.
type Result struct {
	CallID  string
	Text    string
	IsError bool

	Duration           time.Duration
	BlockedByGuardrail bool
	BlockedByHook      bool
	StopsTurn          bool // propagated from the tool's structured result
	IsInteractive      bool // propagated from the tool's structured result
}

// Registry looks up a tool's Handler by name.
type Registry interface {
	Lookup(name string) (Handler, bool)
}

// SchemaRegistry is an optional capability a Registry can implement to
// expose each tool's compiled input schema. When present, RunOne validates
// a call's arguments before the handler ever sees them, rejecting with an
// IsError result rather than invoking the handler on malformed input.
type SchemaRegistry interface {
	Schema(name string) (*jsonschema.Schema, bool)
}

// Pipeline wires a Registry to the guardrail and hook engines.
type Pipeline struct {
	registry   Registry
	guardrails *guardrails.Engine
	hooks      *hooks.Engine
}

// New returns a Pipeline.
func New(registry Registry, ge *guardrails.Engine, he *hooks.Engine) *Pipeline {
	return &Pipeline{registry: registry, guardrails: ge, hooks: he}
}

// RunOne runs the full Lookup -> Guardrails -> PreToolUse -> Execute ->
// PostToolUse pipeline for a single call.
func (p *Pipeline) RunOne(ctx context.Context, c Call) Result {
	start := time.Now()

	handler, ok := p.registry.Lookup(c.ToolName)
	if !ok {
		return Result{CallID: c.ID, IsError: true, Text: fmt.Sprintf("tool not found: %s", c.ToolName), Duration: time.Since(start)}
	}

	var args map[string]any
	_ = json.Unmarshal(c.Arguments, &args)
	if args == nil {
		args = map[string]any{}
	}

	if sr, ok := p.registry.(SchemaRegistry); ok {
		if schema, ok := sr.Schema(c.ToolName); ok {
			if err := schema.Validate(args); err != nil {
				return Result{CallID: c.ID, IsError: true, Text: fmt.Sprintf("invalid arguments for %s: %v", c.ToolName, err), Duration: time.Since(start)}
			}
		}
	}

	if p.guardrails != nil {
		verdict := p.guardrails.Check(guardrails.EvalContext{
			ToolName: c.ToolName, ToolArguments: args, SessionID: c.SessionID, ToolCallID: c.ID,
		})
		if verdict.Blocked {
			return Result{
				CallID: c.ID, IsError: true, Text: fmt.Sprintf("blocked by %s: %s", verdict.Rule, verdict.Reason),
				Duration: time.Since(start), BlockedByGuardrail: true,
			}
		}
	}

	effectiveArgs := c.Arguments
	if p.hooks != nil {
		preResult := p.hooks.Run(ctx, hooks.Context{
			HookType:      hooks.PreToolUse,
			SessionID:     c.SessionID,
			Timestamp:     time.Now().Unix(),
			ToolName:      c.ToolName,
			ToolArguments: c.Arguments,
			ToolCallID:    c.ID,
		})
		switch preResult.Action {
		case hooks.ActionBlock:
			return Result{
				CallID: c.ID, IsError: true, Text: fmt.Sprintf("blocked by hook: %s", preResult.Reason),
				Duration: time.Since(start), BlockedByHook: true,
			}
		case hooks.ActionModify:
			if len(preResult.Modifications) > 0 {
				var mods map[string]any
				if json.Unmarshal(preResult.Modifications, &mods) != nil || mods == nil {
					effectiveArgs = preResult.Modifications
					break
				}
				merged := make(map[string]any, len(args)+len(mods))
				for k, v := range args {
					merged[k] = v
				}
				for k, v := range mods {
					merged[k] = v
				}
				if raw, err := json.Marshal(merged); err == nil {
					effectiveArgs = raw
				}
			}
		}
	}

	// Stage 4: the cancellation check is deliberately ahead of the handler
	// call, not inside it, so a call that lost the race before Execute never
	// reaches tool code at all.
	if ctx.Err() != nil {
		return Result{CallID: c.ID, IsError: true, Text: "Operation cancelled", Duration: time.Since(start)}
	}

	execStart := time.Now()
	text, isError, err := handler(ctx, effectiveArgs)
	duration := time.Since(execStart)
	if err != nil {
		rerr := runtimeerr.Wrap(runtimeerr.KindTool, err, c.ToolName)
		text, isError = rerr.Error(), true
	}
	result := Result{CallID: c.ID, Text: text, IsError: isError, Duration: time.Since(start)}

	if p.hooks != nil {
		resultJSON, _ := json.Marshal(map[string]any{"text": text, "isError": isError})
		hc := hooks.Context{
			HookType:      hooks.PostToolUse,
			SessionID:     c.SessionID,
			Timestamp:     time.Now().Unix(),
			ToolName:      c.ToolName,
			ToolArguments: effectiveArgs,
			ToolCallID:    c.ID,
			Result:        resultJSON,
			DurationMs:    duration.Milliseconds(),
		}
		go func() {
			cctx, cancel := context.WithTimeout(context.Background(), postToolUseHardTimeout)
			defer cancel()
			p.hooks.Run(cctx, hc)
		}()
	}

	return result
}

// RunBatch runs every call in calls, preserving original order in the
// returned slice. Calls marked Concurrent run together via errgroup;
// sequential calls run one at a time, in the order they appear. A batch
// may interleave: all concurrent calls are launched together, then
// sequential calls run in order, dispatching concurrent-safe tools together
// and running sequential tools one at a time.
func (p *Pipeline) RunBatch(ctx context.Context, calls []Call) ([]Result, error) {
	results := make([]Result, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range calls {
		if !c.Concurrent {
			continue
		}
		i, c := i, c
		g.Go(func() error {
			results[i] = p.RunOne(gctx, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, c := range calls {
		if c.Concurrent {
			continue
		}
		results[i] = p.RunOne(ctx, c)
	}

	return results, nil
}
