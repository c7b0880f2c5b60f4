package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/xonecas/tronrun/internal/agent"
	"github.com/xonecas/tronrun/internal/ctxassembler"
	"github.com/xonecas/tronrun/internal/eventstore"
	"github.com/xonecas/tronrun/internal/provider"
	"github.com/xonecas/tronrun/internal/shell"
	"github.com/xonecas/tronrun/internal/subagent"
	"github.com/xonecas/tronrun/internal/toolpipeline"
)

// Registry collects a session's tool definitions and handlers into the shape
// toolpipeline.Pipeline dispatches against. It also compiles each tool's
// InputSchema once at registration time and implements
// toolpipeline.SchemaRegistry, so the pipeline can reject malformed
// arguments before a handler ever runs.
type Registry struct {
	defs     []ctxassembler.ToolDef
	handlers map[string]toolpipeline.Handler
	schemas  map[string]*jsonschema.Schema
	compiler *jsonschema.Compiler
}

// NewRegistry builds the standard tool set for one session: Shell and
// TodoWrite. SubAgent is not included; RegisterSubAgent adds it. sh drives Shell commands
// inside the session's working directory; pad receives TodoWrite updates.
func NewRegistry(sh *shell.Shell, pad *Scratchpad) *Registry {
	reg := &Registry{
		handlers: make(map[string]toolpipeline.Handler),
		schemas:  make(map[string]*jsonschema.Schema),
		compiler: jsonschema.NewCompiler(),
	}

	shellHandler := NewShellHandler(sh)
	reg.add(ShellDef(), func(ctx context.Context, args json.RawMessage) (string, bool, error) {
		return shellHandler.Handle(ctx, args)
	})

	todoHandler := MakeTodoWriteHandler(pad)
	reg.add(TodoWriteDef(), func(ctx context.Context, args json.RawMessage) (string, bool, error) {
		return todoHandler(ctx, args)
	})

	return reg
}

func (r *Registry) add(def ctxassembler.ToolDef, h toolpipeline.Handler) {
	r.defs = append(r.defs, def)
	r.handlers[def.Name] = h

	schema, err := compileSchema(r.compiler, def.Name, def.InputSchema)
	if err != nil {
		log.Warn().Err(err).Str("tool", def.Name).Msg("mcptools: schema did not compile, skipping argument validation")
		return
	}
	r.schemas[def.Name] = schema
}

// compileSchema compiles one tool's raw JSON Schema document under a
// resource name unique to that tool, so unrelated tools' schemas in the
// same compiler never collide.
func compileSchema(c *jsonschema.Compiler, name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	resource := name + ".json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(resource)
}

// Schema implements toolpipeline.SchemaRegistry.
func (r *Registry) Schema(name string) (*jsonschema.Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// RegisterSubAgent wires the SubAgent tool, which spawns a child session via
// subagent.Run (§4.4). store/runner back the child session; parentSessionID
// and workspaceID/workingDir/modelID describe the session the call came
// from. subPipeline must be built from a registry with no SubAgent entry of
// its own, so a sub-agent's tool set really does exclude SubAgent rather
// than relying on depth bookkeeping to stop recursion.
func (r *Registry) RegisterSubAgent(store *eventstore.Store, runner *agent.Runner, prov provider.Provider, subPipeline *toolpipeline.Pipeline, subBuildRequest agent.RequestBuilder, parentSessionID, workspaceID, workingDir, modelID string) {
	r.add(subAgentDef(), func(ctx context.Context, args json.RawMessage) (string, bool, error) {
		var a subAgentArgs
		if err := json.Unmarshal(args, &a); err != nil {
			text, isErr := toolError("Invalid arguments: %v", err)
			return text, isErr, nil
		}
		if a.Prompt == "" {
			text, isErr := toolError("prompt is required")
			return text, isErr, nil
		}
		if a.MaxIterations > subagent.MaxAllowedIterations {
			text, isErr := toolError("max_iterations too large (max: %d)", subagent.MaxAllowedIterations)
			return text, isErr, nil
		}

		result, err := subagent.Run(ctx, subagent.Options{
			Store:  store,
			Runner: runner,
			AgentOptions: agent.Options{
				Provider:     prov,
				Pipeline:     subPipeline,
				BuildRequest: subBuildRequest,
			},
			ParentSessionID: parentSessionID,
			WorkspaceID:     workspaceID,
			ModelID:         modelID,
			WorkingDir:      workingDir,
			Prompt:          a.Prompt,
			MaxIterations:   a.MaxIterations,
		})
		if err != nil {
			text, isErr := toolError("Sub-agent failed: %v", err)
			return text, isErr, nil
		}

		return fmt.Sprintf("Sub-agent completed.\n\n%s\n\n---\nToken usage: %d in, %d out",
			result.Content, result.InputTokens, result.OutputTokens), false, nil
	})
}

type subAgentArgs struct {
	Prompt        string `json:"prompt"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

func subAgentDef() ctxassembler.ToolDef {
	return ctxassembler.ToolDef{
		Name:        "SubAgent",
		Description: `Spawn a sub-agent to handle a focused task. The sub-agent runs with the same tools but cannot spawn further sub-agents. Use this to decompose complex tasks into smaller, manageable pieces. The sub-agent's work is returned as a summary.`,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"prompt":         {"type": "string", "description": "Task description for the sub-agent. Be specific about what needs to be accomplished and the expected output format."},
				"max_iterations": {"type": "integer", "description": "Maximum tool rounds for the sub-agent (default: 5)"}
			},
			"required": ["prompt"]
		}`),
	}
}

// Defs returns every registered tool's definition, for ctxassembler.Compose.
func (r *Registry) Defs() []ctxassembler.ToolDef {
	return r.defs
}

// Lookup implements toolpipeline.Registry.
func (r *Registry) Lookup(name string) (toolpipeline.Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}
