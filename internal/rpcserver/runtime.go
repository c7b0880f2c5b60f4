package rpcserver

import (
	"strings"

	"github.com/xonecas/tronrun/internal/agent"
	"github.com/xonecas/tronrun/internal/ctxassembler"
	"github.com/xonecas/tronrun/internal/events"
	"github.com/xonecas/tronrun/internal/eventbus"
	"github.com/xonecas/tronrun/internal/eventstore"
	"github.com/xonecas/tronrun/internal/guardrails"
	"github.com/xonecas/tronrun/internal/hooks"
	"github.com/xonecas/tronrun/internal/mcptools"
	"github.com/xonecas/tronrun/internal/promptlib"
	"github.com/xonecas/tronrun/internal/provider"
	"github.com/xonecas/tronrun/internal/shell"
	"github.com/xonecas/tronrun/internal/toolpipeline"
)

// Runtime bundles the dependencies method handlers need. It is safe to
// share across connections: every field is itself already safe for
// concurrent use.
type Runtime struct {
	Store      *eventstore.Store
	Hub        *eventbus.Hub
	Providers  *provider.Registry
	Agent      *agent.Runner
	Guardrails *guardrails.Engine
	Hooks      *hooks.Engine

	tracker *runTracker
}

// NewRuntime returns a Runtime ready to back a Registry built with
// RegisterMethods.
func NewRuntime(store *eventstore.Store, hub *eventbus.Hub, providers *provider.Registry, runner *agent.Runner, ge *guardrails.Engine, he *hooks.Engine) *Runtime {
	return &Runtime{
		Store:      store,
		Hub:        hub,
		Providers:  providers,
		Agent:      runner,
		Guardrails: ge,
		Hooks:      he,
		tracker:    newRunTracker(),
	}
}

// splitModelID separates a session's stored "provider:model" identifier
// into the registered provider factory name and the model name that
// factory should create, e.g. "anthropic:claude-opus-4" ->
// ("anthropic", "claude-opus-4").
func splitModelID(modelID string) (providerName, model string) {
	providerName, model, ok := strings.Cut(modelID, ":")
	if !ok {
		return modelID, ""
	}
	return providerName, model
}

// sessionTools is one session's worth of tool-dispatch state: its own
// shell (so cwd/env persist across calls), scratchpad, tool registry, and
// the two pipelines built over that registry — toolPipeline for the
// session's own agent run, subPipeline (no SubAgent entry) for any
// sub-agent it spawns.
type sessionTools struct {
	registry     *mcptools.Registry
	subRegistry  *mcptools.Registry
	toolPipeline *toolpipeline.Pipeline
	subPipeline  *toolpipeline.Pipeline
}

// buildSessionTools wires a fresh Shell/Scratchpad/Registry for one
// agent.prompt call, scoped to workingDir (§4.5). The SubAgent tool is
// registered against toolPipeline only, using subPipeline (built from
// subRegistry, which has no SubAgent entry of its own) as the child run's
// tool set.
func (rt *Runtime) buildSessionTools(workingDir string) *sessionTools {
	sh := shell.New(workingDir, shell.DefaultBlockFuncs())
	pad := &mcptools.Scratchpad{}

	subRegistry := mcptools.NewRegistry(sh, pad)
	subPipeline := toolpipeline.New(subRegistry, rt.Guardrails, rt.Hooks)

	registry := mcptools.NewRegistry(sh, pad)
	pipeline := toolpipeline.New(registry, rt.Guardrails, rt.Hooks)

	return &sessionTools{registry: registry, subRegistry: subRegistry, toolPipeline: pipeline, subPipeline: subPipeline}
}

// buildRequest returns the RequestBuilder for one agent.prompt call: the
// model-family base prompt plus any AGENTS.md instructions found under
// workingDir, and the session's own tool definitions (§4.6).
func (rt *Runtime) buildRequest(modelID, workingDir string, tools []ctxassembler.ToolDef) agent.RequestBuilder {
	basePrompt := promptlib.SelectPrompt(modelID)
	agentInstructions := promptlib.LoadAgentInstructions(workingDir)

	return func(messages []events.Message) ctxassembler.Request {
		return ctxassembler.Compose(basePrompt, agentInstructions, nil, nil, messages, tools)
	}
}
