// Package ctxassembler composes the stable/volatile request context a
// provider adapter turns into a wire request (§4.6).
package ctxassembler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xonecas/tronrun/internal/events"
)

// PartKind discriminates a composed context part.
type PartKind string

const (
	PartStable   PartKind = "stable"
	PartVolatile PartKind = "volatile"
)

// TTL durations applied at cache breakpoints (§4.6).
const (
	StableTTL          = time.Hour
	VolatileTTL         = 5 * time.Minute
	LastToolTTL         = time.Hour
)

// Part is one labeled slice of composed system/context content.
type Part struct {
	Kind PartKind
	Name string
	Text string
}

// Request is the fully composed input to a provider adapter.
type Request struct {
	Stable   []Part
	Volatile []Part
	Messages []events.Message
	Tools    []ToolDef
}

// ToolDef is a tool definition slice of the request, carried separately
// from stable/volatile parts because its own cache breakpoint (last tool,
// 1h TTL) is independent of the text parts' breakpoints.
type ToolDef struct {
	Name        string
	Description string
	InputSchema []byte
}

// Breakpoint marks where a provider adapter should insert a cache_control
// marker and with what TTL.
type Breakpoint struct {
	PartIndex int
	TTL       time.Duration
}

// StableBreakpoint returns the breakpoint for the last stable part, if any.
func (r Request) StableBreakpoint() (Breakpoint, bool) {
	if len(r.Stable) == 0 {
		return Breakpoint{}, false
	}
	return Breakpoint{PartIndex: len(r.Stable) - 1, TTL: StableTTL}, true
}

// VolatileBreakpoint returns the breakpoint for the last volatile part, if any.
func (r Request) VolatileBreakpoint() (Breakpoint, bool) {
	if len(r.Volatile) == 0 {
		return Breakpoint{}, false
	}
	return Breakpoint{PartIndex: len(r.Volatile) - 1, TTL: VolatileTTL}, true
}

// LastToolBreakpoint returns the breakpoint for the last tool definition, if any.
func (r Request) LastToolBreakpoint() (Breakpoint, bool) {
	if len(r.Tools) == 0 {
		return Breakpoint{}, false
	}
	return Breakpoint{PartIndex: len(r.Tools) - 1, TTL: LastToolTTL}, true
}

// Assembler composes requests for one workspace's agent instructions and
// rules, independent of any single session.
type Assembler struct {
	baseSystemPrompt string
}

// New returns an Assembler using basePrompt as the model-agnostic base
// system prompt (per-vendor prompt-file selection is a UI/content concern
// out of this runtime's scope; callers needing per-model prompts select
// basePrompt themselves before calling New).
func New(basePrompt string) *Assembler {
	return &Assembler{baseSystemPrompt: basePrompt}
}

// RulesProvider supplies the rules text a session has loaded (§4.9's
// RulesLoaded/RulesIndexed events populate this out of scope of this
// package; the assembler only composes whatever text it is given).
type RulesProvider func(sessionID string) []string

// Compose builds a Request for one turn. agentInstructions and rules are
// stable; volatileParts (memory, skill context, subagent results, dynamic
// rules) are supplied by the caller per the turn's accumulated state.
func Compose(baseSystemPrompt, agentInstructions string, rules []string, volatileParts []Part, messages []events.Message, tools []ToolDef) Request {
	var stable []Part
	if baseSystemPrompt != "" {
		stable = append(stable, Part{Kind: PartStable, Name: "system_prompt", Text: baseSystemPrompt})
	}
	if agentInstructions != "" {
		stable = append(stable, Part{Kind: PartStable, Name: "agent_instructions", Text: agentInstructions})
	}
	for i, r := range rules {
		stable = append(stable, Part{Kind: PartStable, Name: fmt.Sprintf("rules_%d", i), Text: withRulesHeader(r)})
	}

	return Request{
		Stable:   stable,
		Volatile: volatileParts,
		Messages: messages,
		Tools:    tools,
	}
}

func withRulesHeader(rule string) string {
	return "# Rules\n\n" + rule
}

// LoadAgentInstructions searches for AGENTS.md from workDir up to the
// filesystem root, then the user's config directory, and concatenates them
// with the user-level file first, then outer directories, and workDir's own
// AGENTS.md last.
func LoadAgentInstructions(workDir string) string {
	var instructions []string

	dir := workDir
	for {
		path := filepath.Join(dir, "AGENTS.md")
		if text := readFileIfExists(path); text != "" {
			instructions = append(instructions, fmt.Sprintf("Instructions from: %s\n%s", path, text))
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "tronrun", "AGENTS.md")
		if text := readFileIfExists(path); text != "" {
			instructions = append(instructions, fmt.Sprintf("Instructions from: %s\n%s", path, text))
		}
	}

	for i, j := 0, len(instructions)-1; i < j; i, j = i+1, j-1 {
		instructions[i], instructions[j] = instructions[j], instructions[i]
	}
	return strings.Join(instructions, "\n\n")
}

func readFileIfExists(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
