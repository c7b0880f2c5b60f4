// Package agent drives the multi-turn loop above the single-turn primitive
// in internal/turn: run a turn, execute any tool calls it produced, append
// the results, and repeat until the model stops on its own, the turn limit
// is reached, or the caller cancels (§4.4).
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/tronrun/internal/content"
	"github.com/xonecas/tronrun/internal/ctxassembler"
	"github.com/xonecas/tronrun/internal/events"
	"github.com/xonecas/tronrun/internal/eventstore"
	"github.com/xonecas/tronrun/internal/provider"
	"github.com/xonecas/tronrun/internal/streamevent"
	"github.com/xonecas/tronrun/internal/toolpipeline"
	"github.com/xonecas/tronrun/internal/turn"
)

// defaultMaxTurns is the default cap on tool-call rounds within one run.
const defaultMaxTurns = 60

// reminderInterval is the number of rounds between recitation reminders.
const reminderInterval = 10

// Bus is the live event-publishing sink; see turn.Bus. Any type satisfying
// turn.Bus also satisfies this interface.
type Bus interface {
	PublishEvent(e events.Event)
	PublishNotice(sessionID, name string, payload any)
}

// Scratchpad gives the agent runner read access to a session's working plan,
// preferred over the fallback goal reminder when injecting recitation.
type Scratchpad interface {
	Content() string
}

// Classifier reports whether a tool is safe to run concurrently with other
// tool calls in the same batch. A nil Classifier treats every tool as
// sequential.
type Classifier interface {
	IsConcurrentSafe(toolName string) bool
}

// RequestBuilder composes the provider request for one round from the
// session's current reconstructed message list. Composing system prompt
// parts, rules, memory, and tool definitions is the caller's responsibility
// (§4.6); the agent runner only supplies the message list each round.
type RequestBuilder func(messages []events.Message) ctxassembler.Request

// Options configures one agent run.
type Options struct {
	Provider     provider.Provider
	Pipeline     *toolpipeline.Pipeline
	BuildRequest RequestBuilder
	MaxTurns     int
	Classifier   Classifier // optional
	Scratchpad   Scratchpad // optional
}

// Outcome is the result of a full agent run (§4.4).
type Outcome struct {
	Turns            int
	FinalMessage     events.Message
	StopReason       streamevent.StopReason
	MaxTurnsExceeded bool
	Interrupted      bool
}

// Runner drives the multi-turn loop on top of a turn.Runner.
type Runner struct {
	Store *eventstore.Store
	Bus   Bus // optional; nil disables live publishing
	turns *turn.Runner
}

// NewRunner returns a Runner that executes turns via turns and persists
// through store, optionally publishing to bus.
func NewRunner(store *eventstore.Store, turns *turn.Runner, bus Bus) *Runner {
	return &Runner{Store: store, Bus: bus, turns: turns}
}

type recentCall struct {
	name string
	args string
}

// RunAgent drives turns against sessionID until the model stops emitting
// tool calls, the turn limit is reached, or ctx is cancelled.
func (r *Runner) RunAgent(ctx context.Context, sessionID, workspaceID string, opts Options) (Outcome, error) {
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}

	var recent []recentCall
	var previousContextBaseline int

	for round := 0; round < maxTurns; round++ {
		if ctx.Err() != nil {
			return Outcome{Turns: round, Interrupted: true, StopReason: streamevent.StopInterrupted}, nil
		}

		messages, err := r.reconstructedMessages(sessionID)
		if err != nil {
			return Outcome{}, err
		}
		applyReminder(messages, buildReminder(round, recent, opts.Scratchpad, messages))

		outcome, err := r.turns.RunTurn(ctx, sessionID, workspaceID, round+1, opts.Provider, opts.BuildRequest(messages))
		if err != nil {
			return Outcome{}, err
		}
		if outcome.Interrupted {
			return Outcome{Turns: round + 1, Interrupted: true, StopReason: outcome.StopReason}, nil
		}

		r.reportContextGrowth(sessionID, round+1, &previousContextBaseline, outcome.Usage.InputTokens)

		if len(outcome.ToolCalls) == 0 {
			return r.finish(sessionID, round+1, outcome.AssistantMessage, outcome.StopReason, false), nil
		}

		results, err := r.runToolCalls(ctx, sessionID, outcome.ToolCalls, opts)
		if err != nil {
			return Outcome{}, err
		}
		for _, res := range results {
			if _, err := r.appendToolResult(sessionID, workspaceID, res); err != nil {
				return Outcome{}, err
			}
		}

		for _, tc := range outcome.ToolCalls {
			recent = append(recent, recentCall{name: tc.Name, args: string(tc.Arguments)})
		}
	}

	return r.runLimitExceededTurn(ctx, sessionID, workspaceID, maxTurns, opts)
}

func (r *Runner) runToolCalls(ctx context.Context, sessionID string, toolCalls []streamevent.ToolCall, opts Options) ([]toolpipeline.Result, error) {
	calls := make([]toolpipeline.Call, len(toolCalls))
	for i, tc := range toolCalls {
		calls[i] = toolpipeline.Call{
			ID:         tc.ID,
			ToolName:   tc.Name,
			Arguments:  tc.Arguments,
			SessionID:  sessionID,
			Concurrent: opts.Classifier != nil && opts.Classifier.IsConcurrentSafe(tc.Name),
		}
	}
	return opts.Pipeline.RunBatch(ctx, calls)
}

// runLimitExceededTurn runs once the round budget is spent: persist a
// synthetic user message asking for a text-only summary and run exactly one
// more tool-free turn.
func (r *Runner) runLimitExceededTurn(ctx context.Context, sessionID, workspaceID string, maxTurns int, opts Options) (Outcome, error) {
	if ctx.Err() != nil {
		return Outcome{Turns: maxTurns, Interrupted: true, StopReason: streamevent.StopInterrupted}, nil
	}

	limitMsg := events.NewUserMessage("You have exhausted your tool call limit for this turn. Respond in text only. Summarize what you accomplished and what remains.")
	if _, err := r.appendPersisted(sessionID, workspaceID, events.MessageUser, limitMsg); err != nil {
		return Outcome{}, err
	}

	messages, err := r.reconstructedMessages(sessionID)
	if err != nil {
		return Outcome{}, err
	}
	req := opts.BuildRequest(messages)
	req.Tools = nil

	outcome, err := r.turns.RunTurn(ctx, sessionID, workspaceID, maxTurns+1, opts.Provider, req)
	if err != nil {
		return Outcome{}, err
	}
	if outcome.Interrupted {
		return Outcome{Turns: maxTurns + 1, Interrupted: true, StopReason: outcome.StopReason}, nil
	}

	return r.finish(sessionID, maxTurns+1, outcome.AssistantMessage, outcome.StopReason, true), nil
}

// reportContextGrowth attributes how much the provider's reported input
// token count grew since the previous turn to *baseline, then advances
// *baseline to the new total, and publishes the delta as a runtime notice
// (§4.4 "previous_context_baseline... to attribute new-turn growth").
func (r *Runner) reportContextGrowth(sessionID string, turnNumber int, baseline *int, newInputTokens int) {
	if newInputTokens == 0 {
		return
	}
	delta := newInputTokens - *baseline
	*baseline = newInputTokens
	r.notice(sessionID, "context_growth", map[string]any{"turn": turnNumber, "delta": delta, "total": newInputTokens})
}

// finish emits agent_end then agent_ready with nothing interleaved between
// them for this session, per §4.4.
func (r *Runner) finish(sessionID string, turns int, finalMsg events.Message, stopReason streamevent.StopReason, maxTurnsExceeded bool) Outcome {
	r.notice(sessionID, "agent_end", map[string]any{"turns": turns, "stopReason": stopReason})
	r.notice(sessionID, "agent_ready", nil)
	return Outcome{Turns: turns, FinalMessage: finalMsg, StopReason: stopReason, MaxTurnsExceeded: maxTurnsExceeded}
}

func (r *Runner) reconstructedMessages(sessionID string) ([]events.Message, error) {
	evts, err := r.Store.List(sessionID)
	if err != nil {
		return nil, err
	}
	return eventstore.ReconstructMessages(evts)
}

func (r *Runner) appendToolResult(sessionID, workspaceID string, res toolpipeline.Result) (events.Event, error) {
	msg := events.NewToolResultMessage(res.CallID, res.Text, res.IsError)
	return r.appendPersisted(sessionID, workspaceID, events.ToolResult, msg)
}

func (r *Runner) appendPersisted(sessionID, workspaceID string, typ events.Type, payload any) (events.Event, error) {
	ev, err := events.NewEvent(sessionID, workspaceID, typ, payload)
	if err != nil {
		return events.Event{}, err
	}
	out, err := r.Store.Append(sessionID, ev)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Str("type", string(typ)).Msg("agent: failed to append event")
		return events.Event{}, fmt.Errorf("agent: append %s: %w", typ, err)
	}
	if r.Bus != nil {
		r.Bus.PublishEvent(out)
	}
	return out, nil
}

func (r *Runner) notice(sessionID, name string, payload any) {
	if r.Bus != nil {
		r.Bus.PublishNotice(sessionID, name, payload)
	}
}

// buildReminder composes the ephemeral <system-reminder> text for this
// round, combining the periodic recitation (every reminderInterval rounds)
// with a repeated-tool-call warning when the last three calls were
// identical. Messages are reconstructed fresh from the event log every
// round, so there is never a stale reminder from a prior round to strip.
func buildReminder(round int, recent []recentCall, pad Scratchpad, messages []events.Message) string {
	var parts []string

	if round > 0 && round%reminderInterval == 0 {
		var recitation string
		if pad != nil {
			recitation = pad.Content()
		}
		if recitation == "" {
			for _, m := range messages {
				if m.Role == events.RoleUser {
					recitation = "The user's request: " + blocksToText(m.Blocks)
					break
				}
			}
		}
		if recitation != "" {
			parts = append(parts, recitation)
		}
	}

	if isRepeating(recent) {
		parts = append(parts, "WARNING: You are repeating the same tool call with the same arguments. "+
			"This is wasteful. Stop and either try a different approach, summarize what you know, or ask the user for help.")
	}

	return strings.Join(parts, "\n\n")
}

func isRepeating(recent []recentCall) bool {
	if len(recent) < 3 {
		return false
	}
	last3 := recent[len(recent)-3:]
	return last3[0] == last3[1] && last3[1] == last3[2]
}

// applyReminder appends reminder as a trailing text block on the last
// tool-result message, so it lands immediately before the next assistant
// turn without shifting any other message's position (preserving Anthropic
// prompt-cache breakpoints upstream of it).
func applyReminder(messages []events.Message, reminder string) {
	if reminder == "" {
		return
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == events.RoleToolResult {
			block := content.NewText("\n\n<system-reminder>\n" + reminder + "\n</system-reminder>")
			messages[i].Blocks = append(append([]content.Block{}, messages[i].Blocks...), block)
			return
		}
	}
}

func blocksToText(blocks []content.Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == content.BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
