// Package turn runs one LLM turn end-to-end: compose nothing itself (the
// caller supplies an already-composed ctxassembler.Request), stream
// provider events, persist the resulting facts, and report what happened
// so the agent runner (internal/agent) can decide whether to keep going.
package turn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/tronrun/internal/content"
	"github.com/xonecas/tronrun/internal/ctxassembler"
	"github.com/xonecas/tronrun/internal/events"
	"github.com/xonecas/tronrun/internal/eventstore"
	"github.com/xonecas/tronrun/internal/provider"
	"github.com/xonecas/tronrun/internal/streamevent"
)

// Bus is the live event-publishing sink the runtime's websocket layer
// subscribes to (internal/eventbus). PublishEvent forwards an
// already-persisted event verbatim; PublishNotice carries ephemeral,
// non-persisted runtime notices (e.g. "api_retry") that have no home in
// the closed persisted event-type enum.
type Bus interface {
	PublishEvent(e events.Event)
	PublishNotice(sessionID, name string, payload any)
}

// Outcome is the result of one turn (§4.3 "Outputs").
type Outcome struct {
	AssistantMessage   events.Message
	ToolCalls          []streamevent.ToolCall
	StopReason         streamevent.StopReason
	Usage              streamevent.Usage
	Interrupted        bool
	PartialContent     string
	TimeToFirstTokenMs int64
}

// Runner executes turns against a session's event log.
type Runner struct {
	Store *eventstore.Store
	Bus   Bus // optional; nil disables live publishing
}

// NewRunner returns a Runner bound to store, optionally publishing to bus.
func NewRunner(store *eventstore.Store, bus Bus) *Runner {
	return &Runner{Store: store, Bus: bus}
}

// RunTurn executes steps 1-10 of §4.3 against prov using the already
// composed req, persisting events into sessionID's log.
func (r *Runner) RunTurn(ctx context.Context, sessionID, workspaceID string, turnNumber int, prov provider.Provider, req ctxassembler.Request) (Outcome, error) {
	r.notice(sessionID, "turn_start", map[string]any{"turn": turnNumber})
	if _, err := r.appendPersisted(sessionID, workspaceID, events.StreamTurnStart, turnStartPayload{Turn: turnNumber}); err != nil {
		return Outcome{}, err
	}

	ch, err := prov.Stream(ctx, req)
	if err != nil {
		r.failTurn(sessionID, workspaceID, err.Error())
		return Outcome{}, fmt.Errorf("open provider stream: %w", err)
	}

	var (
		text, thinking, thinkingSig string
		tools                       = newToolAccumulator()
		usage                       streamevent.Usage
		stopReason                  streamevent.StopReason
		start                       = time.Now()
		ttftMs                      int64
		sawDone                     bool
	)

	for {
		// Cancellation is edge-biased: check before every select so it wins
		// races against a newly-ready stream event (§5).
		if ctx.Err() != nil {
			return r.interrupted(sessionID, workspaceID, text, ttftMs), nil
		}

		select {
		case <-ctx.Done():
			return r.interrupted(sessionID, workspaceID, text, ttftMs), nil
		case evt, ok := <-ch:
			if !ok {
				if !sawDone {
					err := fmt.Errorf("provider stream closed without a Done event")
					r.failTurn(sessionID, workspaceID, err.Error())
					return Outcome{}, err
				}
				goto streamDone
			}

			switch evt.Type {
			case streamevent.TextDelta:
				if text == "" && thinking == "" {
					ttftMs = time.Since(start).Milliseconds()
				}
				text += evt.Delta
				r.appendPersisted(sessionID, workspaceID, events.StreamTextDelta, deltaPayload{Delta: evt.Delta})
			case streamevent.ThinkingDelta:
				if text == "" && thinking == "" {
					ttftMs = time.Since(start).Milliseconds()
				}
				thinking += evt.Delta
				r.appendPersisted(sessionID, workspaceID, events.StreamThinkingDelta, deltaPayload{Delta: evt.Delta})
			case streamevent.ThinkingEnd:
				if evt.Signature != "" {
					thinkingSig = evt.Signature
				}
			case streamevent.ToolCallStart:
				tools.start(evt.ToolCallID, evt.ToolName)
			case streamevent.ToolCallDelta:
				tools.delta(evt.ToolCallID, evt.ArgsDelta)
			case streamevent.ToolCallEnd:
				tools.end(evt.ToolCallID, evt.ToolCallFinal)
			case streamevent.Retry:
				r.notice(sessionID, "api_retry", evt)
			case streamevent.SafetyBlock:
				err := fmt.Errorf("provider safety block: %v", evt.Categories)
				r.failTurn(sessionID, workspaceID, err.Error())
				return Outcome{}, err
			case streamevent.Error:
				r.failTurn(sessionID, workspaceID, evt.Message)
				return Outcome{}, fmt.Errorf("provider error: %s", evt.Message)
			case streamevent.Done:
				if evt.Usage != nil {
					coalesceUsage(&usage, *evt.Usage)
				}
				stopReason = evt.StopReason
				sawDone = true
			}
		}
	}

streamDone:
	msg := buildAssistantMessage(text, thinking, thinkingSig, tools.finalize())

	if _, err := r.appendPersisted(sessionID, workspaceID, events.MessageAssistant, msg); err != nil {
		return Outcome{}, err
	}
	if _, err := r.appendPersisted(sessionID, workspaceID, events.StreamTurnEnd, turnEndPayload{
		Turn: turnNumber, StopReason: stopReason, Usage: usage,
	}); err != nil {
		return Outcome{}, err
	}
	r.notice(sessionID, "turn_end", map[string]any{"turn": turnNumber, "stopReason": stopReason})

	return Outcome{
		AssistantMessage:   msg,
		ToolCalls:          tools.finalize(),
		StopReason:         stopReason,
		Usage:              usage,
		TimeToFirstTokenMs: ttftMs,
	}, nil
}

// interrupted persists the trimmed partial text as a message.assistant
// event before returning, so a later reconstruction sees the same partial
// content the caller was shown (§8 scenario 3) rather than losing it.
func (r *Runner) interrupted(sessionID, workspaceID, partialText string, ttftMs int64) Outcome {
	r.appendPersisted(sessionID, workspaceID, events.NotificationInterrupted, map[string]any{"partial": partialText})

	msg := buildAssistantMessage(partialText, "", "", nil)
	if len(msg.Blocks) > 0 {
		if _, err := r.appendPersisted(sessionID, workspaceID, events.MessageAssistant, msg); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("turn: failed to persist partial assistant message on interrupt")
		}
	}

	return Outcome{
		Interrupted:        true,
		AssistantMessage:   msg,
		PartialContent:     partialText,
		StopReason:         streamevent.StopInterrupted,
		TimeToFirstTokenMs: ttftMs,
	}
}

func (r *Runner) failTurn(sessionID, workspaceID, message string) {
	r.appendPersisted(sessionID, workspaceID, events.ErrorProvider, map[string]any{"message": message})
}

func (r *Runner) appendPersisted(sessionID, workspaceID string, typ events.Type, payload any) (events.Event, error) {
	ev, err := events.NewEvent(sessionID, workspaceID, typ, payload)
	if err != nil {
		return events.Event{}, err
	}
	out, err := r.Store.Append(sessionID, ev)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Str("type", string(typ)).Msg("turn: failed to append event")
		return events.Event{}, err
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

type turnStartPayload struct {
	Turn int `json:"turn"`
}

type deltaPayload struct {
	Delta string `json:"delta"`
}

type turnEndPayload struct {
	Turn       int                    `json:"turn"`
	StopReason streamevent.StopReason `json:"stopReason"`
	Usage      streamevent.Usage      `json:"usage"`
}

// coalesceUsage merges any non-zero fields of next into usage, per §4.3's
// "usage may arrive in either a Done event's message or a provider-specific
// usage frame; the turn runner MUST coalesce into one normalized record."
func coalesceUsage(usage *streamevent.Usage, next streamevent.Usage) {
	if next.InputTokens > 0 {
		usage.InputTokens = next.InputTokens
	}
	if next.OutputTokens > 0 {
		usage.OutputTokens = next.OutputTokens
	}
	if next.CacheReadTokens > 0 {
		usage.CacheReadTokens = next.CacheReadTokens
	}
	if next.CacheWriteTokens > 0 {
		usage.CacheWriteTokens = next.CacheWriteTokens
	}
}

// trimTrailingWhitespace strips only trailing whitespace, preserving
// leading whitespace and internal newlines verbatim (§4.3 edge case).
func trimTrailingWhitespace(s string) string {
	return strings.TrimRight(s, " \t\n\r\v\f")
}

// buildAssistantMessage assembles the persisted assistant message in the
// fixed block order §4.3 step 8 requires: thinking (only if it carries a
// signature — unsigned thinking is display-only and never resent to the
// provider), then trimmed text, then each finalized tool call.
func buildAssistantMessage(text, thinking, thinkingSig string, calls []streamevent.ToolCall) events.Message {
	var blocks []content.Block
	if thinkingSig != "" {
		blocks = append(blocks, content.NewThinking(thinking, thinkingSig))
	}
	if trimmed := trimTrailingWhitespace(text); trimmed != "" {
		blocks = append(blocks, content.NewText(trimmed))
	}
	for _, tc := range calls {
		blocks = append(blocks, content.NewToolUse(tc.ID, tc.Name, tc.Arguments))
	}
	return events.NewAssistantMessage(blocks)
}
