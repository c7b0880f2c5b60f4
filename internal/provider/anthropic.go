package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/tronrun/internal/content"
	"github.com/xonecas/tronrun/internal/ctxassembler"
	"github.com/xonecas/tronrun/internal/events"
	"github.com/xonecas/tronrun/internal/streamevent"
)

const anthropicAPIVersion = "2023-06-01"

// --- Anthropic Messages API request shapes ---

type anthropicRequest struct {
	Model       string                `json:"model"`
	Messages    []anthropicMessage    `json:"messages"`
	System      []anthropicCacheBlock `json:"system,omitempty"`
	MaxTokens   int                   `json:"max_tokens"`
	Temperature float64               `json:"temperature,omitempty"`
	Stream      bool                  `json:"stream"`
	Tools       []anthropicTool       `json:"tools,omitempty"`
}

type anthropicCacheControl struct {
	Type string `json:"type"` // "ephemeral"
	TTL  string `json:"ttl,omitempty"`
}

type anthropicCacheBlock struct {
	Type         string                 `json:"type"`
	Text         string                 `json:"text"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicThinkingBlock struct {
	Type      string `json:"type"`
	Thinking  string `json:"thinking"`
	Signature string `json:"signature,omitempty"`
}

type anthropicToolUseBlock struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type anthropicToolResultBlock struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	InputSchema  json.RawMessage        `json:"input_schema"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

// ttlFor converts a ctxassembler breakpoint TTL into Anthropic's cache_control.ttl
// string ("5m" default, "1h" for the long-lived breakpoints).
func ttlFor(d time.Duration) string {
	if d >= time.Hour {
		return "1h"
	}
	return "5m"
}

// buildAnthropicMessages flattens a composed request's stable/volatile text
// parts into the system block list (with cache breakpoints applied) and
// converts the message history into Anthropic's content-block shape.
func buildAnthropicMessages(req ctxassembler.Request) ([]anthropicCacheBlock, []anthropicMessage) {
	system := make([]anthropicCacheBlock, 0, len(req.Stable)+len(req.Volatile))
	for _, p := range req.Stable {
		system = append(system, anthropicCacheBlock{Type: "text", Text: p.Text})
	}
	for _, p := range req.Volatile {
		system = append(system, anthropicCacheBlock{Type: "text", Text: p.Text})
	}
	if bp, ok := req.StableBreakpoint(); ok {
		system[bp.PartIndex].CacheControl = &anthropicCacheControl{Type: "ephemeral", TTL: ttlFor(bp.TTL)}
	}
	if bp, ok := req.VolatileBreakpoint(); ok {
		idx := len(req.Stable) + bp.PartIndex
		system[idx].CacheControl = &anthropicCacheControl{Type: "ephemeral", TTL: ttlFor(bp.TTL)}
	}

	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, toAnthropicMessage(m))
	}
	return system, messages
}

func toAnthropicMessage(m events.Message) anthropicMessage {
	switch m.Role {
	case events.RoleToolResult:
		text := blocksToText(m.Blocks)
		return anthropicMessage{
			Role: "user",
			Content: []anthropicToolResultBlock{{
				Type: "tool_result", ToolUseID: m.ToolCallID, Content: text, IsError: m.IsError,
			}},
		}
	case events.RoleAssistant:
		var blocks []any
		for _, b := range m.Blocks {
			switch b.Type {
			case content.BlockText:
				blocks = append(blocks, anthropicTextBlock{Type: "text", Text: b.Text})
			case content.BlockThinking:
				blocks = append(blocks, anthropicThinkingBlock{Type: "thinking", Thinking: b.Text, Signature: b.Signature})
			case content.BlockToolUse:
				input := b.ToolInput
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, anthropicToolUseBlock{Type: "tool_use", ID: b.ToolCallID, Name: b.ToolName, Input: input})
			}
		}
		return anthropicMessage{Role: "assistant", Content: blocks}
	default: // user
		return anthropicMessage{Role: "user", Content: blocksToText(m.Blocks)}
	}
}

func blocksToText(blocks []content.Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Text != "" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

func toAnthropicTools(req ctxassembler.Request) []anthropicTool {
	if req.Tools == nil {
		return nil
	}
	emptySchema := json.RawMessage(`{"type":"object","properties":{}}`)
	result := make([]anthropicTool, len(req.Tools))
	for i, t := range req.Tools {
		schema := json.RawMessage(t.InputSchema)
		if len(schema) == 0 {
			schema = emptySchema
		}
		result[i] = anthropicTool{Name: t.Name, Description: t.Description, InputSchema: schema}
	}
	if bp, ok := req.LastToolBreakpoint(); ok {
		result[bp.PartIndex].CacheControl = &anthropicCacheControl{Type: "ephemeral", TTL: ttlFor(bp.TTL)}
	}
	return result
}

// --- Anthropic SSE streaming response shapes ---

type anthropicMessageStart struct {
	Message struct {
		Usage struct {
			InputTokens              int `json:"input_tokens"`
			OutputTokens             int `json:"output_tokens"`
			CacheReadInputTokens     int `json:"cache_read_input_tokens"`
			CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

type anthropicMessageDelta struct {
	Delta struct {
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicContentBlockStart struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"content_block"`
}

type anthropicContentBlockDelta struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text,omitempty"`
		Thinking    string `json:"thinking,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
		Signature   string `json:"signature,omitempty"`
	} `json:"delta"`
}

type anthropicErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// stopReasonFromAnthropic maps Anthropic's stop_reason to the canonical set.
func stopReasonFromAnthropic(reason string) streamevent.StopReason {
	switch reason {
	case "end_turn":
		return streamevent.StopEndTurn
	case "tool_use":
		return streamevent.StopToolUse
	case "max_tokens":
		return streamevent.StopMaxTokens
	case "stop_sequence":
		return streamevent.StopStopSequence
	case "refusal":
		return streamevent.StopRefusal
	default:
		return streamevent.StopEndTurn
	}
}

// anthropicBlockTracker maps content-block index to tool-call accumulation
// state and thinking-block signatures, since the wire delta only carries partial
// fragments per index.
type anthropicBlockTracker struct {
	blockType  map[int]string // "text" | "thinking" | "tool_use"
	toolID     map[int]string
	toolName   map[int]string
	signature  map[int]string
	remap      *IDRemapper
}

func newAnthropicBlockTracker(remap *IDRemapper) *anthropicBlockTracker {
	return &anthropicBlockTracker{
		blockType: make(map[int]string),
		toolID:    make(map[int]string),
		toolName:  make(map[int]string),
		signature: make(map[int]string),
		remap:     remap,
	}
}

func parseAnthropicSSEStream(ctx context.Context, reader io.Reader, ch chan<- streamevent.Event, remap *IDRemapper) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)

	bt := newAnthropicBlockTracker(remap)
	var currentEventType string
	var usage streamevent.Usage
	trySend(ctx, ch, streamevent.Event{Type: streamevent.Start})

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "event: ") {
			currentEventType = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		switch currentEventType {
		case "message_start":
			var ms anthropicMessageStart
			if json.Unmarshal([]byte(data), &ms) == nil {
				usage.InputTokens = ms.Message.Usage.InputTokens
				usage.CacheReadTokens = ms.Message.Usage.CacheReadInputTokens
				usage.CacheWriteTokens = ms.Message.Usage.CacheCreationInputTokens
			}
		case "content_block_start":
			if !bt.handleBlockStart(ctx, ch, data) {
				return
			}
		case "content_block_delta":
			if !bt.handleBlockDelta(ctx, ch, data) {
				return
			}
		case "content_block_stop":
			var evt struct {
				Index int `json:"index"`
			}
			json.Unmarshal([]byte(data), &evt)
			bt.handleBlockStop(ctx, ch, evt.Index)
		case "message_delta":
			var md anthropicMessageDelta
			if json.Unmarshal([]byte(data), &md) == nil {
				usage.OutputTokens = md.Usage.OutputTokens
				if md.Delta.StopReason != "" {
					trySend(ctx, ch, streamevent.Event{
						Type:       streamevent.Done,
						StopReason: stopReasonFromAnthropic(md.Delta.StopReason),
						Usage:      &usage,
					})
				}
			}
		case "message_stop":
			return
		case "error":
			var errEnv anthropicErrorEnvelope
			json.Unmarshal([]byte(data), &errEnv)
			trySend(ctx, ch, streamevent.Event{Type: streamevent.Error, Message: errEnv.Error.Message})
			return
		case "ping":
			// ignored
		}
		currentEventType = ""
	}

	if err := scanner.Err(); err != nil {
		trySend(ctx, ch, streamevent.Event{Type: streamevent.Error, Message: err.Error()})
	}
}

func (bt *anthropicBlockTracker) handleBlockStart(ctx context.Context, ch chan<- streamevent.Event, data string) bool {
	var evt anthropicContentBlockStart
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		log.Warn().Err(err).Msg("anthropic: failed to parse content_block_start")
		return true
	}
	bt.blockType[evt.Index] = evt.ContentBlock.Type
	switch evt.ContentBlock.Type {
	case "text":
		return trySend(ctx, ch, streamevent.Event{Type: streamevent.TextStart})
	case "thinking":
		return trySend(ctx, ch, streamevent.Event{Type: streamevent.ThinkingStart})
	case "tool_use":
		id := bt.remap.Restore(evt.ContentBlock.ID)
		bt.toolID[evt.Index] = id
		bt.toolName[evt.Index] = evt.ContentBlock.Name
		return trySend(ctx, ch, streamevent.Event{
			Type: streamevent.ToolCallStart, ToolCallID: id, ToolName: evt.ContentBlock.Name,
		})
	}
	return true
}

func (bt *anthropicBlockTracker) handleBlockDelta(ctx context.Context, ch chan<- streamevent.Event, data string) bool {
	var evt anthropicContentBlockDelta
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		log.Warn().Err(err).Msg("anthropic: failed to parse content_block_delta")
		return true
	}
	switch evt.Delta.Type {
	case "text_delta":
		if evt.Delta.Text != "" {
			return trySend(ctx, ch, streamevent.Event{Type: streamevent.TextDelta, Delta: evt.Delta.Text})
		}
	case "thinking_delta":
		if evt.Delta.Thinking != "" {
			return trySend(ctx, ch, streamevent.Event{Type: streamevent.ThinkingDelta, Delta: evt.Delta.Thinking})
		}
	case "signature_delta":
		bt.signature[evt.Index] = evt.Delta.Signature
	case "input_json_delta":
		if evt.Delta.PartialJSON != "" {
			return trySend(ctx, ch, streamevent.Event{
				Type: streamevent.ToolCallDelta, ToolCallID: bt.toolID[evt.Index], ArgsDelta: evt.Delta.PartialJSON,
			})
		}
	}
	return true
}

func (bt *anthropicBlockTracker) handleBlockStop(ctx context.Context, ch chan<- streamevent.Event, index int) {
	switch bt.blockType[index] {
	case "text":
		trySend(ctx, ch, streamevent.Event{Type: streamevent.TextEnd})
	case "thinking":
		trySend(ctx, ch, streamevent.Event{Type: streamevent.ThinkingEnd, Signature: bt.signature[index]})
	case "tool_use":
		trySend(ctx, ch, streamevent.Event{Type: streamevent.ToolCallEnd, ToolCallID: bt.toolID[index], ToolName: bt.toolName[index]})
	}
}

// --- Provider implementation ---

type anthropicProvider struct {
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewAnthropicFactory returns a Factory producing Anthropic providers.
func NewAnthropicFactory(apiKey, baseURL string) Factory {
	return anthropicFactory{apiKey: apiKey, baseURL: baseURL}
}

type anthropicFactory struct {
	apiKey  string
	baseURL string
}

func (f anthropicFactory) Name() string { return "anthropic" }

func (f anthropicFactory) Create(model string, opts Options) Provider {
	return &anthropicProvider{
		model: model, apiKey: f.apiKey, baseURL: f.baseURL,
		client: &http.Client{},
	}
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *anthropicProvider) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{{Name: p.model, Family: "anthropic"}}, nil
}

// Stream issues one Anthropic Messages API streaming request and returns a
// channel of unified stream events.
func (p *anthropicProvider) Stream(ctx context.Context, req ctxassembler.Request) (<-chan streamevent.Event, error) {
	// Tool-call ids already in req.Messages may have been minted by a
	// different provider's adapter (Codex/Gemini) in an earlier turn of the
	// same run. Anthropic rejects a tool_result whose tool_use_id doesn't
	// look like one of its own, so every id crossing the wire in either
	// direction is remapped to a toolu_remap_<n> id for this request and
	// restored back to the original on the way out.
	remapper := NewIDRemapper()
	req.Messages = RemapMessagesForAnthropic(remapper, req.Messages)
	system, anthMessages := buildAnthropicMessages(req)

	body, err := json.Marshal(anthropicRequest{
		Model:     p.model,
		Messages:  anthMessages,
		System:    system,
		MaxTokens: 8192,
		Stream:    true,
		Tools:     toAnthropicTools(req),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	ch := make(chan streamevent.Event, 16)
	cfg := httpRequestConfig{
		client: p.client,
		url:    strings.TrimRight(p.baseURL, "/") + "/v1/messages",
		body:   body,
		headers: map[string]string{
			"x-api-key":         p.apiKey,
			"anthropic-version": anthropicAPIVersion,
		},
		provider: "anthropic",
		model:    p.model,
	}

	body2, err := httpDoSSE(ctx, cfg, ch)
	if err != nil {
		close(ch)
		return nil, err
	}

	go func() {
		defer close(ch)
		defer body2.Close()
		parseAnthropicSSEStream(ctx, body2, ch, remapper)
	}()

	return ch, nil
}
