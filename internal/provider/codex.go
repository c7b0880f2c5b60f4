package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/tronrun/internal/content"
	"github.com/xonecas/tronrun/internal/ctxassembler"
	"github.com/xonecas/tronrun/internal/events"
	"github.com/xonecas/tronrun/internal/streamevent"
)

// codexToolResultMaxBytes truncates oversized tool-result text sent back to
// the Responses API, a 16 KB limit for this vendor.
const codexToolResultMaxBytes = 16 * 1024

// --- OpenAI Responses API request shapes ---

type codexRequest struct {
	Model        string            `json:"model"`
	Instructions string            `json:"instructions,omitempty"`
	Input        []codexInputItem  `json:"input"`
	Stream       bool              `json:"stream"`
	Tools        []codexToolSchema `json:"tools,omitempty"`
}

// flattenInstructions joins a composed request's stable/volatile text parts
// into the Responses API's single "instructions" field; the Responses API
// has no per-part cache_control of its own, so the stable/volatile split
// collapses to one string here (unlike the Anthropic adapter, which keeps
// per-part cache breakpoints).
func flattenInstructions(req ctxassembler.Request) string {
	var sb strings.Builder
	for _, p := range req.Stable {
		sb.WriteString(p.Text)
		sb.WriteString("\n\n")
	}
	for _, p := range req.Volatile {
		sb.WriteString(p.Text)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

type codexInputItem struct {
	Type    string `json:"type"` // "message" | "function_call" | "function_call_output"
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`

	// function_call
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// function_call_output
	Output string `json:"output,omitempty"`
}

type codexToolSchema struct {
	Type        string          `json:"type"` // "function"
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

func buildCodexInput(messages []events.Message) []codexInputItem {
	var items []codexInputItem
	for _, m := range messages {
		switch m.Role {
		case events.RoleUser:
			items = append(items, codexInputItem{Type: "message", Role: "user", Content: blocksToText(m.Blocks)})
		case events.RoleAssistant:
			for _, b := range m.Blocks {
				switch b.Type {
				case content.BlockText:
					items = append(items, codexInputItem{Type: "message", Role: "assistant", Content: b.Text})
				case content.BlockToolUse:
					items = append(items, codexInputItem{
						Type: "function_call", CallID: b.ToolCallID, Name: b.ToolName, Arguments: string(b.ToolInput),
					})
				}
			}
		case events.RoleToolResult:
			items = append(items, codexInputItem{
				Type: "function_call_output", CallID: m.ToolCallID, Output: truncateCodexOutput(blocksToText(m.Blocks)),
			})
		}
	}
	return items
}

func truncateCodexOutput(s string) string {
	if len(s) <= codexToolResultMaxBytes {
		return s
	}
	return s[:codexToolResultMaxBytes] + "\n[truncated]"
}

func toCodexTools(tools []ctxassembler.ToolDef) []codexToolSchema {
	if tools == nil {
		return nil
	}
	out := make([]codexToolSchema, len(tools))
	for i, t := range tools {
		out[i] = codexToolSchema{Type: "function", Name: t.Name, Description: t.Description, Parameters: json.RawMessage(t.InputSchema)}
	}
	return out
}

// --- Responses API SSE event shapes ---

type codexOutputTextDelta struct {
	Delta string `json:"delta"`
}

type codexFunctionCallArgsDelta struct {
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

type codexOutputItemAdded struct {
	Item struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		CallID string `json:"call_id"`
		Name   string `json:"name"`
	} `json:"item"`
}

type codexCompleted struct {
	Response struct {
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
		Status string `json:"status"` // "completed" | "incomplete" | "failed"
		IncompleteDetails struct {
			Reason string `json:"reason"`
		} `json:"incomplete_details"`
	} `json:"response"`
}

func stopReasonFromCodex(status, incompleteReason string) streamevent.StopReason {
	switch status {
	case "incomplete":
		if incompleteReason == "max_output_tokens" {
			return streamevent.StopMaxTokens
		}
		return streamevent.StopInterrupted
	case "failed":
		return streamevent.StopRefusal
	default:
		return streamevent.StopEndTurn
	}
}

func parseCodexSSEStream(ctx context.Context, reader *bufio.Scanner, ch chan<- streamevent.Event) {
	trySend(ctx, ch, streamevent.Event{Type: streamevent.Start})

	var currentEventType string
	toolCallIDByItem := make(map[string]string)
	toolCallNameByItem := make(map[string]string)
	textOpen := false

	for reader.Scan() {
		line := reader.Text()
		if strings.HasPrefix(line, "event: ") {
			currentEventType = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		switch currentEventType {
		case "response.output_text.delta":
			var d codexOutputTextDelta
			if json.Unmarshal([]byte(data), &d) == nil {
				if !textOpen {
					trySend(ctx, ch, streamevent.Event{Type: streamevent.TextStart})
					textOpen = true
				}
				trySend(ctx, ch, streamevent.Event{Type: streamevent.TextDelta, Delta: d.Delta})
			}
		case "response.output_item.added":
			var it codexOutputItemAdded
			if json.Unmarshal([]byte(data), &it) == nil && it.Item.Type == "function_call" {
				toolCallIDByItem[it.Item.ID] = it.Item.CallID
				toolCallNameByItem[it.Item.ID] = it.Item.Name
				trySend(ctx, ch, streamevent.Event{Type: streamevent.ToolCallStart, ToolCallID: it.Item.CallID, ToolName: it.Item.Name})
			}
		case "response.function_call_arguments.delta":
			var d codexFunctionCallArgsDelta
			if json.Unmarshal([]byte(data), &d) == nil {
				trySend(ctx, ch, streamevent.Event{Type: streamevent.ToolCallDelta, ToolCallID: toolCallIDByItem[d.ItemID], ArgsDelta: d.Delta})
			}
		case "response.output_item.done":
			var it codexOutputItemAdded
			if json.Unmarshal([]byte(data), &it) == nil && it.Item.Type == "function_call" {
				if textOpen {
					trySend(ctx, ch, streamevent.Event{Type: streamevent.TextEnd})
					textOpen = false
				}
				trySend(ctx, ch, streamevent.Event{Type: streamevent.ToolCallEnd, ToolCallID: it.Item.CallID, ToolName: it.Item.Name})
			}
		case "response.completed", "response.incomplete", "response.failed":
			if textOpen {
				trySend(ctx, ch, streamevent.Event{Type: streamevent.TextEnd})
				textOpen = false
			}
			var c codexCompleted
			json.Unmarshal([]byte(data), &c)
			trySend(ctx, ch, streamevent.Event{
				Type:       streamevent.Done,
				StopReason: stopReasonFromCodex(c.Response.Status, c.Response.IncompleteDetails.Reason),
				Usage: &streamevent.Usage{
					InputTokens:  c.Response.Usage.InputTokens,
					OutputTokens: c.Response.Usage.OutputTokens,
				},
			})
			return
		case "error":
			var errEnv anthropicErrorEnvelope
			json.Unmarshal([]byte(data), &errEnv)
			trySend(ctx, ch, streamevent.Event{Type: streamevent.Error, Message: errEnv.Error.Message})
			return
		}
		currentEventType = ""
	}

	if err := reader.Err(); err != nil {
		log.Warn().Err(err).Msg("codex: SSE scan error")
		trySend(ctx, ch, streamevent.Event{Type: streamevent.Error, Message: err.Error()})
	}
}

// --- Provider implementation ---

type codexProvider struct {
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewCodexFactory returns a Factory producing OpenAI-Codex Responses API providers.
func NewCodexFactory(apiKey, baseURL string) Factory {
	return codexFactory{apiKey: apiKey, baseURL: baseURL}
}

type codexFactory struct {
	apiKey  string
	baseURL string
}

func (f codexFactory) Name() string { return "codex" }

func (f codexFactory) Create(model string, opts Options) Provider {
	return &codexProvider{model: model, apiKey: f.apiKey, baseURL: f.baseURL, client: &http.Client{}}
}

func (p *codexProvider) Name() string { return "codex" }

func (p *codexProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *codexProvider) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{{Name: p.model, Family: "openai"}}, nil
}

func (p *codexProvider) Stream(ctx context.Context, req ctxassembler.Request) (<-chan streamevent.Event, error) {
	body, err := json.Marshal(codexRequest{
		Model:        p.model,
		Instructions: flattenInstructions(req),
		Input:        buildCodexInput(req.Messages),
		Stream:       true,
		Tools:        toCodexTools(req.Tools),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal codex request: %w", err)
	}

	ch := make(chan streamevent.Event, 16)
	cfg := httpRequestConfig{
		client:   p.client,
		url:      strings.TrimRight(p.baseURL, "/") + "/v1/responses",
		body:     body,
		headers:  map[string]string{"Authorization": "Bearer " + p.apiKey},
		provider: "codex",
		model:    p.model,
	}

	reader, err := httpDoSSE(ctx, cfg, ch)
	if err != nil {
		close(ch)
		return nil, err
	}

	go func() {
		defer close(ch)
		defer reader.Close()
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)
		parseCodexSSEStream(ctx, scanner, ch)
	}()

	return ch, nil
}
