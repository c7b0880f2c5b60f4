package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/tronrun/internal/content"
	"github.com/xonecas/tronrun/internal/ctxassembler"
	"github.com/xonecas/tronrun/internal/events"
	"github.com/xonecas/tronrun/internal/streamevent"
)

// --- Gemini generateContent request shapes ---

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

// systemInstructionFrom joins a composed request's stable/volatile text
// parts into Gemini's single systemInstruction content block; like the
// Responses API, Gemini has no per-part cache_control, so the stable/
// volatile split collapses to one block.
func systemInstructionFrom(req ctxassembler.Request) *geminiContent {
	var sb strings.Builder
	for _, p := range req.Stable {
		sb.WriteString(p.Text)
		sb.WriteString("\n\n")
	}
	for _, p := range req.Volatile {
		sb.WriteString(p.Text)
		sb.WriteString("\n\n")
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil
	}
	return &geminiContent{Parts: []geminiPart{{Text: text}}}
}

type geminiContent struct {
	Role  string       `json:"role"` // "user" | "model"
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string              `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFuncResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiFuncResponse struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFuncDecl `json:"functionDeclarations"`
}

type geminiFuncDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

func buildGeminiContents(messages []events.Message) []geminiContent {
	var out []geminiContent
	for _, m := range messages {
		switch m.Role {
		case events.RoleUser:
			out = append(out, geminiContent{Role: "user", Parts: []geminiPart{{Text: blocksToText(m.Blocks)}}})
		case events.RoleAssistant:
			var parts []geminiPart
			for _, b := range m.Blocks {
				switch b.Type {
				case content.BlockText:
					parts = append(parts, geminiPart{Text: b.Text})
				case content.BlockToolUse:
					parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: b.ToolName, Args: b.ToolInput}})
				}
			}
			out = append(out, geminiContent{Role: "model", Parts: parts})
		case events.RoleToolResult:
			resp, _ := json.Marshal(map[string]string{"result": blocksToText(m.Blocks)})
			out = append(out, geminiContent{Role: "user", Parts: []geminiPart{{
				FunctionResponse: &geminiFuncResponse{Name: toolNameFromCallID(m.ToolCallID), Response: resp},
			}}})
		}
	}
	return out
}

// toolNameFromCallID recovers a tool name from a synthesized call id of the
// shape "call_<prefix>_<index>"; Gemini's protocol identifies function
// responses by name, not call id, so the id remapper (idremap.go)
// must keep this reversible for multi-tool-call turns.
func toolNameFromCallID(callID string) string {
	parts := strings.SplitN(callID, "_", 3)
	if len(parts) == 3 {
		return parts[1]
	}
	return callID
}

func toGeminiTools(tools []ctxassembler.ToolDef) []geminiTool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]geminiFuncDecl, len(tools))
	for i, t := range tools {
		decls[i] = geminiFuncDecl{Name: t.Name, Description: t.Description, Parameters: json.RawMessage(t.InputSchema)}
	}
	return []geminiTool{{FunctionDeclarations: decls}}
}

// --- Gemini streamGenerateContent SSE response shapes ---

type geminiStreamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason  string `json:"finishReason"`
		SafetyRatings []struct {
			Category    string `json:"category"`
			Probability string `json:"probability"`
			Blocked     bool   `json:"blocked"`
		} `json:"safetyRatings"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func stopReasonFromGemini(reason string) streamevent.StopReason {
	switch reason {
	case "STOP":
		return streamevent.StopEndTurn
	case "MAX_TOKENS":
		return streamevent.StopMaxTokens
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return streamevent.StopRefusal
	default:
		return streamevent.StopEndTurn
	}
}

// parseGeminiSSEStream reads a streamGenerateContent SSE body (each `data:`
// line is a complete GenerateContentResponse chunk) and emits unified
// events. Gemini has no native tool_call_id: ids are synthesized here as
// "call_<name>_<index>" so the id remapper has a stable, reversible key.
func parseGeminiSSEStream(ctx context.Context, reader *bufio.Scanner, ch chan<- streamevent.Event) {
	trySend(ctx, ch, streamevent.Event{Type: streamevent.Start})

	toolIndex := 0
	textOpen := false
	var usage streamevent.Usage

	for reader.Scan() {
		line := reader.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var chunk geminiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Warn().Err(err).Msg("gemini: failed to parse chunk")
			continue
		}
		usage.InputTokens = chunk.UsageMetadata.PromptTokenCount
		usage.OutputTokens = chunk.UsageMetadata.CandidatesTokenCount

		if len(chunk.Candidates) == 0 {
			continue
		}
		cand := chunk.Candidates[0]

		var blockedCategories []string
		for _, sr := range cand.SafetyRatings {
			if sr.Blocked {
				blockedCategories = append(blockedCategories, sr.Category)
			}
		}
		if len(blockedCategories) > 0 {
			trySend(ctx, ch, streamevent.Event{Type: streamevent.SafetyBlock, Categories: blockedCategories})
		}

		for _, part := range cand.Content.Parts {
			switch {
			case part.Text != "":
				if !textOpen {
					trySend(ctx, ch, streamevent.Event{Type: streamevent.TextStart})
					textOpen = true
				}
				if !trySend(ctx, ch, streamevent.Event{Type: streamevent.TextDelta, Delta: part.Text}) {
					return
				}
			case part.FunctionCall != nil:
				if textOpen {
					trySend(ctx, ch, streamevent.Event{Type: streamevent.TextEnd})
					textOpen = false
				}
				id := "call_" + part.FunctionCall.Name + "_" + strconv.Itoa(toolIndex)
				toolIndex++
				if !trySend(ctx, ch, streamevent.Event{Type: streamevent.ToolCallStart, ToolCallID: id, ToolName: part.FunctionCall.Name}) {
					return
				}
				if !trySend(ctx, ch, streamevent.Event{Type: streamevent.ToolCallDelta, ToolCallID: id, ArgsDelta: string(part.FunctionCall.Args)}) {
					return
				}
				if !trySend(ctx, ch, streamevent.Event{Type: streamevent.ToolCallEnd, ToolCallID: id, ToolName: part.FunctionCall.Name}) {
					return
				}
			}
		}

		if cand.FinishReason != "" {
			if textOpen {
				trySend(ctx, ch, streamevent.Event{Type: streamevent.TextEnd})
				textOpen = false
			}
			trySend(ctx, ch, streamevent.Event{Type: streamevent.Done, StopReason: stopReasonFromGemini(cand.FinishReason), Usage: &usage})
			return
		}
	}

	if err := reader.Err(); err != nil {
		trySend(ctx, ch, streamevent.Event{Type: streamevent.Error, Message: err.Error()})
	}
}

// --- Provider implementation ---

type geminiProvider struct {
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewGeminiFactory returns a Factory producing Gemini providers.
func NewGeminiFactory(apiKey, baseURL string) Factory {
	return geminiFactory{apiKey: apiKey, baseURL: baseURL}
}

type geminiFactory struct {
	apiKey  string
	baseURL string
}

func (f geminiFactory) Name() string { return "gemini" }

func (f geminiFactory) Create(model string, opts Options) Provider {
	return &geminiProvider{model: model, apiKey: f.apiKey, baseURL: f.baseURL, client: &http.Client{}}
}

func (p *geminiProvider) Name() string { return "gemini" }

func (p *geminiProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *geminiProvider) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{{Name: p.model, Family: "gemini"}}, nil
}

func (p *geminiProvider) Stream(ctx context.Context, req ctxassembler.Request) (<-chan streamevent.Event, error) {
	body, err := json.Marshal(geminiRequest{
		SystemInstruction: systemInstructionFrom(req),
		Contents:          buildGeminiContents(req.Messages),
		Tools:             toGeminiTools(req.Tools),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	ch := make(chan streamevent.Event, 16)
	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse&key=%s",
		strings.TrimRight(p.baseURL, "/"), p.model, p.apiKey)
	cfg := httpRequestConfig{client: p.client, url: url, body: body, provider: "gemini", model: p.model}

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
		parseGeminiSSEStream(ctx, scanner, ch)
	}()

	return ch, nil
}
