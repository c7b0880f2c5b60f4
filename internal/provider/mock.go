package provider

import (
	"context"
	"sync"
	"time"

	"github.com/xonecas/tronrun/internal/content"
	"github.com/xonecas/tronrun/internal/ctxassembler"
	"github.com/xonecas/tronrun/internal/streamevent"
)

// MockProvider streams a predefined sequence of events, for exercising the
// turn/agent runners without a live vendor connection.
type MockProvider struct {
	mu sync.RWMutex

	name      string
	response  string
	toolCalls []streamevent.ToolCall
	streamErr error
	delay     time.Duration
}

// NewMock creates a mock provider that streams response as a single text
// block followed by Done.
func NewMock(name, response string) *MockProvider {
	return &MockProvider{name: name, response: response}
}

// MockFactory produces MockProviders, ignoring the requested model name.
type MockFactory struct {
	name     string
	response string
}

// NewMockFactory returns a Factory that always builds the same MockProvider.
func NewMockFactory(name, response string) *MockFactory {
	return &MockFactory{name: name, response: response}
}

func (f *MockFactory) Name() string { return f.name }

func (f *MockFactory) Create(model string, opts Options) Provider {
	return NewMock(f.name, f.response)
}

// WithStreamError makes Stream fail immediately with err.
func (p *MockProvider) WithStreamError(err error) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamErr = err
	return p
}

// WithToolCalls makes Stream emit these tool calls after the text response.
func (p *MockProvider) WithToolCalls(calls []streamevent.ToolCall) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toolCalls = calls
	return p
}

// WithResponse replaces the text the mock streams back.
func (p *MockProvider) WithResponse(response string) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.response = response
	return p
}

// SetDelay makes Stream block for delay before producing any event.
func (p *MockProvider) SetDelay(delay time.Duration) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = delay
	return p
}

func (p *MockProvider) Name() string { return p.name }

func (p *MockProvider) Close() error { return nil }

func (p *MockProvider) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{{Name: p.name + "-mock"}}, nil
}

// Stream replays the configured response, tool calls, and error as a
// unified event sequence on a buffered channel, closing it when done.
func (p *MockProvider) Stream(ctx context.Context, req ctxassembler.Request) (<-chan streamevent.Event, error) {
	if err := p.waitDelay(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	streamErr := p.streamErr
	response := p.response
	toolCalls := p.toolCalls
	p.mu.RUnlock()

	if streamErr != nil {
		return nil, streamErr
	}

	ch := make(chan streamevent.Event, len(toolCalls)*3+4)
	go func() {
		defer close(ch)

		trySend(ctx, ch, streamevent.Event{Type: streamevent.Start})

		var blocks []content.Block
		if response != "" {
			trySend(ctx, ch, streamevent.Event{Type: streamevent.TextStart})
			trySend(ctx, ch, streamevent.Event{Type: streamevent.TextDelta, Delta: response})
			trySend(ctx, ch, streamevent.Event{Type: streamevent.TextEnd})
			blocks = append(blocks, content.NewText(response))
		}

		for _, tc := range toolCalls {
			tc := tc
			trySend(ctx, ch, streamevent.Event{Type: streamevent.ToolCallStart, ToolCallID: tc.ID, ToolName: tc.Name})
			trySend(ctx, ch, streamevent.Event{Type: streamevent.ToolCallDelta, ToolCallID: tc.ID, ArgsDelta: string(tc.Arguments)})
			trySend(ctx, ch, streamevent.Event{Type: streamevent.ToolCallEnd, ToolCallID: tc.ID, ToolName: tc.Name, ToolCallFinal: &tc})
			blocks = append(blocks, content.NewToolUse(tc.ID, tc.Name, tc.Arguments))
		}

		stopReason := streamevent.StopEndTurn
		if len(toolCalls) > 0 {
			stopReason = streamevent.StopToolUse
		}
		trySend(ctx, ch, streamevent.Event{
			Type:       streamevent.Done,
			StopReason: stopReason,
			Final:      &streamevent.FinalMessage{Blocks: blocks},
			Usage:      &streamevent.Usage{InputTokens: 0, OutputTokens: 0},
		})
	}()

	return ch, nil
}

func (p *MockProvider) waitDelay(ctx context.Context) error {
	p.mu.RLock()
	delay := p.delay
	p.mu.RUnlock()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
