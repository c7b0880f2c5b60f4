package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/tronrun/internal/streamevent"
)

// sseRetryDelays bounds the initial-connection retry schedule shared by
// every adapter.
var sseRetryDelays = []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}

// httpRequestConfig holds the parameters of one SSE POST request.
type httpRequestConfig struct {
	client   *http.Client
	url      string
	body     []byte
	headers  map[string]string
	provider string
	model    string
}

// httpDoSSE executes an HTTP POST for SSE streaming, retrying transient
// (429/5xx, connection) failures on the initial connection per
// sseRetryDelays, emitting a Retry stream event for every attempt after
// the first so subscribers can surface retry/backoff UI.
func httpDoSSE(ctx context.Context, cfg httpRequestConfig, ch chan<- streamevent.Event) (io.ReadCloser, error) {
	maxRetries := len(sseRetryDelays)
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := sseRetryDelays[attempt-1]
			trySend(ctx, ch, streamevent.Event{
				Type: streamevent.Retry, Attempt: attempt, MaxAttempt: maxRetries,
				DelayMs: int(delay.Milliseconds()),
				RetryError: &streamevent.ErrorInfo{Category: "transient", Message: lastErr.Error(), IsRetryable: true},
			})
			log.Warn().Str("provider", cfg.provider).Int("attempt", attempt).Dur("delay", delay).Msg("retrying SSE connection")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			log.Info().Str("provider", cfg.provider).Str("model", cfg.model).Msg("SSE stream request started")
		}

		body, err, retry := sseAttempt(ctx, cfg, attempt)
		if err != nil {
			return nil, err
		}
		if retry != nil {
			lastErr = retry
			continue
		}
		return body, nil
	}

	return nil, fmt.Errorf("SSE request failed after %d retries: %w", maxRetries, lastErr)
}

func isTransientStatus(code int) bool {
	return code == 429 || code == 500 || code == 502 || code == 503 || code == 504
}

func sseAttempt(ctx context.Context, cfg httpRequestConfig, attempt int) (io.ReadCloser, error, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.url, bytes.NewReader(cfg.body))
	if err != nil {
		return nil, err, nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range cfg.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := cfg.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err, nil
		}
		return nil, nil, err
	}

	if isTransientStatus(resp.StatusCode) {
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		retryErr := fmt.Errorf("stream request status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		log.Warn().Str("provider", cfg.provider).Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("SSE retryable error")
		return nil, nil, retryErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("stream request status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))), nil
	}

	return resp.Body, nil, nil
}

// trySend sends evt on ch, aborting if ctx is cancelled.
func trySend(ctx context.Context, ch chan<- streamevent.Event, evt streamevent.Event) bool {
	select {
	case ch <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}
