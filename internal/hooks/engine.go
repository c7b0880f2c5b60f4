package hooks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Handler runs one hook against ctx and returns its verdict.
type Handler func(ctx context.Context, hc Context) (Result, error)

// registration pairs a hook's static Info with its Handler.
type registration struct {
	info    Info
	handler Handler
}

// defaultTimeout bounds a forced-blocking hook when Info.TimeoutMs is unset.
const defaultTimeout = 5 * time.Second

// backgroundHardTimeout bounds every background (PostToolUse, fire-and-forget)
// hook regardless of Info.TimeoutMs (§4.5 "PostToolUse hooks... 30s hard
// timeout").
const backgroundHardTimeout = 30 * time.Second

// Engine registers and runs hooks by type, in descending-priority order,
// bounding blocking work with a context.WithTimeout + select idiom shared
// by every subsystem in this runtime that retries or times out I/O.
type Engine struct {
	mu             sync.RWMutex
	byTyp          map[Type][]registration
	defaultTimeout time.Duration
}

// NewEngine returns an empty hook engine, using defaultTimeout for a
// forced-blocking hook that sets no Info.TimeoutMs.
func NewEngine() *Engine {
	return &Engine{byTyp: make(map[Type][]registration), defaultTimeout: defaultTimeout}
}

// SetDefaultTimeout overrides the engine's fallback blocking-hook timeout
// (e.g. from config.HooksConfig.TimeoutOrDefault()). Ignored if d <= 0.
func (e *Engine) SetDefaultTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	e.defaultTimeout = d
	e.mu.Unlock()
}

// Register adds a hook, keeping each type's slice sorted descending by
// priority (higher priority runs first).
func (e *Engine) Register(info Info, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := append(e.byTyp[info.HookType], registration{info: info, handler: handler})
	sort.SliceStable(list, func(i, j int) bool { return list[i].info.Priority > list[j].info.Priority })
	e.byTyp[info.HookType] = list
}

// Run executes every hook registered for hc.HookType.
//
// Forced-blocking types (and any hook explicitly declared ModeBlocking) run
// synchronously in priority order; the first Block or Modify result short
// circuits the remaining hooks and is returned immediately. A handler that
// errors or times out is treated as Continue (fail-open), so an auxiliary
// hook can never wedge the main request path.
//
// Background hooks are launched fire-and-forget with a hard 30s timeout and
// their results are only logged, never returned to the caller.
func (e *Engine) Run(ctx context.Context, hc Context) Result {
	e.mu.RLock()
	regs := append([]registration(nil), e.byTyp[hc.HookType]...)
	e.mu.RUnlock()

	forced := hc.HookType.IsForcedBlocking()

	for _, r := range regs {
		blocking := forced || r.info.ExecutionMode == ModeBlocking
		if !blocking {
			e.runBackground(r, hc)
			continue
		}

		result := e.runBlocking(ctx, r, hc)
		if result.Action == ActionBlock || result.Action == ActionModify {
			return result
		}
	}
	return ContinueResult()
}

func (e *Engine) runBlocking(ctx context.Context, r registration, hc Context) Result {
	e.mu.RLock()
	timeout := e.defaultTimeout
	e.mu.RUnlock()
	if r.info.TimeoutMs > 0 {
		timeout = time.Duration(r.info.TimeoutMs) * time.Millisecond
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.handler(cctx, hc)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			log.Warn().Err(o.err).Str("hook", r.info.Name).Str("hookType", string(r.info.HookType)).
				Msg("hooks: blocking hook failed, continuing")
			return ContinueResult()
		}
		return o.result
	case <-cctx.Done():
		log.Warn().Str("hook", r.info.Name).Str("hookType", string(r.info.HookType)).
			Msg("hooks: blocking hook timed out, continuing")
		return ContinueResult()
	}
}

func (e *Engine) runBackground(r registration, hc Context) {
	go func() {
		cctx, cancel := context.WithTimeout(context.Background(), backgroundHardTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			_, err := r.handler(cctx, hc)
			done <- err
		}()

		select {
		case err := <-done:
			if err != nil {
				log.Warn().Err(err).Str("hook", r.info.Name).Msg("hooks: background hook failed")
			}
		case <-cctx.Done():
			log.Warn().Str("hook", r.info.Name).Msg("hooks: background hook hit hard timeout")
		}
	}()
}
