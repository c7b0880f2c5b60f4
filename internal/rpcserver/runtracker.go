package rpcserver

import (
	"context"
	"sync"
)

// runTracker records which sessions currently have an active agent.prompt
// run in flight, so model.switch can reject with SESSION_BUSY and
// agent.abort/agent.getState have something to act on (§6.2).
type runTracker struct {
	mu     sync.Mutex
	cancel map[string]context.CancelFunc
}

func newRunTracker() *runTracker {
	return &runTracker{cancel: make(map[string]context.CancelFunc)}
}

// start marks sessionID busy and returns a context a caller should run the
// agent loop under, plus false if the session was already busy.
func (t *runTracker) start(ctx context.Context, sessionID string) (context.Context, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.cancel[sessionID]; busy {
		return nil, false
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel[sessionID] = cancel
	return runCtx, true
}

// finish clears sessionID's busy state. Safe to call even if never started.
func (t *runTracker) finish(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cancel, sessionID)
}

// abort cancels sessionID's active run, if any, and reports whether one was
// found.
func (t *runTracker) abort(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cancel, ok := t.cancel[sessionID]
	if !ok {
		return false
	}
	cancel()
	delete(t.cancel, sessionID)
	return true
}

func (t *runTracker) isBusy(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, busy := t.cancel[sessionID]
	return busy
}
