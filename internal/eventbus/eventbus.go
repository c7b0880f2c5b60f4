// Package eventbus fans out persisted events and ephemeral runtime notices
// from the turn/agent runners to live subscribers (the RPC server's
// per-connection websocket writers), with session-scoped routing and an
// empty-session-id broadcast-to-all escape hatch (§4.8).
//
// Go has no direct equivalent of Tokio's broadcast channel, so the hub is
// built directly on bounded per-subscriber Go channels: a slow subscriber
// that can't keep up gets messages dropped rather than blocking the
// publisher, and the drop count is exposed on the subscription so a caller
// can log a lagged broadcast receiver the same way a Tokio-based stack would.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/xonecas/tronrun/internal/events"
)

// defaultBufferSize is the per-subscriber channel capacity.
const defaultBufferSize = 256

// Message is one item delivered to a subscriber: either a persisted event
// (Event set, Name empty) or an ephemeral notice (Name set, Event the zero
// value).
type Message struct {
	SessionID string
	Name      string
	Event     events.Event
	Payload   any
	Timestamp time.Time
}

// Subscription is a live feed of Messages for one connection. Unsubscribe
// must be called exactly once when the connection goes away.
type Subscription struct {
	C           <-chan Message
	Unsubscribe func()
	Lagged      func() int64
}

type subscriber struct {
	id        int64
	sessionID string // "" subscribes to every session's events
	ch        chan Message
	lagged    int64
}

// Hub is a broadcast hub routing messages by session id. The zero value is
// not usable; construct with New.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int64]*subscriber
	nextID  int64
	bufSize int
}

// New returns a ready Hub with the given per-subscriber buffer size (0 uses
// the default).
func New(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{subs: make(map[int64]*subscriber), bufSize: bufferSize}
}

// Subscribe registers a new listener. An empty sessionID subscribes to
// every session's events (the dashboard/admin case); a non-empty sessionID
// receives only that session's events plus any broadcast-to-all message.
func (h *Hub) Subscribe(sessionID string) *Subscription {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	sub := &subscriber{id: id, sessionID: sessionID, ch: make(chan Message, h.bufSize)}
	h.subs[id] = sub
	h.mu.Unlock()

	return &Subscription{
		C: sub.ch,
		Unsubscribe: func() {
			h.mu.Lock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.ch)
			}
			h.mu.Unlock()
		},
		Lagged: func() int64 { return atomic.LoadInt64(&sub.lagged) },
	}
}

// PublishEvent routes a persisted event to every subscriber bound to its
// session, or to all subscribers if the event carries no session id. It
// satisfies turn.Bus and agent.Bus.
func (h *Hub) PublishEvent(e events.Event) {
	h.publish(Message{SessionID: e.SessionID, Event: e, Timestamp: e.Timestamp})
}

// PublishNotice routes an ephemeral, non-persisted runtime notice (one with
// no home in the closed events.Type enum, e.g. "turn_start" or "api_retry")
// the same way PublishEvent routes persisted events. It satisfies turn.Bus
// and agent.Bus.
func (h *Hub) PublishNotice(sessionID, name string, payload any) {
	h.publish(Message{SessionID: sessionID, Name: name, Payload: payload, Timestamp: timeNow()})
}

func (h *Hub) publish(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if msg.SessionID != "" && sub.sessionID != "" && sub.sessionID != msg.SessionID {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			atomic.AddInt64(&sub.lagged, 1)
		}
	}
}

// Shutdown closes every live subscription's channel. Subsequent Subscribe
// calls still work; callers that want to stop accepting new subscriptions
// must stop calling Subscribe themselves.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}

var timeNow = time.Now
