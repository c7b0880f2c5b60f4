package rpcserver

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/xonecas/tronrun/internal/eventbridge"
	"github.com/xonecas/tronrun/internal/eventbus"
)

// Conn is one client's live connection: the underlying JSON-RPC transport
// plus whichever sessions it has bound (§4.8). Handlers reach Conn through
// MethodFunc's second argument to bind/unbind sessions and to read which
// sessions are currently bound.
type Conn struct {
	hub *eventbus.Hub

	mu   sync.Mutex
	rpc  *jsonrpc2.Conn
	subs map[string]*eventbus.Subscription // sessionID -> live subscription
}

func newConn(hub *eventbus.Hub) *Conn {
	return &Conn{hub: hub, subs: make(map[string]*eventbus.Subscription)}
}

func (c *Conn) bind(rpc *jsonrpc2.Conn) {
	c.mu.Lock()
	c.rpc = rpc
	c.mu.Unlock()
}

// BindSession subscribes this connection to sessionID's event traffic. An
// empty sessionID subscribes to every session (the broadcast/admin case).
// Calling BindSession again for a sessionID already bound is a no-op.
func (c *Conn) BindSession(sessionID string) {
	c.bindSession(sessionID)
}

func (c *Conn) bindSession(sessionID string) {
	c.mu.Lock()
	if _, ok := c.subs[sessionID]; ok {
		c.mu.Unlock()
		return
	}
	sub := c.hub.Subscribe(sessionID)
	c.subs[sessionID] = sub
	rpc := c.rpc
	c.mu.Unlock()

	go c.pump(rpc, sub)
}

// UnbindSession stops routing sessionID's events to this connection.
func (c *Conn) UnbindSession(sessionID string) {
	c.mu.Lock()
	sub, ok := c.subs[sessionID]
	if ok {
		delete(c.subs, sessionID)
	}
	c.mu.Unlock()
	if ok {
		sub.Unsubscribe()
	}
}

// BoundSessions returns the session ids this connection currently receives
// live events for.
func (c *Conn) BoundSessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for id := range c.subs {
		out = append(out, id)
	}
	return out
}

func (c *Conn) pump(rpc *jsonrpc2.Conn, sub *eventbus.Subscription) {
	for msg := range sub.C {
		if lagged := sub.Lagged(); lagged > 0 {
			log.Warn().Int64("dropped", lagged).Str("session_id", msg.SessionID).Msg("rpcserver: subscriber lagging, events dropped")
		}
		wire := eventbridge.Translate(msg)
		if err := rpc.Notify(context.Background(), "event", wire); err != nil {
			return
		}
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*eventbus.Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
