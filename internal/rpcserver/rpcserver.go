// Package rpcserver exposes the session-event runtime over a JSON-RPC 2.0
// method registry running on a full-duplex websocket transport (§4.8). A
// Server upgrades incoming HTTP connections, dispatches requests to
// registered methods, and bridges internal/eventbus traffic back to
// whichever sessions a connection has bound.
package rpcserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/jsonrpc2"
	wsstream "github.com/sourcegraph/jsonrpc2/websocket"

	"github.com/xonecas/tronrun/internal/eventbridge"
	"github.com/xonecas/tronrun/internal/eventbus"
	"github.com/xonecas/tronrun/internal/ids"
	"github.com/xonecas/tronrun/internal/runtimeerr"
)

// MethodFunc handles one RPC call. params is the request's raw params
// object (nil if the call carried none); the returned value is marshaled
// as the result.
type MethodFunc func(ctx context.Context, conn *Conn, params json.RawMessage) (any, error)

// Server dispatches JSON-RPC requests arriving over websocket connections
// and bridges event traffic back out to them.
type Server struct {
	hub      *eventbus.Hub
	registry *Registry
	upgrader websocket.Upgrader
}

// New returns a Server dispatching through registry and bridging hub.
func New(hub *eventbus.Hub, registry *Registry) *Server {
	return &Server{
		hub:      hub,
		registry: registry,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// ServeHTTP upgrades the request to a websocket and serves one JSON-RPC
// connection until the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("rpcserver: websocket upgrade failed")
		return
	}

	clientID := ids.New()
	conn := newConn(s.hub)

	rpcConn := jsonrpc2.NewConn(r.Context(), wsstream.NewObjectStream(wsConn),
		jsonrpc2.HandlerWithError(func(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
			return s.dispatch(ctx, conn, req)
		}))
	conn.bind(rpcConn)
	conn.bindSession("")

	connected := eventbridge.Event{
		Type:      "system.connected",
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Data:      mustMarshal(map[string]any{"clientId": clientID}),
	}
	rpcConn.Notify(r.Context(), "event", connected)

	<-rpcConn.DisconnectNotify()
	conn.close()
}

func (s *Server) dispatch(ctx context.Context, conn *Conn, req *jsonrpc2.Request) (any, error) {
	fn, ok := s.registry.lookup(req.Method)
	if !ok {
		return nil, &jsonrpc2.Error{Code: codeMethodNotFound, Message: "method not found: " + req.Method}
	}

	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}

	result, err := fn(ctx, conn, params)
	if err != nil {
		return nil, toJSONRPCError(err)
	}
	return result, nil
}

const codeMethodNotFound = -32601

var numericCodeByErrorCode = map[runtimeerr.Code]int64{
	runtimeerr.CodeInvalidParams:   -32001,
	runtimeerr.CodeNotFound:        -32002,
	runtimeerr.CodeSessionNotFound: -32003,
	runtimeerr.CodeSessionBusy:     -32004,
	runtimeerr.CodeNotAvailable:    -32005,
	runtimeerr.CodeInternal:        -32000,
}

// toJSONRPCError maps a runtime error onto a JSON-RPC error object,
// carrying the runtime's own stable string code in Data so clients that
// want the §7 code set don't have to reverse-engineer it from the numeric
// JSON-RPC code.
func toJSONRPCError(err error) *jsonrpc2.Error {
	code := runtimeerr.CodeFor(err)
	num, ok := numericCodeByErrorCode[code]
	if !ok {
		num = numericCodeByErrorCode[runtimeerr.CodeInternal]
	}
	data := mustMarshal(map[string]any{"code": string(code)})
	return &jsonrpc2.Error{Code: num, Message: err.Error(), Data: &data}
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}
