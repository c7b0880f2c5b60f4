package rpcserver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/xonecas/tronrun/internal/runtimeerr"
)

// Registry maps JSON-RPC method names to handlers.
type Registry struct {
	methods map[string]MethodFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]MethodFunc)}
}

// Register adds fn under name, overwriting any existing registration.
func (reg *Registry) Register(name string, fn MethodFunc) {
	reg.methods[name] = fn
}

// RegisterUnavailable registers every name in names to fail with
// NOT_AVAILABLE, for method families named out of scope (§1 non-goals:
// task/project/area CRUD, transcription, skills, memory-ledger content,
// rules discovery). The registry shape stays complete even though these
// families have no backing store.
func (reg *Registry) RegisterUnavailable(names ...string) {
	for _, name := range names {
		name := name
		reg.methods[name] = func(context.Context, *Conn, json.RawMessage) (any, error) {
			return nil, runtimeerr.New(runtimeerr.KindNotAvailable, name)
		}
	}
}

func (reg *Registry) lookup(name string) (MethodFunc, bool) {
	fn, ok := reg.methods[name]
	return fn, ok
}

// domainStubs lists the dotted-prefix method families this runtime's method
// surface registers but never implements.
var domainStubs = []string{
	"tasks", "projects", "areas", "memory", "skill", "settings", "transcribe",
	"tree",
}

// IsOutOfScopeDomain reports whether method belongs to one of the method
// families excluded by non-goal, independent of whether it happens to be
// registered.
func IsOutOfScopeDomain(method string) bool {
	prefix, _, ok := strings.Cut(method, ".")
	if !ok {
		return false
	}
	for _, d := range domainStubs {
		if d == prefix {
			return true
		}
	}
	return false
}
