package turn

import (
	"encoding/json"

	"github.com/xonecas/tronrun/internal/streamevent"
)

// toolAccumulator reconstructs fully-formed tool calls from a stream of
// ToolCallStart/Delta/End events keyed by tool-call id, preserving the
// order calls first appeared in (§4.3 step 8's "each ToolUse block").
type toolAccumulator struct {
	order  []string
	names  map[string]string
	args   map[string]*[]byte
	finals map[string]*streamevent.ToolCall
}

func newToolAccumulator() *toolAccumulator {
	return &toolAccumulator{
		names:  make(map[string]string),
		args:   make(map[string]*[]byte),
		finals: make(map[string]*streamevent.ToolCall),
	}
}

func (a *toolAccumulator) start(id, name string) {
	if _, seen := a.names[id]; !seen {
		a.order = append(a.order, id)
	}
	a.names[id] = name
	buf := make([]byte, 0, 64)
	a.args[id] = &buf
}

func (a *toolAccumulator) delta(id, fragment string) {
	buf, ok := a.args[id]
	if !ok {
		return
	}
	*buf = append(*buf, fragment...)
}

func (a *toolAccumulator) end(id string, final *streamevent.ToolCall) {
	if final != nil {
		a.finals[id] = final
	}
}

// finalize returns the tool calls in start order. A call whose End event
// didn't supply a fully parsed result is reconstructed by parsing its
// concatenated argument fragments as JSON; an invalid concatenation yields
// an empty argument object rather than failing the turn (§4.3 edge case).
func (a *toolAccumulator) finalize() []streamevent.ToolCall {
	out := make([]streamevent.ToolCall, 0, len(a.order))
	for _, id := range a.order {
		if final, ok := a.finals[id]; ok {
			out = append(out, *final)
			continue
		}
		args := json.RawMessage("{}")
		if buf, ok := a.args[id]; ok && len(*buf) > 0 {
			if json.Valid(*buf) {
				args = json.RawMessage(*buf)
			}
		}
		out = append(out, streamevent.ToolCall{ID: id, Name: a.names[id], Arguments: args})
	}
	return out
}
