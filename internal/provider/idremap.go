package provider

import (
	"strconv"
	"strings"

	"github.com/xonecas/tronrun/internal/content"
	"github.com/xonecas/tronrun/internal/events"
)

// Anthropic rejects tool_use/tool_result ids that don't look like its own
// "toolu_…" format. When a message history built against one provider is
// replayed against Anthropic (subagent handoff, provider failover mid-run),
// every foreign id needs a stable Anthropic-shaped substitute on the way in
// and the original restored on the way out.
const anthropicRemapPrefix = "toolu_remap_"

// IDRemapper rewrites foreign tool-call ids to Anthropic-shaped ones and
// remembers the mapping so results can be matched back to the original ids
// used elsewhere in the run (event log, other provider adapters).
type IDRemapper struct {
	toRemapped map[string]string
	toOriginal map[string]string
	next       int
}

// NewIDRemapper returns an empty remapper.
func NewIDRemapper() *IDRemapper {
	return &IDRemapper{toRemapped: make(map[string]string), toOriginal: make(map[string]string)}
}

// looksAnthropicNative reports whether id already matches Anthropic's own
// "toolu_" id shape and needs no substitute.
func looksAnthropicNative(id string) bool {
	return strings.HasPrefix(id, "toolu_")
}

// Remap returns an Anthropic-shaped id for a foreign id, assigning a new
// one on first sight and returning the same substitute on every later call
// for that id. Native Anthropic ids pass through unchanged.
func (r *IDRemapper) Remap(originalID string) string {
	if originalID == "" || looksAnthropicNative(originalID) {
		return originalID
	}
	if remapped, ok := r.toRemapped[originalID]; ok {
		return remapped
	}
	remapped := anthropicRemapPrefix + strconv.Itoa(r.next)
	r.next++
	r.toRemapped[originalID] = remapped
	r.toOriginal[remapped] = originalID
	return remapped
}

// Restore reverses Remap: given an id that may be one of this remapper's
// substitutes, returns the original foreign id, or id unchanged if it was
// never remapped.
func (r *IDRemapper) Restore(id string) string {
	if original, ok := r.toOriginal[id]; ok {
		return original
	}
	return id
}

// RemapMessagesForAnthropic rewrites every tool_use/tool_result id in messages destined
// for Anthropic, returning a new slice that leaves the input untouched so
// the reconstructed event-log messages are never mutated in place.
func RemapMessagesForAnthropic(r *IDRemapper, messages []events.Message) []events.Message {
	out := make([]events.Message, len(messages))
	for i, m := range messages {
		nm := m
		if m.ToolCallID != "" {
			nm.ToolCallID = r.Remap(m.ToolCallID)
		}
		if len(m.Blocks) > 0 {
			nm.Blocks = make([]content.Block, len(m.Blocks))
			for j, b := range m.Blocks {
				nb := b
				if nb.ToolCallID != "" {
					nb.ToolCallID = r.Remap(nb.ToolCallID)
				}
				nm.Blocks[j] = nb
			}
		}
		out[i] = nm
	}
	return out
}

// RestoreToolCallID reverses a remap on a single id, for translating a
// freshly streamed Anthropic tool_use id back to the id the rest of the
// run (event log, other adapters) already knows it by. Ids Anthropic
// assigned itself are returned unchanged since they were never remapped.
func RestoreToolCallID(r *IDRemapper, id string) string {
	return r.Restore(id)
}
