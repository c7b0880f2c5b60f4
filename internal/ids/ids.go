// Package ids generates stable identifiers for runtime entities.
package ids

import "github.com/google/uuid"

// New returns a fresh random identifier.
func New() string {
	return uuid.NewString()
}

// NewWithPrefix returns a fresh identifier prefixed per the conventions used
// by provider tool-call ids (e.g. "toolu_", "call_").
func NewWithPrefix(prefix string) string {
	return prefix + uuid.NewString()
}
