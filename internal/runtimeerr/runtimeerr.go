// Package runtimeerr defines the runtime's closed error-kind taxonomy and
// the stable codes it maps to at the RPC boundary (§7).
package runtimeerr

import (
	"errors"
	"fmt"
)

// Kind is a closed classification of runtime failures.
type Kind string

const (
	KindInvalidParams   Kind = "invalid_params"
	KindNotFound        Kind = "not_found"
	KindSessionNotFound Kind = "session_not_found"
	KindSessionBusy     Kind = "session_busy"
	KindStorage         Kind = "storage"
	KindCorruptRow      Kind = "corrupt_row"
	KindProvider        Kind = "provider"
	KindTool            Kind = "tool"
	KindGuardrailBlock  Kind = "guardrail_block"
	KindHookBlock       Kind = "hook_block"
	KindInternal        Kind = "internal"
	KindNotAvailable    Kind = "not_available"
	KindCanceled        Kind = "canceled"
)

// Code is the stable RPC-facing error code a Kind maps to.
type Code string

const (
	CodeInvalidParams   Code = "INVALID_PARAMS"
	CodeNotFound        Code = "NOT_FOUND"
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	CodeSessionBusy     Code = "SESSION_BUSY"
	CodeInternal        Code = "INTERNAL"
	CodeNotAvailable    Code = "NOT_AVAILABLE"
)

// codeForKind maps every Kind to the stable RPC code its failures surface
// as. Kinds not meant to cross the RPC boundary directly (e.g. KindCanceled)
// still fall back to CodeInternal rather than an empty string.
var codeForKind = map[Kind]Code{
	KindInvalidParams:   CodeInvalidParams,
	KindNotFound:        CodeNotFound,
	KindSessionNotFound: CodeSessionNotFound,
	KindSessionBusy:     CodeSessionBusy,
	KindStorage:         CodeInternal,
	KindCorruptRow:      CodeInternal,
	KindProvider:        CodeInternal,
	KindTool:            CodeInternal,
	KindGuardrailBlock:  CodeInvalidParams,
	KindHookBlock:       CodeInvalidParams,
	KindInternal:        CodeInternal,
	KindNotAvailable:    CodeNotAvailable,
	KindCanceled:        CodeInternal,
}

// Error is the runtime's single structured error type.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind, preserving cause for
// errors.Unwrap/errors.Is chains.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails returns a copy of e with Details set.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Code returns the stable RPC error code for e.Kind.
func (e *Error) Code() Code {
	if c, ok := codeForKind[e.Kind]; ok {
		return c
	}
	return CodeInternal
}

// CodeFor returns the stable RPC error code for any error. Errors that are
// not *Error map to CodeInternal.
func CodeFor(err error) Code {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Code()
	}
	return CodeInternal
}
