// Package apperr defines the error taxonomy shared by tools, providers and transports.
//
// Every failure that can cross the tool boundary is an *Error with a Kind. Sentinels below match any
// *Error of the same kind through errors.Is, so callers can test the category without string matching.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidArguments    Kind = "InvalidArguments"
	KindUnknownTool         Kind = "UnknownTool"
	KindProvider            Kind = "ProviderError"
	KindNoActiveRecording   Kind = "NoActiveRecording"
	KindCallEnded           Kind = "CallEnded"
	KindEmptyInput          Kind = "EmptyInput"
	KindInvalidLength       Kind = "InvalidLength"
	KindNotFound            Kind = "NotFound"
	KindToolExecutionFailed Kind = "ToolExecutionFailed"
	KindInternal            Kind = "InternalError"
)

var (
	ErrInvalidArguments    = &Error{Kind: KindInvalidArguments}
	ErrUnknownTool         = &Error{Kind: KindUnknownTool}
	ErrProvider            = &Error{Kind: KindProvider}
	ErrNoActiveRecording   = &Error{Kind: KindNoActiveRecording}
	ErrCallEnded           = &Error{Kind: KindCallEnded}
	ErrEmptyInput          = &Error{Kind: KindEmptyInput}
	ErrInvalidLength       = &Error{Kind: KindInvalidLength}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrToolExecutionFailed = &Error{Kind: KindToolExecutionFailed}
)

// Error is a categorised failure. Message is safe to show to the agent; Err keeps the cause chain.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil || e == nil {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the outermost kind in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return KindInternal
}

// CauseOf returns the innermost categorised kind, skipping ToolExecutionFailed wrappers.
func CauseOf(err error) Kind {
	kind := KindInternal
	for err != nil {
		if e, ok := err.(*Error); ok && e != nil && e.Kind != KindToolExecutionFailed {
			kind = e.Kind
		}
		err = errors.Unwrap(err)
	}
	return kind
}
