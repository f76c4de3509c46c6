// Package synapseerr defines the error taxonomy shared by every component
// of the runtime (spec §7). Every cross-component error is constructed
// through Wrap so that the originating Kind survives layer after layer of
// %w-wrapping instead of decaying into an opaque string.
package synapseerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies the taxonomy bucket an error belongs to, independent of
// which component raised it.
type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindInvalidState     Kind = "invalid_state"
	KindNotFound         Kind = "not_found"
	KindBackpressure     Kind = "backpressure"
	KindCancelled        Kind = "cancelled"
	KindTimeout          Kind = "timeout"
	KindRateLimited      Kind = "rate_limited"
	KindReasoningService Kind = "reasoning_service_error"
	KindTool             Kind = "tool_error"
	KindPlugin           Kind = "plugin_error"
	KindExecutionFailed  Kind = "execution_failed"
	KindInternal         Kind = "internal"
)

// Error is the concrete type every component returns. It carries a Kind, a
// human-readable message, the wrapped cause (if any), and optional
// structured detail (e.g. RetryAfter for KindRateLimited).
type Error struct {
	Kind       Kind
	Component  string
	Message    string
	Cause      error
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Component, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Component, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, synapseerr.New(component, KindTimeout, msg)) style checks
// by comparing Kind alone, matching the taxonomy rather than identity.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs a bare Error with no wrapped cause.
func New(component string, kind Kind, message string) *Error {
	return &Error{Component: component, Kind: kind, Message: message}
}

// Wrap constructs an Error that preserves cause for unwrapping while
// attaching a Kind and component-scoped context, per spec §7's
// "wrapped, not converted into opaque strings" propagation policy.
func Wrap(component string, kind Kind, cause error, message string) *Error {
	return &Error{Component: component, Kind: kind, Message: message, Cause: cause}
}

// RateLimited builds the KindRateLimited variant carrying retry_after.
func RateLimited(component string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Component:  component,
		Message:    "rate limited",
		RetryAfter: retryAfter,
	}
}

// KindOf extracts the taxonomy Kind of err, walking the unwrap chain.
// Returns KindInternal for errors that never originated from this package,
// since an unclassified error is itself a bug signal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return KindInternal
}

// Is reports whether err is, or wraps, an Error of the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
