// Package apperr defines the classified errors shared by the lookup client,
// the stores, and the sync engine. Callers branch on the Kind with errors.Is
// or KindOf instead of parsing message text.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindNoMatch            Kind = "no_match"
	KindServiceError       Kind = "service_error"
	KindInvalidRequest     Kind = "invalid_request"
	KindMalformedRecord    Kind = "malformed_record"
	KindStorageConflict    Kind = "storage_conflict"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindTimeout            Kind = "timeout"
	KindUnauthorized       Kind = "unauthorized"
	KindRateLimited        Kind = "rate_limited"
	KindNotConfigured      Kind = "not_configured"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrNoMatch            = &Error{Kind: KindNoMatch}
	ErrServiceError       = &Error{Kind: KindServiceError}
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest}
	ErrMalformedRecord    = &Error{Kind: KindMalformedRecord}
	ErrStorageConflict    = &Error{Kind: KindStorageConflict}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
	ErrNotConfigured      = &Error{Kind: KindNotConfigured}
)

// Error is a classified failure. Code is the upstream diagnostic code when
// one exists (a service message code, a driver error code).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Code != "" {
		msg += " (code " + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements errors.Unwrap.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a classified error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap classifies err. Context deadline and cancellation are always
// reported as KindTimeout regardless of the requested kind.
func Wrap(kind Kind, err error, message string) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Errorf creates a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindUnknown when there is none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// CodeOf returns the Code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
