// Package errors defines the failure taxonomy shared by the connection,
// backend and synchronization layers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Base error types
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrTransport     = errors.New("transport failure")
	ErrInvalidInput  = errors.New("invalid input")
	ErrStale         = errors.New("stale write")
	ErrTimeout       = errors.New("timeout")
	ErrNotConnected  = errors.New("not connected")
	ErrNotFound      = errors.New("not found")
	ErrSuperseded    = errors.New("superseded by a newer mutation")
	ErrTerminalState = errors.New("connection in terminal error state")
	ErrIllegalMove   = errors.New("illegal status transition")
)

// Kind is the category of a failure.
type Kind string

const (
	KindAuthentication   Kind = "authentication"
	KindTransport        Kind = "transport"
	KindValidation       Kind = "validation"
	KindPermissionDenied Kind = "permission_denied"
	KindConflict         Kind = "conflict"
	KindTimeout          Kind = "timeout"
)

// Error is a structured failure carrying a machine readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Op      string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, msg, e.Code)
	}
	return fmt.Sprintf("%s (%s)", msg, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is against the base error types.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	switch target {
	case ErrUnauthorized:
		return e.Kind == KindAuthentication
	case ErrForbidden:
		return e.Kind == KindPermissionDenied
	case ErrTransport:
		return e.Kind == KindTransport || e.Kind == KindTimeout
	case ErrInvalidInput:
		return e.Kind == KindValidation
	case ErrStale:
		return e.Kind == KindConflict
	case ErrTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

// New creates an Error of the given kind.
func New(kind Kind, op, code, message string) *Error {
	return &Error{Kind: kind, Op: op, Code: code, Message: message}
}

// Wrap wraps err into an Error of the given kind.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Code: defaultCode(kind), Err: err}
}

// PermissionDenied builds the error returned for a rejected permission check.
func PermissionDenied(op, reason string) *Error {
	return &Error{Kind: KindPermissionDenied, Op: op, Code: "PERMISSION_DENIED", Message: reason}
}

// Validation builds the error returned for a malformed request.
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Code: "VALIDATION_ERROR", Message: message}
}

// FromStatus maps an HTTP status and backend error envelope to an Error.
func FromStatus(op string, status int, code, message string, details map[string]interface{}) *Error {
	kind := KindTransport
	switch {
	case status == http.StatusUnauthorized:
		kind = KindAuthentication
	case status == http.StatusForbidden:
		kind = KindPermissionDenied
	case status == http.StatusConflict || status == http.StatusPreconditionFailed:
		kind = KindConflict
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = KindTimeout
	case status >= 400 && status < 500:
		kind = KindValidation
	}
	if code == "" {
		code = defaultCode(kind)
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Kind: kind, Op: op, Code: code, Message: message, Details: details}
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrUnauthorized):
		return KindAuthentication
	case errors.Is(err, ErrStale):
		return KindConflict
	}
	return ""
}

// CodeOf returns the machine readable code of err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if err == nil {
		return ""
	}
	return defaultCode(KindOf(err))
}

// IsRetryable reports whether err should be retried with backoff.
// Only transport and timeout failures are.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindTimeout:
		return true
	case "":
		return errors.Is(err, ErrTransport)
	}
	return false
}

// IsAuthError reports whether err is fatal to the connection.
func IsAuthError(err error) bool {
	return KindOf(err) == KindAuthentication
}

func defaultCode(kind Kind) string {
	switch kind {
	case KindAuthentication:
		return "AUTHENTICATION_ERROR"
	case KindTransport:
		return "TRANSPORT_ERROR"
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindPermissionDenied:
		return "PERMISSION_DENIED"
	case KindConflict:
		return "CONFLICT"
	case KindTimeout:
		return "TIMEOUT"
	}
	return "INTERNAL_ERROR"
}
