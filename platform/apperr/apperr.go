// Package apperr carries error kinds from the CRM client and the pipeline core
// up to the board API, where httpkit turns them into status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is the category of an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindBadRequest
	KindConflict
	KindForbidden
	KindUnauthorized
	// KindBlocked is a refusal with no override path.
	KindBlocked
	KindTooManyRequests
	// KindUnavailable means the CRM could not be reached or answered with a
	// server error.
	KindUnavailable
	KindInternal
)

type kindInfo struct {
	name   string
	status int
}

var kinds = map[Kind]kindInfo{
	KindNotFound:        {"not_found", http.StatusNotFound},
	KindValidation:      {"validation", http.StatusBadRequest},
	KindBadRequest:      {"bad_request", http.StatusBadRequest},
	KindConflict:        {"conflict", http.StatusConflict},
	KindForbidden:       {"forbidden", http.StatusForbidden},
	KindUnauthorized:    {"unauthorized", http.StatusUnauthorized},
	KindBlocked:         {"blocked", http.StatusLocked},
	KindTooManyRequests: {"too_many_requests", http.StatusTooManyRequests},
	KindUnavailable:     {"unavailable", http.StatusBadGateway},
	KindInternal:        {"internal", http.StatusInternalServerError},
}

// String returns the snake_case name used in logs.
func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return "unknown"
}

// HTTPStatus returns the status code the board API answers with.
func (k Kind) HTTPStatus() int {
	if info, ok := kinds[k]; ok {
		return info.status
	}
	return http.StatusBadRequest
}

// Error is an error with a Kind. Message is safe to show to clients; Err is
// the cause and stays server side.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	Details any
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status code for the error's kind.
func (e *Error) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// WithDetails attaches a payload (field errors, for example) to the response.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error        { return New(KindNotFound, message) }
func BadRequest(message string) *Error      { return New(KindBadRequest, message) }
func Conflict(message string) *Error        { return New(KindConflict, message) }
func Forbidden(message string) *Error       { return New(KindForbidden, message) }
func Unauthorized(message string) *Error    { return New(KindUnauthorized, message) }
func Blocked(message string) *Error         { return New(KindBlocked, message) }
func TooManyRequests(message string) *Error { return New(KindTooManyRequests, message) }
func Unavailable(message string) *Error     { return New(KindUnavailable, message) }

// GetKind returns the kind of the first *Error in err's chain.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
