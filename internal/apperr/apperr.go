// Package apperr defines the error categories shared by the backend and the
// client packages. Every error that crosses a component boundary is either an
// *Error or wraps one, so callers can branch on Kind without string matching.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindAuthRequired       Kind = "AuthRequired"
	KindForbidden          Kind = "Forbidden"
	KindNotFound           Kind = "NotFound"
	KindValidation         Kind = "ValidationError"
	KindPlanLimitExceeded  Kind = "PlanLimitExceeded"
	KindEditLimitExceeded  Kind = "EditLimitExceeded"
	KindTokenAlreadyUsed   Kind = "TokenAlreadyUsed"
	KindTokenExpired       Kind = "TokenExpired"
	KindRateLimited        Kind = "RateLimited"
	KindStorageUnavailable Kind = "StorageUnavailable"
	KindUnknown            Kind = "Unknown"
)

// Error is a categorized error. Fields lists offending request fields for
// validation failures.
type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the sentinels below can be used
// with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrAuthRequired       = &Error{Kind: KindAuthRequired}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrPlanLimitExceeded  = &Error{Kind: KindPlanLimitExceeded}
	ErrEditLimitExceeded  = &Error{Kind: KindEditLimitExceeded}
	ErrTokenAlreadyUsed   = &Error{Kind: KindTokenAlreadyUsed}
	ErrTokenExpired       = &Error{Kind: KindTokenExpired}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable}
)

// New returns an *Error of the given kind.
func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Validation builds a ValidationError naming the offending fields.
func Validation(msg string, fields ...string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// KindOf reports the category of err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ParseKind maps a wire category back to a Kind. Unrecognized values map to
// KindUnknown.
func ParseKind(s string) Kind {
	switch k := Kind(s); k {
	case KindAuthRequired, KindForbidden, KindNotFound, KindValidation,
		KindPlanLimitExceeded, KindEditLimitExceeded, KindTokenAlreadyUsed,
		KindTokenExpired, KindRateLimited, KindStorageUnavailable:
		return k
	}
	return KindUnknown
}

// HTTPStatus maps a kind to the status code the API responds with.
func HTTPStatus(k Kind) int {
	switch k {
	case KindAuthRequired:
		return http.StatusUnauthorized
	case KindForbidden, KindPlanLimitExceeded, KindEditLimitExceeded:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindTokenAlreadyUsed, KindTokenExpired:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindStorageUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// FromStatus is the client-side inverse of HTTPStatus, used when a response
// body carries no category.
func FromStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindAuthRequired
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusServiceUnavailable:
		return KindStorageUnavailable
	}
	return KindUnknown
}
