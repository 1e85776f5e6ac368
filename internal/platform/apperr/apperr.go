// Package apperr defines the error kinds shared by every domain service and
// their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthenticationRequired
	KindForbidden
	KindConflict
	KindValidation
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindAuthenticationRequired:
		return "authentication_required"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a classified error. Fields carries per-field detail for
// validation failures.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind: errors.Is(err, apperr.ErrConflict).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrAuthenticationRequired = &Error{Kind: KindAuthenticationRequired}
	ErrForbidden              = &Error{Kind: KindForbidden}
	ErrConflict               = &Error{Kind: KindConflict}
	ErrValidation             = &Error{Kind: KindValidation}
	ErrNotFound               = &Error{Kind: KindNotFound}
)

func AuthenticationRequired(msg string) error {
	return &Error{Kind: KindAuthenticationRequired, Message: msg}
}

func Forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Validation returns a validation error. fields may be nil.
func Validation(msg string, fields map[string]string) error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// Field is shorthand for a single-field validation error.
func Field(field, msg string) error {
	return Validation(field+": "+msg, map[string]string{field: msg})
}

// Wrap classifies err under kind, keeping it in the chain.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var statusByKind = map[Kind]int{
	KindAuthenticationRequired: http.StatusUnauthorized,
	KindForbidden:              http.StatusForbidden,
	KindConflict:               http.StatusConflict,
	KindValidation:             http.StatusBadRequest,
	KindNotFound:               http.StatusNotFound,
}

// HTTP converts err into an echo.HTTPError. Internal errors are reported
// with a generic message; the cause is kept as the internal error so the
// request logger still records it.
func HTTP(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	status := statusByKind[e.Kind]
	if e.Kind == KindValidation && len(e.Fields) > 0 {
		return echo.NewHTTPError(status, map[string]interface{}{
			"error":  e.Message,
			"fields": e.Fields,
		})
	}
	return echo.NewHTTPError(status, e.Message)
}
