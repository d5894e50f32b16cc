// Package apierr defines the error taxonomy that crosses the TerminalService
// façade boundary and its mapping onto HTTP status codes.
package apierr

import (
	"errors"
	"net/http"
)

// Kind classifies a façade-level error.
type Kind int

const (
	// Internal is the zero value: unclassified failure.
	Internal Kind = iota
	NotFound
	Closed
	BadRequest
	IoError
	SpawnFailed
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case Closed:
		return "Closed"
	case BadRequest:
		return "BadRequest"
	case IoError:
		return "IoError"
	case SpawnFailed:
		return "SpawnFailed"
	default:
		return "Internal"
	}
}

// Error is a Kind-tagged error carrying an operator-facing message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to Internal for any error
// that didn't originate from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps a Kind to the HTTP status code the control API returns.
func HTTPStatus(kind Kind) int {
	switch kind {
	case BadRequest:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Closed:
		return http.StatusConflict
	case IoError, SpawnFailed, Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
