// Package stacerr defines the error taxonomy surfaced by the API.
package stacerr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	Validation    Kind = "ValidationError"
	NotFound      Kind = "NotFoundError"
	Conflict      Kind = "ConflictError"
	ForeignKey    Kind = "ForeignKeyError"
	Database      Kind = "DatabaseError"
	Configuration Kind = "ConfigurationError"
	Unavailable   Kind = "BackendUnavailable"
	Internal      Kind = "InternalError"
)

// Error carries a kind and a client-facing detail string.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Wrap(kind Kind, err error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func Validationf(format string, args ...any) error {
	return New(Validation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

// KindOf reports the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation, Database:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case ForeignKey:
		return http.StatusFailedDependency
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the kind and the detail safe to show a client.
// Configuration and internal failures never expose their detail.
func Public(err error) (Kind, string) {
	var e *Error
	if !errors.As(err, &e) {
		return Internal, "internal server error"
	}
	switch e.Kind {
	case Configuration, Internal:
		return e.Kind, "internal server error"
	case Unavailable:
		return e.Kind, "catalog backend unavailable"
	}
	if e.Detail == "" {
		return e.Kind, string(e.Kind)
	}
	return e.Kind, e.Detail
}
