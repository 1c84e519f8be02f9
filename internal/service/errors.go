package service

import (
	"errors"
	"fmt"
)

// Code classifies a service error so callers can branch programmatically
// instead of parsing messages.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeBusinessRule Code = "business_rule"
	CodeForbidden    Code = "forbidden"
	CodeUnsupported  Code = "unsupported"
)

// Error is a structured service error with a machine-readable code and
// optional contextual details.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// With attaches a contextual detail and returns the error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// NewError builds a service error with a formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound builds the uniform absent-or-foreign-tenant error. Callers
// must not be able to distinguish the two cases.
func ErrNotFound(entity string) *Error {
	return NewError(CodeNotFound, "%s not found", entity)
}

// IsCode reports whether err carries the given service error code.
func IsCode(err error, code Code) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == code
}
