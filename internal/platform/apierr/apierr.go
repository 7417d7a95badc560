package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the HTTP-facing error shape. Summary is the short human-readable text shown
// to users; Err keeps the full diagnostic chain.
type Error struct {
	Status  int
	Code    string
	Summary string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Summary != "" {
		return e.Summary
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func WithSummary(status int, code, summary string, err error) *Error {
	return &Error{Status: status, Code: code, Summary: summary, Err: err}
}

// From extracts an *Error from err, defaulting to a 500 when none is wrapped.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae
	}
	return &Error{Status: http.StatusInternalServerError, Code: "internal_error", Err: err}
}
