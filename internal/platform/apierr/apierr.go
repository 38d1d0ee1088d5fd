package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error carries an HTTP status, a stable machine code, and the wrapped
// cause. Handlers map it straight onto the response envelope.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
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

// Retryable reports whether the caller should retry after a short
// delay. The conflict family covers lock contention and preconditions
// that are not met yet, both of which clear on their own.
func (e *Error) Retryable() bool {
	return e != nil && e.Status == http.StatusConflict
}

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// IsRetryable unwraps to the nearest Error and asks it.
func IsRetryable(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Retryable()
}
