package analyzer

import (
	"errors"
	"fmt"
	"net/http"
)

// invalidArgumentError carries a message meant for the client (400).
type invalidArgumentError struct{ msg string }

func (e invalidArgumentError) Error() string   { return e.msg }
func (e invalidArgumentError) StatusCode() int { return http.StatusBadRequest }

// ErrInvalidArgument formats a client error.
func ErrInvalidArgument(format string, args ...any) error {
	return invalidArgumentError{msg: fmt.Sprintf(format, args...)}
}

// ErrMissingField reports an absent required request field.
func ErrMissingField(name string) error {
	return invalidArgumentError{msg: "Missing field: " + name}
}

// IsInvalidArgument reports whether err should map to 400.
func IsInvalidArgument(err error) bool {
	var e invalidArgumentError
	return errors.As(err, &e)
}

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ modelID string }

func (e tooBusyError) Error() string   { return "too busy: " + e.modelID }
func (e tooBusyError) StatusCode() int { return http.StatusTooManyRequests }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// notLoadedError means no model is available to serve the request.
type notLoadedError struct{}

func (notLoadedError) Error() string   { return "model not loaded" }
func (notLoadedError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrNotLoaded is returned by every operation on a nil or closed Analyzer.
var ErrNotLoaded error = notLoadedError{}

// IsNotLoaded reports whether err means the model is unavailable.
func IsNotLoaded(err error) bool {
	var e notLoadedError
	return errors.As(err, &e)
}

// StatusCode returns the HTTP status for err, or 500 when err has none.
func StatusCode(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}
