// Package spanerr defines the error returned when a span's attributes cannot
// be turned into metadata.
package spanerr

import "errors"

// UnprocessableEntityError reports a data shape problem in one span. It is
// not retryable.
type UnprocessableEntityError struct {
	Message string
	Err     error
}

func (e *UnprocessableEntityError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *UnprocessableEntityError) Unwrap() error {
	return e.Err
}

// Unprocessable returns an UnprocessableEntityError with message.
func Unprocessable(message string) error {
	return &UnprocessableEntityError{Message: message}
}

// Wrap returns an UnprocessableEntityError carrying err as its cause. An err
// that already is an UnprocessableEntityError keeps its own message after the
// new one.
func Wrap(message string, err error) error {
	return &UnprocessableEntityError{Message: message, Err: err}
}

// IsUnprocessable reports whether err (or anything it wraps) is an
// UnprocessableEntityError.
func IsUnprocessable(err error) bool {
	var target *UnprocessableEntityError
	return errors.As(err, &target)
}
