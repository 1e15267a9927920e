package planner

import (
	"errors"
	"fmt"
)

// transientError marks a failure worth retrying: network trouble, rate
// limiting, server-side errors. Anything else (bad request, bad key,
// malformed response) fails the call immediately.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transientf(format string, args ...interface{}) error {
	return &transientError{err: fmt.Errorf(format, args...)}
}

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
