// Package status defines the status vocabulary returned by every descriptor,
// primitive and stream entry point.
package status

import (
	"github.com/pkg/errors"
)

// Status is a result code. Success is represented by a nil error, the other
// codes are returned as errors (possibly wrapped with context).
type Status int

// Status codes.
const (
	Success Status = iota
	InvalidArgument
	OutOfMemory
	Unimplemented
	RuntimeError
)

// Error implements the error interface.
func (s Status) Error() string {
	return s.String()
}

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case InvalidArgument:
		return "invalid argument"
	case OutOfMemory:
		return "out of memory"
	case Unimplemented:
		return "unimplemented"
	case RuntimeError:
		return "runtime error"
	default:
		return "unknown status"
	}
}

// Errorf returns an error carrying status s and a formatted message.
func Errorf(s Status, format string, args ...any) error {
	return errors.Wrapf(s, format, args...)
}

// Of extracts the status carried by err. A nil error is Success and an error
// without a status is a RuntimeError.
func Of(err error) Status {
	if err == nil {
		return Success
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return RuntimeError
}
