package helper

import (
	"fmt"
	"strings"
)

// Error wraps an error with the chain of operations it passed through.
type Error struct {
	Original error
	Trace    []string
}

// NewError wraps err with the given operation. Wrapping an *Error again
// appends the operation to the existing trace instead of nesting.
func NewError(operation string, err error) error {
	if err == nil {
		return nil
	}

	if e, ok := err.(*Error); ok {
		trace := make([]string, len(e.Trace), len(e.Trace)+1)
		copy(trace, e.Trace)
		return &Error{
			Original: e.Original,
			Trace:    append(trace, operation),
		}
	}

	return &Error{
		Original: err,
		Trace:    []string{operation},
	}
}

// Error returns the trace (outermost first) followed by the original error.
func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Trace))
	for i := len(e.Trace) - 1; i >= 0; i-- {
		parts = append(parts, e.Trace[i])
	}
	return fmt.Sprintf("%s: %v", strings.Join(parts, ": "), e.Original)
}

// Unwrap returns the original error for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Original
}
