package transform

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedInput = errors.New("entity type not supported by transform")
	ErrInvalidOutput    = errors.New("transform returned invalid output types")
	ErrUnknownTransform = errors.New("unknown transform")
)

// TransformError is returned by Execute for every failed run.
type TransformError struct {
	Transform string
	EntityID  uuid.UUID
	Err       error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s failed on entity %s: %v", e.Transform, e.EntityID, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// PartialError marks a run that failed after producing entities. The
// produced entities are returned alongside the error.
type PartialError struct {
	Produced int
	Err      error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("partial result with %d entities: %v", e.Produced, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// IsPartial reports whether err carries a partial result.
func IsPartial(err error) bool {
	var partial *PartialError
	return errors.As(err, &partial)
}
