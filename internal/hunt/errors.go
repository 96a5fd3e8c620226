package hunt

import (
	"errors"
	"fmt"
)

// ErrNoCandidate is returned when a generator produced no usable hypothesis.
var ErrNoCandidate = errors.New("no candidate hypothesis produced")

// ValidationError reports invalid input to the engine
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
}

// GenerationError wraps a failure of the generation callback for one attempt
type GenerationError struct {
	Attempt int
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation attempt %d failed: %v", e.Attempt, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
