package classify

import (
	"errors"
	"fmt"
)

// ErrInvalidInput matches every malformed-vector error returned by Select.
var ErrInvalidInput = errors.New("classify: invalid input")

// ErrEmptyVector is returned when a vector has no entries.
var ErrEmptyVector = fmt.Errorf("%w: empty prediction vector", ErrInvalidInput)

// ProbabilityError reports an entry whose probability is outside [0,1].
type ProbabilityError struct {
	Index       int
	ClassName   string
	Probability float64
}

// Error implements the error interface.
func (e *ProbabilityError) Error() string {
	return fmt.Sprintf("classify: invalid input: probability %v of %q (index %d) outside [0,1]",
		e.Probability, e.ClassName, e.Index)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ProbabilityError) Unwrap() error {
	return ErrInvalidInput
}
