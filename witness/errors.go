package witness

import (
	"errors"
	"fmt"
)

var (
	ErrUnsatisfied       = errors.New("assignment does not satisfy the constraint system")
	ErrInvalidAssignment = errors.New("invalid assignment")
	ErrUnknownInput      = errors.New("unknown input")
	ErrMissingInput      = errors.New("missing input")
	ErrNotDerivable      = errors.New("wire not derivable")
)

// UnsatisfiableAssignment is returned in strict mode for the first gate that
// does not hold once every wire is known.
type UnsatisfiableAssignment struct {
	Gate int
}

func (e *UnsatisfiableAssignment) Error() string {
	return fmt.Sprintf("gate %d does not hold", e.Gate)
}

func (e *UnsatisfiableAssignment) Unwrap() error {
	return ErrUnsatisfied
}
