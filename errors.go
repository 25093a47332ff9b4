package zkpipe

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedProof    = errors.New("malformed proof")
	ErrInvalidSRS        = errors.New("invalid reference string")
	ErrPublicInputCount  = errors.New("wrong number of public inputs")
	ErrPublicInputRange  = errors.New("public input not in field")
	ErrNotInSubgroup     = errors.New("G1 not in sub group")
	ErrVanishingZeta     = errors.New("evaluation point is a root of unity")
	ErrAlgebraicRelation = errors.New("algebraic relation does not hold")
	ErrPairing           = errors.New("pairing check failed")
	ErrWitnessSize       = errors.New("witness does not match the constraint system")
	ErrAccelerator       = errors.New("unknown accelerator")
)

// DecodeError reports malformed proof bytes. It always means rejection.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode proof at byte %d: %s", e.Offset, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return ErrMalformedProof
}

// SetupError aborts key setup.
type SetupError struct {
	Reason string
	Err    error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return "setup: " + e.Reason + ": " + e.Err.Error()
	}
	return "setup: " + e.Reason
}

func (e *SetupError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidSRS}
	}
	return []error{ErrInvalidSRS, e.Err}
}
