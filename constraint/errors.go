package constraint

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSystem = errors.New("invalid constraint system")
	ErrUnsupported   = errors.New("unsupported circuit feature")
	ErrVersion       = errors.New("unsupported encoding version")
)

// CompileError reports a malformed circuit. Gate is -1 and Wire is NoWire when
// the failure is not tied to a single gate or wire.
type CompileError struct {
	Gate   int
	Wire   Wire
	Reason string
	Err    error
}

func (e *CompileError) Error() string {
	msg := "compile: " + e.Reason
	if e.Gate >= 0 {
		msg += fmt.Sprintf(" (gate %d", e.Gate)
		if e.Wire != NoWire {
			msg += fmt.Sprintf(", wire %d", e.Wire)
		}
		msg += ")"
	} else if e.Wire != NoWire {
		msg += fmt.Sprintf(" (wire %d)", e.Wire)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CompileError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidSystem}
	}
	return []error{ErrInvalidSystem, e.Err}
}

func gateError(gate int, wire Wire, format string, args ...any) *CompileError {
	return &CompileError{Gate: gate, Wire: wire, Reason: fmt.Sprintf(format, args...)}
}
