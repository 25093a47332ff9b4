package constraint

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark/constraint"
	csbls12381 "github.com/consensys/gnark/constraint/bls12-381"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/scs"
	"github.com/consensys/gnark/logger"
)

// Compile turns a gnark circuit definition into a validated System.
func Compile(circuit frontend.Circuit, opts ...frontend.CompileOption) (*System, error) {
	ccs, err := frontend.Compile(FIELD, scs.NewBuilder, circuit, opts...)
	if err != nil {
		return nil, &CompileError{Gate: -1, Wire: NoWire, Reason: "frontend", Err: err}
	}
	return FromGnark(ccs)
}

// FromGnark imports a gnark sparse constraint system over BLS12-381.
// Commitments and hints are not supported: they need solver callbacks that the
// forward evaluator cannot reproduce.
func FromGnark(ccs constraint.ConstraintSystem) (*System, error) {
	spr, ok := ccs.(*csbls12381.SparseR1CS)
	if !ok {
		return nil, &CompileError{Gate: -1, Wire: NoWire, Reason: fmt.Sprintf("expected a bls12-381 sparse system, got %T", ccs), Err: ErrUnsupported}
	}
	if nc := len(spr.GetCommitments().CommitmentIndexes()); nc != 0 {
		return nil, &CompileError{Gate: -1, Wire: NoWire, Reason: fmt.Sprintf("%d commitments", nc), Err: ErrUnsupported}
	}
	if spr.GetNbPublicVariables() != len(spr.Public) || spr.GetNbSecretVariables() != len(spr.Secret) {
		return nil, &CompileError{Gate: -1, Wire: NoWire, Reason: "input names do not match input count"}
	}

	cs := &System{
		Public:   append([]string(nil), spr.Public...),
		Secret:   append([]string(nil), spr.Secret...),
		Internal: spr.GetNbInternalVariables(),
	}
	coeff := func(id uint32) fr.Element {
		return spr.Coefficients[id]
	}
	for _, c := range spr.GetSparseR1Cs() {
		g := Gate{
			L:  Wire(c.XA),
			R:  Wire(c.XB),
			O:  Wire(c.XC),
			QL: coeff(c.QL),
			QR: coeff(c.QR),
			QO: coeff(c.QO),
			QM: coeff(c.QM),
			QC: coeff(c.QC),
		}
		if g.QL.IsZero() && g.QM.IsZero() {
			g.L = NoWire
		}
		if g.QR.IsZero() && g.QM.IsZero() {
			g.R = NoWire
		}
		if g.QO.IsZero() {
			g.O = NoWire
		}
		cs.Gates = append(cs.Gates, g)
	}
	if err := cs.Validate(); err != nil {
		return nil, err
	}

	log := logger.Logger()
	log.Debug().
		Int("nbGates", len(cs.Gates)).
		Int("nbPublic", len(cs.Public)).
		Int("nbSecret", len(cs.Secret)).
		Int("nbInternal", cs.Internal).
		Msg("imported constraint system")
	return cs, nil
}

// Validate checks that every gate references declared wires and that every
// internal wire can be derived from the inputs by evaluating the gates in order.
func (cs *System) Validate() error {
	if cs.Internal < 0 {
		return gateError(-1, NoWire, "negative internal wire count")
	}
	seen := make(map[string]struct{}, cs.NbInputs())
	for _, names := range [][]string{cs.Public, cs.Secret} {
		for _, name := range names {
			if _, dup := seen[name]; dup {
				return gateError(-1, NoWire, "input %q declared twice", name)
			}
			seen[name] = struct{}{}
		}
	}

	nbWires := Wire(cs.NbWires())
	known := make([]bool, nbWires)
	for i := 0; i < cs.NbInputs(); i++ {
		known[i] = true
	}
	for i := range cs.Gates {
		g := &cs.Gates[i]
		for _, w := range [3]Wire{g.L, g.R, g.O} {
			if w != NoWire && w >= nbWires {
				return gateError(i, w, "undeclared wire")
			}
		}
		if !g.QM.IsZero() && (g.L == NoWire || g.R == NoWire) {
			return gateError(i, NoWire, "multiplication term with a missing operand")
		}
		if g.L == NoWire && g.R == NoWire && g.O == NoWire {
			if !g.QC.IsZero() {
				return gateError(i, NoWire, "constant gate can never hold")
			}
			continue
		}
		unknown := NoWire
		for _, w := range g.Wires() {
			if known[w] {
				continue
			}
			if unknown != NoWire {
				return gateError(i, w, "wire not derivable")
			}
			unknown = w
		}
		if unknown == NoWire {
			continue
		}
		if g.Quadratic(unknown) {
			return gateError(i, unknown, "gate is quadratic in its unknown wire")
		}
		known[unknown] = true
	}
	for w, ok := range known {
		if !ok {
			return gateError(-1, Wire(w), "internal wire never derived")
		}
	}
	return nil
}
