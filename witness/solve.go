package witness

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/eon-protocol/zkpipe/constraint"
)

// solve fills every internal wire of values by walking the gates in order.
// It returns the indices of the gates that do not hold.
func solve(cs *constraint.System, values fr.Vector, known []bool, strict bool) ([]int, error) {
	var unsatisfied []int
	fail := func(i int) error {
		if strict {
			return &UnsatisfiableAssignment{Gate: i}
		}
		unsatisfied = append(unsatisfied, i)
		return nil
	}
	for i := range cs.Gates {
		g := &cs.Gates[i]
		unknown := constraint.NoWire
		for _, w := range g.Wires() {
			if known[w] {
				continue
			}
			if unknown != constraint.NoWire {
				return nil, fmt.Errorf("%w: gate %d, wire %d", ErrNotDerivable, i, w)
			}
			unknown = w
		}
		if unknown == constraint.NoWire {
			if res := g.Eval(values); !res.IsZero() {
				if err := fail(i); err != nil {
					return nil, err
				}
			}
			continue
		}

		// The gate is affine in the unknown: f(u) = A·u + B.
		var b, a fr.Element
		values[unknown].SetZero()
		b = g.Eval(values)
		values[unknown].SetOne()
		a = g.Eval(values)
		a.Sub(&a, &b)
		known[unknown] = true
		if a.IsZero() {
			values[unknown].SetZero()
			if !b.IsZero() {
				if err := fail(i); err != nil {
					return nil, err
				}
			}
			continue
		}
		a.Inverse(&a)
		values[unknown].Mul(&b, &a).Neg(&values[unknown])
	}
	return unsatisfied, nil
}
