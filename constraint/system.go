// Package constraint holds the arithmetic-circuit intermediate form used by the
// prover: an ordered list of PLONK gates over numbered wires.
//
// Wires are laid out as public inputs first, then secret inputs, then internal
// (derived) wires. Every gate has the form
//
//	qL·a + qR·b + qO·c + qM·a·b + qC = 0
//
// where a, b, c are the values of the wires in the L, R and O slots.
package constraint

import (
	"math"
	"math/bits"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

var FIELD = ecc.BLS12_381.ScalarField()

// MinDomainSize is the smallest evaluation domain used for any system.
const MinDomainSize = 8

type Wire uint32

// NoWire marks a gate slot whose terms are all zero.
const NoWire Wire = math.MaxUint32

type Gate struct {
	L, R, O            Wire
	QL, QR, QO, QM, QC fr.Element
}

// Eval returns the gate polynomial evaluated on values. Unused slots count as zero.
func (g *Gate) Eval(values []fr.Element) fr.Element {
	var a, b, c, res, tmp fr.Element
	if g.L != NoWire {
		a = values[g.L]
	}
	if g.R != NoWire {
		b = values[g.R]
	}
	if g.O != NoWire {
		c = values[g.O]
	}
	res.Mul(&g.QL, &a)
	res.Add(&res, tmp.Mul(&g.QR, &b))
	res.Add(&res, tmp.Mul(&g.QO, &c))
	res.Add(&res, tmp.Mul(&g.QM, &a).Mul(&tmp, &b))
	res.Add(&res, &g.QC)
	return res
}

// Wires returns the distinct wires used by the gate in slot order.
func (g *Gate) Wires() []Wire {
	ws := make([]Wire, 0, 3)
	for _, w := range [3]Wire{g.L, g.R, g.O} {
		if w == NoWire {
			continue
		}
		dup := false
		for _, v := range ws {
			dup = dup || v == w
		}
		if !dup {
			ws = append(ws, w)
		}
	}
	return ws
}

// Quadratic reports whether the gate is quadratic in w.
func (g *Gate) Quadratic(w Wire) bool {
	return g.L == w && g.R == w && !g.QM.IsZero()
}

type System struct {
	Public   []string
	Secret   []string
	Internal int
	Gates    []Gate
}

func (cs *System) NbPublic() int { return len(cs.Public) }
func (cs *System) NbSecret() int { return len(cs.Secret) }
func (cs *System) NbInputs() int { return len(cs.Public) + len(cs.Secret) }
func (cs *System) NbWires() int  { return cs.NbInputs() + cs.Internal }

// DomainSize is the size n of the multiplicative subgroup holding the trace:
// one row per public input, one row per gate, padded to a power of two.
func (cs *System) DomainSize() uint64 {
	rows := uint64(len(cs.Public) + len(cs.Gates))
	if rows < MinDomainSize {
		rows = MinDomainSize
	}
	if rows&(rows-1) == 0 {
		return rows
	}
	return 1 << bits.Len64(rows)
}

type Size struct {
	Gates  int `json:"gates"`
	Wires  int `json:"wires"`
	Public int `json:"public"`
	Secret int `json:"secret"`
	Domain int `json:"domain"`
}

// Size reports the circuit dimensions.
func (cs *System) Size() Size {
	return Size{
		Gates:  len(cs.Gates),
		Wires:  cs.NbWires(),
		Public: len(cs.Public),
		Secret: len(cs.Secret),
		Domain: int(cs.DomainSize()),
	}
}

// Lookup returns the wire carrying the input called name.
func (cs *System) Lookup(name string) (Wire, bool) {
	for i, v := range cs.Public {
		if v == name {
			return Wire(i), true
		}
	}
	for i, v := range cs.Secret {
		if v == name {
			return Wire(len(cs.Public) + i), true
		}
	}
	return NoWire, false
}
