// Package hasher is a width-2 Poseidon2 hash over the BLS12-381 scalar field.
// The gadget and the native functions compute the same values.
package hasher

import (
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr/poseidon2"
	"github.com/consensys/gnark/frontend"
)

// round keys as circuit constants, arranged as [round][lane]
var roundKeys = sync.OnceValue(func() [][]big.Int {
	params := poseidon2.NewParametersWithSeed(WIDTH, ROUND_FULL, ROUND_PARTIAL, SEED)
	res := make([][]big.Int, len(params.RoundKeys))
	for i := range res {
		res[i] = make([]big.Int, len(params.RoundKeys[i]))
		for j := range res[i] {
			params.RoundKeys[i][j].BigInt(&res[i][j])
		}
	}
	return res
})

// Gadget emits the permutation as plain gates, so every intermediate wire is
// derivable by forward evaluation.
type Gadget struct {
	api frontend.API
}

func New(api frontend.API) *Gadget {
	return &Gadget{api: api}
}

// x⁵
func (h *Gadget) sBox(x frontend.Variable) frontend.Variable {
	x2 := h.api.Mul(x, x)
	x4 := h.api.Mul(x2, x2)
	return h.api.Mul(x4, x)
}

// circ(2, 1)
func (h *Gadget) external(s *[WIDTH]frontend.Variable) {
	sum := h.api.Add(s[0], s[1])
	s[0] = h.api.Add(s[0], sum)
	s[1] = h.api.Add(s[1], sum)
}

// [[2, 1], [1, 3]]
func (h *Gadget) internal(s *[WIDTH]frontend.Variable) {
	sum := h.api.Add(s[0], s[1])
	s[0] = h.api.Add(s[0], sum)
	s[1] = h.api.Add(h.api.Mul(s[1], 2), sum)
}

func (h *Gadget) addRoundKey(round int, s *[WIDTH]frontend.Variable) {
	for i, k := range roundKeys()[round] {
		s[i] = h.api.Add(s[i], k)
	}
}

// Permute applies the Poseidon2 permutation to s.
func (h *Gadget) Permute(s [WIDTH]frontend.Variable) [WIDTH]frontend.Variable {
	h.external(&s)
	half := ROUND_FULL / 2
	for r := 0; r < half; r++ {
		h.addRoundKey(r, &s)
		for i := range s {
			s[i] = h.sBox(s[i])
		}
		h.external(&s)
	}
	for r := half; r < half+ROUND_PARTIAL; r++ {
		h.addRoundKey(r, &s)
		s[0] = h.sBox(s[0])
		h.internal(&s)
	}
	for r := half + ROUND_PARTIAL; r < ROUND_FULL+ROUND_PARTIAL; r++ {
		h.addRoundKey(r, &s)
		for i := range s {
			s[i] = h.sBox(s[i])
		}
		h.external(&s)
	}
	return s
}

// Compress returns perm(left, right)[1] + right, as HashCompress does.
func (h *Gadget) Compress(left, right frontend.Variable) frontend.Variable {
	s := h.Permute([WIDTH]frontend.Variable{left, right})
	return h.api.Add(s[1], right)
}

// Sum folds vals into Compress starting from zero, as HashSum does.
func (h *Gadget) Sum(vals ...frontend.Variable) frontend.Variable {
	var acc frontend.Variable = 0
	for _, v := range vals {
		acc = h.Compress(acc, v)
	}
	return acc
}
