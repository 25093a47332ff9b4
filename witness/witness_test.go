package witness

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark/frontend"
	"github.com/stretchr/testify/require"

	"github.com/eon-protocol/zkpipe/constraint"
)

type cubicCircuit struct {
	X frontend.Variable `gnark:"x"`
	Y frontend.Variable `gnark:"y,public"`
}

func (c *cubicCircuit) Define(api frontend.API) error {
	x3 := api.Mul(c.X, c.X, c.X)
	api.AssertIsEqual(c.Y, api.Add(x3, c.X, 5))
	return nil
}

type sumCircuit struct {
	Terms [3]frontend.Variable `gnark:"terms"`
	Total frontend.Variable    `gnark:"total,public"`
}

func (c *sumCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.Total, api.Add(c.Terms[0], c.Terms[1], c.Terms[2]))
	// forces a division when solving
	inv := api.Inverse(c.Terms[0])
	api.AssertIsEqual(api.Mul(inv, c.Terms[0]), 1)
	return nil
}

func compile(t *testing.T, circuit frontend.Circuit) *constraint.System {
	t.Helper()
	cs, err := constraint.Compile(circuit)
	require.NoError(t, err)
	return cs
}

func checkGates(t *testing.T, cs *constraint.System, w *Witness) {
	t.Helper()
	for i := range cs.Gates {
		res := cs.Gates[i].Eval(w.Values)
		require.Truef(t, res.IsZero(), "gate %d", i)
	}
}

func TestBindSatisfied(t *testing.T) {
	cs := compile(t, &cubicCircuit{})
	w, err := Bind(cs, &cubicCircuit{X: 3, Y: 35})
	require.NoError(t, err)
	require.True(t, w.Satisfied())
	require.Len(t, w.Values, cs.NbWires())
	require.Equal(t, fr.Vector{fr.NewElement(35)}, w.Public())
	checkGates(t, cs, w)
}

func TestBindLenientRecordsUnsatisfiedGates(t *testing.T) {
	cs := compile(t, &cubicCircuit{})
	w, err := Bind(cs, &cubicCircuit{X: 4, Y: 35})
	require.NoError(t, err)
	require.False(t, w.Satisfied())
	require.NotEmpty(t, w.Unsatisfied)
}

func TestBindStrict(t *testing.T) {
	cs := compile(t, &cubicCircuit{})
	_, err := Bind(cs, &cubicCircuit{X: 4, Y: 35}, Strict())
	require.ErrorIs(t, err, ErrUnsatisfied)
	var uerr *UnsatisfiableAssignment
	require.ErrorAs(t, err, &uerr)
	require.GreaterOrEqual(t, uerr.Gate, 0)

	_, err = Bind(cs, &cubicCircuit{X: 3, Y: 35}, Strict())
	require.NoError(t, err)
}

func TestBindMissingValue(t *testing.T) {
	cs := compile(t, &cubicCircuit{})
	_, err := Bind(cs, &cubicCircuit{X: 3})
	require.ErrorIs(t, err, ErrInvalidAssignment)
}

func TestFromMapMatchesBind(t *testing.T) {
	cs := compile(t, &cubicCircuit{})
	a, err := Bind(cs, &cubicCircuit{X: 3, Y: 35})
	require.NoError(t, err)
	b, err := FromMap(cs, map[string]any{"x": 3, "y": "35"})
	require.NoError(t, err)
	require.Equal(t, a.Values, b.Values)
}

func TestFromMapRejectsUnknownAndMissing(t *testing.T) {
	cs := compile(t, &cubicCircuit{})
	_, err := FromMap(cs, map[string]any{"x": 3, "y": 35, "z": 1})
	require.ErrorIs(t, err, ErrUnknownInput)

	_, err = FromMap(cs, map[string]any{"x": 3})
	require.ErrorIs(t, err, ErrMissingInput)

	_, err = FromMap(cs, map[string]any{"x": nil, "y": 35})
	require.ErrorIs(t, err, ErrInvalidAssignment)
}

func TestFromMapArrays(t *testing.T) {
	cs := compile(t, &sumCircuit{})

	w, err := FromMap(cs, map[string]any{"terms": []int{2, 3, 4}, "total": 9})
	require.NoError(t, err)
	require.True(t, w.Satisfied())
	checkGates(t, cs, w)

	w, err = FromMap(cs, map[string]any{"terms": [3]byte{2, 3, 4}, "total": 9})
	require.NoError(t, err)
	require.True(t, w.Satisfied())

	_, err = FromMap(cs, map[string]any{"terms": []int{2, 3}, "total": 5})
	require.ErrorIs(t, err, ErrInvalidAssignment)

	_, err = FromMap(cs, map[string]any{"terms": 1, "total": 5})
	require.ErrorIs(t, err, ErrInvalidAssignment)
}

func TestZeroDivisorIsUnsatisfied(t *testing.T) {
	cs := compile(t, &sumCircuit{})
	w, err := FromMap(cs, map[string]any{"terms": []int{0, 3, 4}, "total": 7})
	require.NoError(t, err)
	require.False(t, w.Satisfied())

	_, err = FromMap(cs, map[string]any{"terms": []int{0, 3, 4}, "total": 7}, Strict())
	require.ErrorIs(t, err, ErrUnsatisfied)
}
