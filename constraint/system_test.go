package constraint

import (
	"bytes"
	"errors"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark/frontend"
	"github.com/stretchr/testify/require"
)

type cubicCircuit struct {
	X frontend.Variable `gnark:"x"`
	Y frontend.Variable `gnark:"y,public"`
}

// x**3 + x + 5 == y
func (c *cubicCircuit) Define(api frontend.API) error {
	x3 := api.Mul(c.X, c.X, c.X)
	api.AssertIsEqual(c.Y, api.Add(x3, c.X, 5))
	return nil
}

type committedCircuit struct {
	X frontend.Variable `gnark:",public"`
}

func (c *committedCircuit) Define(api frontend.API) error {
	_, err := api.(frontend.Committer).Commit(c.X)
	return err
}

type bitsCircuit struct {
	X frontend.Variable
}

func (c *bitsCircuit) Define(api frontend.API) error {
	api.ToBinary(c.X, 8)
	return nil
}

func TestCompileCubic(t *testing.T) {
	cs, err := Compile(&cubicCircuit{})
	require.NoError(t, err)
	require.Equal(t, []string{"y"}, cs.Public)
	require.Equal(t, []string{"x"}, cs.Secret)
	require.NotEmpty(t, cs.Gates)
	require.NoError(t, cs.Validate())

	size := cs.Size()
	require.Equal(t, len(cs.Gates), size.Gates)
	require.Equal(t, cs.NbWires(), size.Wires)
	require.GreaterOrEqual(t, size.Domain, size.Public+size.Gates)
	require.Zero(t, size.Domain&(size.Domain-1))

	w, ok := cs.Lookup("x")
	require.True(t, ok)
	require.Equal(t, Wire(1), w)
	_, ok = cs.Lookup("z")
	require.False(t, ok)
}

func TestCompileIsDeterministic(t *testing.T) {
	a, err := Compile(&cubicCircuit{})
	require.NoError(t, err)
	b, err := Compile(&cubicCircuit{})
	require.NoError(t, err)
	da, err := a.Digest()
	require.NoError(t, err)
	db, err := b.Digest()
	require.NoError(t, err)
	require.Equal(t, da, db)
}

func TestCompileRejectsUnsupported(t *testing.T) {
	_, err := Compile(&committedCircuit{})
	require.ErrorIs(t, err, ErrInvalidSystem)
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = Compile(&bitsCircuit{})
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	require.GreaterOrEqual(t, cerr.Gate, 0)
}

func TestMarshalRoundTrip(t *testing.T) {
	cs, err := Compile(&cubicCircuit{})
	require.NoError(t, err)

	data, err := cs.MarshalBinary()
	require.NoError(t, err)

	var back System
	require.NoError(t, back.UnmarshalBinary(data))
	require.Equal(t, cs.Public, back.Public)
	require.Equal(t, cs.Secret, back.Secret)
	require.Equal(t, cs.Internal, back.Internal)
	require.Equal(t, cs.Gates, back.Gates)

	again, err := back.MarshalBinary()
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, again))

	var buf bytes.Buffer
	_, err = cs.WriteTo(&buf)
	require.NoError(t, err)
	var fromReader System
	_, err = fromReader.ReadFrom(&buf)
	require.NoError(t, err)
	require.Equal(t, cs.Gates, fromReader.Gates)
}

func TestUnmarshalRejectsNonCanonicalCoefficient(t *testing.T) {
	cs := &System{
		Secret: []string{"x"},
		Gates:  []Gate{{L: 0, R: NoWire, O: NoWire, QL: fr.One()}},
	}
	data, err := cs.MarshalBinary()
	require.NoError(t, err)

	one := fr.One()
	canonical := one.Bytes()
	modulus := fr.Modulus().FillBytes(make([]byte, fr.Bytes))
	idx := bytes.Index(data, canonical[:])
	require.GreaterOrEqual(t, idx, 0)
	tampered := append([]byte(nil), data...)
	copy(tampered[idx:], modulus)

	var back System
	err = back.UnmarshalBinary(tampered)
	require.ErrorIs(t, err, ErrInvalidSystem)

	require.Error(t, back.UnmarshalBinary(data[:len(data)-1]))
}

func TestValidate(t *testing.T) {
	var one, minusOne fr.Element
	one.SetOne()
	minusOne.Neg(&one)

	tests := []struct {
		name string
		cs   System
		ok   bool
	}{
		{
			name: "derives internal wire",
			cs: System{
				Public:   []string{"a"},
				Internal: 1,
				Gates:    []Gate{{L: 0, R: 0, O: 1, QM: one, QO: minusOne}},
			},
			ok: true,
		},
		{
			name: "undeclared wire",
			cs: System{
				Public: []string{"a"},
				Gates:  []Gate{{L: 0, R: NoWire, O: 5, QL: one, QO: minusOne}},
			},
		},
		{
			name: "two unknown wires",
			cs: System{
				Public:   []string{"a"},
				Internal: 2,
				Gates:    []Gate{{L: 1, R: NoWire, O: 2, QL: one, QO: minusOne}},
			},
		},
		{
			name: "quadratic unknown",
			cs: System{
				Internal: 1,
				Gates:    []Gate{{L: 0, R: 0, O: NoWire, QM: one, QC: minusOne}},
			},
		},
		{
			name: "free internal wire",
			cs: System{
				Public:   []string{"a"},
				Internal: 1,
				Gates:    []Gate{{L: 0, R: NoWire, O: NoWire, QL: one}},
			},
		},
		{
			name: "constant gate",
			cs: System{
				Gates: []Gate{{L: NoWire, R: NoWire, O: NoWire, QC: one}},
			},
		},
		{
			name: "duplicate input",
			cs: System{
				Public: []string{"a"},
				Secret: []string{"a"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cs.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidSystem))
		})
	}
}

func TestGateEval(t *testing.T) {
	var one, minusOne fr.Element
	one.SetOne()
	minusOne.Neg(&one)
	// a*b - c = 0
	g := Gate{L: 0, R: 1, O: 2, QM: one, QO: minusOne}
	values := []fr.Element{fr.NewElement(3), fr.NewElement(5), fr.NewElement(15)}
	res := g.Eval(values)
	require.True(t, res.IsZero())

	values[2] = fr.NewElement(16)
	res = g.Eval(values)
	require.False(t, res.IsZero())
	require.Equal(t, []Wire{0, 1, 2}, g.Wires())
}

func TestUnderivedInternalWire(t *testing.T) {
	var one fr.Element
	one.SetOne()
	cs := System{
		Public:   []string{"a"},
		Internal: 2,
		Gates:    []Gate{{L: 0, R: NoWire, O: 1, QL: one, QO: one}},
	}
	var ce *CompileError
	require.ErrorAs(t, cs.Validate(), &ce)
	require.Equal(t, Wire(2), ce.Wire)
	require.Equal(t, -1, ce.Gate)
}
