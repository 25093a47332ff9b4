package zkpipe

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"math/rand/v2"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark/frontend"
	"github.com/stretchr/testify/require"

	"github.com/eon-protocol/zkpipe/circuits/preimage"
	"github.com/eon-protocol/zkpipe/constraint"
	"github.com/eon-protocol/zkpipe/gpu"
	"github.com/eon-protocol/zkpipe/witness"
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

// productCircuit has no public input.
type productCircuit struct {
	A frontend.Variable `gnark:"a"`
	B frontend.Variable `gnark:"b"`
}

func (c *productCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(api.Mul(c.A, c.B), 35)
	return nil
}

func setup(t *testing.T, circuit frontend.Circuit) (*Pk, *Vk) {
	t.Helper()
	cs, err := constraint.Compile(circuit)
	require.NoError(t, err)
	srs, err := NewDevSRS(SRSSize(cs), big.NewInt(424242))
	require.NoError(t, err)
	pk, vk, err := Setup(cs, srs)
	require.NoError(t, err)
	return pk, vk
}

func prove(t *testing.T, pk *Pk, assignment frontend.Circuit, opts ...ProverOption) (*Proof, fr.Vector) {
	t.Helper()
	w, err := witness.Bind(pk.ConstraintSystem(), assignment)
	require.NoError(t, err)
	proof, err := pk.Prove(w, opts...)
	require.NoError(t, err)
	return proof, w.Public()
}

func marshal(t *testing.T, proof *Proof) []byte {
	t.Helper()
	data, err := proof.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, PROOF_SIZE)
	return data
}

func TestPreimageScenarios(t *testing.T) {
	pk, vk := setup(t, &preimage.Circuit{})
	digest := preimage.Digest(fr.NewElement(189))

	proof, publics := prove(t, pk, preimage.Assignment(big.NewInt(189), digest))
	require.Equal(t, fr.Vector(preimage.Publics(digest)), publics)
	require.NoError(t, vk.Verify(proof, publics))
	require.NoError(t, vk.VerifyBytes(marshal(t, proof), publics))

	proof, publics = prove(t, pk, preimage.Assignment(big.NewInt(199), digest))
	err := vk.Verify(proof, publics)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrAlgebraicRelation) || errors.Is(err, ErrPairing), err)

	// H(189)+r is congruent to H(189) but is not its canonical encoding
	var forged [preimage.DIGEST_SIZE]byte
	v := new(big.Int).SetBytes(digest[:])
	v.Add(v, fr.Modulus()).FillBytes(forged[:])
	proof, publics = prove(t, pk, preimage.Assignment(big.NewInt(189), forged))
	require.Equal(t, fr.Vector(preimage.Publics(forged)), publics)
	require.Error(t, vk.Verify(proof, publics))
}

func TestCompleteness(t *testing.T) {
	pk, vk := setup(t, &cubicCircuit{})
	rng := rand.New(rand.NewPCG(3, 4))
	for range 4 {
		var x, y, x3 fr.Element
		x.SetUint64(rng.Uint64())
		x3.Square(&x).Mul(&x3, &x)
		y.Add(&x3, &x).Add(&y, new(fr.Element).SetUint64(5))
		proof, publics := prove(t, pk, &cubicCircuit{X: x.BigInt(new(big.Int)), Y: y.BigInt(new(big.Int))})
		require.NoError(t, vk.Verify(proof, publics))
	}

	pk, vk = setup(t, &productCircuit{})
	require.Zero(t, vk.NP)
	proof, publics := prove(t, pk, &productCircuit{A: 5, B: 7})
	require.Empty(t, publics)
	require.NoError(t, vk.Verify(proof, publics))
	proof, publics = prove(t, pk, &productCircuit{A: 5, B: 8})
	require.Error(t, vk.Verify(proof, publics))
}

func TestSoundness(t *testing.T) {
	pk, vk := setup(t, &cubicCircuit{})
	rng := rand.New(rand.NewPCG(5, 6))

	// wrong statements
	for range 4 {
		x := rng.Uint64N(1 << 20)
		proof, publics := prove(t, pk, &cubicCircuit{X: x, Y: x*x*x + x + 6})
		require.Error(t, vk.Verify(proof, publics))
	}

	proof, publics := prove(t, pk, &cubicCircuit{X: 3, Y: 35})
	data := marshal(t, proof)
	require.NoError(t, vk.VerifyBytes(data, publics))

	// a valid proof does not verify another statement
	other := fr.Vector{fr.NewElement(36)}
	require.Error(t, vk.VerifyBytes(data, other))
	require.ErrorIs(t, vk.VerifyBytes(data, nil), ErrPublicInputCount)

	// every evaluation is bound
	for i, s := range proof.scalars() {
		tampered := *proof
		tampered.scalars()[i].Add(s, new(fr.Element).SetOne())
		require.Error(t, vk.Verify(&tampered, publics), "scalar %d", i)
	}
	// every commitment is bound
	for i := range proof.points() {
		tampered := *proof
		p := tampered.points()[i]
		p.Add(p, &vk.Kzg.G1)
		require.Error(t, vk.Verify(&tampered, publics), "point %d", i)
	}
	// single bit flips
	for range 32 {
		flipped := bytes.Clone(data)
		flipped[rng.IntN(len(flipped))] ^= byte(1 << rng.IntN(8))
		require.Error(t, vk.VerifyBytes(flipped, publics))
	}
	// garbage of the right length
	garbage := make([]byte, PROOF_SIZE)
	for i := range garbage {
		garbage[i] = byte(rng.Uint32())
	}
	require.Error(t, vk.VerifyBytes(garbage, publics))
	require.Error(t, vk.VerifyBytes(make([]byte, PROOF_SIZE), publics))
}

func TestSeededProofs(t *testing.T) {
	pk, vk := setup(t, &cubicCircuit{})
	assignment := &cubicCircuit{X: 3, Y: 35}

	a, _ := prove(t, pk, assignment, WithSeed([]byte("seed")))
	b, _ := prove(t, pk, assignment, WithSeed([]byte("seed")))
	c, _ := prove(t, pk, assignment, WithSeed([]byte("other seed")))
	d, publics := prove(t, pk, assignment)
	e, _ := prove(t, pk, assignment)

	require.Equal(t, marshal(t, a), marshal(t, b))
	require.NotEqual(t, marshal(t, a), marshal(t, c))
	require.NotEqual(t, marshal(t, d), marshal(t, e))
	for _, p := range []*Proof{a, c, d, e} {
		require.NoError(t, vk.Verify(p, publics))
	}

	_, err := NewProverConfig(WithSeed(nil))
	require.Error(t, err)
}

func TestProveErrors(t *testing.T) {
	pk, _ := setup(t, &cubicCircuit{})
	w, err := witness.Bind(pk.ConstraintSystem(), &cubicCircuit{X: 3, Y: 35})
	require.NoError(t, err)

	short := &witness.Witness{Values: w.Values[:len(w.Values)-1], NbPublic: w.NbPublic}
	_, err = pk.Prove(short)
	require.ErrorIs(t, err, ErrWitnessSize)

	_, err = pk.Prove(w, WithAccelerator("tpu"))
	require.ErrorIs(t, err, ErrAccelerator)

	if !gpu.HasIcicle {
		_, err = pk.Prove(w, WithIcicleAcceleration())
		require.ErrorIs(t, err, ErrAccelerator)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pk.ProveContext(ctx, w)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecodeRejectsMalformedProofs(t *testing.T) {
	pk, _ := setup(t, &cubicCircuit{})
	proof, _ := prove(t, pk, &cubicCircuit{X: 3, Y: 35})
	data := marshal(t, proof)

	decoded, err := ParseProof(data)
	require.NoError(t, err)
	require.Equal(t, data, marshal(t, decoded))

	var de *DecodeError

	_, err = ParseProof(data[:PROOF_SIZE-1])
	require.ErrorIs(t, err, ErrMalformedProof)

	// scalar equal to r
	bad := bytes.Clone(data)
	modulus := fr.Modulus().FillBytes(make([]byte, fr.Bytes))
	copy(bad[OFFSET_EVALS+2*SCALAR_SIZE:], modulus)
	_, err = ParseProof(bad)
	require.ErrorAs(t, err, &de)
	require.Equal(t, OFFSET_EVALS+2*SCALAR_SIZE, de.Offset)

	// (1, 0) is not on the curve
	bad = bytes.Clone(data)
	clear(bad[OFFSET_Z : OFFSET_Z+POINT_SIZE])
	bad[OFFSET_Z+POINT_SIZE/2-1] = 1
	_, err = ParseProof(bad)
	require.ErrorAs(t, err, &de)
	require.Equal(t, OFFSET_Z, de.Offset)

	// coordinate above p
	bad = bytes.Clone(data)
	for i := range POINT_SIZE / 2 {
		bad[OFFSET_W+i] = 0xff
	}
	_, err = ParseProof(bad)
	require.ErrorIs(t, err, ErrMalformedProof)

	var p Proof
	_, err = p.ReadFrom(bytes.NewReader(data[:10]))
	require.ErrorIs(t, err, ErrMalformedProof)
	_, err = p.ReadFrom(bytes.NewReader(data))
	require.NoError(t, err)
}
