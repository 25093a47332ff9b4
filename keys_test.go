package zkpipe

import (
	"bytes"
	"context"
	"io"
	"math/big"
	"path/filepath"
	"testing"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"
	"github.com/stretchr/testify/require"

	"github.com/eon-protocol/zkpipe/constraint"
	"github.com/eon-protocol/zkpipe/witness"
)

func TestKeysRoundTrip(t *testing.T) {
	pk, vk := setup(t, &cubicCircuit{})
	proof, publics := prove(t, pk, &cubicCircuit{X: 3, Y: 35})

	var buf bytes.Buffer
	n, err := vk.WriteTo(&buf)
	require.NoError(t, err)
	require.EqualValues(t, buf.Len(), n)
	var vk2 Vk
	_, err = vk2.ReadFrom(&buf)
	require.NoError(t, err)
	require.Equal(t, vk.Digest(), vk2.Digest())
	require.Equal(t, vk.Address(), vk2.Address())
	require.NoError(t, vk2.Verify(proof, publics))

	buf.Reset()
	_, err = pk.WriteTo(&buf)
	require.NoError(t, err)
	var pk2 Pk
	_, err = pk2.ReadFrom(&buf)
	require.NoError(t, err)
	vk3 := pk2.Vk()
	require.Equal(t, vk.Digest(), vk3.Digest())

	// a reloaded proving key produces proofs for the original key
	proof, publics = prove(t, &pk2, &cubicCircuit{X: 4, Y: 73})
	require.NoError(t, vk.Verify(proof, publics))

	// truncated constraint system behind a huge length prefix
	buf.Reset()
	_, err = vk.WriteTo(&buf)
	require.NoError(t, err)
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff, 1, 2, 3})
	_, err = new(Pk).ReadFrom(&buf)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestSetupIsDeterministic(t *testing.T) {
	cs, err := constraint.Compile(&cubicCircuit{})
	require.NoError(t, err)
	data, err := cs.MarshalBinary()
	require.NoError(t, err)
	var back constraint.System
	require.NoError(t, back.UnmarshalBinary(data))

	srs, err := NewDevSRS(SRSSize(cs), big.NewInt(99))
	require.NoError(t, err)
	_, vk1, err := Setup(cs, srs)
	require.NoError(t, err)
	_, vk2, err := Setup(&back, srs)
	require.NoError(t, err)
	require.Equal(t, vk1.Digest(), vk2.Digest())
	require.EqualValues(t, cs.DomainSize(), vk1.Size())
	require.EqualValues(t, 1, vk1.NP)

	other, err := NewDevSRS(SRSSize(cs), big.NewInt(100))
	require.NoError(t, err)
	_, vk3, err := Setup(cs, other)
	require.NoError(t, err)
	require.NotEqual(t, vk1.Digest(), vk3.Digest())

	omega, err := vk1.Generator()
	require.NoError(t, err)
	var x fr.Element
	x.Exp(omega, new(big.Int).SetUint64(vk1.Size()))
	require.True(t, x.IsOne())
}

func cloneSRS(srs *kzg.SRS) *kzg.SRS {
	res := *srs
	res.Pk.G1 = append([]bls12381.G1Affine(nil), srs.Pk.G1...)
	return &res
}

func TestSetupRejectsBadInputs(t *testing.T) {
	cs, err := constraint.Compile(&cubicCircuit{})
	require.NoError(t, err)
	size := SRSSize(cs)
	srs, err := NewDevSRS(size, big.NewInt(5))
	require.NoError(t, err)

	cases := map[string]func(*kzg.SRS) *kzg.SRS{
		"nil": func(*kzg.SRS) *kzg.SRS {
			return nil
		},
		"short": func(s *kzg.SRS) *kzg.SRS {
			s.Pk.G1 = s.Pk.G1[:size-1]
			return s
		},
		"first power": func(s *kzg.SRS) *kzg.SRS {
			s.Pk.G1[0].Double(&s.Pk.G1[0])
			return s
		},
		"inconsistent powers": func(s *kzg.SRS) *kzg.SRS {
			s.Pk.G1[3].Add(&s.Pk.G1[3], &s.Pk.G1[0])
			return s
		},
		"g2 at infinity": func(s *kzg.SRS) *kzg.SRS {
			s.Vk.G2[1] = bls12381.G2Affine{}
			return s
		},
	}
	for name, tamper := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Setup(cs, tamper(cloneSRS(srs)))
			var se *SetupError
			require.ErrorAs(t, err, &se)
			require.ErrorIs(t, err, ErrInvalidSRS)
		})
	}

	_, _, err = Setup(&constraint.System{Internal: -1}, srs)
	require.ErrorIs(t, err, constraint.ErrInvalidSystem)
}

func TestLoadSRS(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), SRS_FILE)

	_, err := LoadSRS(ctx, SRSSource{}, 16)
	require.ErrorIs(t, err, ErrInvalidSRS)
	_, err = LoadSRS(ctx, SRSSource{DevSecret: "tau"}, 16)
	require.ErrorIs(t, err, ErrInvalidSRS)

	// the dev ceremony is cached at Path and read back from there
	srs, err := LoadSRS(ctx, SRSSource{Path: path, DevSecret: "77"}, 16)
	require.NoError(t, err)
	cached, err := LoadSRS(ctx, SRSSource{Path: path}, 16)
	require.NoError(t, err)
	require.Equal(t, srs.Vk.G2, cached.Vk.G2)
	require.Equal(t, srs.Pk.G1[:16], cached.Pk.G1[:16])

	_, err = LoadSRS(ctx, SRSSource{Path: path}, uint64(len(srs.Pk.G1))+1)
	require.ErrorIs(t, err, ErrInvalidSRS)
	_, err = LoadSRS(ctx, SRSSource{Path: path, SHA256: "00"}, 16)
	require.ErrorIs(t, err, ErrInvalidSRS)
}

func TestCompileCircuit(t *testing.T) {
	src := SRSSource{Path: filepath.Join(t.TempDir(), SRS_FILE), DevSecret: "31337"}
	pk, vk, err := Compile(context.Background(), &cubicCircuit{}, src)
	require.NoError(t, err)

	w, err := witness.FromMap(pk.ConstraintSystem(), map[string]any{"x": 2, "y": 15})
	require.NoError(t, err)
	require.True(t, w.Satisfied())
	proof, err := pk.Prove(w)
	require.NoError(t, err)
	require.NoError(t, vk.Verify(proof, w.Public()))
}

func TestTranscriptOrder(t *testing.T) {
	fs := NewTranscript("first", "second")

	_, err := fs.ComputeChallenge("second")
	require.ErrorIs(t, err, errPreviousChallengeNotComputed)
	require.ErrorIs(t, fs.Bind("third", []byte{1}), errChallengeNotFound)
	_, err = fs.ComputeChallenge("third")
	require.ErrorIs(t, err, errChallengeNotFound)

	require.NoError(t, fs.BindScalars("first", fr.NewElement(1), fr.NewElement(2)))
	a, err := fs.ComputeChallenge("first")
	require.NoError(t, err)
	again, err := fs.ComputeChallenge("first")
	require.NoError(t, err)
	require.Equal(t, a, again)
	require.ErrorIs(t, fs.Bind("first", []byte{1}), errChallengeAlreadyComputed)

	b, err := fs.ComputeChallenge("second")
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	// bindings change the challenge
	other := NewTranscript("first")
	require.NoError(t, other.BindScalars("first", fr.NewElement(1), fr.NewElement(3)))
	c, err := other.ComputeChallenge("first")
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}
