package zkpipe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fp"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"
	"golang.org/x/crypto/sha3"

	"github.com/eon-protocol/zkpipe/circuits/hasher"
)

type Vk struct {
	S1, S2, S3, QL, QR, QM, QO, QC bls12381.G1Affine
	NP                             uint32
	SZ                             uint8
	Kzg                            kzg.VerifyingKey
}

// Size returns the domain size n.
func (me *Vk) Size() uint64 {
	return 1 << me.SZ
}

// Generator returns ω, the generator of the size n subgroup.
func (me *Vk) Generator() (fr.Element, error) {
	return fr.Generator(me.Size())
}

func encodeG2(dst []byte, p *bls12381.G2Affine) {
	for i, v := range []*fp.Element{&p.X.A0, &p.X.A1, &p.Y.A0, &p.Y.A1} {
		b := v.Bytes()
		copy(dst[i*fp.Bytes:], b[:])
	}
}

// Bytes returns the fixed layout hashed into the transcript:
// SZ ‖ NP ‖ QL QR QM QO QC S1 S2 S3 ‖ [1]₁ ‖ [1]₂ ‖ [τ]₂
// with G1 points as X‖Y and G2 points as X.A0‖X.A1‖Y.A0‖Y.A1.
func (me *Vk) Bytes() []byte {
	g1s := []*bls12381.G1Affine{&me.QL, &me.QR, &me.QM, &me.QO, &me.QC, &me.S1, &me.S2, &me.S3, &me.Kzg.G1}
	buf := make([]byte, 5+len(g1s)*POINT_SIZE+2*2*POINT_SIZE)
	buf[0] = me.SZ
	binary.BigEndian.PutUint32(buf[1:5], me.NP)
	off := 5
	for _, p := range g1s {
		encodePoint(buf[off:], p)
		off += POINT_SIZE
	}
	for i := range me.Kzg.G2 {
		encodeG2(buf[off:], &me.Kzg.G2[i])
		off += 2 * POINT_SIZE
	}
	return buf
}

// Digest is keccak256(Bytes()); it seeds the first challenge so a proof is
// bound to one verification key.
func (me *Vk) Digest() [32]byte {
	var d [32]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(me.Bytes())
	h.Sum(d[:0])
	return d
}

// Address is a Poseidon2 fingerprint of the key, usable as a circuit identifier inside circuits.
func (me *Vk) Address() fr.Element {
	return hasher.HashCompress(
		hasher.HashSum(hasher.HashG1(me.S1), hasher.HashG1(me.S2), hasher.HashG1(me.S3), hasher.HashG1(me.QL), hasher.HashG1(me.QR), hasher.HashG1(me.QM), hasher.HashG1(me.QO), hasher.HashG1(me.QC)),
		hasher.HashCompress(fr.NewElement(uint64(me.NP)), fr.NewElement(uint64(me.SZ))),
	)
}

// challenges replays the transcript of a proof.
func (me *Vk) challenges(proof *Proof, publics []fr.Element) (beta, gamma, alpha, zeta, nu, eta fr.Element, err error) {
	fs := NewTranscript(CHALLENGES...)
	digest := me.Digest()
	if err = fs.Bind(CID_BETA, digest[:]); err != nil {
		return
	}
	if err = fs.BindScalars(CID_BETA, publics...); err != nil {
		return
	}
	if err = fs.BindPoints(CID_BETA, proof.L, proof.R, proof.O); err != nil {
		return
	}
	if beta, err = fs.ComputeChallenge(CID_BETA); err != nil {
		return
	}
	if gamma, err = fs.ComputeChallenge(CID_GAMMA); err != nil {
		return
	}
	if err = fs.BindPoints(CID_ALPHA, proof.Z); err != nil {
		return
	}
	if alpha, err = fs.ComputeChallenge(CID_ALPHA); err != nil {
		return
	}
	if err = fs.BindPoints(CID_ZETA, proof.H0, proof.H1, proof.H2); err != nil {
		return
	}
	if zeta, err = fs.ComputeChallenge(CID_ZETA); err != nil {
		return
	}
	if err = fs.BindScalars(CID_NU, proof.evaluations()...); err != nil {
		return
	}
	if nu, err = fs.ComputeChallenge(CID_NU); err != nil {
		return
	}
	if err = fs.BindPoints(CID_ETA, proof.Wz, proof.Wzw); err != nil {
		return
	}
	eta, err = fs.ComputeChallenge(CID_ETA)
	return
}

// Verify returns nil iff the proof is accepted for the given public inputs.
func (me *Vk) Verify(proof *Proof, publics []fr.Element) error {
	if len(publics) != int(me.NP) {
		return fmt.Errorf("%w: got %d, want %d", ErrPublicInputCount, len(publics), me.NP)
	}
	for _, p := range proof.points() {
		if !p.IsInSubGroup() {
			return ErrNotInSubgroup
		}
	}
	beta, gamma, alpha, zeta, nu, eta, err := me.challenges(proof, publics)
	if err != nil {
		return err
	}

	n := me.Size()
	generator, err := me.Generator()
	if err != nil {
		return err
	}
	one := fr.One()
	var zn, zh, sizeinv fr.Element
	zn.Exp(zeta, big.NewInt(int64(n)))
	zh.Sub(&zn, &one) // ζⁿ-1
	if zh.IsZero() {
		return ErrVanishingZeta
	}
	sizeinv.SetUint64(n).Inverse(&sizeinv)

	// Lᵢ(ζ) = ωⁱ(ζⁿ-1) / (n(ζ-ωⁱ)) for the public rows; L₀ is needed even without publics
	nl := max(len(publics), 1)
	ws := make([]fr.Element, nl)
	den := make([]fr.Element, nl)
	ws[0].SetOne()
	for i := range ws {
		if i > 0 {
			ws[i].Mul(&ws[i-1], &generator)
		}
		den[i].Sub(&zeta, &ws[i])
	}
	den = fr.BatchInvert(den)
	lagrange := make([]fr.Element, nl)
	for i := range lagrange {
		lagrange[i].Mul(&ws[i], &zh).Mul(&lagrange[i], &sizeinv).Mul(&lagrange[i], &den[i])
	}
	var pi, tmp fr.Element
	for i := range publics {
		pi.Sub(&pi, tmp.Mul(&publics[i], &lagrange[i])) // PI(ζ) = -∑xᵢLᵢ(ζ)
	}

	p := proof
	var gate fr.Element
	gate.Mul(&p.EQL, &p.EA)
	gate.Add(&gate, tmp.Mul(&p.EQR, &p.EB))
	gate.Add(&gate, tmp.Mul(&p.EQO, &p.EC))
	gate.Add(&gate, tmp.Mul(&p.EQM, &p.EA).Mul(&tmp, &p.EB))
	gate.Add(&gate, &p.EQC).Add(&gate, &pi)

	// z(ζ)·∏(w+βkζ+γ) and z(ωζ)·∏(w+βsₖ+γ)
	var perm1, perm2, bz fr.Element
	bz.Mul(&beta, &zeta)
	perm1.Add(&p.EA, &bz).Add(&perm1, &gamma)
	perm1.Mul(&perm1, tmp.Mul(&bz, &COSET_SHIFT).Add(&tmp, &p.EB).Add(&tmp, &gamma))
	perm1.Mul(&perm1, tmp.Mul(&bz, &COSET_SHIFT_SQ).Add(&tmp, &p.EC).Add(&tmp, &gamma)).Mul(&perm1, &p.EZ)
	perm2.Mul(&beta, &p.ES1).Add(&perm2, &p.EA).Add(&perm2, &gamma)
	perm2.Mul(&perm2, tmp.Mul(&beta, &p.ES2).Add(&tmp, &p.EB).Add(&tmp, &gamma))
	perm2.Mul(&perm2, tmp.Mul(&beta, &p.ES3).Add(&tmp, &p.EC).Add(&tmp, &gamma)).Mul(&perm2, &p.EZW)

	var lhs, rhs fr.Element
	lhs.Sub(&perm1, &perm2).Mul(&lhs, &alpha).Add(&lhs, &gate)
	tmp.Sub(&p.EZ, &one).Mul(&tmp, &lagrange[0]).Mul(&tmp, &alpha).Mul(&tmp, &alpha) // α²(z(ζ)-1)L₀(ζ)
	lhs.Add(&lhs, &tmp)

	var zn2 fr.Element
	zn2.Mul(&zn, &zeta).Mul(&zn2, &zeta) // ζⁿ⁺²
	rhs.Mul(&p.EH2, &zn2).Add(&rhs, &p.EH1).Mul(&rhs, &zn2).Add(&rhs, &p.EH0).Mul(&rhs, &zh)
	if !lhs.Equal(&rhs) {
		return ErrAlgebraicRelation
	}

	// e(∑νⁱCᵢ + ηZ - (y+ηz(ωζ))[1] + ζWz + ηωζWzw, [1]₂) · e(-(Wz + ηWzw), [τ]₂) = 1
	digests := []bls12381.G1Affine{p.L, p.R, p.O, me.S1, me.S2, me.S3, me.QL, me.QR, me.QM, me.QO, me.QC, p.H0, p.H1, p.H2, p.Z}
	evals := p.evaluations()
	scalars := make([]fr.Element, NUM_FOLDED, NUM_FOLDED+4)
	var folded fr.Element
	scalars[0].SetOne()
	for i := range scalars {
		if i > 0 {
			scalars[i].Mul(&scalars[i-1], &nu)
		}
		folded.Add(&folded, tmp.Mul(&scalars[i], &evals[i]))
	}
	var cg, cw fr.Element
	cg.Mul(&eta, &p.EZW).Add(&cg, &folded).Neg(&cg)
	cw.Mul(&eta, &generator).Mul(&cw, &zeta)
	points := append(digests, p.Z, me.Kzg.G1, p.Wz, p.Wzw)
	scalars = append(scalars, eta, cg, zeta, cw)

	var lhsG1, rhsG1 bls12381.G1Affine
	if _, err := lhsG1.MultiExp(points, scalars, ecc.MultiExpConfig{}); err != nil {
		return err
	}
	if _, err := rhsG1.MultiExp([]bls12381.G1Affine{p.Wz, p.Wzw}, []fr.Element{one, eta}, ecc.MultiExpConfig{}); err != nil {
		return err
	}
	rhsG1.Neg(&rhsG1)
	ok, err := bls12381.PairingCheck([]bls12381.G1Affine{lhsG1, rhsG1}, []bls12381.G2Affine{me.Kzg.G2[0], me.Kzg.G2[1]})
	if err != nil {
		return err
	}
	if !ok {
		return ErrPairing
	}
	return nil
}

// VerifyBytes decodes an untrusted proof and verifies it.
func (me *Vk) VerifyBytes(data []byte, publics []fr.Element) error {
	proof, err := ParseProof(data)
	if err != nil {
		return err
	}
	return me.Verify(proof, publics)
}

func (me *Vk) WriteTo(w io.Writer) (int64, error) {
	enc := bls12381.NewEncoder(w)
	for _, p := range []*bls12381.G1Affine{&me.S1, &me.S2, &me.S3, &me.QL, &me.QR, &me.QM, &me.QO, &me.QC, &me.Kzg.G1} {
		if err := enc.Encode(p); err != nil {
			return enc.BytesWritten(), err
		}
	}
	for i := range me.Kzg.G2 {
		if err := enc.Encode(&me.Kzg.G2[i]); err != nil {
			return enc.BytesWritten(), err
		}
	}
	buf := [5]byte{}
	binary.BigEndian.PutUint32(buf[:4], me.NP)
	buf[4] = me.SZ
	n, err := w.Write(buf[:])
	return int64(n) + enc.BytesWritten(), err
}

func (me *Vk) ReadFrom(r io.Reader) (int64, error) {
	dec := bls12381.NewDecoder(r)
	for _, p := range []*bls12381.G1Affine{&me.S1, &me.S2, &me.S3, &me.QL, &me.QR, &me.QM, &me.QO, &me.QC, &me.Kzg.G1} {
		if err := dec.Decode(p); err != nil {
			return dec.BytesRead(), err
		}
	}
	for i := range me.Kzg.G2 {
		if err := dec.Decode(&me.Kzg.G2[i]); err != nil {
			return dec.BytesRead(), err
		}
	}
	buf := [5]byte{}
	if n, err := io.ReadFull(r, buf[:]); err != nil {
		return int64(n) + dec.BytesRead(), err
	}
	me.NP = binary.BigEndian.Uint32(buf[:4])
	me.SZ = buf[4]
	if me.SZ >= 32 {
		return dec.BytesRead() + 5, errors.New("vk.size out of range")
	}
	me.Kzg.Lines[0] = bls12381.PrecomputeLines(me.Kzg.G2[0])
	me.Kzg.Lines[1] = bls12381.PrecomputeLines(me.Kzg.G2[1])
	return dec.BytesRead() + 5, nil
}
