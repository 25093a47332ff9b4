package zkpipe

import (
	"fmt"
	"io"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fp"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// Proof is a PLONK proof. Its binary form is fixed size (PROOF_SIZE bytes):
// nine uncompressed G1 points (X‖Y, 48-byte big-endian each, all zero for the
// point at infinity) followed by sixteen 32-byte big-endian scalars.
type Proof struct {
	L, R, O, Z, H0, H1, H2, Wz, Wzw bls12381.G1Affine

	EA, EB, EC, ES1, ES2, ES3, EQL, EQR, EQM, EQO, EQC, EH0, EH1, EH2, EZ, EZW fr.Element
}

func (me *Proof) points() [PROOF_POINTS]*bls12381.G1Affine {
	return [PROOF_POINTS]*bls12381.G1Affine{&me.L, &me.R, &me.O, &me.Z, &me.H0, &me.H1, &me.H2, &me.Wz, &me.Wzw}
}

// scalars returns the claimed evaluations in the order they are folded; the
// shifted evaluation z(ωζ) comes last.
func (me *Proof) scalars() [PROOF_SCALARS]*fr.Element {
	return [PROOF_SCALARS]*fr.Element{
		&me.EA, &me.EB, &me.EC,
		&me.ES1, &me.ES2, &me.ES3,
		&me.EQL, &me.EQR, &me.EQM, &me.EQO, &me.EQC,
		&me.EH0, &me.EH1, &me.EH2,
		&me.EZ, &me.EZW,
	}
}

func (me *Proof) evaluations() []fr.Element {
	res := make([]fr.Element, 0, PROOF_SCALARS)
	for _, v := range me.scalars() {
		res = append(res, *v)
	}
	return res
}

func encodePoint(dst []byte, p *bls12381.G1Affine) {
	if p.IsInfinity() {
		clear(dst[:POINT_SIZE])
		return
	}
	x, y := p.X.Bytes(), p.Y.Bytes()
	copy(dst[:fp.Bytes], x[:])
	copy(dst[fp.Bytes:POINT_SIZE], y[:])
}

// decodePoint accepts only canonical coordinates of a point in the prime-order subgroup.
func decodePoint(src []byte, p *bls12381.G1Affine, offset int) error {
	zero := true
	for _, b := range src[:POINT_SIZE] {
		zero = zero && b == 0
	}
	if zero {
		p.X.SetZero()
		p.Y.SetZero()
		return nil
	}
	x, err := fp.BigEndian.Element((*[fp.Bytes]byte)(src[:fp.Bytes]))
	if err != nil {
		return &DecodeError{Offset: offset, Reason: "coordinate not in base field"}
	}
	y, err := fp.BigEndian.Element((*[fp.Bytes]byte)(src[fp.Bytes:POINT_SIZE]))
	if err != nil {
		return &DecodeError{Offset: offset + fp.Bytes, Reason: "coordinate not in base field"}
	}
	p.X, p.Y = x, y
	if !p.IsOnCurve() {
		return &DecodeError{Offset: offset, Reason: "point not on curve"}
	}
	if !p.IsInSubGroup() {
		return &DecodeError{Offset: offset, Reason: ErrNotInSubgroup.Error()}
	}
	return nil
}

func decodeScalar(src []byte, e *fr.Element, offset int) error {
	v, err := fr.BigEndian.Element((*[fr.Bytes]byte)(src[:fr.Bytes]))
	if err != nil {
		return &DecodeError{Offset: offset, Reason: "scalar not in field"}
	}
	*e = v
	return nil
}

func (me *Proof) MarshalBinary() ([]byte, error) {
	buf := make([]byte, PROOF_SIZE)
	for i, p := range me.points() {
		encodePoint(buf[i*POINT_SIZE:], p)
	}
	for i, s := range me.scalars() {
		b := s.Bytes()
		copy(buf[OFFSET_EVALS+i*SCALAR_SIZE:], b[:])
	}
	return buf, nil
}

// UnmarshalBinary decodes untrusted bytes. Any malformation yields a *DecodeError.
func (me *Proof) UnmarshalBinary(data []byte) error {
	if len(data) != PROOF_SIZE {
		return &DecodeError{Offset: min(len(data), PROOF_SIZE), Reason: fmt.Sprintf("proof is %d bytes, want %d", len(data), PROOF_SIZE)}
	}
	var out Proof
	for i, p := range out.points() {
		if err := decodePoint(data[i*POINT_SIZE:], p, i*POINT_SIZE); err != nil {
			return err
		}
	}
	for i, s := range out.scalars() {
		offset := OFFSET_EVALS + i*SCALAR_SIZE
		if err := decodeScalar(data[offset:], s, offset); err != nil {
			return err
		}
	}
	*me = out
	return nil
}

func (me *Proof) WriteTo(w io.Writer) (int64, error) {
	buf, err := me.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	return int64(n), err
}

func (me *Proof) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, PROOF_SIZE)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return int64(n), &DecodeError{Offset: n, Reason: err.Error()}
	}
	return int64(n), me.UnmarshalBinary(buf)
}

// ParseProof decodes a proof from its binary form.
func ParseProof(data []byte) (*Proof, error) {
	var proof Proof
	if err := proof.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &proof, nil
}
