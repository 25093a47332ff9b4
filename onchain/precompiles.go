package onchain

import (
	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fp"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	MODEXP        = common.BytesToAddress([]byte{0x05})
	BLS12_G1MSM   = common.BytesToAddress([]byte{0x0c})
	BLS12_PAIRING = common.BytesToAddress([]byte{0x0f})
)

// EIP-2537 encodings
const (
	FP_SIZE      = 64
	G1_SIZE      = 2 * FP_SIZE
	G2_SIZE      = 4 * FP_SIZE
	MSM_PAIR     = G1_SIZE + 32
	PAIRING_PAIR = G1_SIZE + G2_SIZE
)

// padFp writes a 48-byte big-endian coordinate as a 64-byte word.
func padFp(dst, src []byte) {
	clear(dst[:FP_SIZE-fp.Bytes])
	copy(dst[FP_SIZE-fp.Bytes:FP_SIZE], src[:fp.Bytes])
}

// g1FromProof converts an X‖Y proof point to the precompile layout; the
// all-zero encoding of infinity maps to itself.
func g1FromProof(src []byte) []byte {
	res := make([]byte, G1_SIZE)
	padFp(res, src)
	padFp(res[FP_SIZE:], src[fp.Bytes:])
	return res
}

func encodeG1(p *bls12381.G1Affine) []byte {
	res := make([]byte, G1_SIZE)
	if p.IsInfinity() {
		return res
	}
	x, y := p.X.Bytes(), p.Y.Bytes()
	padFp(res, x[:])
	padFp(res[FP_SIZE:], y[:])
	return res
}

// encodeG2 follows EIP-2537: x.c0 ‖ x.c1 ‖ y.c0 ‖ y.c1.
func encodeG2(p *bls12381.G2Affine) []byte {
	res := make([]byte, G2_SIZE)
	if p.IsInfinity() {
		return res
	}
	for i, v := range []*fp.Element{&p.X.A0, &p.X.A1, &p.Y.A0, &p.Y.A1} {
		b := v.Bytes()
		padFp(res[i*FP_SIZE:], b[:])
	}
	return res
}

func msmInput(points [][]byte, scalars []uint256.Int) []byte {
	res := make([]byte, 0, len(points)*MSM_PAIR)
	for i := range points {
		s := scalars[i].Bytes32()
		res = append(res, points[i]...)
		res = append(res, s[:]...)
	}
	return res
}

func modexpInput(base, exp, mod *uint256.Int) []byte {
	res := make([]byte, 6*32)
	res[31], res[63], res[95] = 32, 32, 32
	b, e, m := base.Bytes32(), exp.Bytes32(), mod.Bytes32()
	copy(res[96:], b[:])
	copy(res[128:], e[:])
	copy(res[160:], m[:])
	return res
}
