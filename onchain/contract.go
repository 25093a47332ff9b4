package onchain

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eon-protocol/zkpipe"
)

const (
	REVERT_SELECTOR = "Unknown selector"
	REVERT_CALLDATA = "Invalid calldata"
	REVERT_LENGTH   = "Invalid proof length"
	REVERT_PUBLIC   = "Public input not in field"
	REVERT_SCALAR   = "Proof scalar not in field"
	REVERT_POINT    = "Invalid proof point"
	REVERT_FAILED   = "Proof failed"
)

// storage layout
var (
	SLOT_COUNT    = common.Hash{}
	SLOT_VERIFIED = common.Hash{31: 1} // mapping(bytes32 => bool)
)

// positions of the claimed evaluations in the proof
const (
	ev_A int = iota
	ev_B
	ev_C
	ev_S1
	ev_S2
	ev_S3
	ev_QL
	ev_QR
	ev_QM
	ev_QO
	ev_QC
	ev_H0
	ev_H1
	ev_H2
	ev_Z
	ev_ZW
)

// positions of the points in the proof
const (
	pt_L int = iota
	pt_R
	pt_O
	pt_Z
	pt_H0
	pt_H1
	pt_H2
	pt_Wz
	pt_Wzw
)

var R = uint256.MustFromBig(fr.Modulus())

var rMinus2 = new(uint256.Int).Sub(R, uint256.NewInt(2))

// Verifier is the verifier contract of one verification key. Its constants
// are fixed at construction, the way a generated Solidity verifier embeds them.
type Verifier struct {
	digest common.Hash
	np     int
	sz     uint8
	omega  uint256.Int
	nInv   uint256.Int

	s1, s2, s3, ql, qr, qm, qo, qc []byte // EIP-2537 G1
	g1                             []byte
	g2                             [2][]byte
}

func NewVerifier(vk *zkpipe.Vk) (*Verifier, error) {
	omega, err := vk.Generator()
	if err != nil {
		return nil, err
	}
	var nInv fr.Element
	nInv.SetUint64(vk.Size()).Inverse(&nInv)

	me := &Verifier{
		digest: common.Hash(vk.Digest()),
		np:     int(vk.NP),
		sz:     vk.SZ,
		s1:     encodeG1(&vk.S1),
		s2:     encodeG1(&vk.S2),
		s3:     encodeG1(&vk.S3),
		ql:     encodeG1(&vk.QL),
		qr:     encodeG1(&vk.QR),
		qm:     encodeG1(&vk.QM),
		qo:     encodeG1(&vk.QO),
		qc:     encodeG1(&vk.QC),
		g1:     encodeG1(&vk.Kzg.G1),
		g2:     [2][]byte{encodeG2(&vk.Kzg.G2[0]), encodeG2(&vk.Kzg.G2[1])},
	}
	me.omega.SetFromBig(omega.BigInt(new(big.Int)))
	me.nInv.SetFromBig(nInv.BigInt(new(big.Int)))
	return me, nil
}

// Digest is the verification key digest the contract is bound to.
func (me *Verifier) Digest() common.Hash {
	return me.digest
}

// DeployVerifier deploys the verifier contract of vk.
func DeployVerifier(chain *Chain, from common.Address, vk *zkpipe.Vk) (common.Address, error) {
	contract, err := NewVerifier(vk)
	if err != nil {
		return common.Address{}, err
	}
	return chain.Deploy(from, contract)
}

func (me *Verifier) Run(env *Env, input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, NewRevertError(REVERT_SELECTOR)
	}
	method, err := VerifierABI.MethodById(input[:4])
	if err != nil {
		return nil, NewRevertError(REVERT_SELECTOR)
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, NewRevertError(REVERT_CALLDATA)
	}
	switch method.Name {
	case "verify":
		if err := me.verify(env, args[0].([]byte)); err != nil {
			return nil, err
		}
		return method.Outputs.Pack(true)
	case "verifiedCount":
		count := env.SLoad(SLOT_COUNT)
		return method.Outputs.Pack(count.Big())
	case "isVerified":
		digest := args[0].([32]byte)
		flag := env.SLoad(verifiedSlot(env, digest))
		return method.Outputs.Pack(flag != common.Hash{})
	case "vkDigest":
		return method.Outputs.Pack([32]byte(me.digest))
	}
	return nil, NewRevertError(REVERT_SELECTOR)
}

func verifiedSlot(env *Env, digest common.Hash) common.Hash {
	return env.Keccak256(digest[:], SLOT_VERIFIED[:])
}

// field is arithmetic mod r charged at EVM prices.
type field struct {
	env *Env
}

func (f field) add(x, y *uint256.Int) *uint256.Int {
	f.env.UseGas(GAS_MODOP)
	return new(uint256.Int).AddMod(x, y, R)
}

func (f field) sub(x, y *uint256.Int) *uint256.Int {
	f.env.UseGas(GAS_MODOP)
	neg := new(uint256.Int).Sub(R, y)
	return neg.AddMod(x, neg, R)
}

func (f field) neg(x *uint256.Int) *uint256.Int {
	return f.sub(new(uint256.Int), x)
}

func (f field) mul(x, y *uint256.Int) *uint256.Int {
	f.env.UseGas(GAS_MODOP)
	return new(uint256.Int).MulMod(x, y, R)
}

// inverse computes x^(r-2) with the MODEXP precompile.
func (f field) inverse(x *uint256.Int) (*uint256.Int, error) {
	out, err := f.env.CallPrecompile(MODEXP, modexpInput(x, rMinus2, R))
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes32(out), nil
}

// batchInverse inverts every element with a single MODEXP call.
func (f field) batchInverse(xs []*uint256.Int) ([]*uint256.Int, error) {
	prefix := make([]*uint256.Int, len(xs))
	acc := uint256.NewInt(1)
	for i, x := range xs {
		prefix[i] = acc
		acc = f.mul(acc, x)
	}
	inv, err := f.inverse(acc)
	if err != nil {
		return nil, err
	}
	res := make([]*uint256.Int, len(xs))
	for i := len(xs) - 1; i >= 0; i-- {
		res[i] = f.mul(inv, prefix[i])
		inv = f.mul(inv, xs[i])
	}
	return res, nil
}

// challenge is keccak256(tag ‖ previous ‖ data) mod r.
func (me *Verifier) challenge(env *Env, tag string, previous *uint256.Int, data ...[]byte) *uint256.Int {
	parts := [][]byte{[]byte(tag)}
	if previous != nil {
		b := previous.Bytes32()
		parts = append(parts, b[:])
	}
	parts = append(parts, data...)
	h := env.Keccak256(parts...)
	env.UseGas(GAS_MODOP)
	res := new(uint256.Int).SetBytes32(h[:])
	return res.Mod(res, R)
}

func (me *Verifier) verify(env *Env, payload []byte) error {
	if len(payload) != me.np*fr.Bytes+zkpipe.PROOF_SIZE {
		return NewRevertError(REVERT_LENGTH)
	}
	publics, proof := payload[:me.np*fr.Bytes], payload[me.np*fr.Bytes:]

	x := make([]uint256.Int, me.np)
	for i := range x {
		x[i].SetBytes32(publics[i*fr.Bytes : (i+1)*fr.Bytes])
		if !x[i].Lt(R) {
			return NewRevertError(REVERT_PUBLIC)
		}
	}
	var ev [zkpipe.PROOF_SCALARS]uint256.Int
	for i := range ev {
		offset := zkpipe.OFFSET_EVALS + i*fr.Bytes
		ev[i].SetBytes32(proof[offset : offset+fr.Bytes])
		if !ev[i].Lt(R) {
			return NewRevertError(REVERT_SCALAR)
		}
	}

	// the MSM precompile rejects points off the curve or outside the subgroup
	points := make([][]byte, zkpipe.PROOF_POINTS)
	ones := make([]uint256.Int, zkpipe.PROOF_POINTS)
	for i := range points {
		points[i] = g1FromProof(proof[i*zkpipe.POINT_SIZE:])
		ones[i].SetOne()
	}
	if _, err := env.CallPrecompile(BLS12_G1MSM, msmInput(points, ones)); err != nil {
		if env.Err() != nil {
			return env.Err()
		}
		return NewRevertError(REVERT_POINT)
	}

	beta := me.challenge(env, zkpipe.CID_BETA, nil, me.digest[:], publics, proof[zkpipe.OFFSET_LRO:zkpipe.OFFSET_Z])
	gamma := me.challenge(env, zkpipe.CID_GAMMA, beta)
	alpha := me.challenge(env, zkpipe.CID_ALPHA, gamma, proof[zkpipe.OFFSET_Z:zkpipe.OFFSET_H])
	zeta := me.challenge(env, zkpipe.CID_ZETA, alpha, proof[zkpipe.OFFSET_H:zkpipe.OFFSET_W])
	nu := me.challenge(env, zkpipe.CID_NU, zeta, proof[zkpipe.OFFSET_EVALS:])
	eta := me.challenge(env, zkpipe.CID_ETA, nu, proof[zkpipe.OFFSET_W:zkpipe.OFFSET_EVALS])

	f := field{env}
	one := uint256.NewInt(1)
	zn := zeta
	for i := uint8(0); i < me.sz; i++ {
		zn = f.mul(zn, zn)
	}
	zh := f.sub(zn, one)
	if zh.IsZero() {
		return NewRevertError(REVERT_FAILED)
	}

	// Lᵢ(ζ) = ωⁱ(ζⁿ-1) / (n(ζ-ωⁱ))
	nl := max(me.np, 1)
	ws := make([]*uint256.Int, nl)
	den := make([]*uint256.Int, nl)
	w := one
	for i := range ws {
		ws[i] = w
		den[i] = f.sub(zeta, w)
		w = f.mul(w, &me.omega)
	}
	inv, err := f.batchInverse(den)
	if err != nil {
		return err
	}
	lagrange := make([]*uint256.Int, nl)
	for i := range lagrange {
		lagrange[i] = f.mul(f.mul(f.mul(ws[i], zh), &me.nInv), inv[i])
	}
	pi := new(uint256.Int)
	for i := range x {
		pi = f.sub(pi, f.mul(&x[i], lagrange[i]))
	}

	gate := f.mul(&ev[ev_QL], &ev[ev_A])
	gate = f.add(gate, f.mul(&ev[ev_QR], &ev[ev_B]))
	gate = f.add(gate, f.mul(&ev[ev_QO], &ev[ev_C]))
	gate = f.add(gate, f.mul(f.mul(&ev[ev_QM], &ev[ev_A]), &ev[ev_B]))
	gate = f.add(f.add(gate, &ev[ev_QC]), pi)

	bz := f.mul(beta, zeta)
	u, uu := uint256.NewInt(7), uint256.NewInt(49)
	perm1 := f.add(f.add(&ev[ev_A], bz), gamma)
	perm1 = f.mul(perm1, f.add(f.add(&ev[ev_B], f.mul(bz, u)), gamma))
	perm1 = f.mul(perm1, f.add(f.add(&ev[ev_C], f.mul(bz, uu)), gamma))
	perm1 = f.mul(perm1, &ev[ev_Z])
	perm2 := f.add(f.add(&ev[ev_A], f.mul(beta, &ev[ev_S1])), gamma)
	perm2 = f.mul(perm2, f.add(f.add(&ev[ev_B], f.mul(beta, &ev[ev_S2])), gamma))
	perm2 = f.mul(perm2, f.add(f.add(&ev[ev_C], f.mul(beta, &ev[ev_S3])), gamma))
	perm2 = f.mul(perm2, &ev[ev_ZW])

	lhs := f.add(gate, f.mul(alpha, f.sub(perm1, perm2)))
	lhs = f.add(lhs, f.mul(f.mul(f.mul(alpha, alpha), f.sub(&ev[ev_Z], one)), lagrange[0]))
	zn2 := f.mul(f.mul(zn, zeta), zeta)
	rhs := f.add(f.mul(&ev[ev_H2], zn2), &ev[ev_H1])
	rhs = f.mul(f.add(f.mul(rhs, zn2), &ev[ev_H0]), zh)
	if err := env.Err(); err != nil {
		return err
	}
	if !lhs.Eq(rhs) {
		return NewRevertError(REVERT_FAILED)
	}

	// e(∑νⁱCᵢ + ηZ - (y+ηz(ωζ))[1] + ζWz + ηωζWzw, [1]₂) · e(-(Wz + ηWzw), [τ]₂) = 1
	folded := [][]byte{
		points[pt_L], points[pt_R], points[pt_O],
		me.s1, me.s2, me.s3,
		me.ql, me.qr, me.qm, me.qo, me.qc,
		points[pt_H0], points[pt_H1], points[pt_H2],
		points[pt_Z],
	}
	scalars := make([]uint256.Int, 0, len(folded)+4)
	y := new(uint256.Int)
	acc := uint256.NewInt(1)
	for i := range folded {
		scalars = append(scalars, *acc)
		y = f.add(y, f.mul(acc, &ev[i]))
		acc = f.mul(acc, nu)
	}
	cg := f.neg(f.add(y, f.mul(eta, &ev[ev_ZW])))
	cw := f.mul(f.mul(eta, &me.omega), zeta)
	scalars = append(scalars, *eta, *cg, *zeta, *cw)
	lhsPoints := append(folded, points[pt_Z], me.g1, points[pt_Wz], points[pt_Wzw])

	lhsG1, err := env.CallPrecompile(BLS12_G1MSM, msmInput(lhsPoints, scalars))
	if err != nil {
		return me.failed(env)
	}
	rhsG1, err := env.CallPrecompile(BLS12_G1MSM, msmInput(
		[][]byte{points[pt_Wz], points[pt_Wzw]},
		[]uint256.Int{*f.neg(one), *f.neg(eta)},
	))
	if err != nil {
		return me.failed(env)
	}
	input := make([]byte, 0, 2*PAIRING_PAIR)
	input = append(append(input, lhsG1...), me.g2[0]...)
	input = append(append(input, rhsG1...), me.g2[1]...)
	out, err := env.CallPrecompile(BLS12_PAIRING, input)
	if err != nil {
		return me.failed(env)
	}
	if err := env.Err(); err != nil {
		return err
	}
	if len(out) != 32 || out[31] != 1 {
		return NewRevertError(REVERT_FAILED)
	}
	return me.record(env, payload)
}

func (me *Verifier) failed(env *Env) error {
	if err := env.Err(); err != nil {
		return err
	}
	return NewRevertError(REVERT_FAILED)
}

// record marks the payload as verified and emits ProofVerified. The first
// record of a payload pays GAS_SSET for its slot, later ones GAS_SRESET.
func (me *Verifier) record(env *Env, payload []byte) error {
	digest := env.Keccak256(payload)
	count := new(uint256.Int).SetBytes32(env.SLoad(SLOT_COUNT).Bytes())
	count.AddUint64(count, 1)
	err := errors.Join(
		env.SStore(SLOT_COUNT, common.Hash(count.Bytes32())),
		env.SStore(verifiedSlot(env, digest), common.Hash{31: 1}),
		env.Emit([]common.Hash{VerifierABI.Events["ProofVerified"].ID, digest}, nil),
	)
	if err != nil {
		return err
	}
	return env.Err()
}
