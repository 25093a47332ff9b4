// Package preimage is a circuit proving knowledge of x such that the 32-byte
// big-endian encoding of Poseidon2(x) equals a public digest.
package preimage

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/eon-protocol/zkpipe/circuits/hasher"
)

const DIGEST_SIZE = fr.Bytes
const DIGEST_BITS = 8 * DIGEST_SIZE

// Circuit takes Bits, Result as a big-endian bit string, from the prover
// since the importer accepts no hints.
type Circuit struct {
	X      frontend.Variable              `gnark:"x"`
	Result [DIGEST_SIZE]frontend.Variable `gnark:"result,public"`
	Bits   [DIGEST_BITS]frontend.Variable `gnark:"bits"`
}

// Define asserts that Result is the canonical encoding of H(x) = Compress(0, x):
// every entry is a byte, the 256-bit value is below r, and
// ∑ resultᵢ·256³¹⁻ⁱ = H(x).
func (c *Circuit) Define(api frontend.API) error {
	for i := range c.Result {
		var b frontend.Variable = 0
		for _, bit := range c.Bits[8*i : 8*i+8] {
			api.AssertIsBoolean(bit)
			b = api.Add(api.Mul(b, 2), bit)
		}
		api.AssertIsEqual(c.Result[i], b)
	}
	assertBelowModulus(api, c.Bits[:])

	var acc frontend.Variable = 0
	for i := range c.Result {
		acc = api.Add(api.Mul(acc, 256), c.Result[i])
	}
	api.AssertIsEqual(acc, hasher.New(api).Sum(c.X))
	return nil
}

// assertBelowModulus asserts that the big-endian bits encode an integer
// strictly below r. eq tracks whether the prefix read so far equals r's.
func assertBelowModulus(api frontend.API, bits []frontend.Variable) {
	r := fr.Modulus()
	var eq, lt frontend.Variable = 1, 0
	for i, bit := range bits {
		if r.Bit(len(bits)-1-i) == 1 {
			lt = api.Add(lt, api.Mul(eq, api.Sub(1, bit)))
			eq = api.Mul(eq, bit)
		} else {
			eq = api.Mul(eq, api.Sub(1, bit))
		}
	}
	api.AssertIsEqual(lt, 1)
}

func hash(x fr.Element) fr.Element {
	return hasher.HashSum(x)
}

// Digest returns the expected public result for x.
func Digest(x fr.Element) [DIGEST_SIZE]byte {
	h := hash(x)
	return h.Bytes()
}

func toBits(digest [DIGEST_SIZE]byte) (res [DIGEST_BITS]uint8) {
	for i, b := range digest {
		for j := range 8 {
			res[8*i+j] = (b >> (7 - j)) & 1
		}
	}
	return
}

// Assignment binds x and the digest it is claimed to hash to.
func Assignment(x *big.Int, digest [DIGEST_SIZE]byte) *Circuit {
	c := &Circuit{X: new(big.Int).Set(x)}
	for i, b := range digest {
		c.Result[i] = b
	}
	for i, bit := range toBits(digest) {
		c.Bits[i] = bit
	}
	return c
}

// Publics returns the public inputs of a digest, in wire order.
func Publics(digest [DIGEST_SIZE]byte) []fr.Element {
	res := make([]fr.Element, DIGEST_SIZE)
	for i, b := range digest {
		res[i].SetUint64(uint64(b))
	}
	return res
}

// Inputs is the dynamic form of Assignment, keyed by the declared names.
func Inputs(x *big.Int, digest [DIGEST_SIZE]byte) map[string]any {
	return map[string]any{
		"x":      new(big.Int).Set(x),
		"result": digest,
		"bits":   toBits(digest),
	}
}
