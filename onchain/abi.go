package onchain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const VerifierABIJSON = `[
	{"type":"function","name":"verify","stateMutability":"nonpayable","inputs":[{"name":"proof","type":"bytes"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"verifiedCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"isVerified","stateMutability":"view","inputs":[{"name":"digest","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"vkDigest","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"event","name":"ProofVerified","anonymous":false,"inputs":[{"name":"digest","type":"bytes32","indexed":true}]}
]`

var VerifierABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(VerifierABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

var errorSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

var stringArgs = func() abi.Arguments {
	ty, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: ty}}
}()

// packRevert encodes reason as Error(string) revert data.
func packRevert(reason string) []byte {
	data, err := stringArgs.Pack(reason)
	if err != nil {
		panic(err)
	}
	return append(append([]byte(nil), errorSelector...), data...)
}

// Payload is the verify(bytes) argument: the public inputs as 32-byte
// big-endian words followed by the proof bytes.
func Payload(proof []byte, publics []fr.Element) []byte {
	res := make([]byte, 0, len(publics)*fr.Bytes+len(proof))
	for i := range publics {
		b := publics[i].Bytes()
		res = append(res, b[:]...)
	}
	return append(res, proof...)
}

// PayloadDigest is the key under which a verified payload is recorded.
func PayloadDigest(payload []byte) common.Hash {
	return crypto.Keccak256Hash(payload)
}

func PackVerify(proof []byte, publics []fr.Element) ([]byte, error) {
	return VerifierABI.Pack("verify", Payload(proof, publics))
}

func PackVerifiedCount() ([]byte, error) {
	return VerifierABI.Pack("verifiedCount")
}

func PackIsVerified(digest common.Hash) ([]byte, error) {
	return VerifierABI.Pack("isVerified", [32]byte(digest))
}

func PackVkDigest() ([]byte, error) {
	return VerifierABI.Pack("vkDigest")
}

func UnpackBool(method string, data []byte) (bool, error) {
	out, err := VerifierABI.Unpack(method, data)
	if err != nil {
		return false, err
	}
	v, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("%s: unexpected output %T", method, out[0])
	}
	return v, nil
}

func UnpackUint(method string, data []byte) (*big.Int, error) {
	out, err := VerifierABI.Unpack(method, data)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output %T", method, out[0])
	}
	return v, nil
}

func UnpackBytes32(method string, data []byte) (common.Hash, error) {
	out, err := VerifierABI.Unpack(method, data)
	if err != nil {
		return common.Hash{}, err
	}
	v, ok := out[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("%s: unexpected output %T", method, out[0])
	}
	return common.Hash(v), nil
}
