package verifier

import (
	"context"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/eon-protocol/zkpipe"
)

// Native verifies in process.
type Native struct {
	vk *zkpipe.Vk
}

func NewNative(vk *zkpipe.Vk) *Native {
	return &Native{vk: vk}
}

func (me *Native) Name() string {
	return "native"
}

func (me *Native) Verify(ctx context.Context, proof []byte, publics []fr.Element) (res Result, err error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	defer guard(&res, &err)
	if me.vk == nil {
		return rejected("no verification key"), nil
	}
	if err := me.vk.VerifyBytes(proof, publics); err != nil {
		return rejected(err.Error()), nil
	}
	return Result{Accepted: true}, nil
}
