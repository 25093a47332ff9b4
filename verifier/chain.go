package verifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/eon-protocol/zkpipe"
	"github.com/eon-protocol/zkpipe/onchain"
)

// Chain verifies by calling a deployed verifier contract.
type Chain struct {
	chain    *onchain.Chain
	addr     common.Address
	from     common.Address
	gas      uint64
	simulate bool
}

type ChainOption func(*Chain)

// WithSender sets the transaction sender.
func WithSender(from common.Address) ChainOption {
	return func(c *Chain) {
		c.from = from
	}
}

func WithGas(gas uint64) ChainOption {
	return func(c *Chain) {
		c.gas = gas
	}
}

// Simulate verifies with a call that leaves no state on the ledger.
func Simulate() ChainOption {
	return func(c *Chain) {
		c.simulate = true
	}
}

func NewChain(chain *onchain.Chain, addr common.Address, opts ...ChainOption) *Chain {
	res := &Chain{chain: chain, addr: addr}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

// DeployChain deploys the verifier contract of vk and returns a backend
// calling it.
func DeployChain(chain *onchain.Chain, vk *zkpipe.Vk, opts ...ChainOption) (*Chain, error) {
	res := NewChain(chain, common.Address{}, opts...)
	addr, err := onchain.DeployVerifier(chain, res.from, vk)
	if err != nil {
		return nil, fmt.Errorf("deploy verifier: %w", err)
	}
	res.addr = addr
	return res, nil
}

func (me *Chain) Address() common.Address {
	return me.addr
}

func (me *Chain) Name() string {
	return "chain"
}

func (me *Chain) Verify(ctx context.Context, proof []byte, publics []fr.Element) (res Result, err error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	defer guard(&res, &err)
	data, err := onchain.PackVerify(proof, publics)
	if err != nil {
		return rejected(err.Error()), nil
	}
	msg := onchain.Msg{From: me.from, To: me.addr, Data: data, Gas: me.gas}

	if me.simulate {
		out, err := me.chain.Call(ctx, msg)
		if err != nil {
			return me.callFailed(err)
		}
		return me.decode(Result{}, out), nil
	}

	receipt, err := me.chain.SendTransaction(ctx, msg)
	if err != nil {
		return Result{}, err
	}
	res = Result{GasUsed: receipt.GasUsed, TxHash: receipt.TxHash}
	if receipt.Status != types.ReceiptStatusSuccessful {
		res.Reason = receipt.RevertReason
		if res.Reason == "" && receipt.Err != nil {
			res.Reason = receipt.Err.Error()
		}
		return res, nil
	}
	return me.decode(res, receipt.ReturnData), nil
}

func (me *Chain) callFailed(err error) (Result, error) {
	var revert *onchain.RevertError
	if errors.As(err, &revert) {
		return rejected(revert.Reason), nil
	}
	if errors.Is(err, onchain.ErrUnknownContract) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Result{}, err
	}
	return rejected(err.Error()), nil
}

func (me *Chain) decode(res Result, out []byte) Result {
	ok, err := onchain.UnpackBool("verify", out)
	if err != nil {
		res.Reason = err.Error()
		return res
	}
	res.Accepted = ok
	if !ok {
		res.Reason = "verifier returned false"
	}
	return res
}
