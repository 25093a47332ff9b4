// Package verifier puts the native and on-chain verifiers behind one
// interface. Both backends fail closed: malformed input is a rejection with a
// reason, never a panic and never an acceptance.
package verifier

import (
	"context"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/ethereum/go-ethereum/common"

	"github.com/eon-protocol/zkpipe/internal/metrics"
)

type Result struct {
	Accepted bool
	Reason   string      // why the proof was rejected
	GasUsed  uint64      // on-chain only
	TxHash   common.Hash // on-chain only
}

// Backend verifies a serialized proof against the public inputs of the
// verification key it was built for. The error is reserved for failures of
// the backend itself (cancelled context, unreachable ledger); a rejected
// proof is a Result.
type Backend interface {
	Name() string
	Verify(ctx context.Context, proof []byte, publics []fr.Element) (Result, error)
}

func rejected(reason string) Result {
	return Result{Reason: reason}
}

// guard turns a panic into a rejection.
func guard(res *Result, err *error) {
	if r := recover(); r != nil {
		*res = rejected(fmt.Sprint("verifier panic: ", r))
		*err = nil
	}
}

type instrumented struct {
	Backend
}

// Instrument reports every verdict of b to the metrics registry.
func Instrument(b Backend) Backend {
	return instrumented{b}
}

func (me instrumented) Verify(ctx context.Context, proof []byte, publics []fr.Element) (Result, error) {
	res, err := me.Backend.Verify(ctx, proof, publics)
	if err == nil {
		metrics.ObserveVerification(me.Name(), res.Accepted, res.GasUsed)
	}
	return res, err
}
