package onchain

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"
)

// counter stores input[1] at slot 0, then reverts or burns gas per input[0].
type counter struct{}

func (counter) Run(env *Env, input []byte) ([]byte, error) {
	if err := env.SStore(common.Hash{}, common.Hash{31: input[1]}); err != nil {
		return nil, err
	}
	if err := env.Emit([]common.Hash{{1}}, nil); err != nil {
		return nil, err
	}
	switch input[0] {
	case 1:
		return nil, NewRevertError("nope")
	case 2:
		env.UseGas(env.GasLeft() + 1)
		return []byte{1}, nil
	}
	return []byte{input[1]}, nil
}

func TestChainRevertRestoresState(t *testing.T) {
	chain := NewChain(0)
	require.EqualValues(t, DEFAULT_GAS_LIMIT, chain.GasLimit())
	addr, err := chain.Deploy(deployer, counter{})
	require.NoError(t, err)
	require.Equal(t, crypto.CreateAddress(deployer, 0), addr)

	ctx := context.Background()
	receipt, err := chain.SendTransaction(ctx, Msg{From: deployer, To: addr, Data: []byte{0, 7}})
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.Equal(t, []byte{7}, receipt.ReturnData)
	require.Len(t, receipt.Logs, 1)
	require.Equal(t, IntrinsicGas([]byte{0, 7})+GAS_SSET+params.LogGas+params.LogTopicGas, receipt.GasUsed)
	require.Equal(t, common.Hash{31: 7}, chain.Storage(addr, common.Hash{}))

	receipt, err = chain.SendTransaction(ctx, Msg{From: deployer, To: addr, Data: []byte{1, 9}})
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusFailed, receipt.Status)
	require.Equal(t, "nope", receipt.RevertReason)
	require.ErrorIs(t, receipt.Err, vm.ErrExecutionReverted)
	require.Empty(t, receipt.Logs)
	require.Equal(t, common.Hash{31: 7}, chain.Storage(addr, common.Hash{}))

	receipt, err = chain.SendTransaction(ctx, Msg{From: deployer, To: addr, Data: []byte{2, 9}, Gas: 100_000})
	require.NoError(t, err)
	require.ErrorIs(t, receipt.Err, vm.ErrOutOfGas)
	require.EqualValues(t, 100_000, receipt.GasUsed)
	require.Equal(t, common.Hash{31: 7}, chain.Storage(addr, common.Hash{}))

	out, err := chain.Call(ctx, Msg{From: deployer, To: addr, Data: []byte{0, 5}})
	require.NoError(t, err)
	require.Equal(t, []byte{5}, out)
	require.Equal(t, common.Hash{31: 7}, chain.Storage(addr, common.Hash{}))
}

func TestChainRejectsUnexecutable(t *testing.T) {
	chain := NewChain(100_000)
	_, err := chain.Deploy(deployer, nil)
	require.ErrorIs(t, err, ErrNilContract)

	_, err = chain.SendTransaction(context.Background(), Msg{From: deployer, To: common.Address{1}})
	require.ErrorIs(t, err, ErrUnknownContract)
}

func TestIntrinsicGas(t *testing.T) {
	require.EqualValues(t, 21000, IntrinsicGas(nil))
	require.EqualValues(t, 21000+4+16, IntrinsicGas([]byte{0, 1}))
}
