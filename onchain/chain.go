// Package onchain runs the verifier contract on a single-threaded simulated
// ledger. Execution is metered with EVM gas costs and the BLS12-381 work is
// delegated to go-ethereum's Prague precompiles.
package onchain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/consensys/gnark/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/rs/zerolog"
)

const DEFAULT_GAS_LIMIT = 30_000_000

// gas schedule of the operations a contract can perform
const (
	GAS_MODOP   = vm.GasMidStep // ADDMOD, MULMOD
	GAS_SLOAD   = params.ColdSloadCostEIP2929
	GAS_SSET    = params.SstoreSetGasEIP2200
	GAS_SRESET  = params.SstoreResetGasEIP2200 - params.ColdSloadCostEIP2929
	GAS_PRECALL = params.WarmStorageReadCostEIP2929
)

var (
	ErrUnknownContract = errors.New("no contract at address")
	ErrNilContract     = errors.New("nil contract")
)

// Contract is code deployed on the chain. Run returns the ABI encoded output,
// a *RevertError, or an execution error.
type Contract interface {
	Run(env *Env, input []byte) ([]byte, error)
}

// RevertError carries Error(string) revert data.
type RevertError struct {
	Reason string
	Data   []byte
}

func NewRevertError(reason string) *RevertError {
	return &RevertError{Reason: reason, Data: packRevert(reason)}
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

func (e *RevertError) Unwrap() error {
	return vm.ErrExecutionReverted
}

type Msg struct {
	From common.Address
	To   common.Address
	Data []byte
	Gas  uint64 // zero means the chain gas limit
}

type Receipt struct {
	TxHash       common.Hash
	BlockNumber  uint64
	Status       uint64
	GasUsed      uint64
	ReturnData   []byte
	RevertReason string
	Logs         []*types.Log
	Err          error `json:"-"`
}

type Chain struct {
	mu          sync.Mutex
	gasLimit    uint64
	contracts   map[common.Address]Contract
	storage     map[common.Address]map[common.Hash]common.Hash
	nonces      map[common.Address]uint64
	precompiles vm.PrecompiledContracts
	block       uint64
	logIndex    uint
	log         zerolog.Logger
}

func NewChain(gasLimit uint64) *Chain {
	if gasLimit == 0 {
		gasLimit = DEFAULT_GAS_LIMIT
	}
	return &Chain{
		gasLimit:  gasLimit,
		contracts: make(map[common.Address]Contract),
		storage:   make(map[common.Address]map[common.Hash]common.Hash),
		nonces:    make(map[common.Address]uint64),
		precompiles: vm.ActivePrecompiledContracts(params.Rules{
			IsHomestead: true, IsEIP150: true, IsEIP155: true, IsEIP158: true,
			IsByzantium: true, IsConstantinople: true, IsPetersburg: true, IsIstanbul: true,
			IsBerlin: true, IsLondon: true, IsMerge: true, IsShanghai: true, IsCancun: true, IsPrague: true,
		}),
		log: logger.Logger().With().Str("component", "chain").Logger(),
	}
}

func (c *Chain) GasLimit() uint64 {
	return c.gasLimit
}

// Deploy installs contract at the CREATE address of from.
func (c *Chain) Deploy(from common.Address, contract Contract) (common.Address, error) {
	if contract == nil {
		return common.Address{}, ErrNilContract
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := crypto.CreateAddress(from, c.nonces[from])
	c.nonces[from]++
	c.contracts[addr] = contract
	c.storage[addr] = make(map[common.Hash]common.Hash)
	c.block++
	c.log.Debug().Str("address", addr.Hex()).Msg("contract deployed")
	return addr, nil
}

func (c *Chain) Storage(addr common.Address, key common.Hash) common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storage[addr][key]
}

// IntrinsicGas is the cost of a transaction before execution.
func IntrinsicGas(data []byte) uint64 {
	gas := params.TxGas
	for _, b := range data {
		if b == 0 {
			gas += params.TxDataZeroGas
		} else {
			gas += params.TxDataNonZeroGasEIP2028
		}
	}
	return gas
}

// Call executes msg and discards its state changes and logs.
func (c *Chain) Call(ctx context.Context, msg Msg) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	res := c.execute(msg, true)
	return res.ReturnData, res.Err
}

// SendTransaction executes msg as a transaction. Execution failures are
// reported in the receipt; the error is for transactions that cannot run.
func (c *Chain) SendTransaction(ctx context.Context, msg Msg) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.contracts[msg.To]; !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownContract, msg.To.Hex())
	}
	gas := msg.Gas
	if gas == 0 {
		gas = c.gasLimit
	}
	if gas > c.gasLimit {
		return nil, fmt.Errorf("%w: %d > %d", core.ErrGasLimitReached, gas, c.gasLimit)
	}
	if intrinsic := IntrinsicGas(msg.Data); gas < intrinsic {
		return nil, fmt.Errorf("%w: have %d, want %d", core.ErrIntrinsicGas, gas, intrinsic)
	}

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], c.nonces[msg.From])
	c.nonces[msg.From]++
	c.block++

	receipt := c.execute(msg, false)
	receipt.TxHash = crypto.Keccak256Hash(msg.From.Bytes(), nonce[:], msg.To.Bytes(), msg.Data)
	receipt.BlockNumber = c.block
	for _, l := range receipt.Logs {
		l.TxHash = receipt.TxHash
		l.BlockNumber = c.block
		l.Index = c.logIndex
		c.logIndex++
	}
	c.log.Debug().
		Str("tx", receipt.TxHash.Hex()).
		Uint64("status", receipt.Status).
		Uint64("gasUsed", receipt.GasUsed).
		Str("revert", receipt.RevertReason).
		Msg("transaction executed")
	return receipt, nil
}

func (c *Chain) execute(msg Msg, discard bool) *Receipt {
	receipt := &Receipt{Status: types.ReceiptStatusFailed}
	contract, ok := c.contracts[msg.To]
	if !ok {
		receipt.Err = fmt.Errorf("%w %s", ErrUnknownContract, msg.To.Hex())
		return receipt
	}
	gas := msg.Gas
	if gas == 0 || gas > c.gasLimit {
		gas = c.gasLimit
	}
	intrinsic := IntrinsicGas(msg.Data)
	if gas < intrinsic {
		receipt.Err = core.ErrIntrinsicGas
		return receipt
	}

	snapshot := maps.Clone(c.storage[msg.To])
	env := &Env{
		chain:   c,
		Address: msg.To,
		Caller:  msg.From,
		gas:     gas - intrinsic,
		storage: c.storage[msg.To],
	}
	out, err := contract.Run(env, msg.Data)
	if env.err != nil {
		err = env.err
	}
	receipt.GasUsed = gas - env.gas

	var revert *RevertError
	switch {
	case err == nil:
		receipt.Status = types.ReceiptStatusSuccessful
		receipt.ReturnData = out
		receipt.Logs = env.logs
	case errors.As(err, &revert):
		receipt.ReturnData = revert.Data
		if reason, uerr := abi.UnpackRevert(revert.Data); uerr == nil {
			receipt.RevertReason = reason
		}
		receipt.Err = err
	default:
		// exceptional halt consumes all gas
		receipt.GasUsed = gas
		receipt.Err = err
	}
	if discard || receipt.Status != types.ReceiptStatusSuccessful {
		c.storage[msg.To] = snapshot
	}
	return receipt
}

// Env is the execution context of one contract call.
type Env struct {
	chain   *Chain
	Address common.Address
	Caller  common.Address
	gas     uint64
	err     error
	storage map[common.Hash]common.Hash
	logs    []*types.Log
}

// UseGas charges n; once gas is exhausted every further operation is a no-op
// and Err returns vm.ErrOutOfGas.
func (e *Env) UseGas(n uint64) bool {
	if e.err != nil {
		return false
	}
	if e.gas < n {
		e.gas = 0
		e.err = vm.ErrOutOfGas
		return false
	}
	e.gas -= n
	return true
}

func (e *Env) Err() error {
	return e.err
}

func (e *Env) GasLeft() uint64 {
	return e.gas
}

func (e *Env) Keccak256(data ...[]byte) common.Hash {
	size := 0
	for _, d := range data {
		size += len(d)
	}
	words := uint64(size+31) / 32
	if !e.UseGas(params.Keccak256Gas + words*params.Keccak256WordGas) {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(data...)
}

func (e *Env) SLoad(key common.Hash) common.Hash {
	if !e.UseGas(GAS_SLOAD) {
		return common.Hash{}
	}
	return e.storage[key]
}

func (e *Env) SStore(key, value common.Hash) error {
	cost := uint64(GAS_SRESET)
	if e.storage[key] == (common.Hash{}) && value != (common.Hash{}) {
		cost = GAS_SSET
	}
	if !e.UseGas(cost) {
		return e.err
	}
	if value == (common.Hash{}) {
		delete(e.storage, key)
	} else {
		e.storage[key] = value
	}
	return nil
}

func (e *Env) Emit(topics []common.Hash, data []byte) error {
	if !e.UseGas(params.LogGas + uint64(len(topics))*params.LogTopicGas + uint64(len(data))*params.LogDataGas) {
		return e.err
	}
	e.logs = append(e.logs, &types.Log{Address: e.Address, Topics: topics, Data: data})
	return nil
}

// CallPrecompile runs the precompile at addr, charging its required gas.
func (e *Env) CallPrecompile(addr common.Address, input []byte) ([]byte, error) {
	p, ok := e.chain.precompiles[addr]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownContract, addr.Hex())
	}
	if !e.UseGas(GAS_PRECALL + p.RequiredGas(input)) {
		return nil, e.err
	}
	return p.Run(input)
}
