package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"
)

// MaxCallDepth mirrors the EVM call depth limit.
const MaxCallDepth = 1024

var (
	// ErrInsufficientBalance is returned when a value transfer exceeds the
	// sender's native balance.
	ErrInsufficientBalance = errors.New("insufficient native balance for transfer")
	// ErrCallDepth is returned when nested calls exceed MaxCallDepth.
	ErrCallDepth = errors.New("max call depth exceeded")
	// ErrValueOverflow is returned for values that do not fit in 256 bits.
	ErrValueOverflow = errors.New("value exceeds 256 bits")
	// ErrNegativeValue is returned for negative native amounts.
	ErrNegativeValue = errors.New("negative value")
)

// Contract is account code implemented in Go. Every state change it makes
// must go through the Env so it is journaled and reverted with the frame.
type Contract interface {
	Call(env *Env, input []byte) ([]byte, error)
}

// ContractFunc adapts a function to the Contract interface.
type ContractFunc func(env *Env, input []byte) ([]byte, error)

// Call implements Contract.
func (f ContractFunc) Call(env *Env, input []byte) ([]byte, error) {
	return f(env, input)
}

// World is an in-process execution host backed by a go-ethereum StateDB.
// Native balances and contract storage live in the StateDB; every call frame
// takes a journal snapshot and reverts it when the frame fails.
//
// World is not safe for concurrent use. Callers serialize transactions.
type World struct {
	db        *state.StateDB
	contracts map[common.Address]Contract
	depth     int
}

// NewWorld creates an empty world on top of an in-memory database.
func NewWorld() (*World, error) {
	sdb := state.NewDatabase(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil), nil)
	db, err := state.New(types.EmptyRootHash, sdb)
	if err != nil {
		return nil, fmt.Errorf("create state db: %w", err)
	}
	return &World{db: db, contracts: make(map[common.Address]Contract)}, nil
}

// Deploy installs Go code at addr. Deploying twice replaces the code.
func (w *World) Deploy(addr common.Address, contract Contract) {
	w.contracts[addr] = contract
}

// HasCode reports whether addr holds contract code.
func (w *World) HasCode(addr common.Address) bool {
	_, ok := w.contracts[addr]
	return ok
}

// Fund credits addr with native value outside of any transaction.
func (w *World) Fund(addr common.Address, amount *big.Int) error {
	v, err := toU256(amount)
	if err != nil {
		return err
	}
	w.db.AddBalance(addr, v, tracing.BalanceChangeUnspecified)
	w.db.Finalise(false)
	return nil
}

// Balance returns the native balance of addr.
func (w *World) Balance(addr common.Address) *big.Int {
	return w.db.GetBalance(addr).ToBig()
}

// Storage reads a raw storage slot of addr.
func (w *World) Storage(addr common.Address, key common.Hash) common.Hash {
	return w.db.GetState(addr, key)
}

// Transact runs a top-level message call from an externally owned account.
// Either every state change of the call is kept or none is.
func (w *World) Transact(ctx context.Context, from, to common.Address, input []byte, value *big.Int) ([]byte, error) {
	out, err := w.call(ctx, from, from, to, input, value)
	if err == nil {
		w.db.Finalise(false)
	}
	return out, err
}

// TransactFunc runs fn as the code of to for a single top-level call. It is
// used for entrypoints whose arguments are Go values rather than calldata.
func (w *World) TransactFunc(ctx context.Context, from, to common.Address, value *big.Int, fn func(env *Env) error) error {
	_, err := w.enter(ctx, from, from, to, value, func(env *Env) ([]byte, error) {
		return nil, fn(env)
	})
	if err == nil {
		w.db.Finalise(false)
	}
	return err
}

// StaticView runs fn against the current state and discards every change it
// makes. It is used for read-only queries.
func (w *World) StaticView(ctx context.Context, from, to common.Address, fn func(env *Env) error) error {
	snap := w.db.Snapshot()
	defer w.db.RevertToSnapshot(snap)
	env := &Env{ctx: ctx, world: w, origin: from, caller: from, self: to, value: new(big.Int)}
	return fn(env)
}

func (w *World) call(ctx context.Context, origin, caller, to common.Address, input []byte, value *big.Int) ([]byte, error) {
	return w.enter(ctx, origin, caller, to, value, func(env *Env) ([]byte, error) {
		contract, ok := w.contracts[to]
		if !ok {
			// plain account: only the value moves
			return nil, nil
		}
		return contract.Call(env, input)
	})
}

func (w *World) enter(ctx context.Context, origin, caller, to common.Address, value *big.Int, body func(env *Env) ([]byte, error)) ([]byte, error) {
	if w.depth >= MaxCallDepth {
		return nil, ErrCallDepth
	}
	if value == nil {
		value = new(big.Int)
	}
	snap := w.db.Snapshot()
	if err := w.transfer(caller, to, value); err != nil {
		w.db.RevertToSnapshot(snap)
		return nil, err
	}

	env := &Env{
		ctx:    ctx,
		world:  w,
		origin: origin,
		caller: caller,
		self:   to,
		value:  new(big.Int).Set(value),
	}
	w.depth++
	out, err := body(env)
	w.depth--
	if err != nil {
		w.db.RevertToSnapshot(snap)
		return nil, err
	}
	return out, nil
}

func (w *World) transfer(from, to common.Address, value *big.Int) error {
	if value.Sign() == 0 {
		return nil
	}
	v, err := toU256(value)
	if err != nil {
		return err
	}
	if w.db.GetBalance(from).Cmp(v) < 0 {
		return ErrInsufficientBalance
	}
	w.db.SubBalance(from, v, tracing.BalanceChangeTransfer)
	w.db.AddBalance(to, v, tracing.BalanceChangeTransfer)
	return nil
}

func toU256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%w %s", ErrNegativeValue, amount)
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrValueOverflow
	}
	return v, nil
}
