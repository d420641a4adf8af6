package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Env is the view a contract has of the world during one call frame.
type Env struct {
	ctx    context.Context
	world  *World
	origin common.Address
	caller common.Address
	self   common.Address
	value  *big.Int
}

// Context returns the context the frame was entered with. Values stored in
// it travel into every nested call made through this Env.
func (e *Env) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// Self is the address of the executing contract.
func (e *Env) Self() common.Address { return e.self }

// Caller is the immediate sender of the call.
func (e *Env) Caller() common.Address { return e.caller }

// Origin is the externally owned account that started the transaction.
func (e *Env) Origin() common.Address { return e.origin }

// Value returns a copy of the native value attached to the call.
func (e *Env) Value() *big.Int { return new(big.Int).Set(e.value) }

// GetState reads a storage slot of the executing contract.
func (e *Env) GetState(key common.Hash) common.Hash {
	return e.world.db.GetState(e.self, key)
}

// SetState writes a storage slot of the executing contract.
func (e *Env) SetState(key, value common.Hash) {
	e.world.db.SetState(e.self, key, value)
}

// Balance returns the native balance of addr.
func (e *Env) Balance(addr common.Address) *big.Int {
	return e.world.Balance(addr)
}

// HasCode reports whether addr holds contract code.
func (e *Env) HasCode(addr common.Address) bool {
	return e.world.HasCode(addr)
}

// Call performs a nested message call with the executing contract as sender.
func (e *Env) Call(to common.Address, input []byte, value *big.Int) ([]byte, error) {
	return e.world.call(e.Context(), e.origin, e.self, to, input, value)
}

// CallContext is Call with an explicit context, used to hand values to the
// callee and everything it calls in turn.
func (e *Env) CallContext(ctx context.Context, to common.Address, input []byte, value *big.Int) ([]byte, error) {
	return e.world.call(ctx, e.origin, e.self, to, input, value)
}

// Transfer sends native value from the executing contract to addr, running
// addr's receive logic when it is a contract.
func (e *Env) Transfer(to common.Address, value *big.Int) error {
	_, err := e.Call(to, nil, value)
	return err
}

// Call is a capability to invoke one external operation: a target, its
// calldata and the native value to attach.
type Call struct {
	To    common.Address
	Input []byte
	Value *big.Int
}

// Invoke performs c with the executing contract as sender under ctx.
func (e *Env) Invoke(ctx context.Context, c Call) ([]byte, error) {
	return e.world.call(ctx, e.origin, e.self, c.To, c.Input, c.Value)
}
