package tokens

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"OpenUTR/internal/assets"
	"OpenUTR/internal/chain"
)

// ERC20 is a plain fungible token. Only the minter can create supply.
type ERC20 struct {
	fungible
}

// NewERC20 creates a token whose supply is controlled by minter.
func NewERC20(minter common.Address) *ERC20 {
	return &ERC20{fungible{standard: "ERC20", minter: minter}}
}

// Call implements chain.Contract.
func (t *ERC20) Call(env *chain.Env, input []byte) ([]byte, error) {
	method, args, err := decode(env, assets.ERC20, input, t.standard)
	if err != nil {
		return nil, err
	}
	out, _, err := t.handle(env, method, args)
	return out, err
}

// WETH wraps the native coin one to one.
type WETH struct {
	fungible
}

// NewWETH creates a wrapped native token. Its supply only grows through
// deposits.
func NewWETH() *WETH {
	return &WETH{fungible{standard: "WETH"}}
}

// Call implements chain.Contract. Plain value transfers count as deposits.
func (t *WETH) Call(env *chain.Env, input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, t.mint(env, env.Caller(), u256(env.Value()))
	}
	method, args, err := decode(env, assets.WETH, input, t.standard)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "deposit":
		return nil, t.mint(env, env.Caller(), u256(env.Value()))
	case "withdraw":
		wad := u256(args[0].(*big.Int))
		if err := t.burn(env, env.Caller(), wad); err != nil {
			return nil, err
		}
		return nil, env.Transfer(env.Caller(), wad.ToBig())
	}
	out, _, err := t.handle(env, method, args)
	return out, err
}

// ERC777 adds the operator model on top of the ERC20 surface.
type ERC777 struct {
	fungible
}

// NewERC777 creates an operator-enabled token controlled by minter.
func NewERC777(minter common.Address) *ERC777 {
	return &ERC777{fungible{standard: "ERC777", minter: minter}}
}

func (t *ERC777) operatorKey(operator, holder common.Address) common.Hash {
	return slot("operator", operator.Bytes(), holder.Bytes())
}

func (t *ERC777) isOperatorFor(env *chain.Env, operator, holder common.Address) bool {
	return operator == holder || loadBool(env, t.operatorKey(operator, holder))
}

// Call implements chain.Contract.
func (t *ERC777) Call(env *chain.Env, input []byte) ([]byte, error) {
	method, args, err := decode(env, assets.ERC777, input, t.standard)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "authorizeOperator":
		storeBool(env, t.operatorKey(args[0].(common.Address), env.Caller()), true)
		return nil, nil
	case "revokeOperator":
		storeBool(env, t.operatorKey(args[0].(common.Address), env.Caller()), false)
		return nil, nil
	case "isOperatorFor":
		return ret(method, t.isOperatorFor(env, args[0].(common.Address), args[1].(common.Address)))
	case "send":
		return nil, t.move(env, env.Caller(), args[0].(common.Address), u256(args[1].(*big.Int)))
	case "operatorSend":
		holder := args[0].(common.Address)
		if !t.isOperatorFor(env, env.Caller(), holder) {
			return nil, t.revert("caller is not an operator for holder")
		}
		return nil, t.move(env, holder, args[1].(common.Address), u256(args[2].(*big.Int)))
	case "operatorBurn":
		holder := args[0].(common.Address)
		if !t.isOperatorFor(env, env.Caller(), holder) {
			return nil, t.revert("caller is not an operator for holder")
		}
		return nil, t.burn(env, holder, u256(args[1].(*big.Int)))
	}
	out, _, err := t.handle(env, method, args)
	return out, err
}
