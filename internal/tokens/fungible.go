package tokens

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"OpenUTR/internal/chain"
)

// fungible is the balance and allowance bookkeeping shared by ERC20, WETH
// and ERC777 fixtures.
type fungible struct {
	standard string
	minter   common.Address
}

func (f fungible) balanceKey(acct common.Address) common.Hash {
	return slot("balance", acct.Bytes())
}

func (f fungible) allowanceKey(owner, spender common.Address) common.Hash {
	return slot("allowance", owner.Bytes(), spender.Bytes())
}

func (f fungible) supplyKey() common.Hash { return slot("supply") }

func (f fungible) revert(msg string) error { return chain.Revert(f.standard + ": " + msg) }

func (f fungible) balanceOf(env *chain.Env, acct common.Address) *uint256.Int {
	return loadU256(env, f.balanceKey(acct))
}

func (f fungible) move(env *chain.Env, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return f.revert("transfer to the zero address")
	}
	fromBal := f.balanceOf(env, from)
	if fromBal.Lt(amount) {
		return f.revert("transfer amount exceeds balance")
	}
	storeU256(env, f.balanceKey(from), new(uint256.Int).Sub(fromBal, amount))
	toBal := f.balanceOf(env, to)
	storeU256(env, f.balanceKey(to), new(uint256.Int).Add(toBal, amount))
	return nil
}

func (f fungible) spendAllowance(env *chain.Env, owner, spender common.Address, amount *uint256.Int) error {
	key := f.allowanceKey(owner, spender)
	current := loadU256(env, key)
	if current.Eq(maxU256) {
		return nil
	}
	if current.Lt(amount) {
		return f.revert("insufficient allowance")
	}
	storeU256(env, key, new(uint256.Int).Sub(current, amount))
	return nil
}

func (f fungible) mint(env *chain.Env, to common.Address, amount *uint256.Int) error {
	supply, overflow := new(uint256.Int).AddOverflow(loadU256(env, f.supplyKey()), amount)
	if overflow {
		return f.revert("total supply overflow")
	}
	storeU256(env, f.supplyKey(), supply)
	storeU256(env, f.balanceKey(to), new(uint256.Int).Add(f.balanceOf(env, to), amount))
	return nil
}

func (f fungible) burn(env *chain.Env, from common.Address, amount *uint256.Int) error {
	bal := f.balanceOf(env, from)
	if bal.Lt(amount) {
		return f.revert("burn amount exceeds balance")
	}
	storeU256(env, f.balanceKey(from), new(uint256.Int).Sub(bal, amount))
	storeU256(env, f.supplyKey(), new(uint256.Int).Sub(loadU256(env, f.supplyKey()), amount))
	return nil
}

// handle serves the ERC20 methods. The boolean reports whether name was one
// of them.
func (f fungible) handle(env *chain.Env, method *abi.Method, args []any) ([]byte, bool, error) {
	switch method.Name {
	case "totalSupply":
		out, err := ret(method, loadU256(env, f.supplyKey()).ToBig())
		return out, true, err
	case "balanceOf":
		out, err := ret(method, f.balanceOf(env, args[0].(common.Address)).ToBig())
		return out, true, err
	case "allowance":
		v := loadU256(env, f.allowanceKey(args[0].(common.Address), args[1].(common.Address)))
		out, err := ret(method, v.ToBig())
		return out, true, err
	case "approve":
		storeU256(env, f.allowanceKey(env.Caller(), args[0].(common.Address)), u256(args[1].(*big.Int)))
		out, err := ret(method, true)
		return out, true, err
	case "transfer":
		if err := f.move(env, env.Caller(), args[0].(common.Address), u256(args[1].(*big.Int))); err != nil {
			return nil, true, err
		}
		out, err := ret(method, true)
		return out, true, err
	case "transferFrom":
		from, to, amount := args[0].(common.Address), args[1].(common.Address), u256(args[2].(*big.Int))
		if env.Caller() != from {
			if err := f.spendAllowance(env, from, env.Caller(), amount); err != nil {
				return nil, true, err
			}
		}
		if err := f.move(env, from, to, amount); err != nil {
			return nil, true, err
		}
		out, err := ret(method, true)
		return out, true, err
	case "mint":
		if env.Caller() != f.minter {
			return nil, true, f.revert("caller is not the minter")
		}
		return nil, true, f.mint(env, args[0].(common.Address), u256(args[1].(*big.Int)))
	}
	return nil, false, nil
}

var maxU256 = new(uint256.Int).SetAllOne()
