package tokens

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"OpenUTR/internal/assets"
	"OpenUTR/internal/chain"
)

// ERC1155 is a multi-token fixture. Only the minter can create balances.
type ERC1155 struct {
	minter common.Address
}

// NewERC1155 creates a multi-token controlled by minter.
func NewERC1155(minter common.Address) *ERC1155 {
	return &ERC1155{minter: minter}
}

func (t *ERC1155) balanceKey(id *uint256.Int, acct common.Address) common.Hash {
	return slot("balance", idBytes(id), acct.Bytes())
}

func (t *ERC1155) operatorKey(owner, operator common.Address) common.Hash {
	return slot("approvalForAll", owner.Bytes(), operator.Bytes())
}

func (t *ERC1155) move(env *chain.Env, from, to common.Address, id, amount *uint256.Int) error {
	fromBal := loadU256(env, t.balanceKey(id, from))
	if fromBal.Lt(amount) {
		return chain.Revert("ERC1155: insufficient balance for transfer")
	}
	storeU256(env, t.balanceKey(id, from), new(uint256.Int).Sub(fromBal, amount))
	toBal, overflow := new(uint256.Int).AddOverflow(loadU256(env, t.balanceKey(id, to)), amount)
	if overflow {
		return chain.Revert("ERC1155: balance overflow")
	}
	storeU256(env, t.balanceKey(id, to), toBal)
	return nil
}

func (t *ERC1155) authorize(env *chain.Env, from, to common.Address) error {
	if env.Caller() != from && !loadBool(env, t.operatorKey(from, env.Caller())) {
		return chain.Revert("ERC1155: caller is not token owner or approved")
	}
	if to == (common.Address{}) {
		return chain.Revert("ERC1155: transfer to the zero address")
	}
	return nil
}

func (t *ERC1155) acceptance(env *chain.Env, to common.Address, input []byte, signature string) error {
	if !env.HasCode(to) {
		return nil
	}
	out, err := env.Call(to, input, nil)
	want := chain.SelectorOf(signature)
	if err != nil || len(out) < 4 || !bytes.Equal(out[:4], want[:]) {
		return chain.Revert("ERC1155: transfer to non-ERC1155Receiver implementer")
	}
	return nil
}

// Call implements chain.Contract.
func (t *ERC1155) Call(env *chain.Env, input []byte) ([]byte, error) {
	method, args, err := decode(env, assets.ERC1155, input, "ERC1155")
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "balanceOf":
		v := loadU256(env, t.balanceKey(u256(args[1].(*big.Int)), args[0].(common.Address)))
		return ret(method, v.ToBig())
	case "setApprovalForAll":
		storeBool(env, t.operatorKey(env.Caller(), args[0].(common.Address)), args[1].(bool))
		return nil, nil
	case "isApprovedForAll":
		return ret(method, loadBool(env, t.operatorKey(args[0].(common.Address), args[1].(common.Address))))
	case "safeTransferFrom":
		from, to := args[0].(common.Address), args[1].(common.Address)
		id, amount, data := args[2].(*big.Int), args[3].(*big.Int), args[4].([]byte)
		if err := t.authorize(env, from, to); err != nil {
			return nil, err
		}
		if err := t.move(env, from, to, u256(id), u256(amount)); err != nil {
			return nil, err
		}
		hook := chain.MustPack(assets.ERC1155Receiver, "onERC1155Received", env.Caller(), from, id, amount, data)
		return nil, t.acceptance(env, to, hook, "onERC1155Received(address,address,uint256,uint256,bytes)")
	case "safeBatchTransferFrom":
		from, to := args[0].(common.Address), args[1].(common.Address)
		ids, amounts, data := args[2].([]*big.Int), args[3].([]*big.Int), args[4].([]byte)
		if len(ids) != len(amounts) {
			return nil, chain.Revert("ERC1155: ids and amounts length mismatch")
		}
		if err := t.authorize(env, from, to); err != nil {
			return nil, err
		}
		for i := range ids {
			if err := t.move(env, from, to, u256(ids[i]), u256(amounts[i])); err != nil {
				return nil, err
			}
		}
		hook := chain.MustPack(assets.ERC1155Receiver, "onERC1155BatchReceived", env.Caller(), from, ids, amounts, data)
		return nil, t.acceptance(env, to, hook, "onERC1155BatchReceived(address,address,uint256[],uint256[],bytes)")
	case "mint":
		if env.Caller() != t.minter {
			return nil, chain.Revert("ERC1155: caller is not the minter")
		}
		to, id, amount := args[0].(common.Address), u256(args[1].(*big.Int)), u256(args[2].(*big.Int))
		bal, overflow := new(uint256.Int).AddOverflow(loadU256(env, t.balanceKey(id, to)), amount)
		if overflow {
			return nil, chain.Revert("ERC1155: balance overflow")
		}
		storeU256(env, t.balanceKey(id, to), bal)
		return nil, nil
	}
	return nil, chain.Revert("ERC1155: unsupported call")
}
