package tokens

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"OpenUTR/internal/assets"
	"OpenUTR/internal/chain"
)

// ERC721 is a non-fungible token with sequential ids starting at zero.
type ERC721 struct {
	minter common.Address
}

// NewERC721 creates a collection that only minter can mint into.
func NewERC721(minter common.Address) *ERC721 {
	return &ERC721{minter: minter}
}

func (t *ERC721) ownerKey(id *uint256.Int) common.Hash { return slot("owner", idBytes(id)) }
func (t *ERC721) countKey(owner common.Address) common.Hash {
	return slot("count", owner.Bytes())
}
func (t *ERC721) approvedKey(id *uint256.Int) common.Hash { return slot("approved", idBytes(id)) }
func (t *ERC721) operatorKey(owner, operator common.Address) common.Hash {
	return slot("approvalForAll", owner.Bytes(), operator.Bytes())
}
func (t *ERC721) nextKey() common.Hash { return slot("nextId") }

func (t *ERC721) ownerOf(env *chain.Env, id *uint256.Int) (common.Address, error) {
	owner := loadAddress(env, t.ownerKey(id))
	if owner == (common.Address{}) {
		return owner, chain.Revert("ERC721: invalid token ID")
	}
	return owner, nil
}

func (t *ERC721) transfer(env *chain.Env, from, to common.Address, id *uint256.Int) error {
	owner, err := t.ownerOf(env, id)
	if err != nil {
		return err
	}
	if owner != from {
		return chain.Revert("ERC721: transfer from incorrect owner")
	}
	spender := env.Caller()
	if spender != owner && !loadBool(env, t.operatorKey(owner, spender)) && loadAddress(env, t.approvedKey(id)) != spender {
		return chain.Revert("ERC721: caller is not token owner or approved")
	}
	if to == (common.Address{}) {
		return chain.Revert("ERC721: transfer to the zero address")
	}
	storeAddress(env, t.approvedKey(id), common.Address{})
	one := uint256.NewInt(1)
	storeU256(env, t.countKey(from), new(uint256.Int).Sub(loadU256(env, t.countKey(from)), one))
	storeU256(env, t.countKey(to), new(uint256.Int).Add(loadU256(env, t.countKey(to)), one))
	storeAddress(env, t.ownerKey(id), to)
	return nil
}

func (t *ERC721) checkReceiver(env *chain.Env, from, to common.Address, id *uint256.Int, data []byte) error {
	if !env.HasCode(to) {
		return nil
	}
	input := chain.MustPack(assets.ERC721Receiver, "onERC721Received", env.Caller(), from, id.ToBig(), data)
	out, err := env.Call(to, input, nil)
	want := chain.SelectorOf("onERC721Received(address,address,uint256,bytes)")
	if err != nil || len(out) < 4 || !bytes.Equal(out[:4], want[:]) {
		return chain.Revert("ERC721: transfer to non ERC721Receiver implementer")
	}
	return nil
}

// Call implements chain.Contract.
func (t *ERC721) Call(env *chain.Env, input []byte) ([]byte, error) {
	method, args, err := decode(env, assets.ERC721, input, "ERC721")
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "balanceOf":
		owner := args[0].(common.Address)
		if owner == (common.Address{}) {
			return nil, chain.Revert("ERC721: address zero is not a valid owner")
		}
		return ret(method, loadU256(env, t.countKey(owner)).ToBig())
	case "ownerOf":
		owner, err := t.ownerOf(env, u256(args[0].(*big.Int)))
		if err != nil {
			return nil, err
		}
		return ret(method, owner)
	case "approve":
		id := u256(args[1].(*big.Int))
		owner, err := t.ownerOf(env, id)
		if err != nil {
			return nil, err
		}
		if env.Caller() != owner && !loadBool(env, t.operatorKey(owner, env.Caller())) {
			return nil, chain.Revert("ERC721: approve caller is not token owner or approved for all")
		}
		storeAddress(env, t.approvedKey(id), args[0].(common.Address))
		return nil, nil
	case "getApproved":
		id := u256(args[0].(*big.Int))
		if _, err := t.ownerOf(env, id); err != nil {
			return nil, err
		}
		return ret(method, loadAddress(env, t.approvedKey(id)))
	case "setApprovalForAll":
		storeBool(env, t.operatorKey(env.Caller(), args[0].(common.Address)), args[1].(bool))
		return nil, nil
	case "isApprovedForAll":
		return ret(method, loadBool(env, t.operatorKey(args[0].(common.Address), args[1].(common.Address))))
	case "transferFrom":
		return nil, t.transfer(env, args[0].(common.Address), args[1].(common.Address), u256(args[2].(*big.Int)))
	case "safeTransferFrom", "safeTransferFrom0":
		from, to, id := args[0].(common.Address), args[1].(common.Address), u256(args[2].(*big.Int))
		var data []byte
		if len(args) > 3 {
			data = args[3].([]byte)
		}
		if err := t.transfer(env, from, to, id); err != nil {
			return nil, err
		}
		return nil, t.checkReceiver(env, from, to, id, data)
	case "mint":
		if env.Caller() != t.minter {
			return nil, chain.Revert("ERC721: caller is not the minter")
		}
		to := args[0].(common.Address)
		if to == (common.Address{}) {
			return nil, chain.Revert("ERC721: mint to the zero address")
		}
		id := loadU256(env, t.nextKey())
		storeU256(env, t.nextKey(), new(uint256.Int).AddUint64(id, 1))
		storeAddress(env, t.ownerKey(id), to)
		storeU256(env, t.countKey(to), new(uint256.Int).AddUint64(loadU256(env, t.countKey(to)), 1))
		return ret(method, id.ToBig())
	case "totalMinted":
		return ret(method, loadU256(env, t.nextKey()).ToBig())
	}
	return nil, chain.Revert("ERC721: unsupported call")
}
