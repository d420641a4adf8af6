package tokens

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"OpenUTR/internal/chain"
)

// slot derives a storage key from a tag and the key material of a mapping.
func slot(tag string, parts ...[]byte) common.Hash {
	data := make([][]byte, 0, len(parts)+1)
	data = append(data, []byte(tag))
	data = append(data, parts...)
	return crypto.Keccak256Hash(data...)
}

func loadU256(env *chain.Env, key common.Hash) *uint256.Int {
	h := env.GetState(key)
	return new(uint256.Int).SetBytes32(h[:])
}

func storeU256(env *chain.Env, key common.Hash, v *uint256.Int) {
	env.SetState(key, common.Hash(v.Bytes32()))
}

func loadAddress(env *chain.Env, key common.Hash) common.Address {
	return common.BytesToAddress(env.GetState(key).Bytes())
}

func storeAddress(env *chain.Env, key common.Hash, addr common.Address) {
	env.SetState(key, common.BytesToHash(addr.Bytes()))
}

func loadBool(env *chain.Env, key common.Hash) bool {
	return env.GetState(key) != (common.Hash{})
}

func storeBool(env *chain.Env, key common.Hash, v bool) {
	var h common.Hash
	if v {
		h[common.HashLength-1] = 1
	}
	env.SetState(key, h)
}

func u256(v *big.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return uint256.MustFromBig(v)
}

func idBytes(id *uint256.Int) []byte {
	b := id.Bytes32()
	return b[:]
}

// decode resolves calldata against parsed and rejects value sent to a
// function that is not payable.
func decode(env *chain.Env, parsed abi.ABI, input []byte, standard string) (*abi.Method, []any, error) {
	method, args, err := chain.Decode(parsed, input)
	if err != nil {
		return nil, nil, chain.Revert(standard + ": unsupported call")
	}
	if env.Value().Sign() > 0 && !method.IsPayable() {
		return nil, nil, chain.Revert(standard + ": function is not payable")
	}
	return method, args, nil
}

func ret(method *abi.Method, values ...any) ([]byte, error) {
	return method.Outputs.Pack(values...)
}
