package router

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"OpenUTR/internal/assets"
	"OpenUTR/internal/chain"
)

// BalanceOf 返回输出所描述的接收方余额。ERC721 指定具体 ID 时，持有为 1，否则为 0。
func BalanceOf(env *chain.Env, o Output) (*big.Int, error) {
	switch o.EIP {
	case AssetNative:
		return env.Balance(o.Recipient), nil
	case AssetERC20, AssetERC777:
		return callUint(env, o.Token, chain.MustPack(assets.ERC20, "balanceOf", o.Recipient), assets.ERC20.Methods["balanceOf"].Outputs)
	case AssetERC721:
		id := bigOrZero(o.ID)
		if id.Cmp(AllNFTSentinel) == 0 {
			return callUint(env, o.Token, chain.MustPack(assets.ERC721, "balanceOf", o.Recipient), assets.ERC721.Methods["balanceOf"].Outputs)
		}
		out, err := env.Call(o.Token, chain.MustPack(assets.ERC721, "ownerOf", id), nil)
		if err != nil {
			return new(big.Int), nil
		}
		values, err := assets.ERC721.Methods["ownerOf"].Outputs.Unpack(out)
		if err != nil || len(values) == 0 {
			return new(big.Int), nil
		}
		if owner, ok := values[0].(common.Address); ok && owner == o.Recipient {
			return big.NewInt(1), nil
		}
		return new(big.Int), nil
	case AssetERC1155:
		return callUint(env, o.Token, chain.MustPack(assets.ERC1155, "balanceOf", o.Recipient, bigOrZero(o.ID)), assets.ERC1155.Methods["balanceOf"].Outputs)
	default:
		return nil, fail(CodeInvalidAssetClass, "unsupported output asset class %s", o.EIP)
	}
}

type unpacker interface {
	Unpack(data []byte) ([]any, error)
}

func callUint(env *chain.Env, token common.Address, input []byte, outputs unpacker) (*big.Int, error) {
	out, err := env.Call(token, input, nil)
	if err != nil {
		return nil, err
	}
	values, err := outputs.Unpack(out)
	if err != nil || len(values) == 0 {
		return nil, fail(CodeInvalidAssetClass, "token %s returned a malformed balance", token.Hex())
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fail(CodeInvalidAssetClass, "token %s returned a malformed balance", token.Hex())
	}
	return v, nil
}

// expectation 是某个输出在批次开始时记录的余额与目标。
type expectation struct {
	output Output
	before *big.Int
	target *big.Int
}

// snapshotOutputs 在任何动作执行前记录所有输出的余额。
func snapshotOutputs(env *chain.Env, outputs []Output) ([]expectation, error) {
	exps := make([]expectation, 0, len(outputs))
	for i, o := range outputs {
		before, err := BalanceOf(env, o)
		if err != nil {
			return nil, err
		}
		target := new(big.Int).Add(before, bigOrZero(o.MinAmount))
		if target.Cmp(math.MaxBig256) > 0 {
			return nil, fail(CodeOutputBalanceOverflow, "output %d: balance %s plus minimum %s overflows", i, before, bigOrZero(o.MinAmount))
		}
		exps = append(exps, expectation{output: o, before: before, target: target})
	}
	return exps, nil
}

// verifyOutputs 在所有动作完成后检查每个输出的增量。
func verifyOutputs(env *chain.Env, exps []expectation) ([]Delta, error) {
	deltas := make([]Delta, 0, len(exps))
	for i, exp := range exps {
		after, err := BalanceOf(env, exp.output)
		if err != nil {
			return nil, err
		}
		if after.Cmp(exp.target) < 0 {
			return nil, fail(CodeInsufficientOutput, "output %d: received %s, want at least %s",
				i, new(big.Int).Sub(after, exp.before), bigOrZero(exp.output.MinAmount))
		}
		deltas = append(deltas, Delta{Output: exp.output, Before: exp.before, After: after})
	}
	return deltas, nil
}
