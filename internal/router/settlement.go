package router

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"OpenUTR/internal/assets"
	"OpenUTR/internal/chain"
	apperrors "OpenUTR/internal/errors"
)

type activeActionKey struct{}

// activeAction 是当前正在执行的动作，pay 只接受来自它的回调。
type activeAction struct {
	target common.Address
	payer  common.Address
}

func withActiveAction(ctx context.Context, a activeAction) context.Context {
	return context.WithValue(ctx, activeActionKey{}, a)
}

func activeActionFrom(ctx context.Context) (activeAction, bool) {
	a, ok := ctx.Value(activeActionKey{}).(activeAction)
	return a, ok
}

// nativeBudget 跟踪批次附带的原生币，CALL_VALUE 与原生 TRANSFER 都从中支出。
type nativeBudget struct {
	remaining *big.Int
}

func (b *nativeBudget) spend(amount *big.Int) error {
	if amount.Sign() < 0 || b.remaining.Cmp(amount) < 0 {
		return fail(CodeTransferFailed, "native amount %s exceeds attached value %s", amount, b.remaining)
	}
	b.remaining.Sub(b.remaining, amount)
	return nil
}

// settle 依次结算一个动作的输入，返回动作调用需要附带的原生币数量。
func (r *Router) settle(env *chain.Env, payer common.Address, inputs []Input, budget *nativeBudget, ledger *Ledger) (*big.Int, error) {
	callValue := new(big.Int)
	for i, in := range inputs {
		if !fitsU256(in.Amount) || !fitsU256(in.ID) {
			code := CodeTransferFailed
			if in.Mode == ModePayment {
				code = CodeInvalidPayment
			}
			return nil, fail(code, "input %d: amount or id is outside the uint256 range", i)
		}
		amount := bigOrZero(in.Amount)
		switch in.Mode {
		case ModeCallValue:
			if in.EIP != AssetNative {
				return nil, fail(CodeInvalidAssetClass, "input %d: CALL_VALUE requires native asset, got %s", i, in.EIP)
			}
			if err := budget.spend(amount); err != nil {
				return nil, err
			}
			callValue.Add(callValue, amount)
		case ModeTransfer:
			if in.EIP == AssetNative {
				if err := budget.spend(amount); err != nil {
					return nil, err
				}
				if err := env.Transfer(in.Recipient, amount); err != nil {
					return nil, apperrors.Wrap(CodeTransferFailed, err, "native transfer failed")
				}
				continue
			}
			if err := r.transferToken(env, payer, in.Recipient, in.EIP, in.Token, bigOrZero(in.ID), amount); err != nil {
				return nil, err
			}
		case ModePayment:
			switch in.EIP {
			case AssetERC20, AssetERC721, AssetERC777, AssetERC1155:
			default:
				return nil, fail(CodeInvalidAssetClass, "input %d: PAYMENT does not support %s", i, in.EIP)
			}
			p := Payment{Payer: payer, Recipient: in.Recipient, EIP: in.EIP, Token: in.Token, ID: bigOrZero(in.ID)}
			if err := ledger.Commit(p, amount); err != nil {
				return nil, err
			}
		default:
			return nil, fail(CodeInvalidMode, "input %d: unsupported mode %s", i, in.Mode)
		}
	}
	return callValue, nil
}

// transferToken 以路由器为调用方，通过资产自身的转账入口从 from 转给 to。
func (r *Router) transferToken(env *chain.Env, from, to common.Address, eip AssetClass, token common.Address, id, amount *big.Int) error {
	if !fitsU256(amount) || !fitsU256(id) {
		return fail(CodeTransferFailed, "amount %s or id %s is outside the uint256 range", bigOrZero(amount), bigOrZero(id))
	}
	var input []byte
	switch eip {
	case AssetERC20, AssetERC777:
		input = chain.MustPack(assets.ERC20, "transferFrom", from, to, amount)
	case AssetERC721:
		input = chain.MustPack(assets.ERC721, "transferFrom", from, to, id)
	case AssetERC1155:
		input = chain.MustPack(assets.ERC1155, "safeTransferFrom", from, to, id, amount, []byte{})
	default:
		return fail(CodeInvalidAssetClass, "unsupported asset class %s", eip)
	}
	if _, err := env.Call(token, input, nil); err != nil {
		return apperrors.Wrap(CodeTransferFailed, err, "", apperrors.WithMetadata("token", token.Hex()), apperrors.WithMetadata("eip", eip.String()))
	}
	return nil
}
