package adapters

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"OpenUTR/internal/assets"
	"OpenUTR/internal/chain"
	"OpenUTR/internal/router"
)

var reserveInSlot = crypto.Keccak256Hash([]byte("FixedRatePool.reserveIn"))

// FixedRatePool 以固定汇率 rateNum/rateDen 将 tokenIn 兑换为 tokenOut。
// 输入可以先通过 TRANSFER 转入，也可以由池子在执行中通过 router.pay 拉取。
type FixedRatePool struct {
	router   common.Address
	tokenIn  common.Address
	tokenOut common.Address
	rateNum  *big.Int
	rateDen  *big.Int
}

// NewFixedRatePool 创建兑换池。rateDen 为零时按 1 处理。
func NewFixedRatePool(routerAddr, tokenIn, tokenOut common.Address, rateNum, rateDen uint64) *FixedRatePool {
	if rateDen == 0 {
		rateDen = 1
	}
	return &FixedRatePool{
		router:   routerAddr,
		tokenIn:  tokenIn,
		tokenOut: tokenOut,
		rateNum:  new(big.Int).SetUint64(rateNum),
		rateDen:  new(big.Int).SetUint64(rateDen),
	}
}

func (p *FixedRatePool) quote(amountIn *big.Int) *big.Int {
	out := new(big.Int).Mul(amountIn, p.rateNum)
	return out.Div(out, p.rateDen)
}

func (p *FixedRatePool) settle(env *chain.Env, amountIn *big.Int, recipient common.Address) (*big.Int, error) {
	out, err := env.Call(p.tokenIn, chain.MustPack(assets.ERC20, "balanceOf", env.Self()), nil)
	if err != nil {
		return nil, err
	}
	values, err := assets.ERC20.Unpack("balanceOf", out)
	if err != nil {
		return nil, err
	}
	balance := values[0].(*big.Int)
	reserve := env.GetState(reserveInSlot).Big()
	if new(big.Int).Sub(balance, reserve).Cmp(amountIn) < 0 {
		return nil, chain.Revert("FixedRatePool: insufficient input")
	}
	env.SetState(reserveInSlot, common.BigToHash(balance))

	amountOut := p.quote(amountIn)
	if _, err := env.Call(p.tokenOut, chain.MustPack(assets.ERC20, "transfer", recipient, amountOut), nil); err != nil {
		return nil, err
	}
	return amountOut, nil
}

// Call 实现 chain.Contract。
func (p *FixedRatePool) Call(env *chain.Env, input []byte) ([]byte, error) {
	method, args, err := chain.Decode(PoolABI, input)
	if err != nil {
		return nil, chain.Revert("FixedRatePool: unsupported call")
	}
	if env.Value().Sign() > 0 {
		return nil, chain.Revert("FixedRatePool: function is not payable")
	}
	switch method.Name {
	case "quote":
		return method.Outputs.Pack(p.quote(args[0].(*big.Int)))
	case "swapExactIn":
		out, err := p.settle(env, args[0].(*big.Int), args[1].(common.Address))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(out)
	case "swapWithPayment":
		payment, amountIn := args[0].([]byte), args[1].(*big.Int)
		if _, err := env.Call(p.router, chain.MustPack(router.ABI, "pay", payment, amountIn), nil); err != nil {
			return nil, err
		}
		out, err := p.settle(env, amountIn, args[2].(common.Address))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(out)
	}
	return nil, chain.Revert("FixedRatePool: unsupported call")
}
