package adapters

import (
	"github.com/ethereum/go-ethereum/common"

	"OpenUTR/internal/assets"
	"OpenUTR/internal/chain"
)

// WrapAdapter 把收到的原生币包装成 WETH 并转给指定接收方。未知调用与纯转账都被接受。
type WrapAdapter struct {
	weth common.Address
}

// NewWrapAdapter 创建绑定到 weth 的适配器。
func NewWrapAdapter(weth common.Address) *WrapAdapter {
	return &WrapAdapter{weth: weth}
}

// Call 实现 chain.Contract。
func (a *WrapAdapter) Call(env *chain.Env, input []byte) ([]byte, error) {
	method, args, err := chain.Decode(WrapABI, input)
	if err != nil {
		// fallback：保留附带的原生币
		return nil, nil
	}
	switch method.Name {
	case "deposit":
		recipient := args[0].(common.Address)
		value := env.Value()
		if _, err := env.Call(a.weth, chain.MustPack(assets.WETH, "deposit"), value); err != nil {
			return nil, err
		}
		if _, err := env.Call(a.weth, chain.MustPack(assets.WETH, "transfer", recipient, value), nil); err != nil {
			return nil, err
		}
		return nil, nil
	case "doRevert":
		return nil, chain.Revert(args[0].(string))
	}
	return nil, nil
}
