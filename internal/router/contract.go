package router

import (
	"math/big"

	"OpenUTR/internal/chain"
)

// ABI 是路由器账户在链上暴露的入口。exec 通过 Go 接口调用，不在此列。
var ABI = chain.MustParseABI(`[
	{"type":"function","name":"pay","stateMutability":"nonpayable","inputs":[{"name":"payment","type":"bytes"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"discard","stateMutability":"nonpayable","inputs":[{"name":"payment","type":"bytes"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"pause","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"unpause","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"paused","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"supportsInterface","stateMutability":"view","inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"commitment","stateMutability":"view","inputs":[{"name":"payment","type":"bytes"}],"outputs":[{"name":"","type":"uint256"}]}
]`)

// Call 实现 chain.Contract。路由器拒绝不带调用数据的原生币转入。
func (r *Router) Call(env *chain.Env, input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, fail(CodeNotCallable, "router does not accept plain native transfers")
	}
	method, args, err := chain.Decode(ABI, input)
	if err != nil {
		return nil, fail(CodeNotCallable, "unknown router entrypoint: %v", err)
	}
	if env.Value().Sign() > 0 && !method.IsPayable() {
		return nil, fail(CodeNotCallable, "%s is not payable", method.Name)
	}

	switch method.Name {
	case "pay":
		return nil, r.Pay(env, args[0].([]byte), args[1].(*big.Int))
	case "discard":
		_, err := r.Discard(env, args[0].([]byte), args[1].(*big.Int))
		return nil, err
	case "pause":
		return nil, r.Pause(env)
	case "unpause":
		return nil, r.Unpause(env)
	case "paused":
		return method.Outputs.Pack(r.Paused(env))
	case "supportsInterface":
		return method.Outputs.Pack(SupportsInterface(args[0].([4]byte)))
	case "commitment":
		p, err := DecodePayment(args[0].([]byte))
		if err != nil {
			return nil, fail(CodeInvalidPayment, "%v", err)
		}
		return method.Outputs.Pack(r.Commitment(env, p))
	}
	return nil, fail(CodeNotCallable, "unknown router entrypoint %s", method.Name)
}
