package adapters

import "OpenUTR/internal/chain"

var (
	// WrapABI 是原生币包装适配器的入口。
	WrapABI = chain.MustParseABI(`[
		{"type":"function","name":"deposit","stateMutability":"payable","inputs":[{"name":"recipient","type":"address"}],"outputs":[]},
		{"type":"function","name":"doRevert","stateMutability":"payable","inputs":[{"name":"reason","type":"string"}],"outputs":[]}
	]`)

	// NFTControllerABI 是游戏道具发放控制器的入口。
	NFTControllerABI = chain.MustParseABI(`[
		{"type":"function","name":"awardItem","stateMutability":"nonpayable","inputs":[{"name":"player","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"awardItems","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"player","type":"address"}],"outputs":[]}
	]`)

	// PoolABI 是固定汇率兑换池的入口。
	PoolABI = chain.MustParseABI(`[
		{"type":"function","name":"swapExactIn","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"recipient","type":"address"}],"outputs":[{"name":"amountOut","type":"uint256"}]},
		{"type":"function","name":"swapWithPayment","stateMutability":"nonpayable","inputs":[{"name":"payment","type":"bytes"},{"name":"amountIn","type":"uint256"},{"name":"recipient","type":"address"}],"outputs":[{"name":"amountOut","type":"uint256"}]},
		{"type":"function","name":"quote","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"}],"outputs":[{"name":"amountOut","type":"uint256"}]}
	]`)
)
