package router

import (
	"OpenUTR/internal/chain"
)

const (
	sigExec              = "exec((address,uint256,address,uint256,uint256)[],((uint256,address,uint256,address,uint256,uint256)[],address,bytes)[])"
	sigPay               = "pay(bytes,uint256)"
	sigDiscard           = "discard(bytes,uint256)"
	sigSupportsInterface = "supportsInterface(bytes4)"
)

var (
	// InterfaceID 是路由器自身操作集合的标识：exec、pay、discard 选择器的异或。
	InterfaceID = xorSelectors(sigExec, sigPay, sigDiscard)
	// ERC165InterfaceID 是通用接口查询的标识。
	ERC165InterfaceID = chain.SelectorOf(sigSupportsInterface)
)

func xorSelectors(signatures ...string) chain.Selector {
	var id chain.Selector
	for _, sig := range signatures {
		sel := chain.SelectorOf(sig)
		for i := range id {
			id[i] ^= sel[i]
		}
	}
	return id
}

// SupportsInterface 只做两次常量比较。
func SupportsInterface(id [4]byte) bool {
	return id == InterfaceID || id == ERC165InterfaceID
}
