package router

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"OpenUTR/internal/chain"
)

// DefaultBlockedSignatures 是各资产标准中"代持有人转出"的入口，动作的调用数据不得直接命中。
var DefaultBlockedSignatures = []string{
	// ERC20 / ERC721
	"transferFrom(address,address,uint256)",
	// ERC721
	"safeTransferFrom(address,address,uint256)",
	"safeTransferFrom(address,address,uint256,bytes)",
	// ERC1155
	"safeTransferFrom(address,address,uint256,uint256,bytes)",
	"safeBatchTransferFrom(address,address,uint256[],uint256[],bytes)",
	// ERC777
	"operatorSend(address,address,uint256,bytes,bytes)",
	"operatorBurn(address,uint256,bytes,bytes)",
	// ERC1363
	"transferFromAndCall(address,address,uint256)",
	"transferFromAndCall(address,address,uint256,bytes)",
}

// SelectorSet 是按函数选择器索引的签名集合。
type SelectorSet map[chain.Selector]string

// NewSelectorSet 由函数签名构建集合。
func NewSelectorSet(signatures ...string) SelectorSet {
	set := make(SelectorSet, len(signatures))
	for _, sig := range signatures {
		set.Add(sig)
	}
	return set
}

// Add 加入一个函数签名。
func (s SelectorSet) Add(signature string) {
	s[chain.SelectorOf(signature)] = signature
}

// AddSelector 加入一个只知道选择器的条目。
func (s SelectorSet) AddSelector(sel chain.Selector) {
	if _, ok := s[sel]; !ok {
		s[sel] = sel.Hex()
	}
}

// Match 判断调用数据的选择器是否在集合中，并返回命中的签名。
func (s SelectorSet) Match(payload []byte) (string, bool) {
	sel, ok := chain.SelectorFromInput(payload)
	if !ok {
		return "", false
	}
	sig, ok := s[sel]
	return sig, ok
}

// Signatures 返回排序后的签名列表。
func (s SelectorSet) Signatures() []string {
	out := make([]string, 0, len(s))
	for _, sig := range s {
		out = append(out, sig)
	}
	sort.Strings(out)
	return out
}

// CallGuard 在每次动作调用前检查目标与调用数据。
type CallGuard struct {
	router  common.Address
	blocked SelectorSet
	inner   SelectorSet
}

// NewCallGuard 创建守卫。inner 中的选择器只能由动作目标在执行中回调路由器时使用。
func NewCallGuard(router common.Address, blocked SelectorSet) *CallGuard {
	return &CallGuard{
		router:  router,
		blocked: blocked,
		inner:   NewSelectorSet(sigPay, sigDiscard),
	}
}

// Check 返回 nil 表示允许调用。空动作（零地址、无数据、零 value）被允许，调用方应跳过实际调用。
func (g *CallGuard) Check(target common.Address, payload []byte, value *big.Int) error {
	if target == (common.Address{}) {
		if len(payload) > 0 || (value != nil && value.Sign() > 0) {
			return fail(CodeNotCallable, "zero target with payload or value")
		}
		return nil
	}
	if sig, ok := g.blocked.Match(payload); ok {
		return fail(CodeNotCallable, "payload invokes %s", sig)
	}
	if target == g.router {
		if sig, ok := g.inner.Match(payload); ok {
			return fail(CodeNotCallable, "%s is only reachable from an action target", sig)
		}
	}
	return nil
}

// Blocked 返回当前的拒绝列表。
func (g *CallGuard) Blocked() []string {
	return g.blocked.Signatures()
}
