package router

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SlotStore 是账本依赖的键值存储，路由器的调用环境即为一个 SlotStore。
type SlotStore interface {
	GetState(key common.Hash) common.Hash
	SetState(key, value common.Hash)
}

// Ledger 记录尚未拉取的付款承诺。承诺只会被 PAYMENT 结算增加，只会被 pay 或 discard 减少。
type Ledger struct {
	store SlotStore
}

// NewLedger 在给定存储上创建账本。
func NewLedger(store SlotStore) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) load(p Payment) *uint256.Int {
	h := l.store.GetState(p.Slot())
	return new(uint256.Int).SetBytes32(h[:])
}

func (l *Ledger) save(p Payment, v *uint256.Int) {
	l.store.SetState(p.Slot(), common.Hash(v.Bytes32()))
}

// Remaining 返回承诺的剩余额度。
func (l *Ledger) Remaining(p Payment) *big.Int {
	return l.load(p).ToBig()
}

// Commit 增加承诺额度。
func (l *Ledger) Commit(p Payment, amount *big.Int) error {
	delta, ok := toU256(amount)
	if !ok {
		return fail(CodeInvalidPayment, "commitment amount out of range")
	}
	next, overflow := new(uint256.Int).AddOverflow(l.load(p), delta)
	if overflow {
		return fail(CodeInvalidPayment, "commitment overflow")
	}
	l.save(p, next)
	return nil
}

// Consume 扣减承诺额度，额度不足时返回 INSUFFICIENT_COMMITMENT。
func (l *Ledger) Consume(p Payment, amount *big.Int) error {
	_, err := l.reduce(p, amount, false)
	return err
}

// Reduce 供 discard 使用。clamp 为 true 时超出部分被截断为零而不报错，返回实际扣减量。
func (l *Ledger) Reduce(p Payment, amount *big.Int, clamp bool) (*big.Int, error) {
	return l.reduce(p, amount, clamp)
}

func (l *Ledger) reduce(p Payment, amount *big.Int, clamp bool) (*big.Int, error) {
	current := l.load(p)
	delta, ok := toU256(amount)
	if !ok || delta.Gt(current) {
		if !clamp {
			return nil, fail(CodeInsufficientCommitment, "remaining %s, requested %s", current.Dec(), bigOrZero(amount).String())
		}
		delta = current.Clone()
	}
	l.save(p, new(uint256.Int).Sub(current, delta))
	return delta.ToBig(), nil
}

// fitsU256 报告 v 能否无损编码为 uint256。nil 视为零。
func fitsU256(v *big.Int) bool {
	_, ok := toU256(v)
	return ok
}

func toU256(v *big.Int) (*uint256.Int, bool) {
	v = bigOrZero(v)
	if v.Sign() < 0 {
		return nil, false
	}
	out, overflow := uint256.FromBig(v)
	return out, !overflow
}
