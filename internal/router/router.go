package router

import (
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"OpenUTR/internal/chain"
	apperrors "OpenUTR/internal/errors"
	"OpenUTR/pkg/logger"
)

// DiscardPolicy 决定 discard 的数量超过剩余承诺时的行为。
type DiscardPolicy string

const (
	// DiscardRevert 超额时返回 INSUFFICIENT_COMMITMENT。
	DiscardRevert DiscardPolicy = "revert"
	// DiscardClamp 超额时将承诺清零。
	DiscardClamp DiscardPolicy = "clamp"
)

// Config 描述路由器的运行参数。
type Config struct {
	Pauser                  common.Address
	Maintainers             []common.Address
	RequirePauserForUnpause bool
	DiscardPolicy           DiscardPolicy
	// BlockedSignatures 追加到默认拒绝列表。
	BlockedSignatures []string
	BlockedSelectors  []chain.Selector
}

// Option 用于定制路由器。
type Option func(*Router)

// WithLogger 指定路由器日志。
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// Router 是通用代币路由器：在一个原子批次里结算输入、调用动作目标并校验输出。
type Router struct {
	address     common.Address
	guard       *CallGuard
	pause       PauseGuard
	maintainers map[common.Address]struct{}
	clamp       bool
	log         *slog.Logger
}

// New 创建部署在 address 的路由器。
func New(address common.Address, cfg Config, opts ...Option) *Router {
	blocked := NewSelectorSet(DefaultBlockedSignatures...)
	for _, sig := range cfg.BlockedSignatures {
		blocked.Add(sig)
	}
	for _, sel := range cfg.BlockedSelectors {
		blocked.AddSelector(sel)
	}
	maintainers := make(map[common.Address]struct{}, len(cfg.Maintainers))
	for _, m := range cfg.Maintainers {
		maintainers[m] = struct{}{}
	}
	r := &Router{
		address:     address,
		guard:       NewCallGuard(address, blocked),
		pause:       PauseGuard{pauser: cfg.Pauser, requirePauserForUnpause: cfg.RequirePauserForUnpause},
		maintainers: maintainers,
		clamp:       cfg.DiscardPolicy == DiscardClamp,
		log:         logger.Named("router"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Address 返回路由器地址。
func (r *Router) Address() common.Address { return r.address }

// Guard 返回调用守卫。
func (r *Router) Guard() *CallGuard { return r.guard }

// Exec 在调用方的交易帧中执行一个批次。env 必须是路由器自身的调用环境，
// 任何错误都会让宿主回滚整个批次。
func (r *Router) Exec(env *chain.Env, outputs []Output, actions []Action) (*Receipt, error) {
	if err := r.pause.Check(env); err != nil {
		return nil, err
	}
	caller := env.Caller()
	ledger := NewLedger(env)
	budget := &nativeBudget{remaining: env.Value()}
	r.log.Debug("执行批次", "caller", caller.Hex(), "actions", len(actions), "outputs", len(outputs), "value", budget.remaining.String())

	exps, err := snapshotOutputs(env, outputs)
	if err != nil {
		return nil, err
	}

	for i, action := range actions {
		value, err := r.settle(env, caller, action.Inputs, budget, ledger)
		if err != nil {
			r.log.Debug("输入结算失败", "action", i, "error", err)
			return nil, err
		}
		if err := r.guard.Check(action.Target, action.Payload, value); err != nil {
			r.log.Warn("动作被调用守卫拒绝", "action", i, "target", action.Target.Hex(), "error", err)
			return nil, err
		}
		if action.IsNoop() {
			continue
		}
		ctx := withActiveAction(env.Context(), activeAction{target: action.Target, payer: caller})
		if _, err := env.Invoke(ctx, chain.Call{To: action.Target, Input: action.Payload, Value: value}); err != nil {
			r.log.Debug("动作执行失败", "action", i, "target", action.Target.Hex(), "error", err)
			return nil, err
		}
	}

	deltas, err := verifyOutputs(env, exps)
	if err != nil {
		return nil, err
	}

	refund := new(big.Int).Set(budget.remaining)
	if refund.Sign() > 0 {
		if err := env.Transfer(caller, refund); err != nil {
			return nil, apperrors.Wrap(CodeTransferFailed, err, "refund failed")
		}
	}
	return &Receipt{Outputs: deltas, Refund: refund}, nil
}

// Pay 由当前动作的目标在执行期间回调，拉取该批次调用方做出的承诺。
func (r *Router) Pay(env *chain.Env, key []byte, amount *big.Int) error {
	active, ok := activeActionFrom(env.Context())
	if !ok || env.Caller() != active.target {
		return fail(CodeNotCallable, "pay is only callable by the executing action target")
	}
	p, err := DecodePayment(key)
	if err != nil {
		return apperrors.Wrap(CodeInvalidPayment, err, "")
	}
	if p.Payer != active.payer {
		return fail(CodeNotCallable, "payment payer %s is not the batch caller", p.Payer.Hex())
	}
	if err := NewLedger(env).Consume(p, amount); err != nil {
		return err
	}
	return r.transferToken(env, p.Payer, p.Recipient, p.EIP, p.Token, p.ID, bigOrZero(amount))
}

// Discard 由付款方或维护者调用，减少尚未拉取的承诺，返回实际扣减量。
func (r *Router) Discard(env *chain.Env, key []byte, amount *big.Int) (*big.Int, error) {
	p, err := DecodePayment(key)
	if err != nil {
		return nil, apperrors.Wrap(CodeInvalidPayment, err, "")
	}
	if !r.canDiscard(env.Caller(), p) {
		return nil, fail(CodeUnauthorized, "%s cannot discard payments of %s", env.Caller().Hex(), p.Payer.Hex())
	}
	return NewLedger(env).Reduce(p, amount, r.clamp)
}

func (r *Router) canDiscard(caller common.Address, p Payment) bool {
	if caller == p.Payer {
		return true
	}
	_, ok := r.maintainers[caller]
	return ok
}

// Pause 进入暂停状态。
func (r *Router) Pause(env *chain.Env) error {
	return r.pause.Pause(env)
}

// Unpause 恢复运行。
func (r *Router) Unpause(env *chain.Env) error {
	return r.pause.Unpause(env)
}

// Paused 读取暂停状态。
func (r *Router) Paused(store SlotStore) bool {
	return r.pause.Paused(store)
}

// Commitment 读取承诺剩余额度。
func (r *Router) Commitment(store SlotStore, p Payment) *big.Int {
	return NewLedger(store).Remaining(p)
}
