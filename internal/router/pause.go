package router

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"OpenUTR/internal/chain"
)

var pausedSlot = crypto.Keccak256Hash([]byte("UniversalTokenRouter.PAUSED"))

// PauseGuard 管理 ACTIVE 与 PAUSED 两个状态，状态保存在路由器存储中，随批次一同回滚。
type PauseGuard struct {
	pauser                  common.Address
	requirePauserForUnpause bool
}

// Paused 判断路由器是否处于暂停状态。
func (g PauseGuard) Paused(store SlotStore) bool {
	return store.GetState(pausedSlot) != (common.Hash{})
}

// Check 在暂停状态下返回 PAUSED。
func (g PauseGuard) Check(store SlotStore) error {
	if g.Paused(store) {
		return fail(CodePaused, "")
	}
	return nil
}

// Pause 要求调用方为 pauser，并且必须附带非零原生币。
func (g PauseGuard) Pause(env *chain.Env) error {
	if env.Caller() != g.pauser {
		return fail(CodeUnauthorized, "%s is not the pauser", env.Caller().Hex())
	}
	if env.Value().Sign() == 0 {
		return fail(CodeMissingValue, "pause requires attached value")
	}
	env.SetState(pausedSlot, common.BigToHash(common.Big1))
	return nil
}

// Unpause 恢复 ACTIVE。默认不校验调用方，requirePauserForUnpause 开启后仅 pauser 可调用。
func (g PauseGuard) Unpause(env *chain.Env) error {
	if g.requirePauserForUnpause && env.Caller() != g.pauser {
		return fail(CodeUnauthorized, "%s is not the pauser", env.Caller().Hex())
	}
	env.SetState(pausedSlot, common.Hash{})
	return nil
}
