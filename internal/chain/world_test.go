package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	vault = common.HexToAddress("0x000000000000000000000000000000000000fa17")
)

func counterSlot() common.Hash { return common.BytesToHash([]byte("counter")) }

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := NewWorld()
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

func TestTransactMovesValueToPlainAccount(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	if err := w.Fund(alice, big.NewInt(100)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if _, err := w.Transact(context.Background(), alice, bob, nil, big.NewInt(40)); err != nil {
		t.Fatalf("transact: %v", err)
	}
	if got := w.Balance(alice); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("alice balance = %s, want 60", got)
	}
	if got := w.Balance(bob); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("bob balance = %s, want 40", got)
	}
}

func TestTransactRejectsOverspend(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	if _, err := w.Transact(context.Background(), alice, bob, nil, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestFailedFrameRevertsNestedState(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	if err := w.Fund(alice, big.NewInt(10)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	w.Deploy(vault, ContractFunc(func(env *Env, input []byte) ([]byte, error) {
		env.SetState(counterSlot(), common.BigToHash(big.NewInt(7)))
		if len(input) > 0 {
			return nil, Revert("boom")
		}
		return nil, nil
	}))

	_, err := w.Transact(context.Background(), alice, vault, []byte{1}, big.NewInt(5))
	var revert *RevertError
	if !errors.As(err, &revert) || revert.Reason != "boom" {
		t.Fatalf("expected revert boom, got %v", err)
	}
	if got := w.Storage(vault, counterSlot()); got != (common.Hash{}) {
		t.Fatalf("storage should be reverted, got %s", got.Hex())
	}
	if got := w.Balance(alice); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("value should be refunded on revert, got %s", got)
	}

	if _, err := w.Transact(context.Background(), alice, vault, nil, big.NewInt(5)); err != nil {
		t.Fatalf("transact: %v", err)
	}
	if got := w.Storage(vault, counterSlot()).Big(); got.Int64() != 7 {
		t.Fatalf("storage = %s, want 7", got)
	}
}

func TestCaughtInnerFailureKeepsOuterState(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	inner := common.HexToAddress("0x0000000000000000000000000000000000001111")
	w.Deploy(inner, ContractFunc(func(env *Env, _ []byte) ([]byte, error) {
		env.SetState(counterSlot(), common.BigToHash(big.NewInt(1)))
		return nil, Revert("inner")
	}))
	w.Deploy(vault, ContractFunc(func(env *Env, _ []byte) ([]byte, error) {
		env.SetState(counterSlot(), common.BigToHash(big.NewInt(2)))
		if _, err := env.Call(inner, nil, nil); err == nil {
			return nil, errors.New("inner call should fail")
		}
		return nil, nil
	}))

	if _, err := w.Transact(context.Background(), alice, vault, nil, nil); err != nil {
		t.Fatalf("transact: %v", err)
	}
	if got := w.Storage(inner, counterSlot()); got != (common.Hash{}) {
		t.Fatalf("inner write should be reverted, got %s", got.Hex())
	}
	if got := w.Storage(vault, counterSlot()).Big(); got.Int64() != 2 {
		t.Fatalf("outer write lost, got %s", got)
	}
}

func TestEnvReportsCallerAndOrigin(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	var seenCaller, seenOrigin common.Address
	inner := common.HexToAddress("0x0000000000000000000000000000000000002222")
	w.Deploy(inner, ContractFunc(func(env *Env, _ []byte) ([]byte, error) {
		seenCaller, seenOrigin = env.Caller(), env.Origin()
		return nil, nil
	}))
	w.Deploy(vault, ContractFunc(func(env *Env, _ []byte) ([]byte, error) {
		return env.Call(inner, nil, nil)
	}))

	if _, err := w.Transact(context.Background(), alice, vault, nil, nil); err != nil {
		t.Fatalf("transact: %v", err)
	}
	if seenCaller != vault {
		t.Fatalf("caller = %s, want %s", seenCaller.Hex(), vault.Hex())
	}
	if seenOrigin != alice {
		t.Fatalf("origin = %s, want %s", seenOrigin.Hex(), alice.Hex())
	}
}

func TestStaticViewDiscardsWrites(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	err := w.StaticView(context.Background(), alice, vault, func(env *Env) error {
		env.SetState(counterSlot(), common.BigToHash(big.NewInt(9)))
		return nil
	})
	if err != nil {
		t.Fatalf("static view: %v", err)
	}
	if got := w.Storage(vault, counterSlot()); got != (common.Hash{}) {
		t.Fatalf("static view leaked a write: %s", got.Hex())
	}
}

func TestCallDepthLimit(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	w.Deploy(vault, ContractFunc(func(env *Env, _ []byte) ([]byte, error) {
		return env.Call(vault, nil, nil)
	}))
	if _, err := w.Transact(context.Background(), alice, vault, nil, nil); !errors.Is(err, ErrCallDepth) {
		t.Fatalf("expected ErrCallDepth, got %v", err)
	}
}

func TestSelectorOf(t *testing.T) {
	t.Parallel()

	if got := SelectorOf("transfer(address,uint256)").Hex(); got != "0xa9059cbb" {
		t.Fatalf("selector = %s", got)
	}
	if got := SelectorOf("supportsInterface(bytes4)").Hex(); got != "0x01ffc9a7" {
		t.Fatalf("selector = %s", got)
	}
	if _, ok := SelectorFromInput([]byte{1, 2, 3}); ok {
		t.Fatalf("short input should not yield a selector")
	}
}
