package router

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	apperrors "OpenUTR/internal/errors"
)

type memorySlots map[common.Hash]common.Hash

func (m memorySlots) GetState(key common.Hash) common.Hash { return m[key] }
func (m memorySlots) SetState(key, value common.Hash) { m[key] = value }

func testPayment() Payment {
	return Payment{
		Payer:     common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Recipient: common.HexToAddress("0x00000000000000000000000000000000000000b2"),
		EIP:       AssetERC20,
		Token:     common.HexToAddress("0x00000000000000000000000000000000000000c3"),
		ID:        new(big.Int),
	}
}

func TestLedgerCommitConsume(t *testing.T) {
	t.Parallel()

	ledger := NewLedger(memorySlots{})
	p := testPayment()
	if err := ledger.Commit(p, big.NewInt(70)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := ledger.Commit(p, big.NewInt(30)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := ledger.Remaining(p); got.Int64() != 100 {
		t.Fatalf("remaining = %s, want 100", got)
	}
	if err := ledger.Consume(p, big.NewInt(101)); !apperrors.HasCode(err, CodeInsufficientCommitment) {
		t.Fatalf("expected INSUFFICIENT_COMMITMENT, got %v", err)
	}
	if err := ledger.Consume(p, big.NewInt(60)); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got := ledger.Remaining(p); got.Int64() != 40 {
		t.Fatalf("remaining = %s, want 40", got)
	}

	other := p
	other.ID = big.NewInt(1)
	if got := ledger.Remaining(other); got.Sign() != 0 {
		t.Fatalf("distinct key should be empty, got %s", got)
	}
}

func TestLedgerReduceClamp(t *testing.T) {
	t.Parallel()

	ledger := NewLedger(memorySlots{})
	p := testPayment()
	if err := ledger.Commit(p, big.NewInt(10)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := ledger.Reduce(p, big.NewInt(11), false); !apperrors.HasCode(err, CodeInsufficientCommitment) {
		t.Fatalf("expected INSUFFICIENT_COMMITMENT, got %v", err)
	}
	reduced, err := ledger.Reduce(p, big.NewInt(11), true)
	if err != nil {
		t.Fatalf("clamped reduce: %v", err)
	}
	if reduced.Int64() != 10 {
		t.Fatalf("reduced = %s, want 10", reduced)
	}
	if got := ledger.Remaining(p); got.Sign() != 0 {
		t.Fatalf("remaining = %s, want 0", got)
	}
}

func TestLedgerCommitOverflow(t *testing.T) {
	t.Parallel()

	ledger := NewLedger(memorySlots{})
	p := testPayment()
	if err := ledger.Commit(p, math.MaxBig256); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := ledger.Commit(p, big.NewInt(1)); !apperrors.HasCode(err, CodeInvalidPayment) {
		t.Fatalf("expected overflow rejection, got %v", err)
	}
	if got := ledger.Remaining(p); got.Cmp(math.MaxBig256) != 0 {
		t.Fatalf("failed commit changed the ledger: %s", got)
	}
}

func TestPaymentKeyRoundTrip(t *testing.T) {
	t.Parallel()

	p := testPayment()
	p.EIP = AssetERC1155
	p.ID = big.NewInt(42)
	decoded, err := DecodePayment(p.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Payer != p.Payer || decoded.Recipient != p.Recipient || decoded.EIP != p.EIP ||
		decoded.Token != p.Token || decoded.ID.Cmp(p.ID) != 0 {
		t.Fatalf("decoded payment mismatch: %+v", decoded)
	}
	if decoded.Slot() != p.Slot() {
		t.Fatalf("slot mismatch")
	}
	if _, err := DecodePayment([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected malformed key to fail")
	}
}
