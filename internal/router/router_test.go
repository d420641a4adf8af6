package router_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"OpenUTR/internal/adapters"
	"OpenUTR/internal/assets"
	"OpenUTR/internal/chain"
	"OpenUTR/internal/devnet"
	apperrors "OpenUTR/internal/errors"
	"OpenUTR/internal/router"
)

type fixture struct {
	chain          *devnet.Chain
	owner          common.Address
	other          common.Address
	router         common.Address
	weth           common.Address
	usd            common.Address
	gem            common.Address
	rich           common.Address
	gameItem       common.Address
	multi          common.Address
	wethAdapter    common.Address
	gameController common.Address
	pool           common.Address
}

func setup(t *testing.T, cfg router.Config) *fixture {
	t.Helper()
	if cfg.Pauser == (common.Address{}) {
		cfg.Pauser = devnet.AddressOf("owner")
	}
	c, err := devnet.New(devnet.DefaultGenesis(), cfg)
	if err != nil {
		t.Fatalf("create devnet: %v", err)
	}
	return &fixture{
		chain:          c,
		owner:          c.MustAddress("owner"),
		other:          c.MustAddress("other"),
		router:         c.Router(),
		weth:           c.MustAddress("weth"),
		usd:            c.MustAddress("usd"),
		gem:            c.MustAddress("gem"),
		rich:           c.MustAddress("rich"),
		gameItem:       c.MustAddress("gameItem"),
		multi:          c.MustAddress("multi"),
		wethAdapter:    c.MustAddress("wethAdapter"),
		gameController: c.MustAddress("gameController"),
		pool:           c.MustAddress("pool"),
	}
}

func (f *fixture) exec(t *testing.T, value int64, outputs []router.Output, actions []router.Action) (*router.Receipt, error) {
	t.Helper()
	return f.chain.Exec(context.Background(), f.owner, big.NewInt(value), outputs, actions)
}

func (f *fixture) approve(t *testing.T, token common.Address, eip router.AssetClass) {
	t.Helper()
	if err := f.chain.Approve(context.Background(), f.owner, token, eip); err != nil {
		t.Fatalf("approve %s: %v", token.Hex(), err)
	}
}

func (f *fixture) balance(t *testing.T, eip router.AssetClass, token, holder common.Address, id *big.Int) *big.Int {
	t.Helper()
	v, err := f.chain.BalanceOf(context.Background(), router.Output{EIP: eip, Token: token, ID: id, Recipient: holder})
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return v
}

func expectCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	if !apperrors.HasCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func awardItem(player common.Address) []byte {
	return chain.MustPack(adapters.NFTControllerABI, "awardItem", player)
}

func TestScenarioWrapNativeThroughAdapter(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	before := f.balance(t, router.AssetERC20, f.weth, f.other, nil)

	_, err := f.exec(t, 1, []router.Output{{
		EIP: router.AssetERC20, Token: f.weth, MinAmount: big.NewInt(1), Recipient: f.other,
	}}, []router.Action{{
		Inputs:  []router.Input{{Mode: router.ModeCallValue, EIP: router.AssetNative, Amount: big.NewInt(1)}},
		Target:  f.wethAdapter,
		Payload: chain.MustPack(adapters.WrapABI, "deposit", f.other),
	}})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	after := f.balance(t, router.AssetERC20, f.weth, f.other, nil)
	if diff := new(big.Int).Sub(after, before); diff.Int64() != 1 {
		t.Fatalf("recipient received %s, want 1", diff)
	}
}

func TestScenarioNFTShortfallReverts(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	_, err := f.exec(t, 0, []router.Output{{
		EIP: router.AssetERC721, Token: f.gameItem, ID: router.AllNFTSentinel, MinAmount: big.NewInt(2), Recipient: f.owner,
	}}, []router.Action{{
		Target:  f.gameController,
		Payload: awardItem(f.owner),
	}})
	expectCode(t, err, router.CodeInsufficientOutput)

	if got := f.balance(t, router.AssetERC721, f.gameItem, f.owner, router.AllNFTSentinel); got.Sign() != 0 {
		t.Fatalf("minted item survived the revert: %s", got)
	}
	if got := f.balance(t, router.AssetERC721, f.gameItem, f.owner, big.NewInt(0)); got.Sign() != 0 {
		t.Fatalf("item 0 should not exist after revert")
	}
}

func TestScenarioThreeMintsVerifiedWithSentinel(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	actions := make([]router.Action, 3)
	for i := range actions {
		actions[i] = router.Action{Target: f.gameController, Payload: awardItem(f.owner)}
	}
	_, err := f.exec(t, 0, []router.Output{
		{EIP: router.AssetERC721, Token: f.gameItem, ID: router.AllNFTSentinel, MinAmount: big.NewInt(3), Recipient: f.owner},
		{EIP: router.AssetERC721, Token: f.gameItem, ID: big.NewInt(2), MinAmount: big.NewInt(1), Recipient: f.owner},
	}, actions)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	for id := int64(0); id < 3; id++ {
		if got := f.balance(t, router.AssetERC721, f.gameItem, f.owner, big.NewInt(id)); got.Int64() != 1 {
			t.Fatalf("owner should hold item %d", id)
		}
	}
}

func TestConcreteNFTOutputCountsAtMostOne(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	_, err := f.exec(t, 0, []router.Output{{
		EIP: router.AssetERC721, Token: f.gameItem, ID: big.NewInt(2), MinAmount: big.NewInt(2), Recipient: f.owner,
	}}, []router.Action{{
		Target:  f.gameController,
		Payload: chain.MustPack(adapters.NFTControllerABI, "awardItems", big.NewInt(3), f.owner),
	}})
	expectCode(t, err, router.CodeInsufficientOutput)
}

func TestScenarioDirectTransferFromIsRejected(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	f.approve(t, f.usd, router.AssetERC20)
	_, err := f.exec(t, 0, nil, []router.Action{{
		Target:  f.usd,
		Payload: chain.MustPack(assets.ERC20, "transferFrom", f.owner, f.other, big.NewInt(1)),
	}})
	expectCode(t, err, router.CodeNotCallable)

	f.approve(t, f.gameItem, router.AssetERC721)
	for _, name := range []string{"safeTransferFrom", "safeTransferFrom0"} {
		args := []any{f.owner, f.other, big.NewInt(0)}
		if name == "safeTransferFrom0" {
			args = append(args, []byte{})
		}
		_, err := f.exec(t, 0, nil, []router.Action{{Target: f.gameItem, Payload: chain.MustPack(assets.ERC721, name, args...)}})
		expectCode(t, err, router.CodeNotCallable)
	}

	_, err = f.exec(t, 0, nil, []router.Action{{
		Target:  f.rich,
		Payload: chain.MustPack(assets.ERC777, "operatorSend", f.owner, f.other, big.NewInt(1), []byte{}, []byte{}),
	}})
	expectCode(t, err, router.CodeNotCallable)

	_, err = f.exec(t, 0, nil, []router.Action{{
		Target:  f.multi,
		Payload: chain.MustPack(assets.ERC1155, "safeBatchTransferFrom", f.owner, f.other, []*big.Int{big.NewInt(1)}, []*big.Int{big.NewInt(1)}, []byte{}),
	}})
	expectCode(t, err, router.CodeNotCallable)
}

func TestBatchIsAtomic(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	f.approve(t, f.usd, router.AssetERC20)
	usdBefore := f.balance(t, router.AssetERC20, f.usd, f.owner, nil)
	nativeBefore := f.chain.Balance(f.owner)

	_, err := f.exec(t, 5, nil, []router.Action{
		{
			Inputs: []router.Input{{Mode: router.ModeTransfer, EIP: router.AssetERC20, Token: f.usd, Amount: big.NewInt(100), Recipient: f.other}},
		},
		{
			Inputs:  []router.Input{{Mode: router.ModeCallValue, EIP: router.AssetNative, Amount: big.NewInt(5)}},
			Target:  f.wethAdapter,
			Payload: chain.MustPack(adapters.WrapABI, "doRevert", "some reason"),
		},
	})
	var revert *chain.RevertError
	if !errors.As(err, &revert) || revert.Reason != "some reason" {
		t.Fatalf("expected verbatim callee revert, got %v", err)
	}
	if got := router.ErrorCode(err); got != router.CodeCalleeFailure {
		t.Fatalf("error code = %s", got)
	}
	if got := f.balance(t, router.AssetERC20, f.usd, f.owner, nil); got.Cmp(usdBefore) != 0 {
		t.Fatalf("usd moved despite revert: %s -> %s", usdBefore, got)
	}
	if got := f.balance(t, router.AssetERC20, f.usd, f.other, nil); got.Sign() != 0 {
		t.Fatalf("other received usd despite revert: %s", got)
	}
	if got := f.chain.Balance(f.owner); got.Cmp(nativeBefore) != 0 {
		t.Fatalf("native balance changed despite revert: %s -> %s", nativeBefore, got)
	}
}

func TestTransferModes(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	f.approve(t, f.rich, router.AssetERC777)
	f.approve(t, f.multi, router.AssetERC1155)
	otherNative := f.chain.Balance(f.other)

	receipt, err := f.exec(t, 9, []router.Output{
		{EIP: router.AssetNative, MinAmount: big.NewInt(5), Recipient: f.other},
		{EIP: router.AssetERC777, Token: f.rich, MinAmount: big.NewInt(10), Recipient: f.other},
		{EIP: router.AssetERC1155, Token: f.multi, ID: big.NewInt(1), MinAmount: big.NewInt(4), Recipient: f.other},
	}, []router.Action{{
		Inputs: []router.Input{
			{Mode: router.ModeTransfer, EIP: router.AssetNative, Amount: big.NewInt(5), Recipient: f.other},
			{Mode: router.ModeTransfer, EIP: router.AssetERC777, Token: f.rich, Amount: big.NewInt(10), Recipient: f.other},
			{Mode: router.ModeTransfer, EIP: router.AssetERC1155, Token: f.multi, ID: big.NewInt(1), Amount: big.NewInt(4), Recipient: f.other},
		},
	}})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if receipt.Refund.Int64() != 4 {
		t.Fatalf("refund = %s, want 4", receipt.Refund)
	}
	if len(receipt.Outputs) != 3 || receipt.Outputs[1].Received().Int64() != 10 {
		t.Fatalf("unexpected receipt outputs: %+v", receipt.Outputs)
	}
	if got := new(big.Int).Sub(f.chain.Balance(f.other), otherNative); got.Int64() != 5 {
		t.Fatalf("other native delta = %s, want 5", got)
	}
	if got := f.chain.Balance(f.router); got.Sign() != 0 {
		t.Fatalf("router kept native value: %s", got)
	}
}

func TestTransferFailures(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	_, err := f.exec(t, 0, nil, []router.Action{{
		Inputs: []router.Input{{Mode: router.ModeTransfer, EIP: router.AssetERC20, Token: f.usd, Amount: big.NewInt(1), Recipient: f.other}},
	}})
	expectCode(t, err, router.CodeTransferFailed)

	_, err = f.exec(t, 5, nil, []router.Action{{
		Inputs: []router.Input{{Mode: router.ModeTransfer, EIP: router.AssetNative, Amount: big.NewInt(6), Recipient: f.other}},
	}})
	expectCode(t, err, router.CodeTransferFailed)

	_, err = f.exec(t, 1, nil, []router.Action{{
		Inputs:  []router.Input{{Mode: router.ModeCallValue, EIP: router.AssetNative, Amount: big.NewInt(2)}},
		Target:  f.wethAdapter,
		Payload: chain.MustPack(adapters.WrapABI, "deposit", f.owner),
	}})
	expectCode(t, err, router.CodeTransferFailed)
}

func TestOutOfRangeInputsMoveNothing(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	f.approve(t, f.usd, router.AssetERC20)
	f.approve(t, f.multi, router.AssetERC1155)
	tooBig := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(5))
	ownerUSD := f.balance(t, router.AssetERC20, f.usd, f.owner, nil)
	otherUSD := f.balance(t, router.AssetERC20, f.usd, f.other, nil)

	cases := []struct {
		name  string
		input router.Input
		code  apperrors.Code
	}{
		{"erc20 amount", router.Input{Mode: router.ModeTransfer, EIP: router.AssetERC20, Token: f.usd, Amount: tooBig, Recipient: f.other}, router.CodeTransferFailed},
		{"erc1155 id", router.Input{Mode: router.ModeTransfer, EIP: router.AssetERC1155, Token: f.multi, ID: tooBig, Amount: big.NewInt(1), Recipient: f.other}, router.CodeTransferFailed},
		{"negative id", router.Input{Mode: router.ModeTransfer, EIP: router.AssetERC1155, Token: f.multi, ID: big.NewInt(-1), Amount: big.NewInt(1), Recipient: f.other}, router.CodeTransferFailed},
		{"payment id", router.Input{Mode: router.ModePayment, EIP: router.AssetERC20, Token: f.usd, ID: tooBig, Amount: big.NewInt(1), Recipient: f.pool}, router.CodeInvalidPayment},
	}
	for _, tc := range cases {
		_, err := f.exec(t, 0, nil, []router.Action{{Inputs: []router.Input{tc.input}}})
		if !apperrors.HasCode(err, tc.code) {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.code, err)
		}
	}
	if got := f.balance(t, router.AssetERC20, f.usd, f.owner, nil); got.Cmp(ownerUSD) != 0 {
		t.Fatalf("owner usd changed: %s -> %s", ownerUSD, got)
	}
	if got := f.balance(t, router.AssetERC20, f.usd, f.other, nil); got.Cmp(otherUSD) != 0 {
		t.Fatalf("other usd changed: %s -> %s", otherUSD, got)
	}

	_, err := f.chain.Exec(context.Background(), f.owner, tooBig, nil, []router.Action{{}})
	if code := router.ErrorCode(err); code != router.CodeTransferFailed {
		t.Fatalf("attached value above uint256: code %s, err %v", code, err)
	}
	_, err = f.chain.Exec(context.Background(), f.owner, big.NewInt(-1), nil, []router.Action{{}})
	if code := router.ErrorCode(err); code != router.CodeTransferFailed {
		t.Fatalf("negative attached value: code %s, err %v", code, err)
	}
}

func TestInvalidAssetClassAndMode(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	cases := []struct {
		name  string
		input router.Input
		code  apperrors.Code
	}{
		{"call value with token", router.Input{Mode: router.ModeCallValue, EIP: router.AssetERC20, Token: f.usd, Amount: big.NewInt(1)}, router.CodeInvalidAssetClass},
		{"payment with native", router.Input{Mode: router.ModePayment, EIP: router.AssetNative, Amount: big.NewInt(1), Recipient: f.pool}, router.CodeInvalidAssetClass},
		{"transfer unknown eip", router.Input{Mode: router.ModeTransfer, EIP: 999, Token: f.usd, Amount: big.NewInt(1), Recipient: f.other}, router.CodeInvalidAssetClass},
		{"unknown mode", router.Input{Mode: 7, EIP: router.AssetERC20, Token: f.usd, Amount: big.NewInt(1)}, router.CodeInvalidMode},
	}
	for _, tc := range cases {
		_, err := f.exec(t, 0, nil, []router.Action{{Inputs: []router.Input{tc.input}}})
		if !apperrors.HasCode(err, tc.code) {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.code, err)
		}
	}

	_, err := f.exec(t, 0, []router.Output{{EIP: 42, Token: f.usd, Recipient: f.owner}}, nil)
	expectCode(t, err, router.CodeInvalidAssetClass)
}

func TestOutputBalanceOverflow(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	_, err := f.exec(t, 0, []router.Output{{EIP: router.AssetNative, MinAmount: math.MaxBig256, Recipient: f.owner}}, nil)
	expectCode(t, err, router.CodeOutputBalanceOverflow)
}

func TestCallGuardEdgeCases(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})

	if _, err := f.exec(t, 0, nil, []router.Action{{}}); err != nil {
		t.Fatalf("no-op action should succeed: %v", err)
	}
	_, err := f.exec(t, 0, nil, []router.Action{{Payload: []byte{0x12, 0x31, 0x23, 0x12, 0x31, 0x23}}})
	expectCode(t, err, router.CodeNotCallable)

	_, err = f.exec(t, 1000, nil, []router.Action{{
		Inputs: []router.Input{{Mode: router.ModeCallValue, EIP: router.AssetNative, Amount: big.NewInt(1000)}},
	}})
	expectCode(t, err, router.CodeNotCallable)

	_, err = f.exec(t, 1000, nil, []router.Action{{
		Inputs:  []router.Input{{Mode: router.ModeCallValue, EIP: router.AssetNative, Amount: big.NewInt(1000), Recipient: f.wethAdapter}},
		Target:  f.wethAdapter,
		Payload: []byte{0x12, 0x34, 0x56, 0x78},
	}})
	if err != nil {
		t.Fatalf("unknown selector on adapter should succeed: %v", err)
	}
	if _, err := f.exec(t, 0, nil, []router.Action{{Target: f.wethAdapter, Payload: []byte{0x12, 0x31, 0x23, 0x12, 0x31, 0x23}}}); err != nil {
		t.Fatalf("odd payload on adapter should succeed: %v", err)
	}
}

func TestWETHWithdrawIntoRouterIsRejected(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	ctx := context.Background()
	if _, err := f.chain.Transact(ctx, f.owner, f.weth, chain.MustPack(assets.WETH, "deposit"), big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.approve(t, f.weth, router.AssetERC20)

	_, err := f.exec(t, 0, nil, []router.Action{{
		Inputs:  []router.Input{{Mode: router.ModeTransfer, EIP: router.AssetERC20, Token: f.weth, Amount: big.NewInt(1), Recipient: f.router}},
		Target:  f.weth,
		Payload: chain.MustPack(assets.WETH, "withdraw", big.NewInt(1)),
	}})
	expectCode(t, err, router.CodeNotCallable)

	if _, err := f.chain.Transact(ctx, f.owner, f.router, nil, big.NewInt(1)); !apperrors.HasCode(err, router.CodeNotCallable) {
		t.Fatalf("plain native transfer to router should fail, got %v", err)
	}
}

func TestPaymentPulledByActionTarget(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	f.approve(t, f.usd, router.AssetERC20)
	usdBefore := f.balance(t, router.AssetERC20, f.usd, f.owner, nil)
	payment := router.Payment{Payer: f.owner, Recipient: f.pool, EIP: router.AssetERC20, Token: f.usd, ID: new(big.Int)}

	_, err := f.exec(t, 0, []router.Output{{
		EIP: router.AssetERC20, Token: f.gem, MinAmount: big.NewInt(200), Recipient: f.owner,
	}}, []router.Action{{
		Inputs:  []router.Input{{Mode: router.ModePayment, EIP: router.AssetERC20, Token: f.usd, Amount: big.NewInt(100), Recipient: f.pool}},
		Target:  f.pool,
		Payload: chain.MustPack(adapters.PoolABI, "swapWithPayment", payment.Encode(), big.NewInt(100), f.owner),
	}})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if got := new(big.Int).Sub(usdBefore, f.balance(t, router.AssetERC20, f.usd, f.owner, nil)); got.Int64() != 100 {
		t.Fatalf("owner paid %s usd, want 100", got)
	}
	if got := f.chain.Commitment(context.Background(), payment); got.Sign() != 0 {
		t.Fatalf("commitment should be consumed, got %s", got)
	}
}

func TestTransferThenSwapExactIn(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	f.approve(t, f.usd, router.AssetERC20)
	_, err := f.exec(t, 0, []router.Output{{
		EIP: router.AssetERC20, Token: f.gem, MinAmount: big.NewInt(50), Recipient: f.other,
	}}, []router.Action{{
		Inputs:  []router.Input{{Mode: router.ModeTransfer, EIP: router.AssetERC20, Token: f.usd, Amount: big.NewInt(25), Recipient: f.pool}},
		Target:  f.pool,
		Payload: chain.MustPack(adapters.PoolABI, "swapExactIn", big.NewInt(25), f.other),
	}})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
}

func TestPaymentIsDeferredUntilPulled(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	ctx := context.Background()
	usdBefore := f.balance(t, router.AssetERC20, f.usd, f.owner, nil)
	payment := router.Payment{Payer: f.owner, Recipient: f.pool, EIP: router.AssetERC20, Token: f.usd, ID: new(big.Int)}

	for i := 0; i < 2; i++ {
		_, err := f.exec(t, 0, nil, []router.Action{{
			Inputs: []router.Input{{Mode: router.ModePayment, EIP: router.AssetERC20, Token: f.usd, Amount: big.NewInt(60), Recipient: f.pool}},
		}})
		if err != nil {
			t.Fatalf("exec: %v", err)
		}
	}
	if got := f.chain.Commitment(ctx, payment); got.Int64() != 120 {
		t.Fatalf("commitment = %s, want 120", got)
	}
	if got := f.balance(t, router.AssetERC20, f.usd, f.owner, nil); got.Cmp(usdBefore) != 0 {
		t.Fatalf("PAYMENT moved assets: %s -> %s", usdBefore, got)
	}

	if err := f.chain.Discard(ctx, f.owner, payment.Encode(), big.NewInt(100)); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if got := f.chain.Commitment(ctx, payment); got.Int64() != 20 {
		t.Fatalf("commitment = %s, want 20", got)
	}
	expectCode(t, f.chain.Discard(ctx, f.owner, payment.Encode(), big.NewInt(21)), router.CodeInsufficientCommitment)
	expectCode(t, f.chain.Discard(ctx, f.other, payment.Encode(), big.NewInt(1)), router.CodeUnauthorized)
	if err := f.chain.Discard(ctx, f.owner, payment.Encode(), big.NewInt(0)); err != nil {
		t.Fatalf("zero discard: %v", err)
	}
}

func TestDiscardPolicyAndMaintainers(t *testing.T) {
	t.Parallel()

	maintainer := devnet.AddressOf("other")
	f := setup(t, router.Config{Maintainers: []common.Address{maintainer}, DiscardPolicy: router.DiscardClamp})
	ctx := context.Background()
	payment := router.Payment{Payer: f.owner, Recipient: f.pool, EIP: router.AssetERC20, Token: f.usd, ID: new(big.Int)}

	if _, err := f.exec(t, 0, nil, []router.Action{{
		Inputs: []router.Input{{Mode: router.ModePayment, EIP: router.AssetERC20, Token: f.usd, Amount: big.NewInt(10), Recipient: f.pool}},
	}}); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if err := f.chain.Discard(ctx, maintainer, payment.Encode(), big.NewInt(1000)); err != nil {
		t.Fatalf("maintainer clamp discard: %v", err)
	}
	if got := f.chain.Commitment(ctx, payment); got.Sign() != 0 {
		t.Fatalf("commitment = %s, want 0", got)
	}
}

func TestPayRestrictions(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	ctx := context.Background()
	f.approve(t, f.usd, router.AssetERC20)
	payment := router.Payment{Payer: f.owner, Recipient: f.pool, EIP: router.AssetERC20, Token: f.usd, ID: new(big.Int)}
	payCall := chain.MustPack(router.ABI, "pay", payment.Encode(), big.NewInt(10))

	// 路由器自身作为动作目标
	_, err := f.exec(t, 0, nil, []router.Action{{
		Inputs:  []router.Input{{Mode: router.ModePayment, EIP: router.AssetERC20, Token: f.usd, Amount: big.NewInt(10), Recipient: f.pool}},
		Target:  f.router,
		Payload: payCall,
	}})
	expectCode(t, err, router.CodeNotCallable)

	// 批次之外直接调用
	_, err = f.chain.Transact(ctx, f.pool, f.router, payCall, nil)
	expectCode(t, err, router.CodeNotCallable)

	// 拉取超过承诺
	_, err = f.exec(t, 0, nil, []router.Action{{
		Inputs:  []router.Input{{Mode: router.ModePayment, EIP: router.AssetERC20, Token: f.usd, Amount: big.NewInt(50), Recipient: f.pool}},
		Target:  f.pool,
		Payload: chain.MustPack(adapters.PoolABI, "swapWithPayment", payment.Encode(), big.NewInt(100), f.owner),
	}})
	expectCode(t, err, router.CodeInsufficientCommitment)

	// 拉取他人的承诺
	if err := f.chain.Approve(ctx, f.other, f.usd, router.AssetERC20); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.chain.Exec(ctx, f.other, nil, nil, []router.Action{{
		Inputs: []router.Input{{Mode: router.ModePayment, EIP: router.AssetERC20, Token: f.usd, Amount: big.NewInt(10), Recipient: f.pool}},
	}}); err != nil {
		t.Fatalf("other commit: %v", err)
	}
	foreign := payment
	foreign.Payer = f.other
	_, err = f.exec(t, 0, nil, []router.Action{{
		Target:  f.pool,
		Payload: chain.MustPack(adapters.PoolABI, "swapWithPayment", foreign.Encode(), big.NewInt(10), f.owner),
	}})
	expectCode(t, err, router.CodeNotCallable)
	if got := f.chain.Commitment(ctx, foreign); got.Int64() != 10 {
		t.Fatalf("foreign commitment changed: %s", got)
	}
}

func TestPauseGuard(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	ctx := context.Background()

	expectCode(t, f.chain.Pause(ctx, f.owner, nil), router.CodeMissingValue)
	expectCode(t, f.chain.Pause(ctx, f.other, big.NewInt(1)), router.CodeUnauthorized)
	if err := f.chain.Pause(ctx, f.owner, big.NewInt(1)); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused, err := f.chain.Paused(ctx); err != nil || !paused {
		t.Fatalf("expected paused, got %v %v", paused, err)
	}
	_, err := f.exec(t, 0, nil, []router.Action{{}})
	expectCode(t, err, router.CodePaused)

	if err := f.chain.Unpause(ctx, f.other); err != nil {
		t.Fatalf("unpause without role check: %v", err)
	}
	if _, err := f.exec(t, 0, nil, []router.Action{{}}); err != nil {
		t.Fatalf("exec after unpause: %v", err)
	}
}

func TestUnpauseRequiresPauserWhenConfigured(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{RequirePauserForUnpause: true})
	ctx := context.Background()
	if err := f.chain.Pause(ctx, f.owner, big.NewInt(1)); err != nil {
		t.Fatalf("pause: %v", err)
	}
	expectCode(t, f.chain.Unpause(ctx, f.other), router.CodeUnauthorized)
	if err := f.chain.Unpause(ctx, f.owner); err != nil {
		t.Fatalf("unpause: %v", err)
	}
}

func TestSupportsInterfaceThroughRouterABI(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{})
	ctx := context.Background()
	for id, want := range map[[4]byte]bool{
		router.InterfaceID:       true,
		router.ERC165InterfaceID: true,
		{0xff, 0xff, 0xff, 0xff}: false,
	} {
		got, err := f.chain.SupportsInterface(ctx, id)
		if err != nil {
			t.Fatalf("supportsInterface: %v", err)
		}
		if got != want {
			t.Fatalf("supportsInterface(%x) = %v, want %v", id, got, want)
		}
	}
}

func TestExtraBlockedSignature(t *testing.T) {
	t.Parallel()

	f := setup(t, router.Config{BlockedSignatures: []string{"deposit(address)"}})
	_, err := f.exec(t, 1, nil, []router.Action{{
		Inputs:  []router.Input{{Mode: router.ModeCallValue, EIP: router.AssetNative, Amount: big.NewInt(1)}},
		Target:  f.wethAdapter,
		Payload: chain.MustPack(adapters.WrapABI, "deposit", f.other),
	}})
	expectCode(t, err, router.CodeNotCallable)
}
