package task

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"OpenUTR/internal/router"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)

	tasks := []*Task{
		{ID: "t1", Caller: alice, Status: StatusPending, MaxRetries: 3},
		{ID: "t2", Caller: bob, Status: StatusFailed, MaxRetries: 3},
		{ID: "t3", Caller: alice, Status: StatusSucceeded, MaxRetries: 3},
	}

	for _, task := range tasks {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create task %s: %v", task.ID, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := store.MarkFailed(ctx, "t2", CodeTaskProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "t3", ExecutionResult{Refund: big.NewInt(0)}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.tasks["t1"].UpdatedAt = base.Unix()
	store.tasks["t2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["t3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
	if all[0].ID != "t3" {
		t.Fatalf("expected newest task first, got %s", all[0].ID)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "t2" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	succeeded, err := store.List(ctx, buildListOptions([]ListOption{WithResultPresence(true)}))
	if err != nil {
		t.Fatalf("list with result: %v", err)
	}
	if len(succeeded) != 1 || succeeded[0].ID != "t3" {
		t.Fatalf("unexpected result list: %+v", succeeded)
	}

	since := base.Add(15 * time.Second)
	recent, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedSince(since)}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 tasks to match since filter, got %d", len(recent))
	}

	byCaller, err := store.List(ctx, buildListOptions([]ListOption{WithCaller(alice), WithSortOrder(SortByUpdatedAsc)}))
	if err != nil {
		t.Fatalf("list by caller: %v", err)
	}
	if len(byCaller) != 2 || byCaller[0].ID != "t1" || byCaller[1].ID != "t3" {
		t.Fatalf("unexpected caller list: %+v", byCaller)
	}

	byCode, err := store.List(ctx, buildListOptions([]ListOption{WithErrorCode("task_processing_failed")}))
	if err != nil {
		t.Fatalf("list by code: %v", err)
	}
	if len(byCode) != 1 || byCode[0].ID != "t2" {
		t.Fatalf("unexpected code list: %+v", byCode)
	}

	paged, err := store.List(ctx, buildListOptions([]ListOption{WithLimit(1), WithOffset(1)}))
	if err != nil {
		t.Fatalf("list paged: %v", err)
	}
	if len(paged) != 1 || paged[0].ID != "t2" {
		t.Fatalf("unexpected page: %+v", paged)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Minute)
	tasks := []*Task{
		{ID: "a", Caller: alice, Status: StatusPending, MaxRetries: 3},
		{ID: "b", Caller: alice, Status: StatusPending, MaxRetries: 3},
		{ID: "c", Caller: bob, Status: StatusPending, MaxRetries: 3},
	}

	for _, task := range tasks {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create task %s: %v", task.ID, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := store.MarkFailed(ctx, "b", CodeTaskProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "c", ExecutionResult{Refund: big.NewInt(0)}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.tasks["a"].UpdatedAt = base.Unix()
	store.tasks["b"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["c"].UpdatedAt = base.Add(2 * time.Minute).Unix()
	store.mu.Unlock()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.NewestUpdatedAt != base.Add(2*time.Minute).Unix() {
		t.Fatalf("unexpected newest timestamp: %d", stats.NewestUpdatedAt)
	}
	if stats.OldestUpdatedAt != base.Unix() {
		t.Fatalf("unexpected oldest timestamp: %d", stats.OldestUpdatedAt)
	}

	withResults, err := store.Stats(ctx, buildListOptions([]ListOption{WithResultPresence(true)}))
	if err != nil {
		t.Fatalf("stats with result: %v", err)
	}
	if withResults.Total != 1 || withResults.Succeeded != 1 {
		t.Fatalf("unexpected stats with result: %+v", withResults)
	}

	withoutResults, err := store.Stats(ctx, buildListOptions([]ListOption{WithResultPresence(false)}))
	if err != nil {
		t.Fatalf("stats without result: %v", err)
	}
	if withoutResults.Total != 2 || withoutResults.Pending != 1 || withoutResults.Failed != 1 {
		t.Fatalf("unexpected stats without result: %+v", withoutResults)
	}

	failedOnly, err := store.Stats(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("stats failed only: %v", err)
	}
	if failedOnly.Total != 1 || failedOnly.Failed != 1 {
		t.Fatalf("unexpected failed stats: %+v", failedOnly)
	}
	if failedOnly.ErrorCodes[string(CodeTaskProcessing)] != 1 {
		t.Fatalf("unexpected error code breakdown: %v", failedOnly.ErrorCodes)
	}
	if withResults.ErrorCodes != nil {
		t.Fatalf("succeeded batches carry no error codes: %v", withResults.ErrorCodes)
	}
}

func TestMemoryStoreListByToken(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	weth := common.HexToAddress("0x000000000000000000000000000000000000e7e0")

	tasks := []*Task{
		{ID: "wrap", Caller: alice, Status: StatusPending, MaxRetries: 3,
			Outputs: []router.Output{{EIP: router.AssetERC20, Token: weth, MinAmount: big.NewInt(1), Recipient: alice}}},
		{ID: "unwrap", Caller: alice, Status: StatusPending, MaxRetries: 3,
			Actions: []router.Action{{Inputs: []router.Input{{Mode: router.ModeTransfer, EIP: router.AssetERC20, Token: weth, Amount: big.NewInt(1)}}, Target: bob}}},
		{ID: "noop", Caller: bob, Status: StatusPending, MaxRetries: 3},
	}
	for _, task := range tasks {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create task %s: %v", task.ID, err)
		}
	}

	touched, err := store.List(ctx, buildListOptions([]ListOption{WithToken(weth)}))
	if err != nil {
		t.Fatalf("list by token: %v", err)
	}
	if len(touched) != 2 {
		t.Fatalf("expected wrap and unwrap, got %+v", touched)
	}
	stats, err := store.Stats(ctx, buildListOptions([]ListOption{WithToken(bob)}))
	if err != nil {
		t.Fatalf("stats by token: %v", err)
	}
	if stats.Total != 0 {
		t.Fatalf("no batch moves token %s, got %+v", bob.Hex(), stats)
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	task := &Task{
		ID:         "batch",
		Caller:     alice,
		Value:      big.NewInt(3),
		Actions:    []router.Action{{Target: bob}},
		Status:     StatusPending,
		MaxRetries: 2,
	}
	if err := store.Create(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, task); !errors.Is(err, ErrTaskConflict) {
		t.Fatalf("重复创建应返回冲突，got %v", err)
	}
	task.Value.SetInt64(99)

	claimed, err := store.Claim(ctx, "batch")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 || claimed.Value.Int64() != 3 {
		t.Fatalf("unexpected claimed task %+v", claimed)
	}
	if _, err := store.Claim(ctx, "batch"); !errors.Is(err, ErrTaskConflict) {
		t.Fatalf("running batch must not be claimed twice, got %v", err)
	}

	if err := store.MarkFailed(ctx, "batch", CodeTaskProcessing, "timeout", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "batch"); err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if err := store.MarkFailed(ctx, "batch", CodeTaskProcessing, "timeout", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "batch"); !errors.Is(err, ErrTaskExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}

	if _, err := store.Claim(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreCompletedBatchIsNotReclaimed(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, &Task{ID: "done", Caller: bob, Status: StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Claim(ctx, "done"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	result := ExecutionResult{Refund: big.NewInt(4), Outputs: []router.Delta{{Before: big.NewInt(1), After: big.NewInt(6)}}}
	if err := store.MarkSucceeded(ctx, "done", result); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if _, err := store.Claim(ctx, "done"); !errors.Is(err, ErrTaskCompleted) {
		t.Fatalf("expected completed, got %v", err)
	}
	got, err := store.Get(ctx, "done")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Finished() || got.Result.Refund.Int64() != 4 || got.Result.Outputs[0].Received().Int64() != 5 {
		t.Fatalf("unexpected stored result %+v", got.Result)
	}
}
