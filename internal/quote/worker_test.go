package quote

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startWorkers(t *testing.T, rig *testRig, cfg WorkerPoolConfig) *WorkerPool {
	t.Helper()

	pool := NewWorkerPool(rig.queue, rig.upstream, rig.store, rig.registry, cfg, rigLogger(), rig.metrics, nil)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Wait()
	})

	return pool
}

func TestWorkerPool_CompletesJobAndWritesStore(t *testing.T) {
	rig := newTestRig(t)
	rig.fetcher.SetQuote(rigRequest, json.RawMessage(`{"amountOut":"9"}`))
	rig.registry.Assign(rigRequest.PairKey(), TierT2)

	startWorkers(t, rig, WorkerPoolConfig{Workers: 2})

	if err := rig.queue.Enqueue(context.Background(), NewJob(rigRequest, PriorityBackground, 3)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	key := Fingerprint(rigRequest)
	waitFor(t, 2*time.Second, func() bool {
		return rig.store.Get(context.Background(), key) != nil
	}, "store never written by worker")

	entry := rig.store.Get(context.Background(), key)
	if entry.Tier != TierT2 {
		t.Errorf("entry tier = %s, want T2 from registry", entry.Tier)
	}
	if !rig.policy.IsFresh(entry, time.Now()) {
		t.Error("worker-written entry is not fresh")
	}

	snap := rig.metrics.Snapshot()
	if snap.Jobs.Completed != 1 || snap.Jobs.Failed != 0 {
		t.Errorf("completed/failed = %d/%d, want 1/0", snap.Jobs.Completed, snap.Jobs.Failed)
	}
}

func TestWorkerPool_RetriesThenFails(t *testing.T) {
	rig := newTestRig(t)
	rig.fetcher.SetError(errors.New("router unreachable"))

	startWorkers(t, rig, WorkerPoolConfig{
		Workers:     1,
		MaxAttempts: 2,
		RetryBase:   10 * time.Millisecond,
		RetryMax:    50 * time.Millisecond,
	})

	if err := rig.queue.Enqueue(context.Background(), NewJob(rigRequest, PriorityBackground, 2)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return rig.metrics.Snapshot().Jobs.Failed == 1
	}, "job never marked failed")

	if calls := rig.fetcher.Calls(); calls != 2 {
		t.Errorf("upstream calls = %d, want 2 (one retry)", calls)
	}
}

func TestWorkerPool_RetrySucceedsAfterRecovery(t *testing.T) {
	rig := newTestRig(t)
	rig.fetcher.SetError(errors.New("transient"))

	startWorkers(t, rig, WorkerPoolConfig{
		Workers:     1,
		MaxAttempts: 3,
		RetryBase:   10 * time.Millisecond,
		RetryMax:    50 * time.Millisecond,
	})

	if err := rig.queue.Enqueue(context.Background(), NewJob(rigRequest, PriorityBackground, 3)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Let the first attempt fail, then recover the upstream.
	waitFor(t, 2*time.Second, func() bool {
		return rig.fetcher.Calls() >= 1
	}, "first attempt never ran")
	rig.fetcher.SetError(nil)

	key := Fingerprint(rigRequest)
	waitFor(t, 2*time.Second, func() bool {
		return rig.store.Get(context.Background(), key) != nil
	}, "retry never succeeded")

	if snap := rig.metrics.Snapshot(); snap.Jobs.Completed != 1 {
		t.Errorf("completed = %d, want 1", snap.Jobs.Completed)
	}
}

func TestWorkerPool_SlowJobDoesNotBlockOthers(t *testing.T) {
	rig := newTestRig(t)
	rig.fetcher.SetDelay(300 * time.Millisecond)

	startWorkers(t, rig, WorkerPoolConfig{Workers: 2})

	slow := rigRequest
	fast := rigRequest
	fast.TokenIn = "dai"

	if err := rig.queue.Enqueue(context.Background(), NewJob(slow, PriorityBackground, 3)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := rig.queue.Enqueue(context.Background(), NewJob(fast, PriorityBackground, 3)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Both jobs complete in roughly one delay, not two.
	waitFor(t, 500*time.Millisecond, func() bool {
		return rig.metrics.Snapshot().Jobs.Completed == 2
	}, "second worker did not run independently")
}
