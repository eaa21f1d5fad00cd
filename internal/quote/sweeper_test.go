package quote

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// fastPolicy shrinks T1's cadence so sweeps land within test time.
func fastPolicy() Policy {
	tiers := DefaultTierConfigs()
	tiers[TierT1] = TierConfig{TTL: 10 * time.Second, RefreshPeriod: 20 * time.Millisecond}
	return Policy{Tiers: tiers, MaxStaleAge: time.Hour}
}

func TestSweeper_EnqueuesTierMembers(t *testing.T) {
	rig := newTestRig(t)
	rig.registry.Assign("ethereum:usdc:weth", TierT1)

	sweeper := NewSweeper(rig.registry, rig.queue, fastPolicy(), "1000", 3, rigLogger())

	ctx, cancel := context.WithCancel(context.Background())
	sweeper.Start(ctx)
	t.Cleanup(func() {
		cancel()
		sweeper.Wait()
	})

	// At least one sweep fires within the wait window (many refresh periods).
	waitFor(t, time.Second, func() bool {
		return rig.queue.Len() >= 1
	}, "sweep never enqueued the tier member")

	job := mustDequeue(t, rig.queue)
	if job.Priority != PriorityBackground {
		t.Errorf("sweep priority = %s, want background", job.Priority)
	}
	if want := Fingerprint(rigRequest); job.Key != want {
		t.Errorf("sweep key = %s, want %s", job.Key, want)
	}
}

func TestSweeper_SweepFeedsWorkers(t *testing.T) {
	rig := newTestRig(t)
	rig.fetcher.SetQuote(rigRequest, json.RawMessage(`{"amountOut":"7"}`))
	rig.registry.Assign(rigRequest.PairKey(), TierT1)

	startWorkers(t, rig, WorkerPoolConfig{Workers: 2})

	sweeper := NewSweeper(rig.registry, rig.queue, fastPolicy(), "1000", 3, rigLogger())
	ctx, cancel := context.WithCancel(context.Background())
	sweeper.Start(ctx)
	t.Cleanup(func() {
		cancel()
		sweeper.Wait()
	})

	// Sweep → worker → store within a couple of cadences.
	key := Fingerprint(rigRequest)
	waitFor(t, time.Second, func() bool {
		return rig.store.Get(context.Background(), key) != nil
	}, "sweep-driven refresh never reached the store")
}

func TestSweeper_SkipsOnDemandTiers(t *testing.T) {
	rig := newTestRig(t)
	rig.registry.Assign("ethereum:usdc:weth", TierT4)

	sweeper := NewSweeper(rig.registry, rig.queue, fastPolicy(), "1000", 3, rigLogger())

	ctx, cancel := context.WithCancel(context.Background())
	sweeper.Start(ctx)
	t.Cleanup(func() {
		cancel()
		sweeper.Wait()
	})

	// T4 has no refresh period; several cadences pass with no jobs.
	time.Sleep(100 * time.Millisecond)
	if got := rig.queue.Len(); got != 0 {
		t.Errorf("queue length = %d, want 0 for on-demand tier", got)
	}
}
