package quote

import (
	"context"
	"testing"
)

func TestWarmup_AssignsAndEnqueuesHigh(t *testing.T) {
	rig := newTestRig(t)

	provider := rig.engine.WarmupProvider([]WarmupPair{
		{Chain: "ethereum", TokenIn: "usdc", TokenOut: "weth", Tier: TierT1},
		{Chain: "ethereum", TokenIn: "dai", TokenOut: "weth", Tier: TierT2, Amount: "500"},
	}, "1000")

	if err := provider.Warmup(context.Background()); err != nil {
		t.Fatalf("Warmup failed: %v", err)
	}

	if got := rig.registry.TierOf("ethereum:usdc:weth"); got != TierT1 {
		t.Errorf("tier = %s, want T1", got)
	}
	if got := rig.registry.TierOf("ethereum:dai:weth"); got != TierT2 {
		t.Errorf("tier = %s, want T2", got)
	}

	if got := rig.queue.Len(); got != 2 {
		t.Fatalf("queue length = %d, want 2", got)
	}
	for i := 0; i < 2; i++ {
		job := mustDequeue(t, rig.queue)
		if job.Priority != PriorityHigh {
			t.Errorf("warmup job priority = %s, want high", job.Priority)
		}
	}
}

func TestWarmup_ReportsEnqueueFailures(t *testing.T) {
	rig := newTestRig(t)

	// A one-slot queue already full of high jobs cannot take warmup work.
	small := NewRefreshQueue(1, rig.metrics)
	engine := NewEngine(EngineConfig{
		Store:       rig.store,
		Registry:    rig.registry,
		Policy:      rig.policy,
		Queue:       small,
		Upstream:    rig.upstream,
		Metrics:     rig.metrics,
		Logger:      rigLogger(),
		MaxAttempts: 3,
	})

	if err := engine.ForceRefresh(context.Background(), testRequest(99)); err != nil {
		t.Fatalf("pre-fill failed: %v", err)
	}

	provider := engine.WarmupProvider([]WarmupPair{
		{Chain: "ethereum", TokenIn: "usdc", TokenOut: "weth", Tier: TierT1},
	}, "1000")

	if err := provider.Warmup(context.Background()); err == nil {
		t.Error("expected warmup to report the enqueue failure")
	}
}
