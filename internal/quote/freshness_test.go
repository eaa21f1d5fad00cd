package quote

import (
	"encoding/json"
	"testing"
	"time"
)

func entryAged(tier Tier, age time.Duration) (*Entry, time.Time) {
	// InsertedAt has millisecond precision; align now to it so the entry's
	// age is exactly age.
	now := time.UnixMilli(time.Now().UnixMilli())
	return &Entry{
		Quote:      json.RawMessage(`{"amountOut":"1"}`),
		InsertedAt: now.Add(-age).UnixMilli(),
		Tier:       tier,
	}, now
}

func TestPolicy_IsFresh(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name string
		tier Tier
		age  time.Duration
		want bool
	}{
		{"t1 within ttl", TierT1, 5 * time.Second, true},
		{"t1 at ttl", TierT1, 10 * time.Second, true},
		{"t1 past ttl", TierT1, 11 * time.Second, false},
		{"t2 within ttl", TierT2, 59 * time.Second, true},
		{"t2 past ttl", TierT2, 61 * time.Second, false},
		{"t4 within ttl", TierT4, 599 * time.Second, true},
		{"t4 past ttl", TierT4, 601 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, now := entryAged(tt.tier, tt.age)
			if got := policy.IsFresh(entry, now); got != tt.want {
				t.Errorf("IsFresh = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy_ServableStale(t *testing.T) {
	policy := DefaultPolicy()

	entry, now := entryAged(TierT1, 30*time.Second)
	if policy.IsFresh(entry, now) {
		t.Error("30s old T1 entry should not be fresh")
	}
	if !policy.IsServableStale(entry, now) {
		t.Error("30s old entry should be servable stale")
	}

	entry, now = entryAged(TierT1, 2*time.Hour)
	if !policy.IsTooStale(entry, now) {
		t.Error("2h old entry should be too stale")
	}
	if policy.IsServableStale(entry, now) {
		t.Error("2h old entry should not be servable")
	}
}

// Freshness is monotonic: an entry fresh at a later instant was fresh at
// every earlier instant.
func TestPolicy_FreshnessMonotonic(t *testing.T) {
	policy := DefaultPolicy()
	entry, now := entryAged(TierT2, 45*time.Second)

	if !policy.IsFresh(entry, now) {
		t.Fatal("45s old T2 entry should be fresh")
	}

	for _, back := range []time.Duration{time.Second, 10 * time.Second, 44 * time.Second} {
		if !policy.IsFresh(entry, now.Add(-back)) {
			t.Errorf("entry fresh at t but not at t-%v", back)
		}
	}
}

// Every tier TTL is below the stale floor, so fresh implies servable.
func TestPolicy_TierTTLBelowStaleFloor(t *testing.T) {
	policy := DefaultPolicy()

	for tier, cfg := range policy.Tiers {
		if cfg.TTL > policy.MaxStaleAge {
			t.Errorf("tier %s ttl %v exceeds max stale age %v", tier, cfg.TTL, policy.MaxStaleAge)
		}

		entry, now := entryAged(tier, cfg.TTL-time.Second)
		if policy.IsFresh(entry, now) && !policy.IsServableStale(entry, now) {
			t.Errorf("tier %s: fresh entry not servable", tier)
		}
	}
}

func TestPolicy_UnknownTierFallsBack(t *testing.T) {
	policy := DefaultPolicy()
	if got := policy.TTLFor(Tier("T9")); got != policy.TTLFor(DefaultTier) {
		t.Errorf("unknown tier TTL = %v, want default %v", got, policy.TTLFor(DefaultTier))
	}
}
