package quote

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistry_DefaultTier(t *testing.T) {
	r := NewRegistry()
	if got := r.TierOf("ethereum:usdc:weth"); got != TierT4 {
		t.Errorf("unassigned pair tier = %s, want T4", got)
	}
}

func TestRegistry_AssignMoves(t *testing.T) {
	r := NewRegistry()
	pair := "ethereum:usdc:weth"

	r.Assign(pair, TierT1)
	if got := r.TierOf(pair); got != TierT1 {
		t.Fatalf("tier = %s, want T1", got)
	}

	r.Assign(pair, TierT3)
	if got := r.TierOf(pair); got != TierT3 {
		t.Fatalf("tier after move = %s, want T3", got)
	}

	// The pair must not remain in T1 after moving.
	for _, member := range r.MembersOf(TierT1) {
		if member == pair {
			t.Error("pair still a member of T1 after moving to T3")
		}
	}
}

// A pair appears in the members of at most one tier, whatever the
// assignment history.
func TestRegistry_AtMostOneMembership(t *testing.T) {
	r := NewRegistry()
	pair := "ethereum:usdc:weth"

	for _, tier := range []Tier{TierT1, TierT2, TierT1, TierT3, TierT2, TierT4, TierT1} {
		r.Assign(pair, tier)

		memberships := 0
		for _, candidate := range Tiers {
			for _, member := range r.MembersOf(candidate) {
				if member == pair {
					memberships++
				}
			}
		}
		if memberships > 1 {
			t.Fatalf("pair is a member of %d tiers after assigning %s", memberships, tier)
		}
	}
}

func TestRegistry_AssignDefaultClears(t *testing.T) {
	r := NewRegistry()
	pair := "ethereum:usdc:weth"

	r.Assign(pair, TierT1)
	r.Assign(pair, TierT4)

	if got := r.TierOf(pair); got != TierT4 {
		t.Errorf("tier = %s, want T4", got)
	}
	if members := r.MembersOf(TierT1); len(members) != 0 {
		t.Errorf("T1 members = %v, want empty", members)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			pair := fmt.Sprintf("ethereum:token%d:weth", n)
			for j := 0; j < 100; j++ {
				r.Assign(pair, Tiers[j%len(Tiers)])
				_ = r.TierOf(pair)
				_ = r.MembersOf(TierT1)
			}
		}(i)
	}
	wg.Wait()
}

func TestParseTier(t *testing.T) {
	for _, s := range []string{"T1", "T2", "T3", "T4"} {
		if _, err := ParseTier(s); err != nil {
			t.Errorf("ParseTier(%q) failed: %v", s, err)
		}
	}
	for _, s := range []string{"", "t1", "T5", "hot"} {
		if _, err := ParseTier(s); err == nil {
			t.Errorf("ParseTier(%q) should fail", s)
		}
	}
}
