package quote

import (
	"fmt"
	"sync"
	"time"
)

// Tier is a freshness class controlling TTL and background refresh cadence.
type Tier string

const (
	TierT1 Tier = "T1"
	TierT2 Tier = "T2"
	TierT3 Tier = "T3"
	TierT4 Tier = "T4"
)

// DefaultTier is assigned to pairs with no explicit tier membership.
const DefaultTier = TierT4

// Tiers lists all tiers in order of decreasing heat.
var Tiers = []Tier{TierT1, TierT2, TierT3, TierT4}

// ParseTier parses a tier label.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierT1, TierT2, TierT3, TierT4:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown tier: %q", s)
	}
}

// TierConfig holds one tier's freshness policy. A zero RefreshPeriod means
// the tier is never swept; its entries refresh on demand only.
type TierConfig struct {
	TTL           time.Duration
	RefreshPeriod time.Duration
}

// DefaultTierConfigs returns the default per-tier policy.
func DefaultTierConfigs() map[Tier]TierConfig {
	return map[Tier]TierConfig{
		TierT1: {TTL: 10 * time.Second, RefreshPeriod: 5 * time.Second},
		TierT2: {TTL: 60 * time.Second, RefreshPeriod: 30 * time.Second},
		TierT3: {TTL: 300 * time.Second, RefreshPeriod: 180 * time.Second},
		TierT4: {TTL: 600 * time.Second},
	}
}

// Registry maps pair keys to tiers. A pair belongs to at most one tier;
// assigning it moves it. Reads vastly outnumber writes (every request
// resolves a tier, assignment is an admin operation), so a reader-writer
// lock suffices.
type Registry struct {
	mu     sync.RWMutex
	byPair map[string]Tier
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byPair: make(map[string]Tier)}
}

// Assign sets pairKey's tier, removing any prior membership. Assigning the
// default tier clears the explicit membership.
func (r *Registry) Assign(pairKey string, tier Tier) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tier == DefaultTier {
		delete(r.byPair, pairKey)
		return
	}
	r.byPair[pairKey] = tier
}

// TierOf returns pairKey's tier, or the default for unassigned pairs.
func (r *Registry) TierOf(pairKey string) Tier {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tier, ok := r.byPair[pairKey]; ok {
		return tier
	}
	return DefaultTier
}

// MembersOf returns a snapshot of the pairs assigned to tier.
func (r *Registry) MembersOf(tier Tier) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []string
	for pairKey, t := range r.byPair {
		if t == tier {
			members = append(members, pairKey)
		}
	}
	return members
}
