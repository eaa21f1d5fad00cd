package quote

import "time"

// Policy decides entry freshness. The tier TTL bounds proactive freshness;
// MaxStaleAge is the absolute floor for emergency serving. Tier TTLs never
// exceed MaxStaleAge, so a fresh entry is always servable-stale too.
type Policy struct {
	Tiers       map[Tier]TierConfig
	MaxStaleAge time.Duration
}

// DefaultPolicy returns the default tier configs with a one hour stale floor.
func DefaultPolicy() Policy {
	return Policy{
		Tiers:       DefaultTierConfigs(),
		MaxStaleAge: time.Hour,
	}
}

// TTLFor returns the freshness TTL for a tier. Unknown tiers fall back to
// the default tier's TTL.
func (p Policy) TTLFor(tier Tier) time.Duration {
	if cfg, ok := p.Tiers[tier]; ok {
		return cfg.TTL
	}
	return p.Tiers[DefaultTier].TTL
}

// IsFresh reports whether the entry is within its tier's TTL at now.
func (p Policy) IsFresh(e *Entry, now time.Time) bool {
	return e.Age(now) <= p.TTLFor(e.Tier)
}

// IsServableStale reports whether the entry may still be served, fresh or
// not: its age has not passed the global stale floor.
func (p Policy) IsServableStale(e *Entry, now time.Time) bool {
	return e.Age(now) <= p.MaxStaleAge
}

// IsTooStale reports whether the entry is beyond serving entirely.
func (p Policy) IsTooStale(e *Entry, now time.Time) bool {
	return e.Age(now) > p.MaxStaleAge
}

// StoreTTL returns the TTL handed to the store on writes. Entries must
// outlive their tier TTL so the very-stale fallback has something to serve;
// the store bound is the stale floor plus slack for clock drift.
func (p Policy) StoreTTL() time.Duration {
	return p.MaxStaleAge + time.Minute
}
