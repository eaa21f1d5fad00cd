// Package quote implements the caching and refresh engine: the tiered
// freshness policy, the read-through request path with stale-while-
// revalidate, the priority refresh queue with its worker pool, the per-tier
// sweeper, and the circuit-breaker-gated upstream.
package quote

import (
	"strings"

	"github.com/gatti/quote-cache/internal/pricing"
)

// keyNamespace prefixes every store key so the quote cache can share a
// Redis database with other data.
const keyNamespace = "price:"

// Fingerprint returns the canonical store key for a request: the namespace
// followed by the lowercased, colon-joined parameter tuple. Equal tuples
// (up to case) produce equal keys; the key is used verbatim against the
// store, no hashing.
func Fingerprint(req pricing.QuoteRequest) string {
	return keyNamespace + strings.ToLower(
		req.Chain+":"+req.TokenIn+":"+req.TokenOut+":"+req.Amount+":"+string(req.Direction),
	)
}

// PairKey returns the canonical chain:tokenIn:tokenOut key identifying a
// trading pair, independent of amount and direction.
func PairKey(chain, tokenIn, tokenOut string) string {
	return strings.ToLower(chain + ":" + tokenIn + ":" + tokenOut)
}

// SplitPairKey splits a pair key back into its chain, tokenIn and tokenOut
// components. Returns false for malformed keys.
func SplitPairKey(pairKey string) (chain, tokenIn, tokenOut string, ok bool) {
	parts := strings.SplitN(pairKey, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
