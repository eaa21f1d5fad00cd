package quote

import (
	"testing"

	"github.com/gatti/quote-cache/internal/pricing"
)

func TestFingerprint_CaseCanonical(t *testing.T) {
	variants := []pricing.QuoteRequest{
		{Chain: "ethereum", TokenIn: "usdc", TokenOut: "weth", Amount: "1000", Direction: pricing.ExactIn},
		{Chain: "Ethereum", TokenIn: "USDC", TokenOut: "WETH", Amount: "1000", Direction: pricing.ExactIn},
		{Chain: "ETHEREUM", TokenIn: "UsDc", TokenOut: "WeTh", Amount: "1000", Direction: pricing.ExactIn},
	}

	want := "price:ethereum:usdc:weth:1000:exactin"
	for _, req := range variants {
		if got := Fingerprint(req); got != want {
			t.Errorf("Fingerprint(%+v) = %q, want %q", req, got, want)
		}
	}
}

func TestFingerprint_DistinctTuples(t *testing.T) {
	base := pricing.QuoteRequest{Chain: "ethereum", TokenIn: "usdc", TokenOut: "weth", Amount: "1000", Direction: pricing.ExactIn}

	seen := map[string]bool{Fingerprint(base): true}

	variants := []pricing.QuoteRequest{
		{Chain: "unichain", TokenIn: "usdc", TokenOut: "weth", Amount: "1000", Direction: pricing.ExactIn},
		{Chain: "ethereum", TokenIn: "dai", TokenOut: "weth", Amount: "1000", Direction: pricing.ExactIn},
		{Chain: "ethereum", TokenIn: "usdc", TokenOut: "wbtc", Amount: "1000", Direction: pricing.ExactIn},
		{Chain: "ethereum", TokenIn: "usdc", TokenOut: "weth", Amount: "500", Direction: pricing.ExactIn},
		{Chain: "ethereum", TokenIn: "usdc", TokenOut: "weth", Amount: "1000", Direction: pricing.ExactOut},
	}

	for _, req := range variants {
		fp := Fingerprint(req)
		if seen[fp] {
			t.Errorf("Fingerprint(%+v) = %q collides with a distinct tuple", req, fp)
		}
		seen[fp] = true
	}
}

func TestPairKey(t *testing.T) {
	if got := PairKey("Ethereum", "USDC", "WETH"); got != "ethereum:usdc:weth" {
		t.Errorf("PairKey = %q, want ethereum:usdc:weth", got)
	}
}

func TestSplitPairKey(t *testing.T) {
	chain, in, out, ok := SplitPairKey("ethereum:usdc:weth")
	if !ok {
		t.Fatal("expected valid pair key")
	}
	if chain != "ethereum" || in != "usdc" || out != "weth" {
		t.Errorf("got (%s, %s, %s)", chain, in, out)
	}

	for _, malformed := range []string{"", "ethereum", "ethereum:usdc", "ethereum::weth"} {
		if _, _, _, ok := SplitPairKey(malformed); ok {
			t.Errorf("SplitPairKey(%q) accepted a malformed key", malformed)
		}
	}
}
