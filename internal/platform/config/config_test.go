package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
upstream:
  provider: static
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Refresh.Workers != 10 {
		t.Errorf("workers = %d, want 10", cfg.Refresh.Workers)
	}
	if cfg.Refresh.SweepAmount != "1000" {
		t.Errorf("sweep amount = %q, want 1000", cfg.Refresh.SweepAmount)
	}
	if cfg.Tiers.T1.TTL != 10*time.Second || cfg.Tiers.T1.RefreshPeriod != 5*time.Second {
		t.Errorf("t1 = %+v, want 10s/5s", cfg.Tiers.T1)
	}
	if cfg.Tiers.T4.RefreshPeriod != 0 {
		t.Errorf("t4 refresh period = %v, want 0 (on demand)", cfg.Tiers.T4.RefreshPeriod)
	}
	if cfg.Tiers.MaxStaleAge != time.Hour {
		t.Errorf("max stale age = %v, want 1h", cfg.Tiers.MaxStaleAge)
	}
	if cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.ResetTimeout != 60*time.Second {
		t.Errorf("breaker = %+v", cfg.Breaker)
	}
	if cfg.Upstream.CallTimeout != 30*time.Second {
		t.Errorf("call timeout = %v, want 30s", cfg.Upstream.CallTimeout)
	}
}

func TestLoad_RejectsTierTTLAboveStaleFloor(t *testing.T) {
	_, err := Load(writeConfig(t, `
upstream:
  provider: static
tiers:
  max_stale_age: 5s
`))
	if err == nil {
		t.Fatal("expected validation failure when tier ttl exceeds max_stale_age")
	}
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	_, err := Load(writeConfig(t, `
upstream:
  provider: magic
`))
	if err == nil {
		t.Fatal("expected validation failure for unknown provider")
	}
}

func TestLoad_UniswapRequiresChains(t *testing.T) {
	_, err := Load(writeConfig(t, `
upstream:
  provider: uniswap_v3
`))
	if err == nil {
		t.Fatal("expected validation failure with no chains")
	}
}

func TestLoad_ChainConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
upstream:
  provider: uniswap_v3
  chains:
    - name: ethereum
      rpc_url: https://eth.example.com
      quoter_address: "0x61fFE014bA17989E743c5F6cB21bF9697530B21e"
      fee_tiers: [500, 3000]
      tokens:
        pepe:
          address: "0x6982508145454Ce325dDbE47a25d4ec3d2311933"
          decimals: 18
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Upstream.Chains) != 1 {
		t.Fatalf("chains = %d, want 1", len(cfg.Upstream.Chains))
	}
	chain := cfg.Upstream.Chains[0]

	// Configured tokens resolve.
	token, ok := chain.ResolveToken("PEPE")
	if !ok || token.Decimals != 18 {
		t.Errorf("ResolveToken(PEPE) = (%+v, %v)", token, ok)
	}

	// Built-in registry fills in well-known symbols.
	token, ok = chain.ResolveToken("usdc")
	if !ok || token.Decimals != 6 {
		t.Errorf("ResolveToken(usdc) = (%+v, %v)", token, ok)
	}

	if _, ok := chain.ResolveToken("nope"); ok {
		t.Error("unknown token should not resolve")
	}
}

func TestLoad_AlertsRequireTopic(t *testing.T) {
	_, err := Load(writeConfig(t, `
upstream:
  provider: static
alerts:
  enabled: true
`))
	if err == nil {
		t.Fatal("expected validation failure for alerts without topic ARN")
	}
}
