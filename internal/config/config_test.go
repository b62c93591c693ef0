package config

import (
	"testing"
	"time"
)

func TestLoadClaimConfig_Defaults(t *testing.T) {
	for _, k := range []string{"CLAIM_MAX_ATTEMPTS", "CLAIM_BACKOFF_BASE", "CLAIM_BACKOFF_MAX", "CLAIM_TX_TIMEOUT"} {
		t.Setenv(k, "")
	}
	c := LoadClaimConfig()
	if c.MaxAttempts != 3 || c.BackoffBase != 25*time.Millisecond || c.BackoffMax != 400*time.Millisecond || c.TxTimeout != 10*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestLoadClaimConfig_Clamps(t *testing.T) {
	t.Setenv("CLAIM_MAX_ATTEMPTS", "0")
	t.Setenv("CLAIM_BACKOFF_BASE", "100ms")
	t.Setenv("CLAIM_BACKOFF_MAX", "10ms")
	t.Setenv("CLAIM_TX_TIMEOUT", "-1s")
	c := LoadClaimConfig()
	if c.MaxAttempts != 1 {
		t.Errorf("max attempts = %d", c.MaxAttempts)
	}
	if c.BackoffMax != 100*time.Millisecond {
		t.Errorf("backoff max = %v", c.BackoffMax)
	}
	if c.TxTimeout != 10*time.Second {
		t.Errorf("tx timeout = %v", c.TxTimeout)
	}
}

func TestLoadRateLimitConfig_BurstOverride(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "10")
	t.Setenv("RATE_LIMIT_BURST", "4")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	c := LoadRateLimitConfig()
	if c.Capacity != 4 || c.RefillTokens != 1 || c.RefillInterval != 2*time.Second {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.TTL != 10*time.Second {
		t.Fatalf("ttl should be raised to 5 refill intervals, got %v", c.TTL)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "off")
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "250ms")
	if envBool("X_BOOL", true) {
		t.Error("envBool")
	}
	if envInt("X_INT", 7) != 7 {
		t.Error("envInt fallback")
	}
	if envDur("X_DUR", time.Second) != 250*time.Millisecond {
		t.Error("envDur")
	}
}
