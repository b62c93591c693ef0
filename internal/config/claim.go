package config

import "time"

// ClaimConfig tunes the claim gateway's retry of transient failures and
// the coordinator's transaction bound.
type ClaimConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	TxTimeout   time.Duration
}

func LoadClaimConfig() ClaimConfig {
	c := ClaimConfig{
		MaxAttempts: envInt("CLAIM_MAX_ATTEMPTS", 3),
		BackoffBase: envDur("CLAIM_BACKOFF_BASE", 25*time.Millisecond),
		BackoffMax:  envDur("CLAIM_BACKOFF_MAX", 400*time.Millisecond),
		TxTimeout:   envDur("CLAIM_TX_TIMEOUT", 10*time.Second),
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.BackoffBase < 0 {
		c.BackoffBase = 0
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = c.BackoffBase
	}
	if c.TxTimeout <= 0 {
		c.TxTimeout = 10 * time.Second
	}
	return c
}
