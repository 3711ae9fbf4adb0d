package config

import "time"

// PollerConfig bounds the payment status poller of the command line client.
type PollerConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// LoadPollerConfig reads POLL_INTERVAL and POLL_MAX_ATTEMPTS.
func LoadPollerConfig() PollerConfig {
	cfg := PollerConfig{
		Interval:    envDur("POLL_INTERVAL", 5*time.Second),
		MaxAttempts: envInt("POLL_MAX_ATTEMPTS", 60),
	}
	if cfg.Interval <= 0 { cfg.Interval = 5 * time.Second }
	if cfg.MaxAttempts < 1 { cfg.MaxAttempts = 1 }
	return cfg
}
