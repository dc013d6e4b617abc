package resilience

import (
	"time"
)

// FromSettings builds a fixed-backoff policy from integer config values,
// falling back to DefaultRetryConfig for non-positive inputs.
func FromSettings(maxAttempts, backoffMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if backoffMs > 0 {
		d := time.Duration(backoffMs) * time.Millisecond
		cfg.InitialBackoff = d
		cfg.MaxBackoff = d
	}
	return cfg
}
