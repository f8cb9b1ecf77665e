package models

import (
	"math"
	"time"
)

type RetryConfig struct {
	MaxRetryCount int
	BaseInterval  time.Duration
	MaxInterval   time.Duration // zero means uncapped
}

// DefaultRetryConfig is three attempts starting at one second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetryCount: 3,
		BaseInterval:  time.Second,
		MaxInterval:   30 * time.Second,
	}
}

// Backoff returns the wait before retry attempt n (1-based):
// BaseInterval * 2^(n-1) * jitter, capped at MaxInterval.
func (rc *RetryConfig) Backoff(attempt int, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(math.Round(float64(rc.BaseInterval) * math.Pow(2, float64(attempt-1)) * jitter))
	if rc.MaxInterval > 0 && d > rc.MaxInterval {
		return rc.MaxInterval
	}
	return d
}
