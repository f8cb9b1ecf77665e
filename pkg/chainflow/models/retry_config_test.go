package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	rc := DefaultRetryConfig()
	assert.Equal(t, time.Second, rc.Backoff(1, 1.0))
	assert.Equal(t, 2*time.Second, rc.Backoff(2, 1.0))
	assert.Equal(t, 4*time.Second, rc.Backoff(3, 1.0))
	assert.Equal(t, 800*time.Millisecond, rc.Backoff(1, 0.8))
	assert.Equal(t, 4800*time.Millisecond, rc.Backoff(3, 1.2))
	assert.Equal(t, time.Second, rc.Backoff(0, 1.0))
}

func TestBackoff_Capped(t *testing.T) {
	rc := RetryConfig{MaxRetryCount: 10, BaseInterval: time.Second, MaxInterval: 5 * time.Second}
	assert.Equal(t, 5*time.Second, rc.Backoff(6, 1.0))

	rc.MaxInterval = 0
	assert.Equal(t, 32*time.Second, rc.Backoff(6, 1.0))
}
