package deploy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute)

	b.Failure()
	b.Failure()
	assert.True(t, b.Allow(), "below threshold the breaker stays closed")

	b.Failure()
	assert.False(t, b.Allow(), "threshold reached, breaker open")
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute)

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()

	// The run of consecutive failures was broken, so the breaker is
	// still closed.
	assert.True(t, b.Allow())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := NewCircuitBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	b.Failure()
	assert.False(t, b.Allow())

	// After the cooldown exactly one probe gets through
	now = now.Add(time.Minute)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "second caller rejected while the probe is in flight")

	// A successful probe closes the breaker
	b.Success()
	assert.True(t, b.Allow())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := NewCircuitBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	b.Failure()
	now = now.Add(time.Minute)
	assert.True(t, b.Allow())

	// The probe failed: straight back to open for a fresh cooldown
	b.Failure()
	assert.False(t, b.Allow())

	now = now.Add(30 * time.Second)
	assert.False(t, b.Allow(), "cooldown restarts from the probe failure")

	now = now.Add(30 * time.Second)
	assert.True(t, b.Allow())
}
