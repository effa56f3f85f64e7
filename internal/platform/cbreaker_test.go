package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMicroBreakerHalfOpenTrial(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewMicroBreaker(2, 10*time.Second)
	b.now = func() time.Time { return clock }

	b.OnFailure()
	assert.False(t, b.Open())
	assert.True(t, b.TryAcquire())
	b.OnFailure()
	assert.True(t, b.Open())
	assert.False(t, b.TryAcquire())

	clock = clock.Add(11 * time.Second)
	assert.True(t, b.TryAcquire())
	assert.True(t, b.Open(), "half open still holds other commands back")
	assert.False(t, b.TryAcquire(), "only one trial call while half open")

	b.OnFailure()
	assert.True(t, b.Open())

	clock = clock.Add(11 * time.Second)
	assert.True(t, b.TryAcquire())
	b.OnSuccess()
	assert.False(t, b.Open())
	assert.True(t, b.TryAcquire())
}
