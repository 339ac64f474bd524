package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_Lifecycle(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	require.NoError(t, b.Allow())
	assert.Equal(t, BreakerClosed, b.RecordFailure())
	assert.Equal(t, BreakerOpen, b.RecordFailure())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	now = now.Add(2 * time.Minute)
	require.NoError(t, b.Allow(), "cooldown elapsed, one trial allowed")
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen, "only one trial at a time")

	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_FailedTrialReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }

	assert.Equal(t, BreakerOpen, b.RecordFailure())
	now = now.Add(2 * time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, BreakerOpen, b.RecordFailure())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}
