package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAdaptiveThrottle(t *testing.T) {
	t.Run("applies defaults when not specified", func(t *testing.T) {
		throttle, err := NewAdaptiveThrottle(nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultBaseDelay, throttle.BaseDelay())
		assert.Equal(t, DefaultMaxDelay, throttle.MaxDelay())
		assert.Equal(t, DefaultBaseDelay, throttle.CurrentDelay())
	})

	t.Run("accepts custom delays", func(t *testing.T) {
		throttle, err := NewAdaptiveThrottle(&AdaptiveThrottleConfig{
			BaseDelay: 10 * time.Millisecond,
			MaxDelay:  time.Second,
		})
		require.NoError(t, err)
		assert.Equal(t, 10*time.Millisecond, throttle.BaseDelay())
		assert.Equal(t, time.Second, throttle.MaxDelay())
	})

	t.Run("rejects negative base delay", func(t *testing.T) {
		_, err := NewAdaptiveThrottle(&AdaptiveThrottleConfig{BaseDelay: -time.Millisecond})
		assert.Error(t, err)
	})

	t.Run("rejects base above max", func(t *testing.T) {
		_, err := NewAdaptiveThrottle(&AdaptiveThrottleConfig{
			BaseDelay: time.Second,
			MaxDelay:  time.Millisecond,
		})
		assert.Error(t, err)
	})
}

func TestAdaptiveThrottleBackoff(t *testing.T) {
	throttle, err := NewAdaptiveThrottle(&AdaptiveThrottleConfig{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  10 * time.Second,
	})
	require.NoError(t, err)

	t.Run("failure doubles the delay", func(t *testing.T) {
		throttle.RecordFailure()
		assert.Equal(t, 200*time.Millisecond, throttle.CurrentDelay())
		throttle.RecordFailure()
		assert.Equal(t, 400*time.Millisecond, throttle.CurrentDelay())
		assert.Equal(t, 2, throttle.ConsecutiveFailures())
	})

	t.Run("delay is capped at max", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			throttle.RecordFailure()
		}
		assert.Equal(t, 10*time.Second, throttle.CurrentDelay())
	})

	t.Run("success decays multiplicatively and resets failures", func(t *testing.T) {
		throttle.RecordSuccess()
		assert.Equal(t, 9*time.Second, throttle.CurrentDelay())
		assert.Equal(t, 0, throttle.ConsecutiveFailures())
	})

	t.Run("decay floors at base delay", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			throttle.RecordSuccess()
		}
		assert.Equal(t, 100*time.Millisecond, throttle.CurrentDelay())

		throttle.RecordSuccess()
		assert.Equal(t, 100*time.Millisecond, throttle.CurrentDelay())
	})
}

func TestAdaptiveThrottleWait(t *testing.T) {
	t.Run("waits for the current delay", func(t *testing.T) {
		throttle, err := NewAdaptiveThrottle(&AdaptiveThrottleConfig{
			BaseDelay: 20 * time.Millisecond,
			MaxDelay:  time.Second,
		})
		require.NoError(t, err)

		start := time.Now()
		require.NoError(t, throttle.Wait(context.Background()))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("returns when context is cancelled", func(t *testing.T) {
		throttle, err := NewAdaptiveThrottle(&AdaptiveThrottleConfig{
			BaseDelay: 10 * time.Second,
			MaxDelay:  10 * time.Second,
		})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		err = throttle.Wait(ctx)
		assert.ErrorIs(t, err, ErrContextCancelled)
	})
}
