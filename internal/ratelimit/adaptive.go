// Package ratelimit provides adaptive pacing for outbound data source calls.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Default throttle configuration values.
const (
	DefaultBaseDelay = 100 * time.Millisecond
	DefaultMaxDelay  = 10 * time.Second
)

// Multiplicative factors for delay adjustment. Success decays the delay
// slowly toward the floor; failure doubles it toward the cap.
const (
	decayNumerator   = 9
	decayDenominator = 10
	growthFactor     = 2
)

// ErrContextCancelled is returned when the context is cancelled while waiting.
var ErrContextCancelled = errors.New("context cancelled while waiting for throttle")

// AdaptiveThrottle paces outbound requests with a single shared delay.
// The delay is process-wide state across every caller holding the same
// instance: a burst of failures on one resource slows unrelated subsequent
// calls too. Callers wanting independent pacing per source inject separate
// instances.
type AdaptiveThrottle struct {
	baseDelay        time.Duration
	maxDelay         time.Duration
	currentDelay     time.Duration
	consecutiveFails int
	mu               sync.Mutex
}

// AdaptiveThrottleConfig holds configuration for the throttle.
type AdaptiveThrottleConfig struct {
	// BaseDelay is the floor and initial inter-call delay. Default: 100ms.
	BaseDelay time.Duration

	// MaxDelay is the delay cap under repeated failure. Default: 10s.
	MaxDelay time.Duration
}

// Validate checks if the configuration is valid.
func (c *AdaptiveThrottleConfig) Validate() error {
	if c.BaseDelay < 0 {
		return errors.New("base delay cannot be negative")
	}
	if c.MaxDelay < 0 {
		return errors.New("max delay cannot be negative")
	}
	if c.MaxDelay > 0 && c.BaseDelay > 0 && c.BaseDelay > c.MaxDelay {
		return errors.New("base delay cannot exceed max delay")
	}
	return nil
}

// NewAdaptiveThrottle creates a new throttle with the given configuration.
// A nil configuration uses the defaults.
func NewAdaptiveThrottle(cfg *AdaptiveThrottleConfig) (*AdaptiveThrottle, error) {
	if cfg == nil {
		cfg = &AdaptiveThrottleConfig{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseDelay := cfg.BaseDelay
	if baseDelay == 0 {
		baseDelay = DefaultBaseDelay
	}

	maxDelay := cfg.MaxDelay
	if maxDelay == 0 {
		maxDelay = DefaultMaxDelay
	}

	return &AdaptiveThrottle{
		baseDelay:    baseDelay,
		maxDelay:     maxDelay,
		currentDelay: baseDelay,
	}, nil
}

// Wait blocks for the current delay before a call may proceed.
// Returns ErrContextCancelled if the context ends first.
func (t *AdaptiveThrottle) Wait(ctx context.Context) error {
	t.mu.Lock()
	delay := t.currentDelay
	t.mu.Unlock()

	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ErrContextCancelled
	case <-timer.C:
		return nil
	}
}

// RecordSuccess decays the delay toward the floor after a successful call.
// The slow release keeps bursts capped while steady traffic speeds back up.
func (t *AdaptiveThrottle) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.consecutiveFails = 0
	t.currentDelay = t.currentDelay * decayNumerator / decayDenominator
	if t.currentDelay < t.baseDelay {
		t.currentDelay = t.baseDelay
	}
}

// RecordFailure doubles the delay after a rate-limited or timed-out call.
func (t *AdaptiveThrottle) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.consecutiveFails++
	t.currentDelay *= growthFactor
	if t.currentDelay > t.maxDelay {
		t.currentDelay = t.maxDelay
	}
}

// CurrentDelay returns the current inter-call delay.
// Useful for monitoring and testing.
func (t *AdaptiveThrottle) CurrentDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentDelay
}

// ConsecutiveFailures returns the number of failures since the last success.
func (t *AdaptiveThrottle) ConsecutiveFailures() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consecutiveFails
}

// BaseDelay returns the configured floor delay.
func (t *AdaptiveThrottle) BaseDelay() time.Duration {
	return t.baseDelay
}

// MaxDelay returns the configured delay cap.
func (t *AdaptiveThrottle) MaxDelay() time.Duration {
	return t.maxDelay
}
