package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoffGrowth(t *testing.T) {
	cfg := BackoffConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     1 * time.Second,
		Multiplier:      2.0,
	}
	backoff := ExponentialBackoff(cfg)

	assert.Equal(t, 100*time.Millisecond, backoff(1))
	assert.Equal(t, 200*time.Millisecond, backoff(2))
	assert.Equal(t, 400*time.Millisecond, backoff(3))
	// Capped at MaxInterval.
	assert.Equal(t, 1*time.Second, backoff(10))
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	cfg := BackoffConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     1 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
	}
	backoff := ExponentialBackoff(cfg)

	for i := 0; i < 50; i++ {
		d := backoff(2)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}
}

func TestWithBackoffSucceedsAfterRetries(t *testing.T) {
	cfg := BackoffConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1.0,
		MaxRetries:      5,
	}

	calls := 0
	err := WithBackoff(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithBackoffExhaustsBudget(t *testing.T) {
	cfg := BackoffConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1.0,
		MaxRetries:      2,
	}

	calls := 0
	err := WithBackoff(context.Background(), cfg, func() error {
		calls++
		return errors.New("always fails")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestWithBackoffStopError(t *testing.T) {
	cfg := DefaultBackoffConfig()
	permanent := errors.New("bad request")

	calls := 0
	err := WithBackoff(context.Background(), cfg, func() error {
		calls++
		return Stop(permanent)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, permanent, err)
}

type hintedError struct {
	delay time.Duration
}

func (e hintedError) Error() string             { return "rate limited" }
func (e hintedError) RetryDelay() time.Duration { return e.delay }

func TestWithBackoffHonorsDelayHint(t *testing.T) {
	cfg := BackoffConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      1.0,
		MaxRetries:      1,
	}

	calls := 0
	start := time.Now()
	err := WithBackoff(context.Background(), cfg, func() error {
		calls++
		if calls == 1 {
			return hintedError{delay: 50 * time.Millisecond}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWithBackoffCapsDelayHint(t *testing.T) {
	cfg := BackoffConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		Multiplier:      1.0,
		MaxRetries:      1,
	}

	start := time.Now()
	err := WithBackoff(context.Background(), cfg, func() error {
		return hintedError{delay: time.Hour}
	})
	require.Error(t, err)
	// The hour-long hint is clamped to MaxInterval, so both waits fit
	// well under a second.
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithBackoffContextCancelled(t *testing.T) {
	cfg := BackoffConfig{
		InitialInterval: time.Hour,
		MaxInterval:     time.Hour,
		Multiplier:      1.0,
		MaxRetries:      1,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := WithBackoff(ctx, cfg, func() error {
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
