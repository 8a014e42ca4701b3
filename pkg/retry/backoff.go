// Package retry provides exponential backoff retry logic with jitter.
//
// The API client uses it to smooth over transient failures: network
// errors, 5xx responses, and rate limiting. Permanent failures are
// wrapped with Stop so they surface immediately.
//
//	cfg := retry.DefaultBackoffConfig()
//	err := retry.WithBackoff(ctx, cfg, func() error {
//		return makeAPICall()
//	})
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sublime-security/sublime-cli/logger"
)

type BackoffConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          bool
	MaxRetries      int
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
		MaxRetries:      3,
	}
}

// ExponentialBackoff returns the delay to apply before the given attempt.
// With jitter enabled the delay is baseDelay * (0.5 + random(0, 0.5)).
func ExponentialBackoff(config BackoffConfig) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return config.InitialInterval
		}

		interval := float64(config.InitialInterval) * math.Pow(config.Multiplier, float64(attempt-1))
		if interval > float64(config.MaxInterval) {
			interval = float64(config.MaxInterval)
		}

		duration := time.Duration(interval)
		if config.Jitter {
			jitter := time.Duration(rand.Int63n(int64(duration / 2)))
			duration = duration/2 + jitter
		}

		return duration
	}
}

type RetryableFunc func() error

// StopError wraps an error to indicate that retries should stop immediately.
type StopError struct {
	Err error
}

func (s StopError) Error() string {
	return s.Err.Error()
}

func (s StopError) Unwrap() error {
	return s.Err
}

// Stop wraps an error to indicate that retries should stop immediately.
func Stop(err error) error {
	return StopError{Err: err}
}

// DelayHinter is implemented by errors that carry a server-requested
// wait, such as a Retry-After header on a rate limit response. The
// hint replaces the exponential delay for the next attempt, capped at
// MaxInterval.
type DelayHinter interface {
	RetryDelay() time.Duration
}

func delayHint(err error) time.Duration {
	var hinter DelayHinter
	if errors.As(err, &hinter) {
		return hinter.RetryDelay()
	}
	return 0
}

// IsStopError checks if an error is a StopError.
func IsStopError(err error) bool {
	var stopErr StopError
	return errors.As(err, &stopErr)
}

// WithBackoff runs fn until it succeeds, returns a StopError, or the
// retry budget is exhausted. The context cancels waits between attempts.
func WithBackoff(ctx context.Context, config BackoffConfig, fn RetryableFunc) error {
	backoff := ExponentialBackoff(config)

	var lastErr error
	var attempts int
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		attempts = attempt + 1
		if attempt > 0 {
			wait := backoff(attempt)
			if hint := delayHint(lastErr); hint > 0 {
				wait = hint
				if wait > config.MaxInterval {
					wait = config.MaxInterval
				}
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled by context: %w", ctx.Err())
			case <-time.After(wait):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsStopError(err) {
			var stopErr StopError
			errors.As(err, &stopErr)
			return stopErr.Err
		}
		logger.Debug("Retrying after error", "attempt", attempts, "max_attempts", config.MaxRetries+1, "error", err)
	}

	return fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}
