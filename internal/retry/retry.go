// Package retry provides the shared backoff policy used by every API client.
package retry

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Policy holds the parameters for a retry strategy. A single Policy is safe
// for concurrent use.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first failure; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the per-attempt wait. Zero means no cap.
	MaxDelay time.Duration
	// Jitter adds a random 0..Jitter extra wait to each delay.
	Jitter time.Duration
	// Retryable decides whether an error is worth another attempt.
	// When nil, every error is retried.
	Retryable func(error) bool

	// Sleep is overridable for tests; defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Do executes fn with exponential back-off, up to MaxAttempts tries.
// A non-retryable error aborts immediately.
func (p *Policy) Do(name string, fn func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := p.BaseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if p.Retryable != nil && !p.Retryable(lastErr) {
			return fmt.Errorf("%s: %w", name, lastErr)
		}

		if attempt < attempts {
			wait := delay
			if p.MaxDelay > 0 && wait > p.MaxDelay {
				wait = p.MaxDelay
			}
			if p.Jitter > 0 {
				wait += time.Duration(rand.Int63n(int64(p.Jitter)))
			}
			slog.Warn("Retrying after failure",
				"operation", name,
				"attempt", attempt,
				"max_attempts", attempts,
				"wait", wait,
				"error", lastErr)
			sleep(wait)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}
