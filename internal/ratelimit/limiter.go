// Package ratelimit provides request pacing for the batch pipelines.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with a name for logging/debugging.
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// New creates a new rate limiter with the given requests per second.
// The burst size equals the rate, allowing short bursts up to the rate limit.
func New(name string, requestsPerSecond int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		name:    name,
	}
}

// Wait blocks until the rate limiter allows a request to proceed.
// Returns an error if the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// Allow reports whether a request can proceed without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Name returns the name of this rate limiter.
func (l *Limiter) Name() string {
	return l.name
}

// Pacer enforces a fixed politeness delay with optional jitter between
// consecutive requests to the same host. Unlike Limiter it never bursts:
// the first call returns immediately, every later call sleeps.
type Pacer struct {
	Delay  time.Duration
	Jitter time.Duration

	// Sleep is overridable for tests; defaults to time.Sleep.
	Sleep func(time.Duration)

	started bool
}

// NewPacer creates a Pacer with the given base delay and jitter range.
func NewPacer(delay, jitter time.Duration) *Pacer {
	return &Pacer{Delay: delay, Jitter: jitter}
}

// Pace sleeps the configured delay plus a random 0..Jitter extra.
// The first call is free so a run does not start with a wait.
func (p *Pacer) Pace() {
	if !p.started {
		p.started = true
		return
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	wait := p.Delay
	if p.Jitter > 0 {
		wait += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	if wait > 0 {
		sleep(wait)
	}
}
