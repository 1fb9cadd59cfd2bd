package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formosa/internal/apierr"
)

func TestDoSucceedsFirstTry(t *testing.T) {
	p := &Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}

	calls := 0
	err := p.Do("op", func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	p := &Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}

	calls := 0
	err := p.Do("op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := &Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}

	calls := 0
	err := p.Do("op", func() error {
		calls++
		return errors.New("always fails")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	p := &Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   apierr.Retryable,
		Sleep:       func(time.Duration) {},
	}

	calls := 0
	err := p.Do("op", func() error {
		calls++
		return errors.New("missing field")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesRateLimit(t *testing.T) {
	p := &Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Retryable:   apierr.Retryable,
		Sleep:       func(time.Duration) {},
	}

	calls := 0
	err := p.Do("op", func() error {
		calls++
		return apierr.NewRateLimitError("429")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoBackoffDoubles(t *testing.T) {
	var waits []time.Duration
	p := &Policy{
		MaxAttempts: 4,
		BaseDelay:   10 * time.Millisecond,
		Sleep:       func(d time.Duration) { waits = append(waits, d) },
	}

	_ = p.Do("op", func() error { return errors.New("nope") })

	require.Len(t, waits, 3)
	assert.Equal(t, 10*time.Millisecond, waits[0])
	assert.Equal(t, 20*time.Millisecond, waits[1])
	assert.Equal(t, 40*time.Millisecond, waits[2])
}

func TestDoRespectsMaxDelay(t *testing.T) {
	var waits []time.Duration
	p := &Policy{
		MaxAttempts: 4,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    15 * time.Millisecond,
		Sleep:       func(d time.Duration) { waits = append(waits, d) },
	}

	_ = p.Do("op", func() error { return errors.New("nope") })

	for _, w := range waits {
		assert.LessOrEqual(t, w, 15*time.Millisecond)
	}
}
