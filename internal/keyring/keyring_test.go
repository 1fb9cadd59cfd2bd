package keyring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = New([]string{"", ""})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestNextRoundRobin(t *testing.T) {
	r, err := New([]string{"a", "b", "c"})
	require.NoError(t, err)

	got := []string{r.Next(), r.Next(), r.Next(), r.Next()}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)
}

func TestNewDropsEmptyKeys(t *testing.T) {
	r, err := New([]string{"", "a", ""})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "a", r.Next())
}

func TestNextConcurrent(t *testing.T) {
	r, err := New([]string{"a", "b", "c"})
	require.NoError(t, err)

	const iterations = 300
	counts := make(map[string]int)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range iterations / 3 {
				k := r.Next()
				mu.Lock()
				counts[k]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Rotation spreads load evenly across keys.
	assert.Equal(t, iterations/3, counts["a"])
	assert.Equal(t, iterations/3, counts["b"])
	assert.Equal(t, iterations/3, counts["c"])
}
