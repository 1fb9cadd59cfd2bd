package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolProcessesAllTasks(t *testing.T) {
	pool := New[int](4, 16)

	var sum atomic.Int64
	pool.Start(func(n int) {
		sum.Add(int64(n))
	})

	total := 0
	for i := 1; i <= 100; i++ {
		pool.Submit(i)
		total += i
	}
	pool.Wait()

	assert.Equal(t, int64(total), sum.Load())
}

func TestPoolSingleWorkerPreservesOrder(t *testing.T) {
	pool := New[int](1, 1)

	var mu sync.Mutex
	var got []int
	pool.Start(func(n int) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})

	for i := range 10 {
		pool.Submit(i)
	}
	pool.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestPoolClampsWorkerCount(t *testing.T) {
	pool := New[int](0, 1)

	done := make(chan struct{})
	pool.Start(func(int) {})
	go func() {
		pool.Submit(1)
		pool.Wait()
		close(done)
	}()
	<-done
}

func TestPoolUsesAllWorkers(t *testing.T) {
	const workers = 4
	pool := New[int](workers, workers)

	var active, peak atomic.Int64
	gate := make(chan struct{})
	pool.Start(func(int) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-gate
		active.Add(-1)
	})

	for range workers {
		pool.Submit(1)
	}
	// Let the workers pick everything up, then release them.
	for peak.Load() < workers {
	}
	close(gate)
	pool.Wait()

	assert.Equal(t, int64(workers), peak.Load())
}
