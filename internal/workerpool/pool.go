// Package workerpool runs a fixed set of workers over one shared queue of
// immutable task descriptors. The run completes when the queue is drained
// and every worker has returned; there is no counter-based bookkeeping.
package workerpool

import "sync"

// Pool executes tasks of type T on a fixed number of workers.
type Pool[T any] struct {
	workers int
	tasks   chan T
	wg      sync.WaitGroup
}

// New creates a pool with the given worker count and queue capacity.
// Worker counts below one are clamped to one.
func New[T any](workers, queueSize int) *Pool[T] {
	if workers < 1 {
		workers = 1
	}
	return &Pool[T]{
		workers: workers,
		tasks:   make(chan T, queueSize),
	}
}

// Start launches the workers, each running fn for every task it pulls.
func (p *Pool[T]) Start(fn func(T)) {
	for range p.workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				fn(task)
			}
		}()
	}
}

// Submit enqueues one task. Blocks when the queue is full.
func (p *Pool[T]) Submit(task T) {
	p.tasks <- task
}

// Wait closes the queue and blocks until all workers have drained it.
// Call after the last Submit.
func (p *Pool[T]) Wait() {
	close(p.tasks)
	p.wg.Wait()
}
