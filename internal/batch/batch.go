// Package batch implements the sequential work loop every single-threaded
// pipeline stage shares: iterate uniquely-keyed items in input order, skip
// items whose output already exists, pace requests, checkpoint progress,
// and keep going when a single item fails.
package batch

import (
	"errors"
	"log/slog"

	"formosa/internal/ratelimit"
)

// fatalError marks an op error that must abort the whole run instead of
// being recorded and skipped, e.g. a filesystem failure that would make
// every later write silently incomplete.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal wraps err so Run aborts when the op returns it.
func Fatal(err error) error {
	return &fatalError{err: err}
}

// Options configures a batch run. All fields are optional.
type Options struct {
	// Pacer inserts a politeness delay before each processed item.
	Pacer *ratelimit.Pacer
	// CheckpointEvery persists progress after this many processed items.
	// Zero disables checkpointing.
	CheckpointEvery int
	// Checkpoint is called per CheckpointEvery processed items and once
	// after the final item. A checkpoint error aborts the run: if progress
	// cannot be persisted, continuing would silently lose work.
	Checkpoint func() error
}

// Stats summarizes a completed run.
type Stats struct {
	// Processed items had their operation executed (successfully or not).
	Processed int
	// Skipped items were satisfied on disk already, or duplicated a key.
	Skipped int
	// Failed items had their operation return an error.
	Failed int
}

// Run executes op once per uniquely-keyed item. Duplicate keys collapse to
// the first occurrence. skip(item) == true counts the item as already done.
// op errors are logged and recorded, never fatal; only a failed checkpoint
// (a filesystem problem) aborts the run.
func Run[T any](items []T, key func(T) string, skip func(T) bool, op func(T) error, opts Options) (Stats, error) {
	var stats Stats
	seen := make(map[string]bool, len(items))
	sinceCheckpoint := 0

	for _, item := range items {
		k := key(item)
		if seen[k] {
			stats.Skipped++
			continue
		}
		seen[k] = true

		if skip != nil && skip(item) {
			stats.Skipped++
			continue
		}

		if opts.Pacer != nil {
			opts.Pacer.Pace()
		}

		stats.Processed++
		if err := op(item); err != nil {
			var fatal *fatalError
			if errors.As(err, &fatal) {
				return stats, fatal.err
			}
			stats.Failed++
			slog.Error("Item failed", "key", k, "error", err)
		}

		sinceCheckpoint++
		if opts.CheckpointEvery > 0 && sinceCheckpoint >= opts.CheckpointEvery {
			if err := opts.Checkpoint(); err != nil {
				return stats, err
			}
			slog.Info("Checkpoint saved", "processed", stats.Processed)
			sinceCheckpoint = 0
		}
	}

	if opts.Checkpoint != nil && sinceCheckpoint > 0 {
		if err := opts.Checkpoint(); err != nil {
			return stats, err
		}
	}

	return stats, nil
}
