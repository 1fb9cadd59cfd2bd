// Package rank queries a search engine for an estimated result count per
// attraction and emits the top-K names by count.
package rank

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"formosa/internal/apierr"
	"formosa/internal/attraction"
	"formosa/internal/batch"
	"formosa/internal/config"
	"formosa/internal/csvutil"
	"formosa/internal/ratelimit"
	"formosa/internal/retry"
)

// Counter returns an estimated result count for a search query.
type Counter interface {
	Count(query string) (int, error)
}

// Columns names the input table headers the ranker reads.
type Columns struct {
	Name     string
	City     string
	District string
}

// Options configures a rank run.
type Options struct {
	// Input is the attraction CSV path.
	Input string
	// Output is the two-column result table path.
	Output string
	// CheckpointFile persists partial counts every BatchSize items and is
	// reloaded on a later run to resume.
	CheckpointFile string
	// TopK bounds the output table length.
	TopK int
	// BatchSize is the checkpoint cadence.
	BatchSize int
	// Columns maps the input headers.
	Columns Columns

	// Counter performs the lookups (API or scrape mode).
	Counter Counter
	// Pacer is overridable for tests.
	Pacer *ratelimit.Pacer
}

// entry is one (name, count) result. Failed lookups carry count 0, which
// records "tried and failed" in the checkpoint so a resumed run does not
// repeat them.
type entry struct {
	name  string
	count int
}

// Run executes the ranking pass.
func Run(opts Options) error {
	table, err := csvutil.ReadTable(opts.Input)
	if err != nil {
		return err
	}
	if !table.HasColumn(opts.Columns.Name) {
		return fmt.Errorf("input CSV has no %q column", opts.Columns.Name)
	}

	rows := csvutil.ParseRows(table, func(get func(string) string) (attraction.Row, error) {
		name := get(opts.Columns.Name)
		if name == "" {
			return attraction.Row{}, fmt.Errorf("empty attraction name")
		}
		return attraction.Row{
			Name:     name,
			City:     get(opts.Columns.City),
			District: get(opts.Columns.District),
		}, nil
	})
	slog.Info("Loaded attractions", "count", len(rows), "input", opts.Input)

	counts := loadCheckpoint(opts.CheckpointFile)
	if len(counts) > 0 {
		slog.Info("Resuming from checkpoint", "already_counted", len(counts), "file", opts.CheckpointFile)
	}

	// Input order is preserved so ties in the final sort break stably.
	var order []string
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if !seen[r.Name] {
			seen[r.Name] = true
			order = append(order, r.Name)
		}
	}

	pacer := opts.Pacer
	if pacer == nil {
		pacer = ratelimit.NewPacer(config.RequestDelay, config.RequestJitter)
	}
	policy := &retry.Policy{
		MaxAttempts: config.RetryMaxAttempts,
		BaseDelay:   config.RetryBaseDelay,
		Jitter:      config.RequestJitter,
		Retryable:   apierr.Retryable,
	}

	checkpoint := func() error {
		if opts.CheckpointFile == "" {
			return nil
		}
		return writeCounts(opts.CheckpointFile, order, counts)
	}

	_, err = batch.Run(rows,
		func(r attraction.Row) string { return r.Name },
		func(r attraction.Row) bool {
			_, done := counts[r.Name]
			return done
		},
		func(r attraction.Row) error {
			query := r.Query()
			var count int
			err := policy.Do("search count for "+r.Name, func() error {
				var countErr error
				count, countErr = opts.Counter.Count(query)
				return countErr
			})
			if err != nil {
				// Sentinel: tried and failed, distinct from not yet tried.
				counts[r.Name] = 0
				return err
			}
			counts[r.Name] = count
			slog.Info("Counted", "name", r.Name, "count", count)
			return nil
		},
		batch.Options{
			Pacer:           pacer,
			CheckpointEvery: opts.BatchSize,
			Checkpoint:      checkpoint,
		},
	)
	if err != nil {
		return err
	}

	top := topK(order, counts, opts.TopK)
	if err := writeEntries(opts.Output, top); err != nil {
		return err
	}

	slog.Info("Ranking completed", "total", len(order), "kept", len(top), "output", opts.Output)
	return nil
}

// topK drops zero-count names, sorts descending by count (stable, so ties
// keep input order) and truncates to k.
func topK(order []string, counts map[string]int, k int) []entry {
	var entries []entry
	for _, name := range order {
		if c := counts[name]; c > 0 {
			entries = append(entries, entry{name: name, count: c})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].count > entries[j].count
	})

	if k > 0 && len(entries) > k {
		entries = entries[:k]
	}
	return entries
}

func writeEntries(path string, entries []entry) error {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.name, strconv.Itoa(e.count)})
	}
	return csvutil.WriteTable(path, []string{"資料名稱", "search_count"}, rows)
}

// writeCounts persists every counted name so far, in input order.
func writeCounts(path string, order []string, counts map[string]int) error {
	var rows [][]string
	for _, name := range order {
		if c, ok := counts[name]; ok {
			rows = append(rows, []string{name, strconv.Itoa(c)})
		}
	}
	return csvutil.WriteTable(path, []string{"資料名稱", "search_count"}, rows)
}

// loadCheckpoint reads a previous run's partial counts. A missing or
// unreadable checkpoint just means a fresh start.
func loadCheckpoint(path string) map[string]int {
	counts := make(map[string]int)
	if path == "" {
		return counts
	}

	table, err := csvutil.ReadTable(path)
	if err != nil {
		return counts
	}
	for _, row := range table.Rows {
		name := table.Get(row, "資料名稱")
		count, err := strconv.Atoi(table.Get(row, "search_count"))
		if name == "" || err != nil {
			continue
		}
		counts[name] = count
	}
	return counts
}
