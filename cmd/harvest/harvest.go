// Package harvest downloads candidate photos per attraction from one of
// several image sources into per-attraction directories.
package harvest

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"formosa/internal/apierr"
	"formosa/internal/attraction"
	"formosa/internal/batch"
	"formosa/internal/config"
	"formosa/internal/csvutil"
	"formosa/internal/fileutil"
	"formosa/internal/ratelimit"
	"formosa/internal/retry"
	"formosa/internal/useragent"
)

// Source finds candidate image URLs for an attraction name.
type Source interface {
	// Name identifies the source in logs and directory layouts.
	Name() string
	// Search returns up to limit candidate image URLs, best first.
	Search(attractionName string, limit int) ([]string, error)
}

// Options configures a harvest run.
type Options struct {
	// Names are the attractions to harvest, in input order.
	Names []string
	// OutputDir is the root of the per-attraction image tree.
	OutputDir string
	// Max is the per-attraction image cap for this source.
	Max int
	// MinBytes rejects downloads smaller than this.
	MinBytes int64
	// Source supplies candidate URLs.
	Source Source
	// Pacer is overridable for tests.
	Pacer *ratelimit.Pacer
}

// NamesFromCSV reads attraction names from the given table column,
// preserving input order.
func NamesFromCSV(path, column string) ([]string, error) {
	table, err := csvutil.ReadTable(path)
	if err != nil {
		return nil, err
	}
	if !table.HasColumn(column) {
		return nil, fmt.Errorf("input CSV has no %q column", column)
	}

	var names []string
	for _, row := range table.Rows {
		if name := table.Get(row, column); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// NamesFromAttractions reads attraction names from a directory of fetched
// metadata JSON files. Files without an AttractionName are logged and
// skipped.
func NamesFromAttractions(dir string) ([]string, error) {
	records, failed, err := attraction.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, path := range failed {
		slog.Warn("Skipping unreadable attraction file", "path", path)
	}

	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.Name)
	}
	return names, nil
}

// Run harvests images for every attraction not already satisfied on disk.
func Run(opts Options) error {
	if opts.Max < 1 {
		return fmt.Errorf("per-attraction image cap must be positive, got %d", opts.Max)
	}
	if err := fileutil.EnsureDir(opts.OutputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
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

	stats, err := batch.Run(opts.Names,
		func(name string) string { return name },
		func(name string) bool {
			dir := filepath.Join(opts.OutputDir, fileutil.SanitizeFilename(name))
			existing := fileutil.CountImages(dir)
			if existing >= opts.Max {
				slog.Info("Attraction already satisfied", "name", name, "images", existing)
				return true
			}
			return false
		},
		func(name string) error {
			return harvestOne(name, opts, policy)
		},
		batch.Options{Pacer: pacer},
	)
	if err != nil {
		return err
	}

	slog.Info("Harvest completed",
		"source", opts.Source.Name(),
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
	return nil
}

// harvestOne tops up one attraction's directory to the configured cap.
func harvestOne(name string, opts Options, policy *retry.Policy) error {
	folder := fileutil.SanitizeFilename(name)
	dir := filepath.Join(opts.OutputDir, folder)
	existing := fileutil.CountImages(dir)

	var urls []string
	err := policy.Do("image search for "+name, func() error {
		var searchErr error
		urls, searchErr = opts.Source.Search(name, opts.Max)
		return searchErr
	})
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no images found for %s", name)
	}

	needed := opts.Max - existing
	downloaded := 0
	seq := existing
	for _, url := range urls {
		if downloaded >= needed {
			break
		}

		// New images continue the sequence after what is already there.
		// Sparse numbering from earlier partial runs just advances the
		// sequence; the candidate URL still gets a slot.
		path := ""
		for path == "" || fileutil.FileExists(path) {
			seq++
			path = filepath.Join(dir, fmt.Sprintf("%s_%03d.jpg", folder, seq))
		}

		err := fileutil.DownloadImage(fileutil.DownloadOptions{
			URL:       url,
			Path:      path,
			UserAgent: useragent.Random(),
			MinBytes:  opts.MinBytes,
		})
		if err != nil {
			slog.Warn("Image download failed", "name", name, "url", url, "error", err)
			seq--
			continue
		}

		downloaded++
		slog.Info("Downloaded image", "name", name, "downloaded", downloaded, "of", needed)
	}

	slog.Info("Finished attraction", "name", name, "new_images", downloaded)
	return nil
}
