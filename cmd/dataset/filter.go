package dataset

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"formosa/internal/attraction"
	"formosa/internal/csvutil"
	"formosa/internal/fileutil"
)

// FilterOptions configures a dataset filter run.
type FilterOptions struct {
	// RankedCSV lists the attractions to keep, in rank order.
	RankedCSV string
	// NameColumn locates the attraction name in the ranked CSV.
	NameColumn string
	// AttractionsDir holds the fetched metadata JSON files.
	AttractionsDir string
	// ImageDir is the root of the per-attraction image tree.
	ImageDir string
	// OutputDir receives the filtered json/ and images/ trees.
	OutputDir string
}

// FilterStats summarizes a filter run.
type FilterStats struct {
	Copied       int
	MissingJSON  int
	MissingImage int
}

// Filter copies each ranked attraction's metadata and images into a fresh
// dataset root. Attractions missing either side are logged and counted but
// do not abort the run.
func Filter(opts FilterOptions) (FilterStats, error) {
	table, err := csvutil.ReadTable(opts.RankedCSV)
	if err != nil {
		return FilterStats{}, err
	}
	if !table.HasColumn(opts.NameColumn) {
		return FilterStats{}, fmt.Errorf("ranked CSV has no %q column", opts.NameColumn)
	}

	records, failed, err := attraction.LoadDir(opts.AttractionsDir)
	if err != nil {
		return FilterStats{}, err
	}
	for _, path := range failed {
		slog.Warn("Skipping unreadable attraction file", "path", path)
	}
	byName := attraction.ByName(records)

	var stats FilterStats
	for _, row := range table.Rows {
		name := table.Get(row, opts.NameColumn)
		if name == "" {
			continue
		}
		folder := fileutil.SanitizeFilename(name)

		record, ok := byName[name]
		if !ok {
			slog.Warn("No metadata for ranked attraction", "name", name)
			stats.MissingJSON++
		} else {
			data, err := json.MarshalIndent(record.Fields, "", "  ")
			if err != nil {
				return stats, fmt.Errorf("failed to marshal metadata for %s: %w", name, err)
			}
			target := filepath.Join(opts.OutputDir, "json", folder+".json")
			if err := fileutil.EnsureDir(filepath.Dir(target)); err != nil {
				return stats, err
			}
			if err := os.WriteFile(target, data, 0644); err != nil {
				return stats, fmt.Errorf("failed to write %s: %w", target, err)
			}
		}

		srcImages := filepath.Join(opts.ImageDir, folder)
		copied, err := copyImages(srcImages, filepath.Join(opts.OutputDir, "images", folder))
		if err != nil || copied == 0 {
			slog.Warn("No images for ranked attraction", "name", name, "dir", srcImages)
			stats.MissingImage++
			continue
		}

		stats.Copied++
	}

	slog.Info("Dataset filter completed",
		"copied", stats.Copied,
		"missing_json", stats.MissingJSON,
		"missing_images", stats.MissingImage)
	return stats, nil
}
