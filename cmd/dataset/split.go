package dataset

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"formosa/internal/fileutil"
)

// SplitOptions configures a train/val split.
type SplitOptions struct {
	// ImageDir is the root of the per-attraction image tree.
	ImageDir string
	// OutputDir receives the train/ and val/ trees.
	OutputDir string
	// TrainRatio is the fraction of each attraction's images that go to
	// train, e.g. 0.9.
	TrainRatio float64
}

// SplitStats summarizes a split run.
type SplitStats struct {
	Attractions int
	Train       int
	Val         int
}

// Split copies each attraction's images into mirrored train/ and val/
// trees. Images are taken in sorted order so the split is deterministic;
// an attraction with a single image keeps it in train.
func Split(opts SplitOptions) (SplitStats, error) {
	if opts.TrainRatio <= 0 || opts.TrainRatio >= 1 {
		return SplitStats{}, fmt.Errorf("train ratio must be in (0, 1), got %g", opts.TrainRatio)
	}

	dirs, err := attractionDirs(opts.ImageDir)
	if err != nil {
		return SplitStats{}, err
	}

	var stats SplitStats
	for _, dir := range dirs {
		images, err := fileutil.ListImages(dir)
		if err != nil {
			return stats, err
		}
		if len(images) == 0 {
			continue
		}

		cut := int(float64(len(images)) * opts.TrainRatio)
		if cut < 1 {
			cut = 1
		}

		folder := filepath.Base(dir)
		for i, img := range images {
			subset := "train"
			if i >= cut {
				subset = "val"
			}
			dst := filepath.Join(opts.OutputDir, subset, folder, filepath.Base(img))
			if err := copyFile(img, dst); err != nil {
				return stats, err
			}
			if subset == "train" {
				stats.Train++
			} else {
				stats.Val++
			}
		}
		stats.Attractions++
	}

	slog.Info("Dataset split completed",
		"attractions", stats.Attractions, "train", stats.Train, "val", stats.Val)
	return stats, nil
}
