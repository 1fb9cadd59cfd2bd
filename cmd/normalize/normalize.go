// Package normalize converts harvested images to a uniform JPEG format.
package normalize

import (
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"formosa/internal/fileutil"
)

// Options configures a normalization run.
type Options struct {
	// InputDir is the root of the per-attraction image tree.
	InputDir string
	// Quality is the JPEG encoding quality (1-100).
	Quality int
}

// Stats summarizes a normalization run.
type Stats struct {
	Converted int
	Skipped   int
	Failed    int
}

// Run walks the image tree and re-encodes every non-JPEG image as JPEG,
// flattening any transparency onto a white background. Originals are
// removed once the JPEG is written; unreadable files are logged and left
// in place.
func Run(opts Options) (Stats, error) {
	if opts.Quality < 1 || opts.Quality > 100 {
		return Stats{}, fmt.Errorf("JPEG quality must be in 1-100, got %d", opts.Quality)
	}

	var stats Stats
	err := filepath.WalkDir(opts.InputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !fileutil.IsImageFile(path) {
			return nil
		}
		// The harvester names every download .jpg whatever the server sent,
		// so a .jpg name only counts as done when the bytes really are JPEG.
		if strings.EqualFold(filepath.Ext(path), ".jpg") {
			format, err := sniffFormat(path)
			if err != nil {
				slog.Warn("Leaving image unconverted", "path", path, "error", err)
				stats.Failed++
				return nil
			}
			if format == "jpeg" {
				stats.Skipped++
				return nil
			}
		}

		if err := convertOne(path, opts.Quality); err != nil {
			slog.Warn("Leaving image unconverted", "path", path, "error", err)
			stats.Failed++
			return nil
		}
		stats.Converted++
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to walk %s: %w", opts.InputDir, err)
	}

	slog.Info("Normalization completed",
		"converted", stats.Converted,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
	return stats, nil
}

// sniffFormat decodes just the header to identify the actual encoding.
func sniffFormat(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open: %w", err)
	}
	defer func() { _ = f.Close() }()

	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return "", fmt.Errorf("failed to identify format: %w", err)
	}
	return format, nil
}

// convertOne re-encodes a single image as JPEG next to the original and
// removes the original on success.
func convertOne(path string, quality int) error {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}

	target := strings.TrimSuffix(path, filepath.Ext(path)) + ".jpg"
	if err := imaging.Save(flatten(img), target, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("failed to encode %s: %w", target, err)
	}

	if target != path {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("converted but failed to remove original: %w", err)
		}
	}
	slog.Debug("Converted image", "from", path, "to", target)
	return nil
}

// flatten composites an image with transparency onto a white background
// so JPEG encoding cannot turn transparent regions black.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}

	bounds := img.Bounds()
	bg := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
