package dataset

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"formosa/internal/fileutil"
)

// RenameOptions configures a renumbering run.
type RenameOptions struct {
	// ImageDir is the root of the per-attraction image tree.
	ImageDir string
}

// RenameStats summarizes a renumbering run.
type RenameStats struct {
	Attractions int
	Renamed     int
}

// Rename renumbers every attraction directory's images into a dense
// sequence named after the directory. Folder names that drifted between
// spaces and underscores are unified through the same sanitizer the
// harvester uses, so downstream name-based lookups keep working.
func Rename(opts RenameOptions) (RenameStats, error) {
	dirs, err := attractionDirs(opts.ImageDir)
	if err != nil {
		return RenameStats{}, err
	}

	var stats RenameStats
	for _, dir := range dirs {
		dir, err := unifyDirName(dir)
		if err != nil {
			return stats, err
		}
		renamed, err := renumberDir(dir)
		if err != nil {
			return stats, err
		}
		stats.Attractions++
		stats.Renamed += renamed
	}

	slog.Info("Dataset rename completed",
		"attractions", stats.Attractions, "renamed", stats.Renamed)
	return stats, nil
}

// unifyDirName renames a folder whose name drifted from the sanitized
// form, typically spaces where the harvester writes underscores.
func unifyDirName(dir string) (string, error) {
	sanitized := fileutil.SanitizeFilename(filepath.Base(dir))
	if sanitized == filepath.Base(dir) {
		return dir, nil
	}

	target := filepath.Join(filepath.Dir(dir), sanitized)
	if _, err := os.Stat(target); err == nil {
		slog.Warn("Not unifying folder name, target exists", "dir", dir, "target", target)
		return dir, nil
	}
	if err := os.Rename(dir, target); err != nil {
		return "", fmt.Errorf("failed to rename %s: %w", dir, err)
	}
	return target, nil
}

// renumberDir renames the directory's images to <base>_%03d with their
// original extensions, in sorted order. A temporary pass avoids clobbering
// when an image's current name collides with another's target name.
func renumberDir(dir string) (int, error) {
	base := fileutil.SanitizeFilename(filepath.Base(dir))

	images, err := fileutil.ListImages(dir)
	if err != nil {
		return 0, err
	}

	targets := make([]string, len(images))
	for i, img := range images {
		ext := strings.ToLower(filepath.Ext(img))
		targets[i] = filepath.Join(dir, fmt.Sprintf("%s_%03d%s", base, i+1, ext))
	}

	renamed := 0
	temps := make([]string, len(images))
	for i, img := range images {
		if img == targets[i] {
			temps[i] = ""
			continue
		}
		temps[i] = filepath.Join(dir, fmt.Sprintf(".renumber_%03d.tmp", i))
		if err := os.Rename(img, temps[i]); err != nil {
			return renamed, fmt.Errorf("failed to stage %s: %w", img, err)
		}
	}
	for i, tmp := range temps {
		if tmp == "" {
			continue
		}
		if err := os.Rename(tmp, targets[i]); err != nil {
			return renamed, fmt.Errorf("failed to rename %s: %w", tmp, err)
		}
		renamed++
	}
	return renamed, nil
}
