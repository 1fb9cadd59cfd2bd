package fileutil

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	invalidChars = regexp.MustCompile(`[\\/*?:"<>|]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// SanitizeFilename converts a name into a safe file or directory name:
// invalid characters and runs of whitespace become underscores, and the
// result is capped at 100 runes. Attraction names are the join key across
// every stage, so this mapping must stay stable.
func SanitizeFilename(name string) string {
	sanitized := invalidChars.ReplaceAllString(strings.TrimSpace(name), "_")
	sanitized = whitespace.ReplaceAllString(sanitized, "_")

	runes := []rune(sanitized)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	return string(runes)
}

// FileExists checks if a regular file exists at the given path.
func FileExists(filePath string) bool {
	info, err := os.Stat(filePath)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// EnsureDir creates the directory and any missing parents.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// imageExtensions are the file extensions treated as images across the
// harvest, normalize and dataset stages.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImageFile reports whether the path has a known image extension.
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// CountImages returns the number of image files directly inside dir.
// A missing directory counts as zero.
func CountImages(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	count := 0
	for _, e := range entries {
		if !e.IsDir() && IsImageFile(e.Name()) {
			count++
		}
	}
	return count
}

// ListImages returns the image files directly inside dir, sorted by name
// so sequence numbering stays deterministic.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var images []string
	for _, e := range entries {
		if !e.IsDir() && IsImageFile(e.Name()) {
			images = append(images, filepath.Join(dir, e.Name()))
		}
	}
	return images, nil
}
