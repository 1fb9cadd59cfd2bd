// Package dataset maintains the assembled training dataset: filtering it
// to the ranked attractions, splitting train/val, and renumbering images.
package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"formosa/internal/fileutil"
)

// copyFile copies src to dst, creating parent directories.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	if err := fileutil.EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	_, err = io.Copy(out, in)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return nil
}

// copyImages copies every image directly inside srcDir into dstDir.
func copyImages(srcDir, dstDir string) (int, error) {
	images, err := fileutil.ListImages(srcDir)
	if err != nil {
		return 0, err
	}
	for _, img := range images {
		if err := copyFile(img, filepath.Join(dstDir, filepath.Base(img))); err != nil {
			return 0, err
		}
	}
	return len(images), nil
}

// attractionDirs lists the subdirectories of an image tree root.
func attractionDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", root, err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	return dirs, nil
}
