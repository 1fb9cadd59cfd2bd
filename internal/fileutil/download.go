package fileutil

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DownloadOptions holds options for downloading a single image.
type DownloadOptions struct {
	// URL is the source URL of the image.
	URL string
	// Path is the destination file path.
	Path string
	// UserAgent is sent with the request when non-empty.
	UserAgent string
	// MinBytes rejects downloads smaller than this (0 disables the check).
	// Thumbnails and tracking pixels slip into search results; a size floor
	// filters them out.
	MinBytes int64
	// Client is overridable for tests; defaults to a 30s-timeout client.
	Client *http.Client
}

// DownloadImage fetches an image URL to a local file. The response must
// carry an image/* Content-Type; undersized or non-image downloads are
// removed and reported as an error.
func DownloadImage(opts DownloadOptions) error {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequest(http.MethodGet, opts.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", opts.URL, err)
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", opts.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d downloading %s", resp.StatusCode, opts.URL)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("URL does not return image content (%s): %s", contentType, opts.URL)
	}

	if err := EnsureDir(filepath.Dir(opts.Path)); err != nil {
		return err
	}

	f, err := os.Create(opts.Path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", opts.Path, err)
	}

	written, err := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(opts.Path)
		return fmt.Errorf("failed to write %s: %w", opts.Path, err)
	}

	if opts.MinBytes > 0 && written < opts.MinBytes {
		_ = os.Remove(opts.Path)
		return fmt.Errorf("downloaded image too small (%d bytes): %s", written, opts.URL)
	}

	return nil
}
