// Package fetch downloads per-attraction metadata JSON from the open-data
// portal, one file per identifier, skipping identifiers already on disk.
package fetch

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"formosa/internal/apierr"
	"formosa/internal/batch"
	"formosa/internal/config"
	"formosa/internal/csvutil"
	"formosa/internal/fileutil"
	"formosa/internal/ratelimit"
	"formosa/internal/retry"
)

// Options configures a fetch run.
type Options struct {
	// Input is the attraction CSV path.
	Input string
	// OutputDir receives one <id>.json file per attraction.
	OutputDir string
	// BaseURL is the portal endpoint; the identifier is appended to it.
	BaseURL string
	// IDColumn is the CSV header of the identifier column.
	IDColumn string

	// Client is overridable for tests.
	Client *http.Client
	// Pacer is overridable for tests; defaults to the configured delay.
	Pacer *ratelimit.Pacer
}

// Run executes the metadata fetch for every identifier in the input table.
func Run(opts Options) error {
	table, err := csvutil.ReadTable(opts.Input)
	if err != nil {
		return err
	}
	if !table.HasColumn(opts.IDColumn) {
		return fmt.Errorf("input CSV has no %q column", opts.IDColumn)
	}

	var ids []string
	for _, row := range table.Rows {
		if id := table.Get(row, opts.IDColumn); id != "" {
			ids = append(ids, id)
		}
	}
	slog.Info("Loaded attraction identifiers", "count", len(ids), "input", opts.Input)

	if err := fileutil.EnsureDir(opts.OutputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	pacer := opts.Pacer
	if pacer == nil {
		pacer = ratelimit.NewPacer(config.RequestDelay, config.RequestJitter)
	}
	policy := &retry.Policy{
		MaxAttempts: config.RetryMaxAttempts,
		BaseDelay:   config.RetryBaseDelay,
		Retryable:   apierr.Retryable,
	}

	stats, err := batch.Run(ids,
		func(id string) string { return id },
		func(id string) bool {
			return fileutil.FileExists(filepath.Join(opts.OutputDir, id+".json"))
		},
		func(id string) error {
			return policy.Do("fetch "+id, func() error {
				return fetchOne(client, opts.BaseURL, id, opts.OutputDir)
			})
		},
		batch.Options{Pacer: pacer},
	)
	if err != nil {
		return err
	}

	slog.Info("Fetch completed",
		"fetched", stats.Processed-stats.Failed,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
	return nil
}

// fetchOne downloads a single attraction JSON and writes it verbatim.
// The body must be valid JSON; anything else (an error page, a redirect
// stub) is rejected so the attractions directory only ever holds records.
func fetchOne(client *http.Client, baseURL, id, outputDir string) error {
	resp, err := client.Get(baseURL + id)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return apierr.NewRateLimitError(fmt.Sprintf("portal returned status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("portal returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if !json.Valid(body) {
		return fmt.Errorf("response for %s is not valid JSON", id)
	}

	path := filepath.Join(outputDir, id+".json")
	if err := os.WriteFile(path, body, 0644); err != nil {
		return batch.Fatal(fmt.Errorf("failed to write %s: %w", path, err))
	}

	slog.Info("Fetched attraction", "id", id)
	return nil
}
