// Package reason generates visual-reasoning captions for harvested images
// with a multimodal model, appending results to a resumable JSONL file.
package reason

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"formosa/internal/apierr"
	"formosa/internal/config"
	"formosa/internal/csvutil"
	"formosa/internal/fileutil"
	"formosa/internal/jsonl"
	"formosa/internal/ratelimit"
	"formosa/internal/retry"
	"formosa/internal/workerpool"
)

// namePlaceholder and descriptionPlaceholder are substituted into the
// prompt template per attraction.
const (
	namePlaceholder        = "<|attraction_name|>"
	descriptionPlaceholder = "<|attraction_description|>"
)

// Generator produces a caption for one image given its prompt.
type Generator interface {
	Generate(prompt, imagePath string) (string, error)
}

// Record is one line of the output JSONL file.
type Record struct {
	AttractionName        string `json:"attraction_name"`
	AttractionDescription string `json:"attraction_description"`
	ImagePath             string `json:"image_path"`
	ImageFilename         string `json:"image_filename"`
	Reasoning             string `json:"reasoning"`
}

// Options configures a caption generation run.
type Options struct {
	// Input is the ranked attractions CSV.
	Input string
	// ImageDir is the root of the per-attraction image tree.
	ImageDir string
	// Output is the JSONL file results are appended to.
	Output string
	// Template is the prompt template text with the attraction placeholders.
	Template string
	// NameColumn and DescriptionColumn locate the attraction fields in the
	// input CSV. DescriptionColumn may be absent from the file.
	NameColumn        string
	DescriptionColumn string
	// MaxPerAttraction caps images per attraction; 0 means all.
	MaxPerAttraction int
	// Workers is the number of concurrent generation workers.
	Workers int
	// Limiter caps the request rate across all workers. Nil disables it.
	Limiter *ratelimit.Limiter
	// Generator produces the captions.
	Generator Generator
}

// task is one image to caption.
type task struct {
	name        string
	description string
	prompt      string
	imagePath   string
}

// Stats summarizes a generation run.
type Stats struct {
	Generated int64
	Skipped   int
	Failed    int64
}

// Run captions every not-yet-done image under the configured image tree.
// Finished (attraction, filename) pairs in the output file are skipped, so
// an interrupted run picks up where it left off.
func Run(opts Options) (Stats, error) {
	if !strings.Contains(opts.Template, namePlaceholder) {
		return Stats{}, fmt.Errorf("prompt template is missing the %s placeholder", namePlaceholder)
	}

	table, err := csvutil.ReadTable(opts.Input)
	if err != nil {
		return Stats{}, err
	}
	if !table.HasColumn(opts.NameColumn) {
		return Stats{}, fmt.Errorf("input CSV has no %q column", opts.NameColumn)
	}

	done, err := loadDone(opts.Output)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	var tasks []task
	for _, row := range table.Rows {
		name := table.Get(row, opts.NameColumn)
		if name == "" {
			continue
		}
		description := table.Get(row, opts.DescriptionColumn)

		dir := filepath.Join(opts.ImageDir, fileutil.SanitizeFilename(name))
		images, err := fileutil.ListImages(dir)
		if err != nil {
			slog.Warn("No image directory for attraction", "name", name, "dir", dir)
			continue
		}
		if opts.MaxPerAttraction > 0 && len(images) > opts.MaxPerAttraction {
			images = images[:opts.MaxPerAttraction]
		}

		prompt := renderPrompt(opts.Template, name, description)
		for _, img := range images {
			if done[doneKey(name, filepath.Base(img))] {
				stats.Skipped++
				continue
			}
			tasks = append(tasks, task{name: name, description: description, prompt: prompt, imagePath: img})
		}
	}

	slog.Info("Caption generation starting",
		"tasks", len(tasks), "already_done", stats.Skipped, "workers", opts.Workers)
	if len(tasks) == 0 {
		return stats, nil
	}

	writer, err := jsonl.OpenWriter(opts.Output)
	if err != nil {
		return stats, err
	}
	defer func() { _ = writer.Close() }()

	policy := &retry.Policy{
		MaxAttempts: config.RetryMaxAttempts,
		BaseDelay:   config.RetryBaseDelay,
		Jitter:      config.RequestJitter,
		Retryable:   apierr.Retryable,
	}

	pool := workerpool.New[task](opts.Workers, opts.Workers*2)
	pool.Start(func(tk task) {
		var reasoning string
		err := policy.Do("caption for "+filepath.Base(tk.imagePath), func() error {
			if opts.Limiter != nil {
				if err := opts.Limiter.Wait(context.Background()); err != nil {
					return err
				}
			}
			var genErr error
			reasoning, genErr = opts.Generator.Generate(tk.prompt, tk.imagePath)
			return genErr
		})
		if err != nil {
			slog.Error("Caption generation failed",
				"name", tk.name, "image", tk.imagePath, "error", err)
			atomic.AddInt64(&stats.Failed, 1)
			return
		}

		record := Record{
			AttractionName:        tk.name,
			AttractionDescription: tk.description,
			ImagePath:             tk.imagePath,
			ImageFilename:         filepath.Base(tk.imagePath),
			Reasoning:             reasoning,
		}
		if err := writer.Append(record); err != nil {
			slog.Error("Failed to record caption", "image", tk.imagePath, "error", err)
			atomic.AddInt64(&stats.Failed, 1)
			return
		}
		atomic.AddInt64(&stats.Generated, 1)
	})

	for _, tk := range tasks {
		pool.Submit(tk)
	}
	pool.Wait()

	slog.Info("Caption generation completed",
		"generated", stats.Generated, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats, nil
}

func renderPrompt(template, name, description string) string {
	prompt := strings.ReplaceAll(template, namePlaceholder, name)
	return strings.ReplaceAll(prompt, descriptionPlaceholder, description)
}

func doneKey(name, filename string) string {
	return name + "\x00" + filename
}

// loadDone scans an existing output file for finished pairs.
func loadDone(path string) (map[string]bool, error) {
	done := make(map[string]bool)
	err := jsonl.Scan(path, func(line map[string]any) error {
		name, _ := line["attraction_name"].(string)
		filename, _ := line["image_filename"].(string)
		if name != "" && filename != "" {
			done[doneKey(name, filename)] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan existing output: %w", err)
	}
	return done, nil
}
