// Package jsonl appends records to a line-delimited JSON file shared by
// concurrent workers.
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Writer appends one JSON object per line. Append holds a mutex for the
// whole marshal-and-write so lines from different goroutines never
// interleave.
type Writer struct {
	mu sync.Mutex
	f  *os.File
}

// OpenWriter opens (or creates) the output file for appending.
func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

// Append marshals v and writes it as one line.
func (w *Writer) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// Scan reads an existing JSONL file and calls fn for each decoded line.
// A missing file is not an error; it just means nothing has been written
// yet. Blank lines are skipped, malformed lines abort the scan.
func Scan(path string, fn func(line map[string]any) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal(line, &record); err != nil {
			return fmt.Errorf("malformed line in %s: %w", path, err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return scanner.Err()
}
