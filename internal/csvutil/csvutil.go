// Package csvutil reads and writes the attraction tables. The source tables
// come from the government open-data portal with Chinese column headers and
// an optional UTF-8 BOM, so access is by header name rather than position.
package csvutil

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Table is a CSV file loaded into memory with header-name access.
type Table struct {
	Headers []string
	Rows    [][]string

	index map[string]int
}

// ReadTable loads a CSV file. A leading UTF-8 BOM on the first header is
// stripped. Records with the wrong field count are logged and skipped.
func ReadTable(filename string) (*Table, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\uFEFF")
	}

	t := &Table{
		Headers: headers,
		index:   make(map[string]int, len(headers)),
	}
	for i, h := range headers {
		t.index[h] = i
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("Error reading record", "error", err)
			continue
		}
		if len(record) != len(headers) {
			slog.Warn("Skipping record with unexpected field count",
				"got", len(record), "want", len(headers))
			continue
		}
		t.Rows = append(t.Rows, record)
	}

	return t, nil
}

// HasColumn reports whether the table has a column with the given header.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Get returns the value of the named column in the given row, or "" when
// the column does not exist.
func (t *Table) Get(row []string, name string) string {
	i, ok := t.index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// ParseRows converts every row of a table with the given parser. Rows the
// parser rejects are logged and skipped.
func ParseRows[T any](t *Table, parser func(get func(col string) string) (T, error)) []T {
	items := make([]T, 0, len(t.Rows))
	for _, row := range t.Rows {
		get := func(col string) string { return t.Get(row, col) }
		item, err := parser(get)
		if err != nil {
			slog.Warn("Skipping invalid record", "error", err)
			continue
		}
		items = append(items, item)
	}
	return items
}

// WriteTable writes a CSV file with a UTF-8 BOM so spreadsheet tools open
// the Chinese headers correctly (matching the source tables).
func WriteTable(filename string, headers []string, rows [][]string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}

	if _, err := f.WriteString("\uFEFF"); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	return f.Close()
}
