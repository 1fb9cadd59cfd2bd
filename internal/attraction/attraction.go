// Package attraction holds the data model shared by every pipeline stage.
// Attractions are keyed by name across all files on disk; no surrogate IDs
// cross stage boundaries.
package attraction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Record is one attraction's metadata as fetched from the open-data portal.
// The portal JSON carries many fields; only the ones later stages read are
// named, the rest stay available in Fields.
type Record struct {
	// ID is the portal's unique identifier, taken from the filename.
	ID string
	// Name is the attraction name, the join key for all downstream lookups.
	Name string
	// Description is the free-text description used in reasoning prompts.
	Description string
	// Fields holds the full decoded JSON object.
	Fields map[string]any
}

// Load reads one per-attraction JSON file. A missing AttractionName field
// is an error for that record; the caller decides whether to continue.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	name, _ := fields["AttractionName"].(string)
	if name == "" {
		return nil, fmt.Errorf("no AttractionName in %s", path)
	}

	description, _ := fields["Description"].(string)

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Record{
		ID:          id,
		Name:        name,
		Description: description,
		Fields:      fields,
	}, nil
}

// LoadDir loads every .json file in dir. Files that fail to parse are
// returned in failed (by path) rather than aborting the load.
func LoadDir(dir string) (records []*Record, failed []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		rec, err := Load(path)
		if err != nil {
			failed = append(failed, path)
			continue
		}
		records = append(records, rec)
	}
	return records, failed, nil
}

// ByName indexes records by attraction name. The first occurrence of a
// duplicate name wins, matching input-order precedence elsewhere.
func ByName(records []*Record) map[string]*Record {
	m := make(map[string]*Record, len(records))
	for _, r := range records {
		if _, exists := m[r.Name]; !exists {
			m[r.Name] = r
		}
	}
	return m
}

// Row is one line of the attraction input table.
type Row struct {
	ID          string
	Name        string
	City        string
	District    string
	Description string
}

// Query builds the ranker's search query: name, locality, then the fixed
// "台灣 景點" suffix that anchors results to Taiwanese attractions.
func (r Row) Query() string {
	parts := []string{r.Name}
	locality := strings.TrimSpace(r.City + " " + r.District)
	if locality != "" {
		parts = append(parts, locality)
	}
	parts = append(parts, "台灣", "景點")
	return strings.Join(parts, " ")
}
