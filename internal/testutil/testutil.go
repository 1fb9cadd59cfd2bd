// Package testutil provides common test helpers for the formosa project.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Env is a sandboxed on-disk test fixture rooted in a temp directory,
// cleaned up automatically when the test completes.
type Env struct {
	t    *testing.T
	root string
}

// NewEnv creates a new sandboxed test environment.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	return &Env{t: t, root: t.TempDir()}
}

// Root returns the root directory of the environment.
func (e *Env) Root() string {
	return e.root
}

// Path returns an absolute path inside the environment.
func (e *Env) Path(elem ...string) string {
	return filepath.Join(append([]string{e.root}, elem...)...)
}

// WriteFile writes content to a file, creating parent directories.
func (e *Env) WriteFile(path string, content []byte) {
	e.t.Helper()

	abs := e.Path(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		e.t.Fatalf("failed to create directory for %q: %v", abs, err)
	}
	if err := os.WriteFile(abs, content, 0644); err != nil {
		e.t.Fatalf("failed to write file %q: %v", abs, err)
	}
}

// WriteString writes a string to a file inside the environment.
func (e *Env) WriteString(path, content string) {
	e.t.Helper()
	e.WriteFile(path, []byte(content))
}

// ReadString reads a file inside the environment as a string.
func (e *Env) ReadString(path string) string {
	e.t.Helper()

	data, err := os.ReadFile(e.Path(path))
	if err != nil {
		e.t.Fatalf("failed to read file %q: %v", path, err)
	}
	return string(data)
}

// MkdirAll creates a directory tree inside the environment.
func (e *Env) MkdirAll(path string) {
	e.t.Helper()
	if err := os.MkdirAll(e.Path(path), 0755); err != nil {
		e.t.Fatalf("failed to create directory %q: %v", path, err)
	}
}

// FileExists reports whether a file exists inside the environment.
func (e *Env) FileExists(path string) bool {
	_, err := os.Stat(e.Path(path))
	return err == nil
}
