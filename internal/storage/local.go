package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalExporter writes results into a directory.
type LocalExporter struct {
	dir string
}

// NewLocalExporter creates a LocalExporter rooted at dir.
func NewLocalExporter(dir string) *LocalExporter {
	return &LocalExporter{dir: dir}
}

// Export writes content to {dir}/{name}, replacing any existing file.
func (e *LocalExporter) Export(_ context.Context, name, content string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid export name %q", name)
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}

	path := filepath.Join(e.dir, name)
	tmp, err := os.CreateTemp(e.dir, ".export-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("writing export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("closing export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("renaming export: %w", err)
	}
	return path, nil
}
