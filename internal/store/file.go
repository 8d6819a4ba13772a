package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend keeps each name in <dir>/<name>.json.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) (*FileBackend, error) {
	b := &FileBackend{dir: dir}
	if err := b.ensureDir(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *FileBackend) Path(name string) string {
	return filepath.Join(b.dir, name+".json")
}

func (b *FileBackend) Read(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(b.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Write replaces the file through a temp file and rename, so readers see
// either the old or the new contents. A new file gets mode 0644; an existing
// file keeps its mode.
func (b *FileBackend) Write(_ context.Context, name string, data []byte) error {
	if err := b.ensureDir(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(b.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	mode := os.FileMode(0o644)
	if info, err := os.Stat(b.Path(name)); err == nil {
		mode = info.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, b.Path(name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func (b *FileBackend) Close() error {
	return nil
}

// ensureDir creates the data directory. An error is ignored when the
// directory exists anyway.
func (b *FileBackend) ensureDir() error {
	err := os.MkdirAll(b.dir, 0o755)
	if err == nil {
		return nil
	}
	if info, statErr := os.Stat(b.dir); statErr == nil && info.IsDir() {
		return nil
	}
	return fmt.Errorf("create data dir: %w", err)
}
