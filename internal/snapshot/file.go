package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

// tableMode matches what os.Create would give the table under a default umask.
const tableMode os.FileMode = 0o644 // #nosec G302 -- the table is meant to be shared.

// FileWriter rewrites the chain table at a local path. The table is written
// to a temporary file in the same directory and renamed into place, so a
// reader never sees a partial table.
type FileWriter struct {
	path string
}

// NewFileWriter returns a FileWriter for path, creating its directory.
func NewFileWriter(path string) (*FileWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}
	return &FileWriter{path: path}, nil
}

// Path returns the table location.
func (w *FileWriter) Path() string {
	return w.path
}

// Persist implements redirect.Persister.
func (w *FileWriter) Persist(ctx context.Context, entries []redirect.Entry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(w.path), "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if err := Encode(tmp, entries); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Chmod(tableMode); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", w.path, err)
	}
	return nil
}

// LoadFile reads a previously written table. A missing file is an empty
// table.
func LoadFile(path string) ([]redirect.Entry, error) {
	f, err := os.Open(path) // #nosec G304 -- operator supplied output path.
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	entries, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return entries, nil
}
