// Package local writes captured pages to a directory on disk.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local artifact store.
type Config struct {
	// Dir is the capture directory; created when missing.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// BlobStore writes artifacts below Dir.
type BlobStore struct {
	dir string
}

// New creates the capture directory and checks that it is writable.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("capture directory is required")
	}

	info, err := os.Stat(cfg.Dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create capture directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat capture directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("capture path %s is not a directory", cfg.Dir)
	}

	probe := filepath.Join(cfg.Dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("capture directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("remove write probe: %w", err)
	}
	return &BlobStore{dir: cfg.Dir}, nil
}

// Dir returns the capture root.
func (s *BlobStore) Dir() string {
	return s.dir
}

// PutObject writes data to Dir/path and returns a file:// URI. Existing files
// are replaced.
func (s *BlobStore) PutObject(ctx context.Context, path string, _ string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}

	fullPath := filepath.Join(s.dir, path)
	root := filepath.Clean(s.dir)
	if !strings.HasPrefix(filepath.Clean(fullPath), root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes capture directory", path)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304 -- confined to capture dir above.
	if err != nil {
		return "", fmt.Errorf("open %s: %w", fullPath, err)
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s: %w", fullPath, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", fullPath, err)
	}
	return "file://" + fullPath, nil
}
