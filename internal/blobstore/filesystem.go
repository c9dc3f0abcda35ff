package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem backs Store with a local directory tree. Used for local/dev
// runs and alongside the mock admin host so a full run can execute without
// cloud credentials.
type Filesystem struct {
	root string
}

// NewFilesystem creates a Filesystem-backed Store rooted at dir.
func NewFilesystem(dir string) *Filesystem {
	return &Filesystem{root: dir}
}

func (f *Filesystem) resolve(path string) string {
	return filepath.Join(f.root, filepath.FromSlash(strings.TrimPrefix(path, "/")))
}

func (f *Filesystem) Read(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(f.resolve(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &ErrNotFound{Path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob %q: %w", path, err)
	}
	return data, nil
}

func (f *Filesystem) Write(_ context.Context, path string, data []byte) error {
	full := f.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating blob directory for %q: %w", path, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("writing blob %q: %w", path, err)
	}
	return nil
}

func (f *Filesystem) Delete(_ context.Context, path string) error {
	if err := os.Remove(f.resolve(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting blob %q: %w", path, err)
	}
	return nil
}

func (f *Filesystem) List(_ context.Context, prefix string) ([]string, error) {
	base := f.resolve(prefix)
	var paths []string
	err := filepath.Walk(f.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasPrefix(p, base) {
			rel, relErr := filepath.Rel(f.root, p)
			if relErr != nil {
				return relErr
			}
			paths = append(paths, "/"+filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("listing blobs under %q: %w", prefix, err)
	}
	return paths, nil
}
