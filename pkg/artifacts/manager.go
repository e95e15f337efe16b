// Package artifacts collects files produced by jobs into a host-side store.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opnlabs/gantry/pkg/store"
)

// Exporter is anything that can copy paths out of itself, typically a job
// environment.
type Exporter interface {
	ID() string
	Export(ctx context.Context, path, dst string) error
}

type Manager interface {
	// Collect copies the given paths out of the exporter into the
	// artifact store and returns a key per artifact. The key resolves
	// back to the path the artifact was collected from.
	Collect(ctx context.Context, from Exporter, paths []string) ([]string, error)

	// Resolve returns the original in-environment path for a key.
	Resolve(key string) (string, error)
}

// FileManager keeps artifacts as plain files under a directory, one
// subdirectory per environment, with an in-memory index of origins.
type FileManager struct {
	dir   string
	index store.Store
}

// NewFileManager clears any previous artifacts and creates a fresh
// directory, matching the one-invocation lifecycle of a pipeline run.
func NewFileManager(dir string) (*FileManager, error) {
	if _, err := os.Stat(dir); err == nil {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("could not remove %s directory: %w", dir, err)
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create %s directory: %w", dir, err)
	}

	return &FileManager{
		dir:   dir,
		index: store.NewMemStore(),
	}, nil
}

func (f *FileManager) Collect(ctx context.Context, from Exporter, paths []string) ([]string, error) {
	dst := filepath.Join(f.dir, from.ID())
	if err := os.MkdirAll(dst, 0755); err != nil {
		return nil, fmt.Errorf("could not create artifact directory for %s: %w", from.ID(), err)
	}

	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		if err := from.Export(ctx, p, dst); err != nil {
			return nil, fmt.Errorf("could not export artifact %s from %s: %w", p, from.ID(), err)
		}

		key := filepath.Join(from.ID(), filepath.Base(p))
		if err := f.index.Set(key, p); err != nil {
			return nil, fmt.Errorf("could not index artifact %s: %w", key, err)
		}
		keys = append(keys, key)
	}

	return keys, nil
}

func (f *FileManager) Resolve(key string) (string, error) {
	v, err := f.index.Get(key)
	if err != nil {
		return "", fmt.Errorf("could not find artifact %s: %w", key, err)
	}
	return v.(string), nil
}
