package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
)

type fileStorage struct {
	config FileConfig
}

type FileConfig struct {
	Directory string
}

func NewFileStorage(ctx context.Context, f FileConfig) (Storage, error) {
	if f.Directory == "" {
		f.Directory = "."
	}
	directory, err := filepath.Abs(f.Directory)
	if err != nil {
		return nil, xerrors.Errorf("failed to resolve directory %s: %w", f.Directory, err)
	}
	f.Directory = directory

	return &fileStorage{
		config: f,
	}, nil
}

// resolve maps key below the storage directory, refusing keys that would
// escape it.
func (a *fileStorage) resolve(key string) (string, error) {
	filePath := filepath.Join(a.config.Directory, filepath.FromSlash(key))
	if filePath != a.config.Directory && !strings.HasPrefix(filePath, a.config.Directory+string(filepath.Separator)) {
		return "", xerrors.Errorf("key %q escapes %s", key, a.config.Directory)
	}
	return filePath, nil
}

func (a *fileStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	filePath, err := a.resolve(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", xerrors.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", xerrors.Errorf("failed to write file: %w", err)
	}

	return filePath, nil
}

func (a *fileStorage) Get(ctx context.Context, location string) ([]byte, error) {
	if !filepath.IsAbs(location) {
		var err error
		if location, err = a.resolve(location); err != nil {
			return nil, err
		}
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, xerrors.Errorf("failed to read file: %w", err)
	}

	return data, nil
}
