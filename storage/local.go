package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalArchive implements Archive on the local filesystem. Default backend
// for development.
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates a new local archive instance
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if basePath == "" {
		basePath = "./storage/documents"
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &LocalArchive{basePath: basePath}, nil
}

// Put stores a document locally
func (a *LocalArchive) Put(ctx context.Context, key ArchiveKey, data io.Reader) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}

	path := key.Path()
	fullPath := filepath.Join(a.basePath, filepath.FromSlash(path))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return path, nil
}

// Get retrieves a document from the local archive
func (a *LocalArchive) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath := filepath.Join(a.basePath, filepath.FromSlash(path))

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document not found: %s", path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete removes a document from the local archive
func (a *LocalArchive) Delete(ctx context.Context, path string) error {
	fullPath := filepath.Join(a.basePath, filepath.FromSlash(path))

	err := os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}
