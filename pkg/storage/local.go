package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalStorage implements BlobStore using the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local filesystem storage
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

var _ BlobStore = (*LocalStorage)(nil)

// Save stores r under a new key
func (s *LocalStorage) Save(_ context.Context, r io.Reader, name string, owner uuid.UUID) (string, error) {
	key := newKey(owner, name)
	filePath := filepath.Join(s.basePath, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create user directory: %w", err)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(filePath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return key, nil
}

// Resolve returns the path of the stored file. Nothing needs releasing.
func (s *LocalStorage) Resolve(_ context.Context, key string) (string, func(), error) {
	if err := validateKey(key); err != nil {
		return "", nil, err
	}

	filePath := filepath.Join(s.basePath, filepath.FromSlash(key))
	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return filePath, func() {}, nil
}

// Delete removes the stored file. Deleting a missing key is not an error.
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	filePath := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
