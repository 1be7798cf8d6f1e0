// Package storage keeps uploaded statement files until a worker imports them.
// Callers only ever see opaque keys.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

// BlobStore stores uploaded files.
type BlobStore interface {
	// Save stores r under a new key derived from owner and name.
	Save(ctx context.Context, r io.Reader, name string, owner uuid.UUID) (string, error)
	// Resolve makes the blob available as a local file. release must be
	// called once the caller is done with the path.
	Resolve(ctx context.Context, key string) (localPath string, release func(), err error)
	Delete(ctx context.Context, key string) error
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeGCS   StorageType = "gcs"
)

// Config holds storage configuration
type Config struct {
	Type      StorageType
	LocalPath string
	GCSBucket string
	GCSPrefix string
}

// New creates a BlobStore for the configured backend.
func New(ctx context.Context, cfg Config) (BlobStore, error) {
	switch cfg.Type {
	case StorageTypeGCS:
		return NewGCSStorage(ctx, cfg.GCSBucket, cfg.GCSPrefix)
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// newKey builds "<owner>/<random>_<name>".
func newKey(owner uuid.UUID, name string) string {
	return path.Join(owner.String(), fmt.Sprintf("%s_%s", uuid.NewString()[:8], sanitizeFilename(name)))
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	name = replacer.Replace(strings.TrimSpace(name))
	if name == "" {
		return "upload"
	}
	return name
}
