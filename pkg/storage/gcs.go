package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// GCSStorage implements BlobStore on a Google Cloud Storage bucket. Objects
// are downloaded to a temporary file when resolved.
type GCSStorage struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSStorage connects with application default credentials.
func NewGCSStorage(ctx context.Context, bucket, prefix string) (*GCSStorage, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}
	return &GCSStorage{client: client, bucket: bucket, prefix: prefix}, nil
}

var _ BlobStore = (*GCSStorage)(nil)

func (s *GCSStorage) object(key string) *gcs.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(objectName(s.prefix, key))
}

func objectName(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

func (s *GCSStorage) Save(ctx context.Context, r io.Reader, name string, owner uuid.UUID) (string, error) {
	key := newKey(owner, name)

	err := upload(ctx, r, func(ctx context.Context) io.WriteCloser {
		return s.object(key).NewWriter(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return key, nil
}

// upload copies r into the writer opened by open. On a read failure the
// writer's context is cancelled before Close so no partial object is
// committed.
func upload(ctx context.Context, r io.Reader, open func(context.Context) io.WriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := open(ctx)
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Resolve downloads the object into a temporary file that keeps the key's
// extension. release removes it.
func (s *GCSStorage) Resolve(ctx context.Context, key string) (string, func(), error) {
	if err := validateKey(key); err != nil {
		return "", nil, err
	}

	rc, err := s.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return "", nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer rc.Close()

	f, err := os.CreateTemp("", "import-*"+path.Ext(key))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	release := func() { os.Remove(f.Name()) }

	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		release()
		return "", nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return f.Name(), release, nil
}

func (s *GCSStorage) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := s.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close releases the client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}
