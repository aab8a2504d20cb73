package objstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Staging holds uploaded document images in a GCS bucket between HTTP
// intake and the background scan worker, so requests stay small and
// retries can re-fetch the same bytes.
type Staging struct {
	client *storage.Client
	bucket string
}

// New creates a staging area over the given bucket. Application Default
// Credentials are assumed.
func New(ctx context.Context, bucket string) (*Staging, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("objstore: create storage client: %w", err)
	}
	return &Staging{client: client, bucket: bucket}, nil
}

// Upload stores data under objectName and returns its gs:// URI.
func (s *Staging) Upload(ctx context.Context, objectName string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("objstore: write object %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("objstore: finalize upload %s: %w", objectName, err)
	}

	return fmt.Sprintf("gs://%s/%s", s.bucket, objectName), nil
}

// Fetch downloads the bytes behind a gs:// URI.
func (s *Staging) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := splitURI(uri)
	if err != nil {
		return nil, err
	}

	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("objstore: open reader for %s: %w", uri, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("objstore: read %s: %w", uri, err)
	}
	return data, nil
}

// Delete removes the object behind a gs:// URI. Staged documents are
// deleted once their scan job finishes.
func (s *Staging) Delete(ctx context.Context, uri string) error {
	bucket, object, err := splitURI(uri)
	if err != nil {
		return err
	}
	if err := s.client.Bucket(bucket).Object(object).Delete(ctx); err != nil {
		return fmt.Errorf("objstore: delete %s: %w", uri, err)
	}
	return nil
}

// Close releases the storage client.
func (s *Staging) Close() error {
	return s.client.Close()
}

// Filename extracts the base filename from a staged source, either a
// gs:// URI or a local path.
func Filename(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

func splitURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("objstore: invalid URI: %s", uri)
	}
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("objstore: invalid URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
