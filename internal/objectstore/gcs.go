package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCS stores objects in one Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS connects with application default credentials, or without
// authentication when STORAGE_EMULATOR_HOST points at an emulator.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs object store needs a bucket")
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if os.Getenv("STORAGE_EMULATOR_HOST") != "" {
		opts = []option.ClientOption{option.WithoutAuthentication()}
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "max-age=3600"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return fmt.Errorf("failed to write %s to GCS: %w", key, ErrExists)
		}
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (g *GCS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s from GCS: %w", key, err)
	}
	return rc, nil
}

// Remove deletes the object. A missing object is not an error.
func (g *GCS) Remove(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete %s from GCS: %w", key, err)
	}
	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
