package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

var iteratorDone = iterator.Done

// GCS backs Store with a Google Cloud Storage bucket, using
// Bucket().Object().NewReader()/NewWriter() for blob I/O.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a GCS-backed Store for the given bucket.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("building google storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) Read(ctx context.Context, path string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, &ErrNotFound{Path: path}
		}
		return nil, fmt.Errorf("reading blob %q: %w", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading blob %q: %w", path, err)
	}
	return data, nil
}

func (g *GCS) Write(ctx context.Context, path string, data []byte) error {
	w := g.client.Bucket(g.bucket).Object(path).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing blob %q: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing blob write %q: %w", path, err)
	}
	return nil
}

func (g *GCS) Delete(ctx context.Context, path string) error {
	if err := g.client.Bucket(g.bucket).Object(path).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("deleting blob %q: %w", path, err)
	}
	return nil
}

func (g *GCS) List(ctx context.Context, prefix string) ([]string, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var paths []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iteratorDone) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing blobs under %q: %w", prefix, err)
		}
		paths = append(paths, attrs.Name)
	}
	return paths, nil
}
