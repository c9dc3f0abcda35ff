// Package blobstore is the durable blob abstraction: the rendered HTML
// pages, per-locale SKU-state records, and the discovered-SKU index all
// live here, addressed by path.
package blobstore

import "context"

// Store is the durable blob contract.
type Store interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	// List returns all paths under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ErrNotFound is returned by Read when path does not exist.
type ErrNotFound struct {
	Path string
}

func (e *ErrNotFound) Error() string { return "blob not found: " + e.Path }
