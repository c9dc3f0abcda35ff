// Package skustate persists the per-locale SKU state record: for each SKU,
// the last render time, content hash, and published path.
package skustate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wisbric/pdpsync/internal/blobstore"
)

// Record is the per-SKU state.
type Record struct {
	LastRenderedAt    time.Time `json:"last_rendered_at"`
	ContentHash       string    `json:"content_hash,omitempty"`
	LastPublishedPath string    `json:"last_published_path,omitempty"`
}

// State is a locale's full SKU→Record map.
type State map[string]Record

// Path returns the blob path for a locale's state file ("default" when
// locale is empty).
func Path(locale string) string {
	key := locale
	if key == "" {
		key = "default"
	}
	return fmt.Sprintf("check-product-changes/%s.json", key)
}

// IndexPath returns the blob path for a locale's discovered-SKU index.
func IndexPath(locale string) string {
	key := locale
	if key == "" {
		key = "default"
	}
	return fmt.Sprintf("check-product-changes/%s-products.json", key)
}

// Load reads a locale's state, returning an empty State if the blob does
// not yet exist.
func Load(ctx context.Context, store blobstore.Store, locale string) (State, error) {
	data, err := store.Read(ctx, Path(locale))
	if err != nil {
		var notFound *blobstore.ErrNotFound
		if asNotFound(err, &notFound) {
			return State{}, nil
		}
		return nil, fmt.Errorf("loading sku state for locale %q: %w", locale, err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding sku state for locale %q: %w", locale, err)
	}
	if st == nil {
		st = State{}
	}
	return st, nil
}

// Save persists a locale's state.
func Save(ctx context.Context, store blobstore.Store, locale string, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding sku state for locale %q: %w", locale, err)
	}
	if err := store.Write(ctx, Path(locale), data); err != nil {
		return fmt.Errorf("saving sku state for locale %q: %w", locale, err)
	}
	return nil
}

func asNotFound(err error, out **blobstore.ErrNotFound) bool {
	nf, ok := err.(*blobstore.ErrNotFound)
	if ok {
		*out = nf
	}
	return ok
}
