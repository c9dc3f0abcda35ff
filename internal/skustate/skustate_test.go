package skustate

import (
	"context"
	"testing"
	"time"

	"github.com/wisbric/pdpsync/internal/blobstore"
)

func TestLoad_MissingBlobReturnsEmptyState(t *testing.T) {
	store := blobstore.NewMemory()
	st, err := Load(context.Background(), store, "en")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(st) != 0 {
		t.Errorf("expected empty state for a locale with no prior blob, got %v", st)
	}
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	store := blobstore.NewMemory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	want := State{
		"ABC1": {LastRenderedAt: now, ContentHash: "deadbeef", LastPublishedPath: "/en/products/abc-1.html"},
	}

	if err := Save(context.Background(), store, "en", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(context.Background(), store, "en")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rec, ok := got["ABC1"]
	if !ok {
		t.Fatalf("expected ABC1 to round-trip, got %v", got)
	}
	if rec.ContentHash != "deadbeef" || rec.LastPublishedPath != "/en/products/abc-1.html" {
		t.Errorf("unexpected round-tripped record: %+v", rec)
	}
}

func TestPath_EmptyLocaleDefaultsToDefault(t *testing.T) {
	if Path("") != "check-product-changes/default.json" {
		t.Errorf("Path(\"\") = %q", Path(""))
	}
	if Path("en") != "check-product-changes/en.json" {
		t.Errorf("Path(\"en\") = %q", Path("en"))
	}
}

func TestIndexPath_EmptyLocaleDefaultsToDefault(t *testing.T) {
	if IndexPath("") != "check-product-changes/default-products.json" {
		t.Errorf("IndexPath(\"\") = %q", IndexPath(""))
	}
}

func TestLoad_IsolatesLocales(t *testing.T) {
	store := blobstore.NewMemory()
	_ = Save(context.Background(), store, "en", State{"ABC1": {ContentHash: "en-hash"}})
	_ = Save(context.Background(), store, "fr", State{"ABC1": {ContentHash: "fr-hash"}})

	en, _ := Load(context.Background(), store, "en")
	fr, _ := Load(context.Background(), store, "fr")
	if en["ABC1"].ContentHash != "en-hash" || fr["ABC1"].ContentHash != "fr-hash" {
		t.Errorf("expected per-locale state files to be isolated, got en=%+v fr=%+v", en, fr)
	}
}
