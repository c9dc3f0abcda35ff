package render

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wisbric/pdpsync/internal/apperr"
	"github.com/wisbric/pdpsync/internal/blobstore"
	"github.com/wisbric/pdpsync/internal/catalog"
	"github.com/wisbric/pdpsync/internal/httpclient"
	"github.com/wisbric/pdpsync/internal/skustate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T, body string) (*Pipeline, *blobstore.Memory) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client := catalog.New(srv.URL, httpclient.New(5*time.Second))
	blobs := blobstore.NewMemory()
	return New(client, blobs, discardLogger()), blobs
}

func TestRenderOne_WritesBlobWhenUnseen(t *testing.T) {
	p, blobs := newTestPipeline(t, `{"data":{"products":{"items":[{"sku":"ABC1","url_key":"abc-1","name":"Widget"}]}}}`)
	rc := Context{Locale: "en", PathFormat: "/{locale}/products/{urlKey}"}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	res, err := p.RenderOne(context.Background(), "ABC1", "", rc, skustate.Record{}, now)
	if err != nil {
		t.Fatalf("RenderOne: %v", err)
	}
	if res.Ignored {
		t.Fatalf("expected first render of a SKU to be published, got Ignored=true")
	}
	if res.ContentHash == "" {
		t.Errorf("expected a non-empty content hash")
	}

	data, err := blobs.Read(context.Background(), res.Path)
	if err != nil {
		t.Fatalf("expected blob to be written at %q: %v", res.Path, err)
	}
	if len(data) == 0 {
		t.Errorf("expected non-empty rendered HTML")
	}
}

func TestRenderOne_SkipsUnchangedContent(t *testing.T) {
	p, blobs := newTestPipeline(t, `{"data":{"products":{"items":[{"sku":"ABC1","url_key":"abc-1","name":"Widget"}]}}}`)
	rc := Context{Locale: "en", PathFormat: "/{locale}/products/{urlKey}"}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := p.RenderOne(context.Background(), "ABC1", "", rc, skustate.Record{}, now)
	if err != nil {
		t.Fatalf("RenderOne (first): %v", err)
	}

	prior := skustate.Record{ContentHash: first.ContentHash, LastPublishedPath: first.Path}
	second, err := p.RenderOne(context.Background(), "ABC1", "", rc, prior, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("RenderOne (second): %v", err)
	}
	if !second.Ignored {
		t.Fatalf("expected unchanged content to be ignored, got %+v", second)
	}
	if second.Path != first.Path {
		t.Errorf("expected ignored result to carry forward the prior published path")
	}

	paths, _ := blobs.List(context.Background(), "")
	if len(paths) != 1 {
		t.Errorf("expected exactly one blob write across both renders, got %d", len(paths))
	}
}

func TestRenderOne_ContentChangeTriggersRewrite(t *testing.T) {
	p, blobs := newTestPipeline(t, `{"data":{"products":{"items":[{"sku":"ABC1","url_key":"abc-1","name":"Widget v2"}]}}}`)
	rc := Context{Locale: "en", PathFormat: "/{locale}/products/{urlKey}"}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	prior := skustate.Record{ContentHash: "stale-hash-that-wont-match", LastPublishedPath: "/en/products/abc-1.html"}
	res, err := p.RenderOne(context.Background(), "ABC1", "", rc, prior, now)
	if err != nil {
		t.Fatalf("RenderOne: %v", err)
	}
	if res.Ignored {
		t.Fatalf("expected changed content to be republished, got Ignored=true")
	}

	if _, err := blobs.Read(context.Background(), res.Path); err != nil {
		t.Fatalf("expected rewritten blob to exist: %v", err)
	}
}

func TestRenderOne_NotFoundPropagatesAsNotFoundError(t *testing.T) {
	p, _ := newTestPipeline(t, `{"data":{"products":{"items":[]}}}`)
	rc := Context{Locale: "en", PathFormat: "/{locale}/products/{urlKey}"}

	_, err := p.RenderOne(context.Background(), "MISSING", "", rc, skustate.Record{}, time.Now())
	if _, ok := err.(*apperr.NotFoundError); !ok {
		t.Fatalf("expected *apperr.NotFoundError for a missing product, got %T (%v)", err, err)
	}
}

func TestRenderBatch_IsolatesPerSKUErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if bytes.Contains(body, []byte(`"MISSING"`)) {
			w.Write([]byte(`{"data":{"products":{"items":[]}}}`))
			return
		}
		w.Write([]byte(`{"data":{"products":{"items":[{"sku":"OK1","url_key":"ok-1","name":"Widget"}]}}}`))
	}))
	defer srv.Close()

	client := catalog.New(srv.URL, httpclient.New(5*time.Second))
	blobs := blobstore.NewMemory()
	p := New(client, blobs, discardLogger())

	rc := Context{Locale: "en", PathFormat: "/{locale}/products/{urlKey}"}
	results := p.RenderBatch(context.Background(), []string{"OK1", "MISSING", "OK1"}, rc, skustate.State{}, time.Now())
	if len(results) != 2 {
		t.Fatalf("expected the 2 renderable SKUs to survive the missing one, got %d results", len(results))
	}
}

func TestPagePath_SubstitutesTokensAndSanitizes(t *testing.T) {
	path := PagePath("/{locale}/products/{urlKey}", "en-US", "Cool Widget!", "ABC 123", "")
	want := "/public/pdps/en-us/products/cool-widget-.html"
	if path != want {
		t.Errorf("PagePath = %q, want %q", path, want)
	}
}

func TestPagePath_DefaultsExtensionToHTML(t *testing.T) {
	path := PagePath("/{sku}", "", "", "ABC1", "")
	if path[len(path)-5:] != ".html" {
		t.Errorf("expected default extension .html, got %q", path)
	}
}
