// Package render implements the render-and-hash pipeline: catalog fetch,
// deterministic HTML render, content hashing, skip-if-unchanged, and blob
// write.
package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wisbric/pdpsync/internal/apperr"
	"github.com/wisbric/pdpsync/internal/blobstore"
	"github.com/wisbric/pdpsync/internal/catalog"
	"github.com/wisbric/pdpsync/internal/skustate"
)

// DefaultConcurrency is the per-process render semaphore size: at most 50
// concurrent renders.
const DefaultConcurrency = 50

// Context carries the inputs a single render needs beyond the SKU.
type Context struct {
	Locale              string
	PathFormat          string // PRODUCT_PAGE_URL_FORMAT, tokens {locale} {urlKey} {sku}
	ContentExtension    string // defaults to "html"
	CatalogHeaders      catalog.Headers
}

// Result is the outcome of rendering one SKU.
type Result struct {
	SKU         string
	Path        string
	ContentHash string
	Ignored     bool // true when content was unchanged; no publish needed
	RenderedAt  time.Time
}

// Pipeline renders SKUs against the catalog and blob store.
type Pipeline struct {
	catalog *catalog.Client
	blobs   blobstore.Store
	logger  *slog.Logger
}

// New creates a Pipeline.
func New(catalogClient *catalog.Client, blobs blobstore.Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{catalog: catalogClient, blobs: blobs, logger: logger}
}

// RenderOne fetches the product, renders HTML, hashes it, and — if the hash
// differs from the prior state — writes the blob. Errors are per-SKU and
// never abort a batch; callers should log and count them.
func (p *Pipeline) RenderOne(ctx context.Context, sku, urlKey string, rc Context, prior skustate.Record, now time.Time) (Result, error) {
	var product catalog.Product
	var err error
	if urlKey != "" {
		product, err = p.catalog.ProductByURLKey(ctx, urlKey, rc.CatalogHeaders)
	} else {
		product, err = p.catalog.ProductBySKU(ctx, sku, rc.CatalogHeaders)
	}
	if err != nil {
		return Result{}, err
	}

	html := RenderHTML(product, rc)
	hash := contentHash(html)

	if hash == prior.ContentHash && prior.ContentHash != "" {
		return Result{SKU: sku, ContentHash: hash, Ignored: true, RenderedAt: now, Path: prior.LastPublishedPath}, nil
	}

	path := PagePath(rc.PathFormat, rc.Locale, product.URLKey, sku, rc.ContentExtension)
	if err := p.blobs.Write(ctx, path, html); err != nil {
		return Result{}, fmt.Errorf("writing rendered page for sku %q: %w", sku, err)
	}

	return Result{SKU: sku, Path: path, ContentHash: hash, RenderedAt: now}, nil
}

// RenderBatch runs RenderOne over a set of SKUs under a bounded semaphore,
// grounded on golang.org/x/sync/errgroup.SetLimit. Per-SKU errors are
// logged and excluded from the returned slice; they never abort the batch.
func (p *Pipeline) RenderBatch(ctx context.Context, skus []string, rc Context, prior skustate.State, now time.Time) []Result {
	results := make([]Result, len(skus))
	ok := make([]bool, len(skus))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultConcurrency)

	for i, sku := range skus {
		i, sku := i, sku
		g.Go(func() error {
			res, err := p.RenderOne(gctx, sku, "", rc, prior[sku], now)
			if err != nil {
				if notFound, isNotFound := err.(*apperr.NotFoundError); isNotFound {
					p.logger.Warn("product not found in catalog", "sku", notFound.SKU)
				} else {
					p.logger.Error("rendering sku failed", "sku", sku, "error", err)
				}
				return nil // per-SKU errors never abort the batch
			}
			results[i] = res
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait() // RenderOne never returns a non-nil error to the group

	out := make([]Result, 0, len(skus))
	for i, got := range ok {
		if got {
			out = append(out, results[i])
		}
	}
	return out
}

func contentHash(html []byte) string {
	sum := sha256.Sum256(html)
	return hex.EncodeToString(sum[:])
}

var invalidPathChars = regexp.MustCompile(`[^a-z0-9/_-]`)

// PagePath derives a blob path from PRODUCT_PAGE_URL_FORMAT, substituting
// {locale}, {urlKey}, {sku} tokens. The SKU is lower-cased and invalid
// characters are replaced with "-" per the delivery platform's
// document-naming rules.
func PagePath(format, locale, urlKey, sku, ext string) string {
	if ext == "" {
		ext = "html"
	}
	path := format
	path = strings.ReplaceAll(path, "{locale}", locale)
	path = strings.ReplaceAll(path, "{urlKey}", urlKey)
	path = strings.ReplaceAll(path, "{sku}", strings.ToLower(sku))
	path = strings.ToLower(path)
	path = invalidPathChars.ReplaceAllString(path, "-")
	return fmt.Sprintf("/public/pdps%s.%s", path, ext)
}
