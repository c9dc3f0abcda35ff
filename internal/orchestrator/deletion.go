package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/wisbric/pdpsync/internal/adminsched"
	"github.com/wisbric/pdpsync/internal/apperr"
	"github.com/wisbric/pdpsync/internal/skustate"
)

// detectAndUnpublishDeletions diffs each locale's discovered-SKU index
// against a live catalog lookup, for any SKU this run did not already
// confirm present. Confirmed-deleted SKUs are dropped from state
// immediately (the catalog already told us they're gone) and dispatched to
// UnpublishLive+UnpublishPreview; the blob itself is removed once
// unpublish-preview completes.
func (o *Orchestrator) detectAndUnpublishDeletions(
	ctx context.Context,
	locales []string,
	states []skustate.State,
	discovered []map[string]struct{},
	touched []map[string]struct{},
	stats *Statistics,
) ([]<-chan adminsched.Result, error) {
	var pending []<-chan adminsched.Result

	for i, locale := range locales {
		candidates := make([]string, 0)
		for sku := range states[i] {
			if _, wasTouched := touched[i][sku]; wasTouched {
				continue
			}
			candidates = append(candidates, sku)
		}
		if len(candidates) == 0 {
			continue
		}

		deleted, err := o.scanForDeletions(ctx, candidates)
		if err != nil {
			return nil, &apperr.JobFailed{Stage: "deletion_scan", Cause: err}
		}
		if len(deleted) == 0 {
			continue
		}

		var records []adminsched.BatchRecord
		for _, sku := range deleted {
			rec := states[i][sku]
			records = append(records, adminsched.BatchRecord{
				SKU:        sku,
				Path:       rec.LastPublishedPath,
				RenderedAt: rec.LastRenderedAt,
			})
			delete(states[i], sku)
			delete(discovered[i], sku)
		}

		if len(records) == 0 {
			continue
		}
		ch := o.admin.UnpublishAndDelete(records, locale, 0)
		pending = append(pending, ch)
	}

	return pending, nil
}

// scanForDeletions checks each candidate SKU against the catalog under a
// bounded semaphore. A NotFoundError confirms deletion; any other per-SKU
// error is logged and the SKU is left untouched for the next run to
// re-check.
func (o *Orchestrator) scanForDeletions(ctx context.Context, candidates []string) ([]string, error) {
	found := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteScanConcurrency)
	for i, sku := range candidates {
		i, sku := i, sku
		g.Go(func() error {
			_, err := o.catalog.ProductBySKU(gctx, sku, o.cfg.CatalogHeaders)
			switch {
			case err == nil:
				found[i] = true
			case isNotFound(err):
				found[i] = false
			default:
				o.logger.Warn("checking sku for deletion failed, leaving unresolved", "sku", sku, "error", err)
				found[i] = true // ambiguous: assume still present rather than wrongly unpublish
			}
			return nil
		})
	}
	_ = g.Wait()

	deleted := make([]string, 0)
	for i, sku := range candidates {
		if !found[i] {
			deleted = append(deleted, sku)
		}
	}
	return deleted, nil
}

func isNotFound(err error) bool {
	_, ok := err.(*apperr.NotFoundError)
	return ok
}
