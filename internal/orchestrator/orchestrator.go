// Package orchestrator implements the per-run lifecycle: single-writer
// lock acquisition, per-locale journal consumption and rendering,
// admin-job dispatch, deletion detection, and final state persistence.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wisbric/pdpsync/internal/adminsched"
	"github.com/wisbric/pdpsync/internal/apperr"
	"github.com/wisbric/pdpsync/internal/blobstore"
	"github.com/wisbric/pdpsync/internal/catalog"
	"github.com/wisbric/pdpsync/internal/clock"
	"github.com/wisbric/pdpsync/internal/eventqueue"
	"github.com/wisbric/pdpsync/internal/journal"
	"github.com/wisbric/pdpsync/internal/kvstore"
	"github.com/wisbric/pdpsync/internal/ratelimit"
	"github.com/wisbric/pdpsync/internal/render"
	"github.com/wisbric/pdpsync/internal/skufilter"
	"github.com/wisbric/pdpsync/internal/skustate"
)

const (
	lockKey   = "running"
	cursorKey = "events_position"

	// JournalBatchLimit is the fixed page size for each journal fetch.
	JournalBatchLimit = 50

	// DefaultMaxBatches bounds journal consumption per run.
	DefaultMaxBatches = 5

	// DefaultLockTTL is the running-lock's time-to-live, guaranteeing
	// unlock even if the process dies mid-run.
	DefaultLockTTL = 3600 * time.Second

	// deleteScanConcurrency bounds concurrent catalog existence checks
	// during deletion detection.
	deleteScanConcurrency = 50
)

// Config is the orchestrator's resolved, run-scoped configuration. Built
// from internal/config.Config by the application wiring layer.
type Config struct {
	Locales             []string
	PathFormat          string
	ContentExtension    string
	CatalogHeaders      catalog.Headers
	MaxBatches          int
	LockTTL             time.Duration
	QueueEnabled        bool
}

func (c Config) withDefaults() Config {
	if len(c.Locales) == 0 {
		c.Locales = []string{""}
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = DefaultMaxBatches
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	if c.ContentExtension == "" {
		c.ContentExtension = "html"
	}
	return c
}

// Validate enforces the hard preconditions a run requires before it may
// start.
func (c Config) Validate() error {
	if c.PathFormat == "" {
		return apperr.NewValidation("product_page_url_format", "must not be empty")
	}
	return nil
}

// Limiter is satisfied by *ratelimit.PersistentLimiter.
type Limiter interface {
	TryAcquire(ctx context.Context) ratelimit.Result
}

// Statistics tallies one run's outcome.
type Statistics struct {
	EventsFetched int `json:"events_fetched"`
	UniqueSKUs    int `json:"unique_skus"`
	Processed     int `json:"processed"`
	Failed        int `json:"failed"`
	Published     int `json:"published"`
	Unpublished   int `json:"unpublished"`
	Ignored       int `json:"ignored"`
}

func (s *Statistics) add(o Statistics) {
	s.EventsFetched += o.EventsFetched
	s.UniqueSKUs += o.UniqueSKUs
	s.Processed += o.Processed
	s.Failed += o.Failed
	s.Published += o.Published
	s.Unpublished += o.Unpublished
	s.Ignored += o.Ignored
}

// Result is the invocation's returned document.
type Result struct {
	Status     string     `json:"status"`
	ElapsedMs  int64      `json:"elapsed_ms"`
	Statistics Statistics `json:"statistics,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Orchestrator wires together every component into the per-run lifecycle.
type Orchestrator struct {
	kv      kvstore.Store
	blobs   blobstore.Store
	clk     clock.Clock
	logger  *slog.Logger
	journal *journal.Consumer
	catalog *catalog.Client
	filter  *skufilter.Filter
	limiter Limiter
	queue   *eventqueue.Queue
	render  *render.Pipeline
	admin   *adminsched.Scheduler

	cfg Config
}

// New creates an Orchestrator.
func New(
	kv kvstore.Store,
	blobs blobstore.Store,
	clk clock.Clock,
	logger *slog.Logger,
	journalConsumer *journal.Consumer,
	catalogClient *catalog.Client,
	filter *skufilter.Filter,
	limiter Limiter,
	queue *eventqueue.Queue,
	renderPipeline *render.Pipeline,
	admin *adminsched.Scheduler,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		kv: kv, blobs: blobs, clk: clk, logger: logger,
		journal: journalConsumer, catalog: catalogClient, filter: filter,
		limiter: limiter, queue: queue, render: renderPipeline, admin: admin,
		cfg: cfg.withDefaults(),
	}
}

// Run executes one full invocation. It returns no Go error: every outcome
// (skipped, partial failure, error) is reported in the returned Result.
func (o *Orchestrator) Run(ctx context.Context) Result {
	start := o.clk.Now()

	if err := o.cfg.Validate(); err != nil {
		return o.errorResult(start, err)
	}

	locked, err := o.acquireLock(ctx)
	if err != nil {
		return o.errorResult(start, err)
	}
	if !locked {
		return Result{Status: "skipped"}
	}
	defer o.releaseLock(ctx)

	result, runErr := o.runLocked(ctx)
	result.ElapsedMs = o.clk.Now().Sub(start).Milliseconds()
	if runErr != nil {
		result.Status = "error"
		result.Error = runErr.Error()
	} else {
		result.Status = "completed"
	}
	return result
}

func (o *Orchestrator) errorResult(start time.Time, err error) Result {
	return Result{
		Status:    "error",
		ElapsedMs: o.clk.Now().Sub(start).Milliseconds(),
		Error:     err.Error(),
	}
}

// runLocked performs journal consumption, rendering, dispatch, deletion
// detection, and state persistence under the running lock already held by
// the caller.
func (o *Orchestrator) runLocked(ctx context.Context) (Result, error) {
	locales := o.cfg.Locales
	states := make([]skustate.State, len(locales))
	discovered := make([]map[string]struct{}, len(locales))
	// touched tracks, per locale, which SKUs this run's rendering confirmed
	// present against the catalog — used to scope deletion detection down
	// to SKUs the run did NOT already confirm (see detectAndUnpublishDeletions).
	touched := make([]map[string]struct{}, len(locales))

	for i, locale := range locales {
		st, err := skustate.Load(ctx, o.blobs, locale)
		if err != nil {
			return Result{}, &apperr.JobFailed{Stage: "load_state", Cause: err}
		}
		states[i] = st
		discovered[i] = make(map[string]struct{}, len(st))
		for sku := range st {
			discovered[i][sku] = struct{}{}
		}
		touched[i] = make(map[string]struct{})
	}

	o.admin.StartProcessing(ctx)

	var stats Statistics
	var pending []<-chan adminsched.Result

	cursor, err := o.loadCursor(ctx)
	if err != nil {
		return Result{}, &apperr.JobFailed{Stage: "load_cursor", Cause: err}
	}

	seenSKUs := make(map[string]struct{})

	for batchNo := 0; batchNo < o.cfg.MaxBatches; batchNo++ {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		fetched, err := o.journal.Fetch(ctx, cursor, JournalBatchLimit)
		if err != nil {
			return Result{}, &apperr.JobFailed{Stage: "journal_fetch", Cause: err}
		}
		stats.EventsFetched += len(fetched.Events)

		skus := coalesce(fetched.Events)
		for _, sku := range skus {
			if _, ok := seenSKUs[sku]; !ok {
				seenSKUs[sku] = struct{}{}
				stats.UniqueSKUs++
			}
		}

		if len(skus) > 0 {
			batchPending, batchErr := o.dispatchBatch(ctx, skus, states, discovered, touched, batchNo, &stats)
			if batchErr != nil {
				return Result{}, batchErr
			}
			pending = append(pending, batchPending...)
		}

		cursor = fetched.NextCursor
		if err := o.saveCursor(ctx, cursor); err != nil {
			return Result{}, &apperr.JobFailed{Stage: "save_cursor", Cause: err}
		}

		if !fetched.HasMore {
			break
		}
	}

	deletionPending, err := o.detectAndUnpublishDeletions(ctx, locales, states, discovered, touched, &stats)
	if err != nil {
		return Result{}, err
	}
	pending = append(pending, deletionPending...)

	<-o.admin.StopProcessing()

	select {
	case fatal := <-o.admin.FatalErr():
		if fatal != nil {
			return Result{}, fatal
		}
	default:
	}

	for _, ch := range pending {
		select {
		case res := <-ch:
			o.tallyAdminResult(ctx, &stats, res)
		default:
			// execSlot always sends before StopProcessing's channel closes.
		}
	}

	for i, locale := range locales {
		if err := skustate.Save(ctx, o.blobs, locale, states[i]); err != nil {
			return Result{}, &apperr.JobFailed{Stage: "save_state", Cause: err}
		}
		if err := saveIndex(ctx, o.blobs, locale, discovered[i]); err != nil {
			return Result{}, &apperr.JobFailed{Stage: "save_index", Cause: err}
		}
	}

	return Result{Statistics: stats}, nil
}

// tallyAdminResult folds one resolved admin batch into the run's
// statistics and, for a completed unpublish-preview record, deletes the
// blob — blob delete happens only after unpublish-preview succeeds.
func (o *Orchestrator) tallyAdminResult(ctx context.Context, stats *Statistics, res adminsched.Result) {
	for _, r := range res.Records {
		switch {
		case r.Failed:
			stats.Failed++
		case r.PublishedAt != nil:
			stats.Published++
		case r.PreviewUnpublishedAt != nil:
			stats.Unpublished++
			if r.Path != "" {
				if err := o.blobs.Delete(ctx, r.Path); err != nil {
					o.logger.Error("deleting unpublished page blob", "sku", r.SKU, "path", r.Path, "error", err)
				}
			}
		}
	}
}

func (o *Orchestrator) acquireLock(ctx context.Context) (bool, error) {
	_, ok, err := o.kv.Get(ctx, lockKey)
	if err != nil {
		return false, fmt.Errorf("checking running lock: %w", err)
	}
	if ok {
		return false, nil
	}
	if err := o.kv.Put(ctx, lockKey, []byte("1"), o.cfg.LockTTL); err != nil {
		return false, fmt.Errorf("acquiring running lock: %w", err)
	}
	return true, nil
}

func (o *Orchestrator) releaseLock(ctx context.Context) {
	if err := o.kv.Delete(ctx, lockKey); err != nil {
		o.logger.Error("releasing running lock", "error", err)
	}
}

func (o *Orchestrator) loadCursor(ctx context.Context) (string, error) {
	raw, ok, err := o.kv.Get(ctx, cursorKey)
	if err != nil {
		return "", fmt.Errorf("loading cursor: %w", err)
	}
	if !ok {
		return "", nil
	}
	return string(raw), nil
}

func (o *Orchestrator) saveCursor(ctx context.Context, cursor string) error {
	return o.kv.Put(ctx, cursorKey, []byte(cursor), 0)
}

// coalesce turns a batch of journal events into an order-preserving,
// deduped SKU set.
func coalesce(events []journal.Event) []string {
	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, e := range events {
		if e.SKU == "" {
			continue
		}
		if _, dup := seen[e.SKU]; dup {
			continue
		}
		seen[e.SKU] = struct{}{}
		out = append(out, e.SKU)
	}
	return out
}

// dispatchBatch fans the SKU batch out across locales: filter, rate-limit,
// render, and schedule preview+publish. It returns immediately after
// scheduling — it does not wait for the admin scheduler to finish, so the
// cursor advances as soon as a batch's work is scheduled rather than after
// it completes.
func (o *Orchestrator) dispatchBatch(
	ctx context.Context,
	skus []string,
	states []skustate.State,
	discovered []map[string]struct{},
	touched []map[string]struct{},
	batchNo int,
	stats *Statistics,
) ([]<-chan adminsched.Result, error) {
	type localeOutcome struct {
		stats Statistics
		ch    <-chan adminsched.Result
	}
	outcomes := make([]localeOutcome, len(states))

	g, gctx := errgroup.WithContext(ctx)
	for i := range states {
		i := i
		g.Go(func() error {
			localeStats, ch, err := o.processLocaleBatch(gctx, i, skus, states, discovered, touched, batchNo)
			outcomes[i] = localeOutcome{stats: localeStats, ch: ch}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &apperr.JobFailed{Stage: "dispatch_batch", Cause: err}
	}

	var pending []<-chan adminsched.Result
	for _, outcome := range outcomes {
		stats.add(outcome.stats)
		if outcome.ch != nil {
			pending = append(pending, outcome.ch)
		}
	}
	return pending, nil
}

// processLocaleBatch filters, rate-limits, and renders one locale's view of
// a SKU batch, then schedules the changed records' preview+publish.
func (o *Orchestrator) processLocaleBatch(
	ctx context.Context,
	idx int,
	skus []string,
	states []skustate.State,
	discovered []map[string]struct{},
	touched []map[string]struct{},
	batchNo int,
) (Statistics, <-chan adminsched.Result, error) {
	var stats Statistics
	state := states[idx]
	locale := o.cfg.Locales[idx]

	var toRender []string
	for _, sku := range skus {
		decision := o.filter.ShouldProcess(skufilter.Event{SKU: sku})
		if !decision.Allowed {
			stats.Ignored++
			continue
		}

		if !o.limiter.TryAcquire(ctx).Allowed {
			if o.cfg.QueueEnabled && o.queue != nil {
				if _, err := o.queue.Enqueue(ctx, sku, eventqueue.KindProductUpdate, eventqueue.PriorityNormal, nil); err != nil {
					o.logger.Warn("enqueueing rate-limited sku failed", "sku", sku, "error", err)
				}
			}
			continue
		}
		toRender = append(toRender, sku)
	}

	now := o.clk.Now()
	rc := render.Context{Locale: locale, PathFormat: o.cfg.PathFormat, ContentExtension: o.cfg.ContentExtension, CatalogHeaders: o.cfg.CatalogHeaders}
	results := o.render.RenderBatch(ctx, toRender, rc, state, now)

	var records []adminsched.BatchRecord
	for _, r := range results {
		touched[idx][r.SKU] = struct{}{}
		if r.Ignored {
			stats.Ignored++
			state[r.SKU] = skustate.Record{LastRenderedAt: r.RenderedAt, ContentHash: r.ContentHash, LastPublishedPath: r.Path}
			continue
		}
		stats.Processed++
		records = append(records, adminsched.BatchRecord{SKU: r.SKU, Path: r.Path, RenderedAt: r.RenderedAt})
		state[r.SKU] = skustate.Record{LastRenderedAt: r.RenderedAt, ContentHash: r.ContentHash, LastPublishedPath: r.Path}
		discovered[idx][r.SKU] = struct{}{}
	}
	states[idx] = state

	if len(records) == 0 {
		return stats, nil, nil
	}

	ch := o.admin.PreviewAndPublish(records, locale, batchNo)
	return stats, ch, nil
}

func saveIndex(ctx context.Context, blobs blobstore.Store, locale string, skus map[string]struct{}) error {
	list := make([]string, 0, len(skus))
	for sku := range skus {
		list = append(list, sku)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encoding sku index for locale %q: %w", locale, err)
	}
	return blobs.Write(ctx, skustate.IndexPath(locale), data)
}
