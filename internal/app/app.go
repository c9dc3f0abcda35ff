// Package app wires every component into a runnable service: construct the
// logger, connect infrastructure, build the metrics registry, then
// dispatch on mode.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wisbric/pdpsync/internal/adminsched"
	"github.com/wisbric/pdpsync/internal/admintoken"
	"github.com/wisbric/pdpsync/internal/blobstore"
	"github.com/wisbric/pdpsync/internal/catalog"
	"github.com/wisbric/pdpsync/internal/clock"
	"github.com/wisbric/pdpsync/internal/config"
	"github.com/wisbric/pdpsync/internal/eventqueue"
	"github.com/wisbric/pdpsync/internal/httpclient"
	"github.com/wisbric/pdpsync/internal/journal"
	"github.com/wisbric/pdpsync/internal/kvstore"
	"github.com/wisbric/pdpsync/internal/orchestrator"
	"github.com/wisbric/pdpsync/internal/ratelimit"
	"github.com/wisbric/pdpsync/internal/render"
	"github.com/wisbric/pdpsync/internal/skufilter"
	"github.com/wisbric/pdpsync/internal/telemetry"
	"github.com/wisbric/pdpsync/internal/tokenmgr"
)

// Run builds the dependency graph from cfg and dispatches on cfg.Mode:
// "serve" runs the HTTP server, plus a ticking orchestrator loop when
// cfg.RunInterval is positive; "run" performs exactly one orchestrator
// invocation and returns.
func Run(ctx context.Context, cfg config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := admintoken.Validate(cfg.AdminAPIAuthToken, "", clock.New().Now()); err != nil {
		logger.Warn("admin token failed validation, continuing with the configured token", "error", err)
	}

	kv, blobs, err := connectStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting stores: %w", err)
	}

	clk := clock.New()
	metrics := telemetry.NewMetrics()

	orch, err := buildOrchestrator(cfg, kv, blobs, clk, logger, metrics)
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}

	switch cfg.Mode {
	case "run":
		return runOnce(ctx, orch, logger)
	default:
		return serve(ctx, cfg, orch, logger, metrics)
	}
}

// connectStores builds the KV and blob backends from configuration.
// A Redis URL selects the durable KV store; an absent one falls back to
// the in-memory store (suitable for local development and single-shot
// "run" mode invocations against a disposable state).
func connectStores(ctx context.Context, cfg config.Config) (kvstore.Store, blobstore.Store, error) {
	var kv kvstore.Store
	if cfg.RedisURL != "" {
		rdb, err := kvstore.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting redis: %w", err)
		}
		kv = kvstore.NewRedisStore(rdb)
	} else {
		kv = kvstore.NewMemory()
	}

	var blobs blobstore.Store
	switch {
	case cfg.BlobBucket != "":
		gcs, err := blobstore.NewGCS(ctx, cfg.BlobBucket)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting gcs: %w", err)
		}
		blobs = gcs
	case cfg.BlobLocalDir != "":
		blobs = blobstore.NewFilesystem(cfg.BlobLocalDir)
	default:
		blobs = blobstore.NewMemory()
	}

	return kv, blobs, nil
}

// buildOrchestrator constructs the full component graph: token manager,
// rate limiter, SKU filter, event queue, journal consumer, catalog client,
// render pipeline, admin scheduler, then the orchestrator itself.
func buildOrchestrator(cfg config.Config, kv kvstore.Store, blobs blobstore.Store, clk clock.Clock, logger *slog.Logger, metrics *telemetry.Metrics) (*orchestrator.Orchestrator, error) {
	httpc := httpclient.New(cfg.HTTPTimeout)

	tokens, err := tokenmgr.New(cfg.TokenManager(), kv, clk)
	if err != nil {
		return nil, fmt.Errorf("building token manager: %w", err)
	}

	limiter := ratelimit.NewPersistent(kv, logger, cfg.MaxTokens, cfg.RefillRate)

	filter, err := skufilter.New(cfg.SKUFilter())
	if err != nil {
		return nil, fmt.Errorf("building sku filter: %w", err)
	}

	queue := eventqueue.New(kv, clk, cfg.EventQueue())
	journalConsumer := journal.New(cfg.Journal(), httpc, tokens)
	catalogClient := catalog.New(cfg.CatalogEndpoint, httpc)
	renderPipeline := render.New(catalogClient, blobs, logger)

	admin := adminsched.New(cfg.AdminScheduler(), httpc, clk, logger, metrics.AdminBatches)

	orch := orchestrator.New(
		kv, blobs, clk, logger,
		journalConsumer, catalogClient, filter, limiter, queue, renderPipeline, admin,
		cfg.Orchestrator(),
	)
	return orch, nil
}
