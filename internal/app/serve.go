package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/wisbric/pdpsync/internal/config"
	"github.com/wisbric/pdpsync/internal/httpserver"
	"github.com/wisbric/pdpsync/internal/orchestrator"
	"github.com/wisbric/pdpsync/internal/telemetry"
)

// serve runs the HTTP server (health, metrics, manual trigger) and, if
// cfg.RunInterval is set, a ticker that invokes the orchestrator on a fixed
// period. pdpsync supports both an external trigger (POST /run) and a
// self-driven ticker for standalone deployment.
func serve(ctx context.Context, cfg config.Config, orch *orchestrator.Orchestrator, logger *slog.Logger, metrics *telemetry.Metrics) error {
	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger, metrics.Registry(), metrics.HTTPRequestDuration, triggerHandler(orch, metrics, logger))

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("pdpsync listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.RunInterval > 0 {
		go tickerLoop(ctx, orch, metrics, logger, cfg.RunInterval)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func tickerLoop(ctx context.Context, orch *orchestrator.Orchestrator, metrics *telemetry.Metrics, logger *slog.Logger, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			recordRun(orch.Run(ctx), metrics, logger)
		}
	}
}

func triggerHandler(orch *orchestrator.Orchestrator, metrics *telemetry.Metrics, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := orch.Run(r.Context())
		recordRun(result, metrics, logger)

		status := http.StatusOK
		if result.Status == "error" {
			status = http.StatusInternalServerError
		}
		httpserver.Respond(w, status, result)
	}
}

func recordRun(result orchestrator.Result, metrics *telemetry.Metrics, logger *slog.Logger) {
	metrics.RunsTotal.WithLabelValues(result.Status).Inc()
	metrics.RunDuration.Observe(float64(result.ElapsedMs) / 1000)
	if result.Status == "error" {
		logger.Error("orchestrator run failed", "error", result.Error)
	}
}
