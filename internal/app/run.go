package app

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/wisbric/pdpsync/internal/orchestrator"
)

// runOnce performs exactly one orchestrator invocation and logs its result
// document: one-shot work, then return.
func runOnce(ctx context.Context, orch *orchestrator.Orchestrator, logger *slog.Logger) error {
	result := orch.Run(ctx)

	doc, err := json.Marshal(result)
	if err != nil {
		logger.Error("encoding run result", "error", err)
	} else {
		logger.Info("run complete", "result", string(doc))
	}

	if result.Status == "error" {
		logger.Error("run failed", "error", result.Error)
	}
	return nil
}
