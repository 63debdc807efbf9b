package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gatekit/gatekit/internal/jobs"
	"github.com/gatekit/gatekit/internal/registry"
)

// NewAuditPruneHandler returns the handler for TaskAuditPrune tasks. Events
// older than the payload's retention window are deleted.
func NewAuditPruneHandler(pruner registry.EventPruner, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuditPrunePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Retention <= 0 {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("audit_prune")
		cutoff := time.Now().UTC().Add(-payload.Retention)
		pruned, err := pruner.PruneEvents(ctx, cutoff)
		if err != nil {
			logger.Error("audit prune", slog.Any("error", err))
			return tracker.End(err)
		}
		metrics.AddPruned(pruned)
		logger.Info("audit prune completed",
			slog.Time("cutoff", cutoff),
			slog.Int64("pruned", pruned))
		return tracker.End(nil)
	}
}
