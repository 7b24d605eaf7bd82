package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/ledger/projection"
)

// HandleFiscalYearCloseout returns the handler for TaskFiscalYearCloseout.
// After a close the period's postings are final, so every cached balance of
// the tenant is rebuilt once to a stable value.
func HandleFiscalYearCloseout(projector *projection.Projector, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload FiscalYearCloseoutPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("fiscal year closeout",
			slog.Int64("tenant_id", payload.TenantID),
			slog.Int64("fiscal_year_id", payload.FiscalYearID))
		if err := projector.RebuildAll(ctx, payload.TenantID); err != nil {
			logger.Error("closeout rebuild failed", slog.Int64("tenant_id", payload.TenantID), slog.Any("error", err))
			return err
		}
		return nil
	}
}
