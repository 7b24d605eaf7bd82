package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/ledger/projection"
)

// HandleProjectionRefresh returns the handler for TaskProjectionRefresh.
// Rebuilding is idempotent, so redelivery is harmless.
func HandleProjectionRefresh(projector *projection.Projector, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ProjectionRefreshPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if len(payload.AccountIDs) == 0 {
			if err := projector.RebuildAll(ctx, payload.TenantID); err != nil {
				logger.Error("projection refresh failed", slog.Int64("tenant_id", payload.TenantID), slog.Any("error", err))
				return err
			}
			return nil
		}
		for _, accountID := range payload.AccountIDs {
			if _, err := projector.Rebuild(ctx, payload.TenantID, accountID); err != nil {
				logger.Error("projection refresh failed",
					slog.Int64("tenant_id", payload.TenantID),
					slog.Int64("account_id", accountID),
					slog.Any("error", err))
				return err
			}
		}
		return nil
	}
}
