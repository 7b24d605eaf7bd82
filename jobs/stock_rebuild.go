package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// HandleStockRebuild returns the handler for TaskStockRebuild.
func HandleStockRebuild(service *stock.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload StockRebuildPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		id := shared.Identity{TenantID: payload.TenantID}
		bal, err := service.RebuildBalance(ctx, id, payload.ProductID, payload.WarehouseID)
		if err != nil {
			logger.Error("stock rebuild failed",
				slog.Int64("tenant_id", payload.TenantID),
				slog.Int64("product_id", payload.ProductID),
				slog.Any("error", err))
			return err
		}
		logger.Info("stock balance rebuilt",
			slog.Int64("product_id", payload.ProductID),
			slog.String("qty", bal.Qty.String()))
		return nil
	}
}

// HandleIdempotencyCleanup returns the handler for TaskIdempotencyCleanup.
func HandleIdempotencyCleanup(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := store.Cleanup(ctx, retention); err != nil {
			logger.Error("idempotency cleanup failed", slog.Any("error", err))
			return err
		}
		return nil
	}
}
