package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MovementRecordedEvent announces a new stock ledger entry for asynchronous
// consumers (product stock cache refresh, reporting invalidation).
type MovementRecordedEvent struct {
	TenantID       int64
	EntryID        int64
	ProductID      int64
	WarehouseID    *int64
	Type           MovementType
	Quantity       decimal.Decimal
	RunningBalance decimal.Decimal
	OccurredAt     time.Time
}

// EventSink receives stock ledger events.
type EventSink interface {
	StockMovementRecorded(ctx context.Context, evt MovementRecordedEvent) error
}
