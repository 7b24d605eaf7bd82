package periods

import (
	"context"
	"time"
)

// FiscalYearClosedEvent announces an irreversible close for downstream
// close-out procedures.
type FiscalYearClosedEvent struct {
	TenantID     int64
	FiscalYearID int64
	Name         string
	StartDate    time.Time
	EndDate      time.Time
	ClosedBy     int64
	ClosedAt     time.Time
}

// EventSink receives fiscal year lifecycle events.
type EventSink interface {
	FiscalYearClosed(ctx context.Context, evt FiscalYearClosedEvent) error
}
