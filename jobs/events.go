package jobs

import (
	"context"
	"log/slog"

	"github.com/meridian-erp/meridian-erp/internal/ledger/journal"
	"github.com/meridian-erp/meridian-erp/internal/ledger/periods"
	"github.com/meridian-erp/meridian-erp/internal/ledger/projection"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// EventSink converts domain events into cache invalidation plus queued
// follow-up work. Events fire after commit; a lost event degrades freshness,
// never correctness, because every consumer rebuilds from the ledger.
type EventSink struct {
	client    *Client
	projector *projection.Projector
	logger    *slog.Logger
}

// NewEventSink constructs EventSink. Client may be nil in tests.
func NewEventSink(client *Client, projector *projection.Projector, logger *slog.Logger) *EventSink {
	return &EventSink{client: client, projector: projector, logger: logger}
}

// JournalEntryPosted invalidates affected balances and queues a refresh.
func (s *EventSink) JournalEntryPosted(ctx context.Context, evt journal.PostedEvent) error {
	if s.projector != nil {
		s.projector.Invalidate(ctx, evt.TenantID, evt.Accounts...)
	}
	return s.enqueueRefresh(ctx, evt.TenantID, evt.Accounts)
}

// JournalEntryVoided invalidates affected balances and queues a refresh.
func (s *EventSink) JournalEntryVoided(ctx context.Context, evt journal.VoidedEvent) error {
	if s.projector != nil {
		s.projector.Invalidate(ctx, evt.TenantID, evt.Accounts...)
	}
	return s.enqueueRefresh(ctx, evt.TenantID, evt.Accounts)
}

// FiscalYearClosed queues the close-out procedure.
func (s *EventSink) FiscalYearClosed(ctx context.Context, evt periods.FiscalYearClosedEvent) error {
	if s.client == nil {
		return nil
	}
	task, err := NewFiscalYearCloseoutTask(FiscalYearCloseoutPayload{
		TenantID:     evt.TenantID,
		FiscalYearID: evt.FiscalYearID,
	})
	if err != nil {
		return err
	}
	if _, err := s.client.Enqueue(ctx, task); err != nil {
		s.logger.Warn("enqueue fiscal year closeout", slog.Int64("fiscal_year_id", evt.FiscalYearID), slog.Any("error", err))
	}
	return nil
}

// StockMovementRecorded logs the movement; stock balances are maintained
// synchronously under the scope lock, so nothing needs refreshing here.
func (s *EventSink) StockMovementRecorded(ctx context.Context, evt stock.MovementRecordedEvent) error {
	if s.logger != nil {
		s.logger.Debug("stock movement recorded",
			slog.Int64("tenant_id", evt.TenantID),
			slog.Int64("entry_id", evt.EntryID),
			slog.String("type", string(evt.Type)))
	}
	return nil
}

func (s *EventSink) enqueueRefresh(ctx context.Context, tenantID int64, accountIDs []int64) error {
	if s.client == nil {
		return nil
	}
	task, err := NewProjectionRefreshTask(ProjectionRefreshPayload{TenantID: tenantID, AccountIDs: accountIDs})
	if err != nil {
		return err
	}
	if _, err := s.client.Enqueue(ctx, task); err != nil {
		s.logger.Warn("enqueue projection refresh", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
	}
	return nil
}
