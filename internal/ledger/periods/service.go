package periods

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetFiscalYear(ctx context.Context, tenantID, id int64) (FiscalYear, error)
	ListFiscalYears(ctx context.Context, tenantID int64) ([]FiscalYear, error)
	FindOpenByDate(ctx context.Context, tenantID int64, date time.Time) (FiscalYear, error)
}

// AuditPort records period changes for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates fiscal year maintenance and close.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	sink  EventSink
	now   func() time.Time
}

// NewService constructs the tracker service.
func NewService(repo RepositoryPort, audit AuditPort, sink EventSink) *Service {
	return &Service{repo: repo, audit: audit, sink: sink, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create persists a new open fiscal year after overlap checks.
func (s *Service) Create(ctx context.Context, id shared.Identity, input CreateInput) (FiscalYear, error) {
	if err := id.Validate(); err != nil {
		return FiscalYear{}, err
	}
	if err := input.Validate(); err != nil {
		return FiscalYear{}, err
	}
	var created FiscalYear
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		overlaps, err := tx.Overlaps(ctx, id.TenantID, input.StartDate, input.EndDate, 0)
		if err != nil {
			return err
		}
		if overlaps {
			return ErrOverlappingPeriod
		}
		created, err = tx.InsertFiscalYear(ctx, id.TenantID, input)
		return err
	})
	if err != nil {
		return FiscalYear{}, err
	}
	s.record(ctx, id, "fiscal_year.create", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// Update changes an open fiscal year. Closed years are immutable.
func (s *Service) Update(ctx context.Context, id shared.Identity, input UpdateInput) (FiscalYear, error) {
	if err := id.Validate(); err != nil {
		return FiscalYear{}, err
	}
	if input.ID == 0 {
		return FiscalYear{}, shared.NewError(shared.KindValidation, "periods: fiscal year id required")
	}
	if err := (CreateInput{Name: input.Name, StartDate: input.StartDate, EndDate: input.EndDate}).Validate(); err != nil {
		return FiscalYear{}, err
	}
	var updated FiscalYear
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetFiscalYearForUpdate(ctx, id.TenantID, input.ID)
		if err != nil {
			return err
		}
		if current.IsClosed {
			return ErrPeriodClosed
		}
		overlaps, err := tx.Overlaps(ctx, id.TenantID, input.StartDate, input.EndDate, input.ID)
		if err != nil {
			return err
		}
		if overlaps {
			return ErrOverlappingPeriod
		}
		updated, err = tx.UpdateFiscalYear(ctx, id.TenantID, input)
		return err
	})
	if err != nil {
		return FiscalYear{}, err
	}
	s.record(ctx, id, "fiscal_year.update", updated.ID, map[string]any{"name": updated.Name})
	return updated, nil
}

// Delete removes an open fiscal year. Closed years are immutable.
func (s *Service) Delete(ctx context.Context, id shared.Identity, fiscalYearID int64) error {
	if err := id.Validate(); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetFiscalYearForUpdate(ctx, id.TenantID, fiscalYearID)
		if err != nil {
			return err
		}
		if current.IsClosed {
			return ErrPeriodClosed
		}
		return tx.DeleteFiscalYear(ctx, id.TenantID, fiscalYearID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, id, "fiscal_year.delete", fiscalYearID, nil)
	return nil
}

// Close flips the fiscal year to closed, irreversibly, and emits
// FiscalYearClosed for downstream close-out procedures.
func (s *Service) Close(ctx context.Context, id shared.Identity, fiscalYearID int64) (FiscalYear, error) {
	if err := id.Validate(); err != nil {
		return FiscalYear{}, err
	}
	var closed FiscalYear
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetFiscalYearForUpdate(ctx, id.TenantID, fiscalYearID)
		if err != nil {
			return err
		}
		if current.IsClosed {
			return ErrAlreadyClosed
		}
		closed, err = tx.CloseFiscalYear(ctx, id.TenantID, fiscalYearID, id.UserID, s.now())
		return err
	})
	if err != nil {
		return FiscalYear{}, err
	}
	if s.sink != nil {
		_ = s.sink.FiscalYearClosed(ctx, FiscalYearClosedEvent{
			TenantID:     id.TenantID,
			FiscalYearID: closed.ID,
			Name:         closed.Name,
			StartDate:    closed.StartDate,
			EndDate:      closed.EndDate,
			ClosedBy:     id.UserID,
			ClosedAt:     s.now(),
		})
	}
	s.record(ctx, id, "fiscal_year.close", closed.ID, map[string]any{"name": closed.Name})
	return closed, nil
}

// Get returns a fiscal year by id.
func (s *Service) Get(ctx context.Context, id shared.Identity, fiscalYearID int64) (FiscalYear, error) {
	if err := id.Validate(); err != nil {
		return FiscalYear{}, err
	}
	return s.repo.GetFiscalYear(ctx, id.TenantID, fiscalYearID)
}

// List returns the tenant's fiscal years ordered by start date.
func (s *Service) List(ctx context.Context, id shared.Identity) ([]FiscalYear, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListFiscalYears(ctx, id.TenantID)
}

// FindOpenByDate returns the open fiscal year covering the date.
func (s *Service) FindOpenByDate(ctx context.Context, id shared.Identity, date time.Time) (FiscalYear, error) {
	if err := id.Validate(); err != nil {
		return FiscalYear{}, err
	}
	return s.repo.FindOpenByDate(ctx, id.TenantID, date)
}

func (s *Service) record(ctx context.Context, id shared.Identity, action string, fiscalYearID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: id.TenantID,
		ActorID:  id.UserID,
		Action:   action,
		Entity:   "fiscal_year",
		EntityID: fmt.Sprintf("%d", fiscalYearID),
		Meta:     meta,
		At:       s.now(),
	})
}
