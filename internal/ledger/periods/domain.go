package periods

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// FiscalYear represents an accounting period window. Once closed the record
// is immutable and postings dated inside it are rejected.
type FiscalYear struct {
	ID        int64
	TenantID  int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
	IsClosed  bool
	ClosedAt  *time.Time
	ClosedBy  *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether the date falls inside [start, end].
func (fy FiscalYear) Contains(date time.Time) bool {
	d := date.Truncate(24 * time.Hour)
	return !d.Before(fy.StartDate) && !d.After(fy.EndDate)
}

var (
	// ErrFiscalYearNotFound indicates an unknown fiscal year id.
	ErrFiscalYearNotFound = shared.NewError(shared.KindNotFound, "periods: fiscal year not found")
	// ErrPeriodClosed blocks update or delete of a closed fiscal year.
	ErrPeriodClosed = shared.NewError(shared.KindConflict, "periods: fiscal year is closed")
	// ErrAlreadyClosed blocks closing a fiscal year twice.
	ErrAlreadyClosed = shared.NewError(shared.KindState, "periods: fiscal year already closed")
	// ErrNoOpenPeriod indicates no open fiscal year covers the date.
	ErrNoOpenPeriod = shared.NewError(shared.KindConflict, "periods: no open fiscal year covers the date")
	// ErrOverlappingPeriod indicates the window overlaps an existing fiscal year.
	ErrOverlappingPeriod = shared.NewError(shared.KindConflict, "periods: fiscal year overlaps an existing one")
)

// CreateInput groups fields for a new fiscal year.
type CreateInput struct {
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

// Validate checks structural constraints.
func (in CreateInput) Validate() error {
	if in.Name == "" {
		return shared.NewError(shared.KindValidation, "periods: name required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return shared.NewError(shared.KindValidation, "periods: start and end dates required")
	}
	if in.EndDate.Before(in.StartDate) {
		return shared.NewError(shared.KindValidation, "periods: end date precedes start date")
	}
	return nil
}

// UpdateInput groups mutable fiscal year fields.
type UpdateInput struct {
	ID        int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
}
