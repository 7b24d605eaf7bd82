package reports

import (
	"context"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository exposes the aggregate queries the report engine reads.
// Reporting never mutates ledger state.
type Repository interface {
	// AccountMovements returns, for every active account, the opening balance
	// at the range start (opening column plus posted movement before from)
	// and the posted, non-void debit/credit sums inside [from, to]. A nil
	// from treats the account opening column as the starting point.
	AccountMovements(ctx context.Context, tenantID int64, from *time.Time, to time.Time) ([]AccountBalance, error)
}

// Service composes projector outputs into financial statements.
type Service struct {
	repo Repository
}

// NewService constructs the report engine.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// TrialBalance builds the trial balance over a date range.
func (s *Service) TrialBalance(ctx context.Context, id shared.Identity, from, to time.Time) (TrialBalance, error) {
	if err := id.Validate(); err != nil {
		return TrialBalance{}, err
	}
	rows, err := s.repo.AccountMovements(ctx, id.TenantID, &from, to)
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(rows), nil
}

// ProfitAndLoss nets revenue against expense over a date range.
func (s *Service) ProfitAndLoss(ctx context.Context, id shared.Identity, from, to time.Time) (ProfitAndLoss, error) {
	if err := id.Validate(); err != nil {
		return ProfitAndLoss{}, err
	}
	rows, err := s.repo.AccountMovements(ctx, id.TenantID, &from, to)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	return BuildProfitAndLoss(rows), nil
}

// BalanceSheet shows the financial position as of a single date.
func (s *Service) BalanceSheet(ctx context.Context, id shared.Identity, asOf time.Time) (BalanceSheet, error) {
	if err := id.Validate(); err != nil {
		return BalanceSheet{}, err
	}
	rows, err := s.repo.AccountMovements(ctx, id.TenantID, nil, asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	return BuildBalanceSheet(rows), nil
}
