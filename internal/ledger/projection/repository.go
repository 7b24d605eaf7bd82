package projection

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
)

// Repository implements ReadRepository against PostgreSQL.
type Repository struct {
	pool     *pgxpool.Pool
	accounts *accounts.Repository
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, accounts: accounts.NewRepository(pool)}
}

// GetAccount loads an account.
func (r *Repository) GetAccount(ctx context.Context, tenantID, accountID int64) (accounts.Account, error) {
	return r.accounts.GetAccount(ctx, tenantID, accountID)
}

// ListAccounts returns the tenant's accounts.
func (r *Repository) ListAccounts(ctx context.Context, tenantID int64) ([]accounts.Account, error) {
	return r.accounts.ListAccounts(ctx, tenantID)
}

// SumPostedLines totals debit and credit over posted, non-void journal lines.
func (r *Repository) SumPostedLines(ctx context.Context, tenantID, accountID int64, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var debitStr, creditStr string
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(l.debit), 0)::text, COALESCE(SUM(l.credit), 0)::text
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.tenant_id=$1 AND l.account_id=$2 AND e.status='POSTED'
  AND ($3::timestamptz IS NULL OR e.entry_date <= $3)`,
		tenantID, accountID, asOf).Scan(&debitStr, &creditStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	debit, err := decimal.NewFromString(debitStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	credit, err := decimal.NewFromString(creditStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return debit, credit, nil
}

// UpdateBalanceCache refreshes the denormalised current_balance column.
func (r *Repository) UpdateBalanceCache(ctx context.Context, tenantID, accountID int64, balance decimal.Decimal) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE accounts SET current_balance=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		tenantID, accountID, balance)
	return err
}
