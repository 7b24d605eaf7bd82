package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
)

// PGRepository reads report aggregates from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// AccountMovements aggregates posted, non-void journal lines per active
// account. Movement before the range start is folded into the opening figure
// in the account's normal direction.
func (r *PGRepository) AccountMovements(ctx context.Context, tenantID int64, from *time.Time, to time.Time) ([]AccountBalance, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.code, a.name, a.type, a.opening_balance::text,
  COALESCE(SUM(l.debit) FILTER (WHERE e.entry_date < COALESCE($2::timestamptz, '-infinity')), 0)::text,
  COALESCE(SUM(l.credit) FILTER (WHERE e.entry_date < COALESCE($2::timestamptz, '-infinity')), 0)::text,
  COALESCE(SUM(l.debit) FILTER (WHERE e.entry_date >= COALESCE($2::timestamptz, '-infinity') AND e.entry_date <= $3), 0)::text,
  COALESCE(SUM(l.credit) FILTER (WHERE e.entry_date >= COALESCE($2::timestamptz, '-infinity') AND e.entry_date <= $3), 0)::text
FROM accounts a
LEFT JOIN journal_lines l ON l.account_id = a.id
LEFT JOIN journal_entries e ON e.id = l.entry_id AND e.status = 'POSTED'
WHERE a.tenant_id=$1 AND a.is_active
GROUP BY a.id, a.code, a.name, a.type, a.opening_balance
ORDER BY a.code`,
		tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountBalance
	for rows.Next() {
		var row AccountBalance
		var opening, priorDebit, priorCredit, rngDebit, rngCredit string
		if err := rows.Scan(&row.AccountID, &row.Code, &row.Name, &row.Type,
			&opening, &priorDebit, &priorCredit, &rngDebit, &rngCredit); err != nil {
			return nil, err
		}
		openingDec, err := decimal.NewFromString(opening)
		if err != nil {
			return nil, err
		}
		pd, err := decimal.NewFromString(priorDebit)
		if err != nil {
			return nil, err
		}
		pc, err := decimal.NewFromString(priorCredit)
		if err != nil {
			return nil, err
		}
		if row.Debit, err = decimal.NewFromString(rngDebit); err != nil {
			return nil, err
		}
		if row.Credit, err = decimal.NewFromString(rngCredit); err != nil {
			return nil, err
		}
		row.Opening = foldOpening(row.Type, openingDec, pd, pc)
		out = append(out, row)
	}
	return out, rows.Err()
}

func foldOpening(t accounts.AccountType, opening, priorDebit, priorCredit decimal.Decimal) decimal.Decimal {
	if t.DebitNormal() {
		return opening.Add(priorDebit).Sub(priorCredit)
	}
	return opening.Add(priorCredit).Sub(priorDebit)
}
