package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists fiscal years in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetFiscalYearForUpdate(ctx context.Context, tenantID, id int64) (FiscalYear, error)
	InsertFiscalYear(ctx context.Context, tenantID int64, in CreateInput) (FiscalYear, error)
	UpdateFiscalYear(ctx context.Context, tenantID int64, in UpdateInput) (FiscalYear, error)
	DeleteFiscalYear(ctx context.Context, tenantID, id int64) error
	CloseFiscalYear(ctx context.Context, tenantID, id, closedBy int64, closedAt time.Time) (FiscalYear, error)
	Overlaps(ctx context.Context, tenantID int64, start, end time.Time, excludeID int64) (bool, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("periods repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const fiscalYearColumns = `id, tenant_id, name, start_date, end_date, is_closed, closed_at, closed_by, created_at, updated_at`

func scanFiscalYear(row pgx.Row) (FiscalYear, error) {
	var fy FiscalYear
	err := row.Scan(&fy.ID, &fy.TenantID, &fy.Name, &fy.StartDate, &fy.EndDate,
		&fy.IsClosed, &fy.ClosedAt, &fy.ClosedBy, &fy.CreatedAt, &fy.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, ErrFiscalYearNotFound
		}
		return FiscalYear{}, err
	}
	return fy, nil
}

// GetFiscalYear loads a fiscal year outside a transaction.
func (r *Repository) GetFiscalYear(ctx context.Context, tenantID, id int64) (FiscalYear, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+fiscalYearColumns+` FROM fiscal_years WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return scanFiscalYear(row)
}

// ListFiscalYears returns the tenant's fiscal years ordered by start date.
func (r *Repository) ListFiscalYears(ctx context.Context, tenantID int64) ([]FiscalYear, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+fiscalYearColumns+` FROM fiscal_years WHERE tenant_id=$1 ORDER BY start_date`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var years []FiscalYear
	for rows.Next() {
		fy, err := scanFiscalYear(rows)
		if err != nil {
			return nil, err
		}
		years = append(years, fy)
	}
	return years, rows.Err()
}

// FindOpenByDate returns the open fiscal year whose window contains the date.
func (r *Repository) FindOpenByDate(ctx context.Context, tenantID int64, date time.Time) (FiscalYear, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+fiscalYearColumns+` FROM fiscal_years
WHERE tenant_id=$1 AND is_closed=FALSE AND $2 BETWEEN start_date AND end_date
ORDER BY start_date LIMIT 1`, tenantID, date)
	fy, err := scanFiscalYear(row)
	if err != nil {
		if errors.Is(err, ErrFiscalYearNotFound) {
			return FiscalYear{}, ErrNoOpenPeriod
		}
		return FiscalYear{}, err
	}
	return fy, nil
}

func (r *txRepository) GetFiscalYearForUpdate(ctx context.Context, tenantID, id int64) (FiscalYear, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+fiscalYearColumns+` FROM fiscal_years WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	return scanFiscalYear(row)
}

func (r *txRepository) InsertFiscalYear(ctx context.Context, tenantID int64, in CreateInput) (FiscalYear, error) {
	row := r.tx.QueryRow(ctx,
		`INSERT INTO fiscal_years (tenant_id, name, start_date, end_date, is_closed)
VALUES ($1, $2, $3, $4, FALSE)
RETURNING `+fiscalYearColumns,
		tenantID, in.Name, in.StartDate, in.EndDate)
	return scanFiscalYear(row)
}

func (r *txRepository) UpdateFiscalYear(ctx context.Context, tenantID int64, in UpdateInput) (FiscalYear, error) {
	row := r.tx.QueryRow(ctx,
		`UPDATE fiscal_years SET name=$3, start_date=$4, end_date=$5, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2 AND is_closed=FALSE
RETURNING `+fiscalYearColumns,
		tenantID, in.ID, in.Name, in.StartDate, in.EndDate)
	return scanFiscalYear(row)
}

func (r *txRepository) DeleteFiscalYear(ctx context.Context, tenantID, id int64) error {
	tag, err := r.tx.Exec(ctx,
		`DELETE FROM fiscal_years WHERE tenant_id=$1 AND id=$2 AND is_closed=FALSE`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFiscalYearNotFound
	}
	return nil
}

func (r *txRepository) CloseFiscalYear(ctx context.Context, tenantID, id, closedBy int64, closedAt time.Time) (FiscalYear, error) {
	row := r.tx.QueryRow(ctx,
		`UPDATE fiscal_years SET is_closed=TRUE, closed_at=$3, closed_by=$4, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2 AND is_closed=FALSE
RETURNING `+fiscalYearColumns,
		tenantID, id, closedAt, closedBy)
	return scanFiscalYear(row)
}

func (r *txRepository) Overlaps(ctx context.Context, tenantID int64, start, end time.Time, excludeID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx,
		`SELECT EXISTS (
  SELECT 1 FROM fiscal_years
  WHERE tenant_id=$1 AND id <> $4 AND start_date <= $3 AND end_date >= $2)`,
		tenantID, start, end, excludeID).Scan(&exists)
	return exists, err
}
