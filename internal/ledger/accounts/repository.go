package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the chart of accounts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetAccount(ctx context.Context, tenantID, id int64) (Account, error)
	GetAccountByCode(ctx context.Context, tenantID int64, code string) (Account, error)
	InsertAccount(ctx context.Context, tenantID int64, in CreateInput) (Account, error)
	UpdateAccount(ctx context.Context, tenantID int64, in UpdateInput) (Account, error)
	DeleteAccount(ctx context.Context, tenantID, id int64) error
	HasChildren(ctx context.Context, tenantID, id int64) (bool, error)
	HasJournalActivity(ctx context.Context, tenantID, id int64) (bool, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounts repository not initialised")
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

const accountColumns = `id, tenant_id, code, name, type, parent_id, opening_balance, current_balance, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.ParentID,
		&a.OpeningBalance, &a.CurrentBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// GetAccount loads a single account outside a transaction.
func (r *Repository) GetAccount(ctx context.Context, tenantID, id int64) (Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return scanAccount(row)
}

// ListAccounts returns the tenant's accounts ordered by code.
func (r *Repository) ListAccounts(ctx context.Context, tenantID int64) ([]Account, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) GetAccount(ctx context.Context, tenantID, id int64) (Account, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return scanAccount(row)
}

func (r *txRepository) GetAccountByCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code)
	return scanAccount(row)
}

func (r *txRepository) InsertAccount(ctx context.Context, tenantID int64, in CreateInput) (Account, error) {
	row := r.tx.QueryRow(ctx,
		`INSERT INTO accounts (tenant_id, code, name, type, parent_id, opening_balance, current_balance, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $6, TRUE)
RETURNING `+accountColumns,
		tenantID, in.Code, in.Name, in.Type, in.ParentID, in.OpeningBalance)
	acc, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateCode
		}
		return Account{}, err
	}
	return acc, nil
}

func (r *txRepository) UpdateAccount(ctx context.Context, tenantID int64, in UpdateInput) (Account, error) {
	row := r.tx.QueryRow(ctx,
		`UPDATE accounts SET code=$3, name=$4, parent_id=$5, is_active=$6, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2
RETURNING `+accountColumns,
		tenantID, in.ID, in.Code, in.Name, in.ParentID, in.IsActive)
	acc, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateCode
		}
		return Account{}, err
	}
	return acc, nil
}

func (r *txRepository) DeleteAccount(ctx context.Context, tenantID, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) HasChildren(ctx context.Context, tenantID, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE tenant_id=$1 AND parent_id=$2)`, tenantID, id).Scan(&exists)
	return exists, err
}

func (r *txRepository) HasJournalActivity(ctx context.Context, tenantID, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx,
		`SELECT EXISTS (
  SELECT 1 FROM journal_lines l
  JOIN journal_entries e ON e.id = l.entry_id
  WHERE e.tenant_id=$1 AND l.account_id=$2)`, tenantID, id).Scan(&exists)
	return exists, err
}
