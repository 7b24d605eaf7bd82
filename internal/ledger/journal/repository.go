package journal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger/periods"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists journal entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	NumberTaken(ctx context.Context, tenantID int64, number string, excludeEntryID int64) (bool, error)
	MissingAccounts(ctx context.Context, tenantID int64, accountIDs []int64) ([]int64, error)
	FindOpenPeriod(ctx context.Context, tenantID int64, date time.Time, lock bool) (int64, error)
	InsertEntry(ctx context.Context, tenantID, createdBy int64, in CreateInput) (Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) error
	GetEntryForUpdate(ctx context.Context, tenantID, entryID int64) (Entry, error)
	GetEntryWithLines(ctx context.Context, tenantID, entryID int64) (Entry, error)
	GetLines(ctx context.Context, entryID int64) ([]Line, error)
	UpdateEntryHeader(ctx context.Context, tenantID int64, in UpdateInput) error
	DeleteLines(ctx context.Context, entryID int64) error
	DeleteEntry(ctx context.Context, tenantID, entryID int64) error
	MarkPosted(ctx context.Context, tenantID, entryID, postedBy int64, postedAt time.Time) error
	MarkVoid(ctx context.Context, tenantID, entryID int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("journal repository not initialised")
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

const entryColumns = `id, tenant_id, number, entry_date, reference_kind, reference_id, memo, status, posted_by, posted_at, created_by, created_at, updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var refKind *string
	var refID *int64
	err := row.Scan(&e.ID, &e.TenantID, &e.Number, &e.Date, &refKind, &refID, &e.Memo,
		&e.Status, &e.PostedBy, &e.PostedAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	e.Reference = buildRef(refKind, refID)
	return e, nil
}

// GetEntry loads an entry with lines eager-loaded, outside a transaction.
func (r *Repository) GetEntry(ctx context.Context, tenantID, entryID int64) (Entry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		return Entry{}, err
	}
	lines, err := queryLines(ctx, r.pool, entryID)
	if err != nil {
		return Entry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

// ListEntries returns headers for the tenant, newest first.
func (r *Repository) ListEntries(ctx context.Context, tenantID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 ORDER BY entry_date DESC, id DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) NumberTaken(ctx context.Context, tenantID int64, number string, excludeEntryID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM journal_entries WHERE tenant_id=$1 AND number=$2 AND id <> $3)`,
		tenantID, number, excludeEntryID).Scan(&exists)
	return exists, err
}

func (r *txRepository) MissingAccounts(ctx context.Context, tenantID int64, accountIDs []int64) ([]int64, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT c.id FROM unnest($2::bigint[]) AS c(id)
WHERE NOT EXISTS (SELECT 1 FROM accounts a WHERE a.tenant_id=$1 AND a.id=c.id)`,
		tenantID, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var missing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	return missing, rows.Err()
}

func (r *txRepository) FindOpenPeriod(ctx context.Context, tenantID int64, date time.Time, lock bool) (int64, error) {
	query := `SELECT id FROM fiscal_years
WHERE tenant_id=$1 AND is_closed=FALSE AND $2 BETWEEN start_date AND end_date
ORDER BY start_date LIMIT 1`
	if lock {
		query += ` FOR UPDATE`
	}
	var id int64
	if err := r.tx.QueryRow(ctx, query, tenantID, date).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, periods.ErrNoOpenPeriod
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) InsertEntry(ctx context.Context, tenantID, createdBy int64, in CreateInput) (Entry, error) {
	var refKind *string
	var refID *int64
	if in.Reference != nil {
		kind := string(in.Reference.Kind)
		refKind = &kind
		refID = &in.Reference.ID
	}
	row := r.tx.QueryRow(ctx,
		`INSERT INTO journal_entries (tenant_id, number, entry_date, reference_kind, reference_id, memo, status, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+entryColumns,
		tenantID, in.Number, in.Date, refKind, refID, in.Memo, StatusDraft, createdBy)
	entry, err := scanEntry(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Entry{}, ErrDuplicateNumber
		}
		return Entry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for _, line := range lines {
		_, err := r.tx.Exec(ctx,
			`INSERT INTO journal_lines (entry_id, account_id, debit, credit, cost_center, memo)
VALUES ($1, $2, $3, $4, $5, $6)`,
			entryID, line.AccountID, line.Debit, line.Credit, line.CostCenter, line.Memo)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, tenantID, entryID int64) (Entry, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2 FOR UPDATE`,
		tenantID, entryID)
	return scanEntry(row)
}

func (r *txRepository) GetEntryWithLines(ctx context.Context, tenantID, entryID int64) (Entry, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		return Entry{}, err
	}
	lines, err := queryLines(ctx, r.tx, entryID)
	if err != nil {
		return Entry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *txRepository) GetLines(ctx context.Context, entryID int64) ([]Line, error) {
	return queryLines(ctx, r.tx, entryID)
}

func (r *txRepository) UpdateEntryHeader(ctx context.Context, tenantID int64, in UpdateInput) error {
	var refKind *string
	var refID *int64
	if in.Reference != nil {
		kind := string(in.Reference.Kind)
		refKind = &kind
		refID = &in.Reference.ID
	}
	tag, err := r.tx.Exec(ctx,
		`UPDATE journal_entries SET number=$3, entry_date=$4, reference_kind=$5, reference_id=$6, memo=$7, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2 AND status=$8`,
		tenantID, in.EntryID, in.Number, in.Date, refKind, refID, in.Memo, StatusDraft)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateNumber
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotEditable
	}
	return nil
}

func (r *txRepository) DeleteLines(ctx context.Context, entryID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, entryID)
	return err
}

func (r *txRepository) DeleteEntry(ctx context.Context, tenantID, entryID int64) error {
	tag, err := r.tx.Exec(ctx,
		`DELETE FROM journal_entries WHERE tenant_id=$1 AND id=$2 AND status=$3`,
		tenantID, entryID, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotEditable
	}
	return nil
}

func (r *txRepository) MarkPosted(ctx context.Context, tenantID, entryID, postedBy int64, postedAt time.Time) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE journal_entries SET status=$3, posted_by=$4, posted_at=$5, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2 AND status=$6`,
		tenantID, entryID, StatusPosted, postedBy, postedAt, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPostable
	}
	return nil
}

func (r *txRepository) MarkVoid(ctx context.Context, tenantID, entryID int64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE journal_entries SET status=$3, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2 AND status=$4`,
		tenantID, entryID, StatusVoid, StatusPosted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotVoidable
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, entryID int64) ([]Line, error) {
	rows, err := q.Query(ctx,
		`SELECT l.id, l.entry_id, l.account_id, a.code, a.name, l.debit, l.credit, l.cost_center, l.memo
FROM journal_lines l
JOIN accounts a ON a.id = l.account_id
WHERE l.entry_id=$1
ORDER BY l.id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.AccountCode, &line.AccountName,
			&line.Debit, &line.Credit, &line.CostCenter, &line.Memo); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func buildRef(kind *string, id *int64) *shared.DocumentRef {
	if kind == nil || id == nil {
		return nil
	}
	return &shared.DocumentRef{Kind: shared.DocumentKind(*kind), ID: *id}
}
