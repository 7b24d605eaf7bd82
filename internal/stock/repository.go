package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	ProductExists(ctx context.Context, tenantID, productID int64) (bool, error)
	WarehouseExists(ctx context.Context, tenantID, warehouseID int64) (bool, error)
	GetBalanceForUpdate(ctx context.Context, tenantID, productID int64, warehouseID *int64) (Balance, error)
	UpsertBalance(ctx context.Context, bal Balance) error
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
	InsertLot(ctx context.Context, lot Lot) error
	ConsumeLots(ctx context.Context, tenantID, productID int64, warehouseID *int64, qty decimal.Decimal) (decimal.Decimal, decimal.Decimal, error)
	RefreshProductStock(ctx context.Context, tenantID, productID int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
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

const entryColumns = `id, tenant_id, product_id, warehouse_id, movement_type, quantity, unit_cost, total_cost, batch, lot, serial, expiry_date, reference_kind, reference_id, running_balance, note, occurred_at, created_by, created_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var qty, unitCost, totalCost, running string
	var refKind *string
	var refID *int64
	err := row.Scan(&e.ID, &e.TenantID, &e.ProductID, &e.WarehouseID, &e.Type,
		&qty, &unitCost, &totalCost, &e.Batch, &e.Lot, &e.Serial, &e.ExpiryDate,
		&refKind, &refID, &running, &e.Note, &e.OccurredAt, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	if e.Quantity, err = decimal.NewFromString(qty); err != nil {
		return Entry{}, err
	}
	if e.UnitCost, err = decimal.NewFromString(unitCost); err != nil {
		return Entry{}, err
	}
	if e.TotalCost, err = decimal.NewFromString(totalCost); err != nil {
		return Entry{}, err
	}
	if e.RunningBalance, err = decimal.NewFromString(running); err != nil {
		return Entry{}, err
	}
	if refKind != nil && refID != nil {
		e.Reference = &shared.DocumentRef{Kind: shared.DocumentKind(*refKind), ID: *refID}
	}
	return e, nil
}

func (t *txRepository) ProductExists(ctx context.Context, tenantID, productID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL)`,
		tenantID, productID).Scan(&exists)
	return exists, err
}

func (t *txRepository) WarehouseExists(ctx context.Context, tenantID, warehouseID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM warehouses WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL)`,
		tenantID, warehouseID).Scan(&exists)
	return exists, err
}

// GetBalanceForUpdate locks the balance row for the scope. The lock is the
// serialisation point for concurrent movements on the same product and
// warehouse.
func (t *txRepository) GetBalanceForUpdate(ctx context.Context, tenantID, productID int64, warehouseID *int64) (Balance, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT tenant_id, product_id, warehouse_id, quantity, avg_cost, updated_at
		FROM stock_balances
		WHERE tenant_id = $1 AND product_id = $2 AND warehouse_id IS NOT DISTINCT FROM $3
		FOR UPDATE`,
		tenantID, productID, warehouseID)
	return scanBalance(row)
}

func scanBalance(row pgx.Row) (Balance, error) {
	var b Balance
	var qty, avg string
	err := row.Scan(&b.TenantID, &b.ProductID, &b.WarehouseID, &qty, &avg, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	if b.Qty, err = decimal.NewFromString(qty); err != nil {
		return Balance{}, err
	}
	if b.AvgCost, err = decimal.NewFromString(avg); err != nil {
		return Balance{}, err
	}
	return b, nil
}

func (t *txRepository) UpsertBalance(ctx context.Context, bal Balance) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_balances (tenant_id, product_id, warehouse_id, quantity, avg_cost, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (tenant_id, product_id, warehouse_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, avg_cost = EXCLUDED.avg_cost, updated_at = NOW()`,
		bal.TenantID, bal.ProductID, bal.WarehouseID, bal.Qty.String(), bal.AvgCost.String())
	return err
}

func (t *txRepository) InsertEntry(ctx context.Context, entry Entry) (int64, error) {
	var refKind *string
	var refID *int64
	if entry.Reference != nil {
		kind := string(entry.Reference.Kind)
		refKind = &kind
		refID = &entry.Reference.ID
	}
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_entries
			(tenant_id, product_id, warehouse_id, movement_type, quantity, unit_cost, total_cost,
			 batch, lot, serial, expiry_date, reference_kind, reference_id, running_balance,
			 note, occurred_at, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
		RETURNING id`,
		entry.TenantID, entry.ProductID, entry.WarehouseID, entry.Type,
		entry.Quantity.String(), entry.UnitCost.String(), entry.TotalCost.String(),
		entry.Batch, entry.Lot, entry.Serial, entry.ExpiryDate,
		refKind, refID, entry.RunningBalance.String(),
		entry.Note, entry.OccurredAt, entry.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepository) InsertLot(ctx context.Context, lot Lot) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_lots (tenant_id, product_id, warehouse_id, qty_remaining, unit_cost, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		lot.TenantID, lot.ProductID, lot.WarehouseID, lot.QtyRemaining.String(), lot.UnitCost.String())
	return err
}

// ConsumeLots decrements open lots oldest first until qty is covered or the
// layers run out. Returns the quantity actually consumed and its total cost.
// The caller holds the scope's balance row lock, so lot rows for the scope are
// not contended.
func (t *txRepository) ConsumeLots(ctx context.Context, tenantID, productID int64, warehouseID *int64, qty decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, qty_remaining, unit_cost
		FROM stock_lots
		WHERE tenant_id = $1 AND product_id = $2 AND warehouse_id IS NOT DISTINCT FROM $3
		  AND qty_remaining > 0
		ORDER BY created_at, id
		FOR UPDATE`,
		tenantID, productID, warehouseID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	defer rows.Close()

	type layer struct {
		id        int64
		remaining decimal.Decimal
		unitCost  decimal.Decimal
	}
	var layers []layer
	for rows.Next() {
		var l layer
		var remaining, unitCost string
		if err := rows.Scan(&l.id, &remaining, &unitCost); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		if l.remaining, err = decimal.NewFromString(remaining); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		if l.unitCost, err = decimal.NewFromString(unitCost); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		layers = append(layers, l)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	consumed := decimal.Zero
	cost := decimal.Zero
	for _, l := range layers {
		if consumed.GreaterThanOrEqual(qty) {
			break
		}
		take := decimal.Min(l.remaining, qty.Sub(consumed))
		if _, err := t.tx.Exec(ctx,
			`UPDATE stock_lots SET qty_remaining = qty_remaining - $2 WHERE id = $1`,
			l.id, take.String()); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		consumed = consumed.Add(take)
		cost = cost.Add(take.Mul(l.unitCost))
	}
	return consumed, cost, nil
}

// RefreshProductStock rewrites the product's denormalised stock total from
// the balance rows. Derived state only; the ledger remains the source.
func (t *txRepository) RefreshProductStock(ctx context.Context, tenantID, productID int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE products
		SET current_stock = COALESCE((
			SELECT SUM(quantity) FROM stock_balances
			WHERE tenant_id = $1 AND product_id = $2), 0),
		    updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, productID)
	return err
}

// ListEntries returns stock card rows for a scope, oldest first.
func (r *Repository) ListEntries(ctx context.Context, tenantID int64, filter EntryFilter) ([]Entry, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + entryColumns + ` FROM stock_entries WHERE tenant_id = $1 AND product_id = $2`)
	args := []any{tenantID, filter.ProductID}
	if filter.WarehouseID != nil {
		args = append(args, *filter.WarehouseID)
		fmt.Fprintf(&sb, ` AND warehouse_id = $%d`, len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		fmt.Fprintf(&sb, ` AND occurred_at >= $%d`, len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		fmt.Fprintf(&sb, ` AND occurred_at <= $%d`, len(args))
	}
	sb.WriteString(` ORDER BY occurred_at, id`)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, sb.String(), args...)
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

// ScopeEntries returns every entry of a (product, warehouse) scope in ledger
// order, used by balance rebuilds.
func (r *Repository) ScopeEntries(ctx context.Context, tenantID, productID int64, warehouseID *int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM stock_entries
		WHERE tenant_id = $1 AND product_id = $2 AND warehouse_id IS NOT DISTINCT FROM $3
		ORDER BY occurred_at, id`,
		tenantID, productID, warehouseID)
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

// GetBalance reads the balance row for a scope without locking.
func (r *Repository) GetBalance(ctx context.Context, tenantID, productID int64, warehouseID *int64) (Balance, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT tenant_id, product_id, warehouse_id, quantity, avg_cost, updated_at
		FROM stock_balances
		WHERE tenant_id = $1 AND product_id = $2 AND warehouse_id IS NOT DISTINCT FROM $3`,
		tenantID, productID, warehouseID)
	bal, err := scanBalance(row)
	if errors.Is(err, ErrBalanceNotFound) {
		return Balance{TenantID: tenantID, ProductID: productID, WarehouseID: warehouseID,
			Qty: decimal.Zero, AvgCost: decimal.Zero}, nil
	}
	return bal, err
}

// SumBalances totals a product's quantity across all warehouses.
func (r *Repository) SumBalances(ctx context.Context, tenantID, productID int64) (decimal.Decimal, error) {
	return r.sumDecimal(ctx, `
		SELECT COALESCE(SUM(quantity), 0)::text
		FROM stock_balances
		WHERE tenant_id = $1 AND product_id = $2`,
		tenantID, productID)
}

// SumBalanceValue totals quantity times average cost across all warehouses.
func (r *Repository) SumBalanceValue(ctx context.Context, tenantID, productID int64) (decimal.Decimal, error) {
	return r.sumDecimal(ctx, `
		SELECT COALESCE(SUM(quantity * avg_cost), 0)::text
		FROM stock_balances
		WHERE tenant_id = $1 AND product_id = $2`,
		tenantID, productID)
}

// SumSignedQuantities replays signed quantities from the ledger for a scope.
func (r *Repository) SumSignedQuantities(ctx context.Context, tenantID, productID int64, warehouseID *int64) (decimal.Decimal, error) {
	return r.sumDecimal(ctx, `
		SELECT COALESCE(SUM(quantity), 0)::text
		FROM stock_entries
		WHERE tenant_id = $1 AND product_id = $2 AND warehouse_id IS NOT DISTINCT FROM $3`,
		tenantID, productID, warehouseID)
}

// LatestRunningBalance returns the running balance frozen on the newest entry
// for a scope, or zero when the scope has no entries.
func (r *Repository) LatestRunningBalance(ctx context.Context, tenantID, productID int64, warehouseID *int64) (decimal.Decimal, error) {
	var raw string
	err := r.pool.QueryRow(ctx, `
		SELECT running_balance::text
		FROM stock_entries
		WHERE tenant_id = $1 AND product_id = $2 AND warehouse_id IS NOT DISTINCT FROM $3
		ORDER BY occurred_at DESC, id DESC
		LIMIT 1`,
		tenantID, productID, warehouseID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// OpenLotsValue prices the remaining FIFO layers. A nil warehouseID prices
// every warehouse's open lots for the product.
func (r *Repository) OpenLotsValue(ctx context.Context, tenantID, productID int64, warehouseID *int64) (decimal.Decimal, error) {
	return r.sumDecimal(ctx, `
		SELECT COALESCE(SUM(qty_remaining * unit_cost), 0)::text
		FROM stock_lots
		WHERE tenant_id = $1 AND product_id = $2
		  AND ($3::bigint IS NULL OR warehouse_id IS NOT DISTINCT FROM $3)
		  AND qty_remaining > 0`,
		tenantID, productID, warehouseID)
}

// ListScopes enumerates every (product, warehouse) scope a tenant holds
// balances for, used by integrity scans.
func (r *Repository) ListScopes(ctx context.Context, tenantID int64) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tenant_id, product_id, warehouse_id, quantity, avg_cost, updated_at
		FROM stock_balances
		WHERE tenant_id = $1
		ORDER BY product_id, warehouse_id`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scopes []Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, b)
	}
	return scopes, rows.Err()
}

func (r *Repository) sumDecimal(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	var raw string
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}
