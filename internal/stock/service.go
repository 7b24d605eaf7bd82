package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListEntries(ctx context.Context, tenantID int64, filter EntryFilter) ([]Entry, error)
	GetBalance(ctx context.Context, tenantID, productID int64, warehouseID *int64) (Balance, error)
	SumBalances(ctx context.Context, tenantID, productID int64) (decimal.Decimal, error)
	SumBalanceValue(ctx context.Context, tenantID, productID int64) (decimal.Decimal, error)
	SumSignedQuantities(ctx context.Context, tenantID, productID int64, warehouseID *int64) (decimal.Decimal, error)
	LatestRunningBalance(ctx context.Context, tenantID, productID int64, warehouseID *int64) (decimal.Decimal, error)
	OpenLotsValue(ctx context.Context, tenantID, productID int64, warehouseID *int64) (decimal.Decimal, error)
	ScopeEntries(ctx context.Context, tenantID, productID int64, warehouseID *int64) ([]Entry, error)
}

// AuditPort records stock ledger activity for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards document-referenced movements against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, tenantID int64, key, module string) error
	Delete(ctx context.Context, tenantID int64, key string) error
}

// Metrics counts stock ledger activity.
type Metrics interface {
	StockMovement(movementType string)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// AllowNegativeStock disables the insufficient-stock guard. Off by
	// default; the guard applies to every outbound call site uniformly.
	AllowNegativeStock bool
	// Costing selects the valuation strategy for outbound movements.
	Costing CostingMethod
}

// Service coordinates stock ledger operations.
type Service struct {
	repo          RepositoryPort
	audit         AuditPort
	idempotency   IdempotencyPort
	sink          EventSink
	metrics       Metrics
	allowNegative bool
	costing       CostingMethod
	now           func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, sink EventSink, metrics Metrics, cfg ServiceConfig) *Service {
	return &Service{
		repo:          repo,
		audit:         audit,
		idempotency:   idem,
		sink:          sink,
		metrics:       metrics,
		allowNegative: cfg.AllowNegativeStock,
		costing:       cfg.Costing,
		now:           time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// RecordMovement appends one movement to the stock ledger. The signed
// quantity, unit cost, total cost and running balance are computed and frozen
// at insertion time under a per-scope row lock.
func (s *Service) RecordMovement(ctx context.Context, id shared.Identity, input MovementInput) (Entry, error) {
	if err := id.Validate(); err != nil {
		return Entry{}, err
	}
	if err := input.Validate(); err != nil {
		return Entry{}, err
	}

	insertedKey := false
	var key string
	if s.idempotency != nil && input.Reference != nil {
		key = fmt.Sprintf("stock:%s:%s", input.Type, input.Reference)
		if err := s.idempotency.CheckAndInsert(ctx, id.TenantID, key, "stock"); err != nil {
			return Entry{}, err
		}
		insertedKey = true
	}

	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.recordLocked(ctx, tx, id, input)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, id.TenantID, key)
		}
		return Entry{}, err
	}
	s.afterMovement(ctx, id, entry)
	return entry, nil
}

// Transfer atomically records a transfer-out at the source and a transfer-in
// at the destination. The inbound entry references the outbound entry's id;
// both succeed or both fail.
func (s *Service) Transfer(ctx context.Context, id shared.Identity, input TransferInput) (Entry, Entry, error) {
	if err := id.Validate(); err != nil {
		return Entry{}, Entry{}, err
	}
	if input.ProductID == 0 {
		return Entry{}, Entry{}, shared.NewError(shared.KindValidation, "stock: product required")
	}
	if input.FromWarehouse == 0 || input.ToWarehouse == 0 {
		return Entry{}, Entry{}, shared.NewError(shared.KindValidation, "stock: source and destination warehouse required")
	}
	if input.FromWarehouse == input.ToWarehouse {
		return Entry{}, Entry{}, ErrSameWarehouse
	}
	if !input.Quantity.IsPositive() {
		return Entry{}, Entry{}, ErrInvalidQuantity
	}

	var outEntry, inEntry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		src := input.FromWarehouse
		dst := input.ToWarehouse
		var err error
		outEntry, err = s.recordLocked(ctx, tx, id, MovementInput{
			ProductID:   input.ProductID,
			WarehouseID: &src,
			Type:        MovementTransferOut,
			Quantity:    input.Quantity,
			Note:        input.Note,
			OccurredAt:  input.OccurredAt,
		})
		if err != nil {
			return err
		}
		inEntry, err = s.recordLocked(ctx, tx, id, MovementInput{
			ProductID:   input.ProductID,
			WarehouseID: &dst,
			Type:        MovementTransferIn,
			Quantity:    input.Quantity,
			UnitCost:    outEntry.UnitCost,
			Reference:   &shared.DocumentRef{Kind: shared.DocumentKindStockEntry, ID: outEntry.ID},
			Note:        input.Note,
			OccurredAt:  input.OccurredAt,
		})
		return err
	})
	if err != nil {
		return Entry{}, Entry{}, err
	}
	s.afterMovement(ctx, id, outEntry)
	s.afterMovement(ctx, id, inEntry)
	return outEntry, inEntry, nil
}

// Adjust derives the movement type from the sign of the input quantity and
// records the absolute value.
func (s *Service) Adjust(ctx context.Context, id shared.Identity, input AdjustmentInput) (Entry, error) {
	movementType := MovementAdjustmentIn
	qty := input.Quantity
	if qty.IsNegative() {
		movementType = MovementAdjustmentOut
		qty = qty.Abs()
	}
	return s.RecordMovement(ctx, id, MovementInput{
		ProductID:   input.ProductID,
		WarehouseID: input.WarehouseID,
		Type:        movementType,
		Quantity:    qty,
		UnitCost:    input.UnitCost,
		Note:        input.Reason,
		OccurredAt:  input.OccurredAt,
	})
}

// CurrentBalance returns the running balance for (product, warehouse), or the
// total across warehouses when warehouseID is nil.
func (s *Service) CurrentBalance(ctx context.Context, id shared.Identity, productID int64, warehouseID *int64) (decimal.Decimal, error) {
	if err := id.Validate(); err != nil {
		return decimal.Zero, err
	}
	if warehouseID == nil {
		return s.repo.SumBalances(ctx, id.TenantID, productID)
	}
	bal, err := s.repo.GetBalance(ctx, id.TenantID, productID, warehouseID)
	if err != nil {
		return decimal.Zero, err
	}
	return bal.Qty, nil
}

// Valuation prices the current holding using the configured costing method.
// A nil warehouseID aggregates across warehouses, mirroring CurrentBalance.
func (s *Service) Valuation(ctx context.Context, id shared.Identity, productID int64, warehouseID *int64) (decimal.Decimal, error) {
	if err := id.Validate(); err != nil {
		return decimal.Zero, err
	}
	if s.costing == FIFO {
		return s.repo.OpenLotsValue(ctx, id.TenantID, productID, warehouseID)
	}
	if warehouseID == nil {
		return s.repo.SumBalanceValue(ctx, id.TenantID, productID)
	}
	bal, err := s.repo.GetBalance(ctx, id.TenantID, productID, warehouseID)
	if err != nil {
		return decimal.Zero, err
	}
	return bal.Qty.Mul(bal.AvgCost), nil
}

// StockCard lists ledger entries for a scope, oldest first.
func (s *Service) StockCard(ctx context.Context, id shared.Identity, filter EntryFilter) ([]Entry, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if filter.ProductID == 0 {
		return nil, shared.NewError(shared.KindValidation, "stock: product required")
	}
	return s.repo.ListEntries(ctx, id.TenantID, filter)
}

// RebuildBalance replays a scope's entries and rewrites the derived balance
// row. The documented recovery path when a cache is suspect.
func (s *Service) RebuildBalance(ctx context.Context, id shared.Identity, productID int64, warehouseID *int64) (Balance, error) {
	if err := id.Validate(); err != nil {
		return Balance{}, err
	}
	entries, err := s.repo.ScopeEntries(ctx, id.TenantID, productID, warehouseID)
	if err != nil {
		return Balance{}, err
	}
	bal := Balance{TenantID: id.TenantID, ProductID: productID, WarehouseID: warehouseID,
		Qty: decimal.Zero, AvgCost: decimal.Zero}
	for _, e := range entries {
		if e.Quantity.IsPositive() {
			bal.AvgCost = inboundAverage(bal, e.Quantity, e.UnitCost)
		} else if bal.Qty.Add(e.Quantity).IsZero() {
			bal.AvgCost = decimal.Zero
		}
		bal.Qty = bal.Qty.Add(e.Quantity)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetBalanceForUpdate(ctx, id.TenantID, productID, warehouseID); err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}
		if err := tx.UpsertBalance(ctx, bal); err != nil {
			return err
		}
		return tx.RefreshProductStock(ctx, id.TenantID, productID)
	})
	if err != nil {
		return Balance{}, err
	}
	return bal, nil
}

// VerifyScope replays signed quantities and compares them with the latest
// frozen running balance. Any divergence is an integrity violation.
func (s *Service) VerifyScope(ctx context.Context, id shared.Identity, productID int64, warehouseID *int64) error {
	if err := id.Validate(); err != nil {
		return err
	}
	replayed, err := s.repo.SumSignedQuantities(ctx, id.TenantID, productID, warehouseID)
	if err != nil {
		return err
	}
	latest, err := s.repo.LatestRunningBalance(ctx, id.TenantID, productID, warehouseID)
	if err != nil {
		return err
	}
	if !replayed.Equal(latest) {
		return shared.Integrityf("stock: product %d running balance %s diverges from replay %s",
			productID, latest.String(), replayed.String())
	}
	return nil
}

// recordLocked performs the read-then-write movement sequence against an
// already-open transaction. The balance row lock serialises writers per
// (product, warehouse) scope.
func (s *Service) recordLocked(ctx context.Context, tx TxRepository, id shared.Identity, input MovementInput) (Entry, error) {
	if err := input.Validate(); err != nil {
		return Entry{}, err
	}
	exists, err := tx.ProductExists(ctx, id.TenantID, input.ProductID)
	if err != nil {
		return Entry{}, err
	}
	if !exists {
		return Entry{}, fmt.Errorf("%w: %d", ErrProductNotFound, input.ProductID)
	}
	if input.WarehouseID != nil {
		exists, err := tx.WarehouseExists(ctx, id.TenantID, *input.WarehouseID)
		if err != nil {
			return Entry{}, err
		}
		if !exists {
			return Entry{}, fmt.Errorf("%w: %d", ErrWarehouseNotFound, *input.WarehouseID)
		}
	}

	bal, err := tx.GetBalanceForUpdate(ctx, id.TenantID, input.ProductID, input.WarehouseID)
	if errors.Is(err, ErrBalanceNotFound) {
		bal = Balance{TenantID: id.TenantID, ProductID: input.ProductID, WarehouseID: input.WarehouseID,
			Qty: decimal.Zero, AvgCost: decimal.Zero}
	} else if err != nil {
		return Entry{}, err
	}

	sign := decimal.NewFromInt(int64(input.Type.Sign()))
	signedQty := input.Quantity.Mul(sign)

	unitCost := input.UnitCost
	totalCost := input.Quantity.Mul(unitCost)
	if signedQty.IsNegative() {
		if !s.allowNegative && input.Quantity.GreaterThan(bal.Qty) {
			return Entry{}, fmt.Errorf("%w: requested %s, available %s",
				ErrInsufficientStock, input.Quantity.String(), bal.Qty.String())
		}
		unitCost, totalCost, err = s.outboundCost(ctx, tx, bal, input.Quantity)
		if err != nil {
			return Entry{}, err
		}
		if bal.Qty.Add(signedQty).IsZero() {
			bal.AvgCost = decimal.Zero
		}
	} else {
		bal.AvgCost = inboundAverage(bal, input.Quantity, unitCost)
		if s.costing == FIFO {
			if err := tx.InsertLot(ctx, Lot{
				TenantID:     id.TenantID,
				ProductID:    input.ProductID,
				WarehouseID:  input.WarehouseID,
				QtyRemaining: input.Quantity,
				UnitCost:     unitCost,
			}); err != nil {
				return Entry{}, err
			}
		}
	}

	newBalance := bal.Qty.Add(signedQty)
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}

	entry := Entry{
		TenantID:       id.TenantID,
		ProductID:      input.ProductID,
		WarehouseID:    input.WarehouseID,
		Type:           input.Type,
		Quantity:       signedQty,
		UnitCost:       unitCost,
		TotalCost:      totalCost,
		Batch:          input.Batch,
		Lot:            input.Lot,
		Serial:         input.Serial,
		ExpiryDate:     input.ExpiryDate,
		Reference:      input.Reference,
		RunningBalance: newBalance,
		Note:           input.Note,
		OccurredAt:     occurredAt,
		CreatedBy:      id.UserID,
	}
	entryID, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	entry.ID = entryID

	bal.Qty = newBalance
	if err := tx.UpsertBalance(ctx, bal); err != nil {
		return Entry{}, err
	}
	// Product-level current stock is a denormalised read model, refreshed
	// from the balance rows so it stays reconstructible by replay.
	if err := tx.RefreshProductStock(ctx, id.TenantID, input.ProductID); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (s *Service) afterMovement(ctx context.Context, id shared.Identity, entry Entry) {
	if s.metrics != nil {
		s.metrics.StockMovement(string(entry.Type))
	}
	if s.sink != nil {
		_ = s.sink.StockMovementRecorded(ctx, MovementRecordedEvent{
			TenantID:       id.TenantID,
			EntryID:        entry.ID,
			ProductID:      entry.ProductID,
			WarehouseID:    entry.WarehouseID,
			Type:           entry.Type,
			Quantity:       entry.Quantity,
			RunningBalance: entry.RunningBalance,
			OccurredAt:     entry.OccurredAt,
		})
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: id.TenantID,
			ActorID:  id.UserID,
			Action:   fmt.Sprintf("stock.%s", entry.Type),
			Entity:   "stock_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"product_id": entry.ProductID,
				"qty":        entry.Quantity.String(),
				"balance":    entry.RunningBalance.String(),
			},
			At: s.now(),
		})
	}
}
