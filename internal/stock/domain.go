package stock

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// MovementType enumerates supported inventory movements. The quantity sign is
// derived from the type, never supplied by callers.
type MovementType string

const (
	MovementPurchase      MovementType = "PURCHASE"
	MovementSale          MovementType = "SALE"
	MovementAdjustmentIn  MovementType = "ADJUSTMENT_IN"
	MovementAdjustmentOut MovementType = "ADJUSTMENT_OUT"
	MovementTransferIn    MovementType = "TRANSFER_IN"
	MovementTransferOut   MovementType = "TRANSFER_OUT"
	MovementReturnIn      MovementType = "RETURN_IN"
	MovementReturnOut     MovementType = "RETURN_OUT"
	MovementProductionIn  MovementType = "PRODUCTION_IN"
	MovementProductionOut MovementType = "PRODUCTION_OUT"
	MovementDamage        MovementType = "DAMAGE"
	MovementLoss          MovementType = "LOSS"
)

// Sign returns +1 for inbound types, -1 for outbound types, 0 for unknown.
func (t MovementType) Sign() int {
	switch t {
	case MovementPurchase, MovementAdjustmentIn, MovementTransferIn, MovementReturnIn, MovementProductionIn:
		return 1
	case MovementSale, MovementAdjustmentOut, MovementTransferOut, MovementReturnOut,
		MovementProductionOut, MovementDamage, MovementLoss:
		return -1
	}
	return 0
}

// Valid reports whether the type belongs to the closed set.
func (t MovementType) Valid() bool {
	return t.Sign() != 0
}

// Entry is one append-only row of the stock ledger. No update or delete path
// exists; corrections are compensating entries.
type Entry struct {
	ID             int64
	TenantID       int64
	ProductID      int64
	WarehouseID    *int64
	Type           MovementType
	Quantity       decimal.Decimal // signed
	UnitCost       decimal.Decimal
	TotalCost      decimal.Decimal
	Batch          string
	Lot            string
	Serial         string
	ExpiryDate     *time.Time
	Reference      *shared.DocumentRef
	RunningBalance decimal.Decimal
	Note           string
	OccurredAt     time.Time
	CreatedBy      int64
	CreatedAt      time.Time
}

// Balance summarises stock per (product, warehouse) scope. Derived state:
// rebuildable from entries at any time, never authoritative on its own.
type Balance struct {
	TenantID    int64
	ProductID   int64
	WarehouseID *int64
	Qty         decimal.Decimal
	AvgCost     decimal.Decimal
	UpdatedAt   time.Time
}

// Lot is an open costing layer consumed in order by FIFO valuation.
type Lot struct {
	ID           int64
	TenantID     int64
	ProductID    int64
	WarehouseID  *int64
	QtyRemaining decimal.Decimal
	UnitCost     decimal.Decimal
	CreatedAt    time.Time
}

var (
	// ErrProductNotFound indicates an unknown product reference.
	ErrProductNotFound = shared.NewError(shared.KindNotFound, "stock: product not found")
	// ErrWarehouseNotFound indicates an unknown warehouse reference.
	ErrWarehouseNotFound = shared.NewError(shared.KindNotFound, "stock: warehouse not found")
	// ErrEntryNotFound indicates an unknown ledger entry.
	ErrEntryNotFound = shared.NewError(shared.KindNotFound, "stock: ledger entry not found")
	// ErrBalanceNotFound indicates no balance row exists yet for a scope.
	ErrBalanceNotFound = shared.NewError(shared.KindNotFound, "stock: balance not found")
	// ErrInvalidMovementType indicates a type outside the known set.
	ErrInvalidMovementType = shared.NewError(shared.KindValidation, "stock: invalid movement type")
	// ErrInvalidQuantity indicates a zero or negative quantity input.
	ErrInvalidQuantity = shared.NewError(shared.KindValidation, "stock: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = shared.NewError(shared.KindValidation, "stock: unit cost must not be negative")
	// ErrInsufficientStock blocks outbound movements that exceed the running balance.
	ErrInsufficientStock = shared.NewError(shared.KindConflict, "stock: insufficient stock for outbound movement")
	// ErrSameWarehouse blocks transfers with identical endpoints.
	ErrSameWarehouse = shared.NewError(shared.KindValidation, "stock: source and destination warehouse must differ")
)

// MovementInput describes a movement request. Quantity is always positive;
// the sign comes from Type.
type MovementInput struct {
	ProductID   int64
	WarehouseID *int64
	Type        MovementType
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	Batch       string
	Lot         string
	Serial      string
	ExpiryDate  *time.Time
	Reference   *shared.DocumentRef
	Note        string
	OccurredAt  time.Time
}

// Validate checks structural constraints before any persistence.
func (in MovementInput) Validate() error {
	if in.ProductID == 0 {
		return shared.NewError(shared.KindValidation, "stock: product required")
	}
	if !in.Type.Valid() {
		return ErrInvalidMovementType
	}
	if !in.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if in.UnitCost.IsNegative() {
		return ErrInvalidUnitCost
	}
	if in.Reference != nil {
		if err := in.Reference.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TransferInput describes a transfer between warehouses.
type TransferInput struct {
	ProductID     int64
	FromWarehouse int64
	ToWarehouse   int64
	Quantity      decimal.Decimal
	Note          string
	OccurredAt    time.Time
}

// AdjustmentInput describes a signed adjustment; the movement type is derived
// from the sign of Quantity.
type AdjustmentInput struct {
	ProductID   int64
	WarehouseID *int64
	Quantity    decimal.Decimal // signed
	UnitCost    decimal.Decimal
	Reason      string
	OccurredAt  time.Time
}

// EntryFilter bounds stock card listings.
type EntryFilter struct {
	ProductID   int64
	WarehouseID *int64
	From        time.Time
	To          time.Time
	Limit       int
}
