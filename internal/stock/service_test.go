package stock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	balances map[string]Balance
	entries  []Entry
	lots     []Lot
	products map[int64]bool
	houses   map[int64]bool
	nextID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		balances: make(map[string]Balance),
		products: map[int64]bool{1: true, 2: true},
		houses:   map[int64]bool{1: true, 2: true},
	}
}

func scopeKey(productID int64, warehouseID *int64) string {
	if warehouseID == nil {
		return fmt.Sprintf("%d:-", productID)
	}
	return fmt.Sprintf("%d:%d", productID, *warehouseID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListEntries(ctx context.Context, tenantID int64, filter EntryFilter) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if e.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != nil && (e.WarehouseID == nil || *e.WarehouseID != *filter.WarehouseID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *memoryRepo) GetBalance(ctx context.Context, tenantID, productID int64, warehouseID *int64) (Balance, error) {
	if bal, ok := r.balances[scopeKey(productID, warehouseID)]; ok {
		return bal, nil
	}
	return Balance{TenantID: tenantID, ProductID: productID, WarehouseID: warehouseID,
		Qty: decimal.Zero, AvgCost: decimal.Zero}, nil
}

func (r *memoryRepo) SumBalances(ctx context.Context, tenantID, productID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, bal := range r.balances {
		if bal.ProductID == productID {
			total = total.Add(bal.Qty)
		}
	}
	return total, nil
}

func (r *memoryRepo) SumBalanceValue(ctx context.Context, tenantID, productID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, bal := range r.balances {
		if bal.ProductID == productID {
			total = total.Add(bal.Qty.Mul(bal.AvgCost))
		}
	}
	return total, nil
}

func (r *memoryRepo) SumSignedQuantities(ctx context.Context, tenantID, productID int64, warehouseID *int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range r.entries {
		if e.ProductID == productID && scopeKey(e.ProductID, e.WarehouseID) == scopeKey(productID, warehouseID) {
			total = total.Add(e.Quantity)
		}
	}
	return total, nil
}

func (r *memoryRepo) LatestRunningBalance(ctx context.Context, tenantID, productID int64, warehouseID *int64) (decimal.Decimal, error) {
	latest := decimal.Zero
	for _, e := range r.entries {
		if scopeKey(e.ProductID, e.WarehouseID) == scopeKey(productID, warehouseID) {
			latest = e.RunningBalance
		}
	}
	return latest, nil
}

func (r *memoryRepo) OpenLotsValue(ctx context.Context, tenantID, productID int64, warehouseID *int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, lot := range r.lots {
		if lot.ProductID != productID || !lot.QtyRemaining.IsPositive() {
			continue
		}
		if warehouseID == nil || scopeKey(lot.ProductID, lot.WarehouseID) == scopeKey(productID, warehouseID) {
			total = total.Add(lot.QtyRemaining.Mul(lot.UnitCost))
		}
	}
	return total, nil
}

func (r *memoryRepo) ScopeEntries(ctx context.Context, tenantID, productID int64, warehouseID *int64) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if scopeKey(e.ProductID, e.WarehouseID) == scopeKey(productID, warehouseID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tx *memoryTx) ProductExists(ctx context.Context, tenantID, productID int64) (bool, error) {
	return tx.repo.products[productID], nil
}

func (tx *memoryTx) WarehouseExists(ctx context.Context, tenantID, warehouseID int64) (bool, error) {
	return tx.repo.houses[warehouseID], nil
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, tenantID, productID int64, warehouseID *int64) (Balance, error) {
	if bal, ok := tx.repo.balances[scopeKey(productID, warehouseID)]; ok {
		return bal, nil
	}
	return Balance{}, ErrBalanceNotFound
}

func (tx *memoryTx) UpsertBalance(ctx context.Context, bal Balance) error {
	tx.repo.balances[scopeKey(bal.ProductID, bal.WarehouseID)] = bal
	return nil
}

func (tx *memoryTx) InsertEntry(ctx context.Context, entry Entry) (int64, error) {
	tx.repo.nextID++
	entry.ID = tx.repo.nextID
	tx.repo.entries = append(tx.repo.entries, entry)
	return entry.ID, nil
}

func (tx *memoryTx) InsertLot(ctx context.Context, lot Lot) error {
	tx.repo.nextID++
	lot.ID = tx.repo.nextID
	tx.repo.lots = append(tx.repo.lots, lot)
	return nil
}

func (tx *memoryTx) ConsumeLots(ctx context.Context, tenantID, productID int64, warehouseID *int64, qty decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	consumed := decimal.Zero
	cost := decimal.Zero
	for i := range tx.repo.lots {
		lot := &tx.repo.lots[i]
		if scopeKey(lot.ProductID, lot.WarehouseID) != scopeKey(productID, warehouseID) || !lot.QtyRemaining.IsPositive() {
			continue
		}
		if consumed.GreaterThanOrEqual(qty) {
			break
		}
		take := decimal.Min(lot.QtyRemaining, qty.Sub(consumed))
		lot.QtyRemaining = lot.QtyRemaining.Sub(take)
		consumed = consumed.Add(take)
		cost = cost.Add(take.Mul(lot.UnitCost))
	}
	return consumed, cost, nil
}

func (tx *memoryTx) RefreshProductStock(ctx context.Context, tenantID, productID int64) error {
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testIdentity() shared.Identity {
	return shared.Identity{TenantID: 1, UserID: 7}
}

func warehouse(id int64) *int64 {
	return &id
}

func TestPurchaseThenSale(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	in, err := svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID:   1,
		WarehouseID: warehouse(1),
		Type:        MovementPurchase,
		Quantity:    dec("100"),
		UnitCost:    dec("5"),
	})
	require.NoError(t, err)
	require.True(t, in.Quantity.Equal(dec("100")), "inbound quantity should be positive")
	require.True(t, in.RunningBalance.Equal(dec("100")))
	require.True(t, in.TotalCost.Equal(dec("500")))

	out, err := svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID:   1,
		WarehouseID: warehouse(1),
		Type:        MovementSale,
		Quantity:    dec("30"),
	})
	require.NoError(t, err)
	require.True(t, out.Quantity.Equal(dec("-30")), "sale must be stored signed, got %s", out.Quantity)
	require.True(t, out.RunningBalance.Equal(dec("70")))
	require.True(t, out.UnitCost.Equal(dec("5")), "outbound cost comes from the moving average")

	qty, err := svc.CurrentBalance(ctx, testIdentity(), 1, warehouse(1))
	require.NoError(t, err)
	require.True(t, qty.Equal(dec("70")))
}

func TestMovingAverageCost(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(1), Type: MovementPurchase,
		Quantity: dec("10"), UnitCost: dec("100"),
	})
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(1), Type: MovementPurchase,
		Quantity: dec("10"), UnitCost: dec("200"),
	})
	require.NoError(t, err)

	bal, err := repo.GetBalance(ctx, 1, 1, warehouse(1))
	require.NoError(t, err)
	require.True(t, bal.AvgCost.Equal(dec("150")), "average of 10@100 and 10@200, got %s", bal.AvgCost)

	out, err := svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(1), Type: MovementSale, Quantity: dec("5"),
	})
	require.NoError(t, err)
	require.True(t, out.UnitCost.Equal(dec("150")))
	require.True(t, out.TotalCost.Equal(dec("750")))
}

func TestInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(1), Type: MovementSale, Quantity: dec("1"),
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, shared.KindConflict, shared.KindOf(err))
	require.Empty(t, repo.entries, "rejected movement must not leave a ledger row")
}

func TestAllowNegativeStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, ServiceConfig{AllowNegativeStock: true})
	ctx := context.Background()

	out, err := svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(1), Type: MovementAdjustmentOut, Quantity: dec("3"),
	})
	require.NoError(t, err)
	require.True(t, out.RunningBalance.Equal(dec("-3")))
}

func TestTransferLinksEntries(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(1), Type: MovementPurchase,
		Quantity: dec("20"), UnitCost: dec("50"),
	})
	require.NoError(t, err)

	out, in, err := svc.Transfer(ctx, testIdentity(), TransferInput{
		ProductID:     1,
		FromWarehouse: 1,
		ToWarehouse:   2,
		Quantity:      dec("5"),
	})
	require.NoError(t, err)
	require.True(t, out.Quantity.Equal(dec("-5")))
	require.True(t, in.Quantity.Equal(dec("5")))
	require.NotNil(t, in.Reference)
	require.Equal(t, shared.DocumentKindStockEntry, in.Reference.Kind)
	require.Equal(t, out.ID, in.Reference.ID)
	require.True(t, in.UnitCost.Equal(out.UnitCost), "transfer must carry cost to the destination")

	src, err := repo.GetBalance(ctx, 1, 1, warehouse(1))
	require.NoError(t, err)
	dst, err := repo.GetBalance(ctx, 1, 1, warehouse(2))
	require.NoError(t, err)
	require.True(t, src.Qty.Equal(dec("15")))
	require.True(t, dst.Qty.Equal(dec("5")))
}

func TestTransferInsufficientStockRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, _, err := svc.Transfer(ctx, testIdentity(), TransferInput{
		ProductID:     1,
		FromWarehouse: 1,
		ToWarehouse:   2,
		Quantity:      dec("5"),
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestTransferSameWarehouse(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil, ServiceConfig{})

	_, _, err := svc.Transfer(context.Background(), testIdentity(), TransferInput{
		ProductID:     1,
		FromWarehouse: 1,
		ToWarehouse:   1,
		Quantity:      dec("5"),
	})
	require.ErrorIs(t, err, ErrSameWarehouse)
}

func TestAdjustDerivesTypeFromSign(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	in, err := svc.Adjust(ctx, testIdentity(), AdjustmentInput{
		ProductID: 1, WarehouseID: warehouse(1), Quantity: dec("4"), UnitCost: dec("10"),
	})
	require.NoError(t, err)
	require.Equal(t, MovementAdjustmentIn, in.Type)

	out, err := svc.Adjust(ctx, testIdentity(), AdjustmentInput{
		ProductID: 1, WarehouseID: warehouse(1), Quantity: dec("-4"),
	})
	require.NoError(t, err)
	require.Equal(t, MovementAdjustmentOut, out.Type)
	require.True(t, out.Quantity.Equal(dec("-4")))
	require.True(t, out.RunningBalance.IsZero())
}

func TestUnknownProduct(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil, ServiceConfig{})

	_, err := svc.RecordMovement(context.Background(), testIdentity(), MovementInput{
		ProductID: 99, WarehouseID: warehouse(1), Type: MovementPurchase,
		Quantity: dec("1"), UnitCost: dec("1"),
	})
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestFIFOCosting(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, ServiceConfig{Costing: FIFO})
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(1), Type: MovementPurchase,
		Quantity: dec("10"), UnitCost: dec("100"),
	})
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(1), Type: MovementPurchase,
		Quantity: dec("10"), UnitCost: dec("200"),
	})
	require.NoError(t, err)

	// 15 units span both layers: 10@100 + 5@200 = 2000, unit 2000/15.
	out, err := svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(1), Type: MovementSale, Quantity: dec("15"),
	})
	require.NoError(t, err)
	require.True(t, out.TotalCost.Equal(dec("2000")), "got %s", out.TotalCost)

	value, err := svc.Valuation(ctx, testIdentity(), 1, warehouse(1))
	require.NoError(t, err)
	require.True(t, value.Equal(dec("1000")), "5 remaining from the 200 layer, got %s", value)
}

func TestValuationAcrossWarehouses(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(1), Type: MovementPurchase,
		Quantity: dec("10"), UnitCost: dec("5"),
	})
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(2), Type: MovementPurchase,
		Quantity: dec("5"), UnitCost: dec("8"),
	})
	require.NoError(t, err)

	// With no warehouse scope, quantity and valuation must agree on what
	// they cover: everything the tenant holds of the product.
	qty, err := svc.CurrentBalance(ctx, testIdentity(), 1, nil)
	require.NoError(t, err)
	require.True(t, qty.Equal(dec("15")))

	value, err := svc.Valuation(ctx, testIdentity(), 1, nil)
	require.NoError(t, err)
	require.True(t, value.Equal(dec("90")), "10@5 plus 5@8, got %s", value)

	scoped, err := svc.Valuation(ctx, testIdentity(), 1, warehouse(1))
	require.NoError(t, err)
	require.True(t, scoped.Equal(dec("50")))
}

func TestFIFOValuationAcrossWarehouses(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, ServiceConfig{Costing: FIFO})
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(1), Type: MovementPurchase,
		Quantity: dec("10"), UnitCost: dec("100"),
	})
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(2), Type: MovementPurchase,
		Quantity: dec("4"), UnitCost: dec("250"),
	})
	require.NoError(t, err)

	value, err := svc.Valuation(ctx, testIdentity(), 1, nil)
	require.NoError(t, err)
	require.True(t, value.Equal(dec("2000")), "open lots in both warehouses, got %s", value)
}

func TestRebuildBalanceReplays(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(1), Type: MovementPurchase,
		Quantity: dec("10"), UnitCost: dec("100"),
	})
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(1), Type: MovementSale, Quantity: dec("4"),
	})
	require.NoError(t, err)

	// Corrupt the derived row; the ledger stays intact.
	repo.balances[scopeKey(1, warehouse(1))] = Balance{
		TenantID: 1, ProductID: 1, WarehouseID: warehouse(1),
		Qty: dec("999"), AvgCost: dec("1"),
	}

	bal, err := svc.RebuildBalance(ctx, testIdentity(), 1, warehouse(1))
	require.NoError(t, err)
	require.True(t, bal.Qty.Equal(dec("6")), "replay must win, got %s", bal.Qty)
	require.True(t, bal.AvgCost.Equal(dec("100")))
}

func TestVerifyScopeDetectsDivergence(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, testIdentity(), MovementInput{
		ProductID: 1, WarehouseID: warehouse(1), Type: MovementPurchase,
		Quantity: dec("10"), UnitCost: dec("5"),
	})
	require.NoError(t, err)
	require.NoError(t, svc.VerifyScope(ctx, testIdentity(), 1, warehouse(1)))

	// Tamper with the frozen running balance.
	repo.entries[len(repo.entries)-1].RunningBalance = dec("11")
	err = svc.VerifyScope(ctx, testIdentity(), 1, warehouse(1))
	require.Error(t, err)
	require.Equal(t, shared.KindIntegrity, shared.KindOf(err))
}

func TestStockCardRunningBalances(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return now })

	quantities := []struct {
		t MovementType
		q string
	}{
		{MovementPurchase, "10"},
		{MovementSale, "3"},
		{MovementPurchase, "7"},
	}
	for _, m := range quantities {
		_, err := svc.RecordMovement(ctx, testIdentity(), MovementInput{
			ProductID: 1, WarehouseID: warehouse(1), Type: m.t,
			Quantity: dec(m.q), UnitCost: dec("2"),
		})
		require.NoError(t, err)
	}

	card, err := svc.StockCard(ctx, testIdentity(), EntryFilter{ProductID: 1, WarehouseID: warehouse(1)})
	require.NoError(t, err)
	require.Len(t, card, 3)
	require.True(t, card[0].RunningBalance.Equal(dec("10")))
	require.True(t, card[1].RunningBalance.Equal(dec("7")))
	require.True(t, card[2].RunningBalance.Equal(dec("14")))
}
