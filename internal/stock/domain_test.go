package stock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMovementTypeSign(t *testing.T) {
	inbound := []MovementType{
		MovementPurchase, MovementAdjustmentIn, MovementTransferIn,
		MovementReturnIn, MovementProductionIn,
	}
	outbound := []MovementType{
		MovementSale, MovementAdjustmentOut, MovementTransferOut,
		MovementReturnOut, MovementProductionOut, MovementDamage, MovementLoss,
	}
	for _, mt := range inbound {
		require.Equal(t, 1, mt.Sign(), "type %s", mt)
		require.True(t, mt.Valid())
	}
	for _, mt := range outbound {
		require.Equal(t, -1, mt.Sign(), "type %s", mt)
		require.True(t, mt.Valid())
	}
	require.Equal(t, 0, MovementType("GIFT").Sign())
	require.False(t, MovementType("GIFT").Valid())
}

func TestMovementInputValidate(t *testing.T) {
	base := MovementInput{
		ProductID:   1,
		WarehouseID: warehouse(1),
		Type:        MovementPurchase,
		Quantity:    dec("1"),
		UnitCost:    dec("2"),
	}
	require.NoError(t, base.Validate())

	missing := base
	missing.ProductID = 0
	require.Error(t, missing.Validate())

	unknown := base
	unknown.Type = "TELEPORT"
	require.ErrorIs(t, unknown.Validate(), ErrInvalidMovementType)

	zero := base
	zero.Quantity = dec("0")
	require.ErrorIs(t, zero.Validate(), ErrInvalidQuantity)

	negative := base
	negative.Quantity = dec("-1")
	require.ErrorIs(t, negative.Validate(), ErrInvalidQuantity)

	badCost := base
	badCost.UnitCost = dec("-1")
	require.ErrorIs(t, badCost.Validate(), ErrInvalidUnitCost)
}

func TestParseCostingMethod(t *testing.T) {
	m, err := ParseCostingMethod("")
	require.NoError(t, err)
	require.Equal(t, WeightedAverage, m)

	m, err = ParseCostingMethod("fifo")
	require.NoError(t, err)
	require.Equal(t, FIFO, m)

	_, err = ParseCostingMethod("lifo")
	require.Error(t, err)
}

func TestInboundAverage(t *testing.T) {
	bal := Balance{Qty: dec("10"), AvgCost: dec("100")}
	avg := inboundAverage(bal, dec("5"), dec("130"))
	require.True(t, avg.Equal(dec("110")), "got %s", avg)

	empty := Balance{Qty: dec("0"), AvgCost: dec("0")}
	require.True(t, inboundAverage(empty, dec("4"), dec("25")).Equal(dec("25")))

	// Receiving into a negative balance cannot produce a sensible average.
	negative := Balance{Qty: dec("-10"), AvgCost: dec("5")}
	require.True(t, inboundAverage(negative, dec("5"), dec("9")).IsZero())
}
