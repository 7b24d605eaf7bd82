package stock

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// CostingMethod is the valuation strategy applied to outbound movements.
// Chosen once in configuration and used by every call site; callers never
// supply outbound unit costs themselves.
type CostingMethod int

const (
	// WeightedAverage prices outbound stock at the scope's moving average.
	WeightedAverage CostingMethod = iota
	// FIFO prices outbound stock by consuming the oldest open lots first.
	FIFO
)

func (m CostingMethod) String() string {
	switch m {
	case WeightedAverage:
		return "weighted_average"
	case FIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

// ParseCostingMethod parses a configuration string.
func ParseCostingMethod(s string) (CostingMethod, error) {
	switch s {
	case "weighted_average", "":
		return WeightedAverage, nil
	case "fifo":
		return FIFO, nil
	default:
		return 0, fmt.Errorf("stock: unknown costing method %q", s)
	}
}

// outboundCost resolves the unit and total cost for an outbound movement of
// qty units (positive) from the scope. FIFO consumes open lots inside the
// same transaction and keeps the total exact even when it does not divide
// evenly; weighted average reads the locked balance row.
func (s *Service) outboundCost(ctx context.Context, tx TxRepository, bal Balance, qty decimal.Decimal) (unit, total decimal.Decimal, err error) {
	switch s.costing {
	case FIFO:
		consumed, cost, err := tx.ConsumeLots(ctx, bal.TenantID, bal.ProductID, bal.WarehouseID, qty)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		if consumed.LessThan(qty) {
			// Lot layers short of the balance row mean the two derived views
			// of the same ledger disagree.
			if !s.allowNegative {
				return decimal.Zero, decimal.Zero, ErrInsufficientStock
			}
			short := qty.Sub(consumed)
			return bal.AvgCost, cost.Add(short.Mul(bal.AvgCost)), nil
		}
		if qty.IsZero() {
			return decimal.Zero, decimal.Zero, nil
		}
		return cost.Div(qty), cost, nil
	default:
		return bal.AvgCost, qty.Mul(bal.AvgCost), nil
	}
}

// inboundAverage returns the new moving average after receiving qty units at
// unitCost into a scope holding bal.
func inboundAverage(bal Balance, qty, unitCost decimal.Decimal) decimal.Decimal {
	newQty := bal.Qty.Add(qty)
	if !newQty.IsPositive() {
		return decimal.Zero
	}
	totalCost := bal.Qty.Mul(bal.AvgCost).Add(qty.Mul(unitCost))
	return totalCost.Div(newQty)
}
