package engine

import "github.com/rkhatri-dev/zonetrader/internal/model"

// sizeEntry computes the fill quantity and commission for a new entry or DCA
// leg at entryPrice, given the strategy's sizing config and the cash
// currently available (spec.md §4.5 step 2 "Sizing").
func sizeEntry(strategy model.Strategy, cash, entryPrice float64, sizeMultiplier float64) (quantity, commission float64) {
	var notional float64
	switch strategy.PositionSizingType {
	case model.SizingFixedDollar:
		notional = strategy.PositionSize * sizeMultiplier
	case model.SizingPercentEquity:
		if cash > 0 {
			notional = cash * strategy.PositionSize / 100 * sizeMultiplier
		}
	case model.SizingFixedQuantity:
		quantity = strategy.PositionSize * sizeMultiplier
		notional = quantity * entryPrice
		commission = notional * strategy.CommissionRate
		return quantity, commission
	}
	if entryPrice <= 0 {
		return 0, 0
	}
	quantity = notional / entryPrice
	commission = notional * strategy.CommissionRate
	return quantity, commission
}
