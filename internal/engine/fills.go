package engine

import "github.com/rkhatri-dev/zonetrader/internal/model"

// closePositionFully closes every open leg of pos at price, stamping each
// with reason/zoneName, crediting cash, and appending the closed legs to
// trades.
func closePositionFully(pos *model.Position, barIndex int, price float64, reason model.ExitReason, zoneName string, commissionRate float64, trades *[]*model.Trade, cash *float64) {
	for _, leg := range pos.Legs {
		if leg.IsOpen() {
			settleLeg(leg, barIndex, price, reason, zoneName, commissionRate, cash)
			*trades = append(*trades, leg)
		}
	}
}

// closePositionPartial closes qty worth of open legs (oldest first, FIFO),
// stamping the fully-closed legs with reason/zoneName and splitting the leg
// that only partially closes into a closed remainder and a still-open
// residual.
func closePositionPartial(pos *model.Position, barIndex int, qty, price float64, reason model.ExitReason, zoneName string, commissionRate float64, trades *[]*model.Trade, cash *float64) {
	remaining := qty
	for _, leg := range pos.Legs {
		if remaining <= 1e-12 {
			break
		}
		if !leg.IsOpen() {
			continue
		}
		if leg.Quantity <= remaining+1e-12 {
			remaining -= leg.Quantity
			settleLeg(leg, barIndex, price, reason, zoneName, commissionRate, cash)
			*trades = append(*trades, leg)
			continue
		}
		// Split: leg closes partially, the rest stays open under the same group.
		closedQty := remaining
		leg.Quantity -= closedQty
		closedLeg := &model.Trade{
			ID:         leg.ID,
			GroupID:    leg.GroupID,
			Side:       leg.Side,
			EntryBar:   leg.EntryBar,
			EntryTime:  leg.EntryTime,
			EntryPrice: leg.EntryPrice,
			Quantity:   closedQty,
		}
		settleLeg(closedLeg, barIndex, price, reason, zoneName, commissionRate, cash)
		*trades = append(*trades, closedLeg)
		remaining = 0
	}
}

// settleLeg stamps leg as closed at (barIndex, price), deducts exit
// commission from cash, and credits cash with the leg's realized P&L.
//
// cash only ever carries commission and realized P&L, never a leg's
// notional: openLeg debits entry commission alone, and equity sampling marks
// open legs to market directly off the position rather than off a
// cash-settled notional. That keeps the long and short bookkeeping
// symmetric — a short's entry proceeds are never "owed" back to cash at
// exit because they were never removed from it at entry.
func settleLeg(leg *model.Trade, barIndex int, price float64, reason model.ExitReason, zoneName string, commissionRate float64, cash *float64) {
	barCopy := barIndex
	priceCopy := price
	leg.ExitBar = &barCopy
	leg.ExitPrice = &priceCopy
	leg.ExitReason = reason
	leg.ExitZone = zoneName

	exitCommission := leg.Quantity * price * commissionRate
	leg.CommissionPaid += exitCommission

	var rawPnL float64
	switch leg.Side {
	case model.SideShort:
		rawPnL = (leg.EntryPrice - price) * leg.Quantity
	default:
		rawPnL = (price - leg.EntryPrice) * leg.Quantity
	}
	pnl := rawPnL - leg.CommissionPaid
	pnlPct := 0.0
	if leg.EntryPrice != 0 {
		pnlPct = pnl / (leg.EntryPrice * leg.Quantity) * 100
	}
	leg.PnL = &pnl
	leg.PnLPct = &pnlPct

	// Entry commission was already debited from cash by openLeg; only the
	// raw price move and this leg's exit commission move through cash now.
	*cash += rawPnL - exitCommission
}
