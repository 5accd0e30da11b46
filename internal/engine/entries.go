package engine

import (
	"github.com/rkhatri-dev/zonetrader/internal/model"
)

// fillPriceForEntry applies spec.md §4.5's next-bar-open fill rule: a signal
// evaluated at barIndex fills at candles[barIndex+1].Open when a next bar
// exists, else at candles[barIndex].Close (the final bar has no next open).
func fillPriceForEntry(candles []model.Candle, barIndex int) (price float64, fillBar int) {
	if barIndex+1 < len(candles) {
		return candles[barIndex+1].Open, barIndex + 1
	}
	return candles[barIndex].Close, barIndex
}

// openLeg appends a new Trade leg to pos (or starts a fresh Position if pos
// is nil), debiting only the entry commission from cash. The leg's notional
// never touches cash — see settleLeg's doc comment for why that keeps long
// and short accounting symmetric.
func openLeg(pos *model.Position, groupID string, side model.Side, fillBar int, fillTime int64, price, qty, commissionRate float64, cash *float64) *model.Position {
	commission := qty * price * commissionRate
	leg := &model.Trade{
		GroupID:    groupID,
		Side:       side,
		EntryBar:   fillBar,
		EntryTime:  fillTime,
		EntryPrice: price,
		Quantity:   qty,
		ExitReason: model.ExitOpen,
	}
	leg.CommissionPaid = commission
	*cash -= commission

	if pos == nil {
		pos = &model.Position{GroupID: groupID, Side: side}
	}
	pos.Legs = append(pos.Legs, leg)
	pos.OriginalQty += qty
	pos.LastEntryBar = fillBar
	return pos
}

// canOpenNewPosition applies spec.md §4.5's min_bars_between_trades gate: a
// fresh entry must wait at least that many bars after the previous
// position's opening entry. This engine holds at most one *model.Position at
// a time (a DCA group counts as a single occupied slot), so max_open_trades
// values other than 1 are rejected at config load (internal/config.Validate)
// rather than silently under-enforced here.
func canOpenNewPosition(haveEverEntered bool, lastEntryBar, barIndex, minBarsBetweenTrades int) bool {
	if !haveEverEntered {
		return true
	}
	return barIndex-lastEntryBar >= minBarsBetweenTrades
}

// canAddDCALeg applies spec.md §4.5's DCA leg gating: bars_between since the
// position's last entry, max_entries over legs ever opened (closed legs
// still count, per model.Position.OpenLegCount's doc comment), and the
// strategy's global min_bars_between_trades, which DCA legs must also respect
// — a tighter dca.bars_between never lets a leg fire sooner than the global
// gate allows.
func canAddDCALeg(pos *model.Position, barIndex int, dca model.DCAConfig, minBarsBetweenTrades int) bool {
	if !dca.Enabled {
		return false
	}
	if len(pos.Legs) >= dca.MaxEntries {
		return false
	}
	gate := dca.BarsBetween
	if minBarsBetweenTrades > gate {
		gate = minBarsBetweenTrades
	}
	return barIndex-pos.LastEntryBar >= gate
}

// rejectedEntry records a zero-equity-impact Trade for an entry whose sized
// quantity came out <= 0 (e.g. percent_equity sizing against exhausted
// cash), per spec.md §4.5's rejection handling.
func rejectedEntry(groupID string, side model.Side, barIndex int, barTimeMs int64, price float64) *model.Trade {
	zero := 0.0
	return &model.Trade{
		GroupID:    groupID,
		Side:       side,
		EntryBar:   barIndex,
		EntryTime:  barTimeMs,
		EntryPrice: price,
		Quantity:   0,
		ExitBar:    &barIndex,
		ExitPrice:  &price,
		ExitReason: model.ExitRejected,
		PnL:        &zero,
		PnLPct:     &zero,
	}
}

// dcaSizeMultiplier returns the configured multiplier, defaulting to 1 when
// unset so a DCAConfig with a zero-value SizeMultiplier still sizes legs the
// same as the initial entry instead of sizing to zero.
func dcaSizeMultiplier(dca model.DCAConfig) float64 {
	if dca.SizeMultiplier <= 0 {
		return 1
	}
	return dca.SizeMultiplier
}
