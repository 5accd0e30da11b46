// Package zonestate implements the C6 exit-zone state machine of spec.md
// §4.4: per-open-position zone selection, zone-change/re-entry handling, the
// min-bars-in-zone gate, and the fixed three-step per-bar exit evaluation
// order (zone stop/TP, trailing stop, partial/full zone exit).
//
// Grounded on the teacher's checkExits (internal/backtest/engine/
// executor.go) for the "ordered exit-rule evaluation returning a reason"
// shape; generalized here into a stateful per-zone machine since the
// teacher's exits are stateless/global and this spec's zones are not.
package zonestate

import "github.com/rkhatri-dev/zonetrader/internal/model"

// Fill is one exit produced by a Step call.
type Fill struct {
	Reason   model.ExitReason
	ZoneName string
	Price    float64
	Qty      float64 // positive quantity to close
	Full     bool    // whether this fill closes the entire position
}

// Machine runs the zone state transitions of spec.md §4.4. It holds no
// per-position state itself — all state lives in the *model.ZoneState the
// caller passes in and mutates across calls.
type Machine struct{}

func New() *Machine { return &Machine{} }

// SelectZone returns the first zone (in declared order) whose half-open
// [min,max) range contains pnlPct, per spec.md §4.4 step 1.
func SelectZone(zones []model.ExitZone, pnlPct float64) (model.ExitZone, bool) {
	for _, z := range zones {
		if z.Contains(pnlPct) {
			return z, true
		}
	}
	return model.ExitZone{}, false
}

// Step evaluates one bar of an open position against its strategy's zone
// list, mutating state in place and returning any fills this bar produces.
// atr is the bar's ATR(14) value, needed to resolve *_atr stop/TP/trailing
// distances; callers that never configure ATR-based zones may pass 0.
func (m *Machine) Step(pos *model.Position, state *model.ZoneState, zones []model.ExitZone, barIndex int, bar model.Candle, policy model.ZoneEvaluationPolicy, atr float64) []Fill {
	if pos == nil || pos.IsClosed() || len(zones) == 0 {
		return nil
	}

	avgEntry := pos.AvgEntryPrice()
	markPrice := selectionMarkPrice(policy, pos.Side, bar)
	pnlPct := pos.UnrealizedPnLPct(markPrice)

	zone, matched := SelectZone(zones, pnlPct)
	if !matched {
		return nil
	}

	if state.CurrentZoneName != zone.Name {
		state.CurrentZoneName = zone.Name
		state.ZoneEntryBar = barIndex
		if zone.Reentry == model.ReentryReset {
			delete(state.TriggeredExits, zone.Name)
			state.TrailingStopAnchor = nil
		}
	}
	state.LastZoneProgress = pnlPct

	gateOpen := barIndex-state.ZoneEntryBar >= zone.MinBarsInZone

	if gateOpen {
		if f, ok := checkZoneStopTakeProfit(pos, zone, avgEntry, bar, atr); ok {
			return []Fill{f}
		}
	}

	if f, ok := checkTrailingStop(pos, state, zone, bar, atr); ok {
		return []Fill{f}
	}

	if gateOpen {
		if f, ok := checkZoneExit(pos, state, zone, bar); ok {
			return []Fill{f}
		}
	}

	return nil
}

// selectionMarkPrice is the price zone membership (SelectZone) is tested
// against. Under candle_close it's the bar's close; under intrabar it's the
// bar's worst-case extreme against the position's side, so a zone transition
// (and the stop/TP/trailing checks that follow it) can't be missed just
// because price round-tripped through a zone within the bar.
func selectionMarkPrice(policy model.ZoneEvaluationPolicy, side model.Side, bar model.Candle) float64 {
	if policy != model.ZoneEvalIntrabar {
		return bar.Close
	}
	if side == model.SideShort {
		return bar.High
	}
	return bar.Low
}

// checkZoneStopTakeProfit resolves the zone's stop-loss and take-profit
// trigger prices (if configured) against avgEntry and checks whether the
// bar's range crosses either, stop first (spec.md §4.5 "the stop wins").
// checkZoneStopTakeProfit only resolves the fixed-distance kinds; trailing
// stop-loss kinds are the exclusive concern of checkTrailingStop (a trailing
// stop resolved here against avgEntry, instead of the running anchor, would
// fire a second, spurious exit on top of checkTrailingStop's). Trailing
// take-profit kinds are skipped here and are not checked anywhere in Step.
func checkZoneStopTakeProfit(pos *model.Position, zone model.ExitZone, avgEntry float64, bar model.Candle, atr float64) (Fill, bool) {
	if zone.StopLoss.IsSet() && !zone.StopLoss.IsTrailing() {
		trigger := resolveStopPrice(zone.StopLoss.Kind, zone.StopLoss.Value, avgEntry, atr, pos.Side)
		if crosses(pos.Side, true, bar, trigger) {
			return Fill{
				Reason:   model.ExitStopLoss,
				ZoneName: zone.Name,
				Price:    fillPrice(bar, trigger),
				Qty:      pos.RemainingQty(),
				Full:     true,
			}, true
		}
	}
	if zone.TakeProfit.IsSet() && !zone.TakeProfit.IsTrailing() {
		trigger := resolveTakeProfitPrice(zone.TakeProfit.Kind, zone.TakeProfit.Value, avgEntry, atr, pos.Side)
		if crosses(pos.Side, false, bar, trigger) {
			return Fill{
				Reason:   model.ExitTakeProfit,
				ZoneName: zone.Name,
				Price:    fillPrice(bar, trigger),
				Qty:      pos.RemainingQty(),
				Full:     true,
			}, true
		}
	}
	return Fill{}, false
}

// checkTrailingStop advances the trailing anchor to the more favorable
// extreme seen this bar, then checks whether the configured retracement
// distance has been violated.
func checkTrailingStop(pos *model.Position, state *model.ZoneState, zone model.ExitZone, bar model.Candle, atr float64) (Fill, bool) {
	if !zone.StopLoss.IsTrailing() {
		return Fill{}, false
	}
	extreme := bar.High
	if pos.Side == model.SideShort {
		extreme = bar.Low
	}

	if state.TrailingStopAnchor == nil {
		state.TrailingStopAnchor = &extreme
	} else {
		cur := *state.TrailingStopAnchor
		if pos.Side == model.SideShort {
			if extreme < cur {
				state.TrailingStopAnchor = &extreme
			}
		} else if extreme > cur {
			state.TrailingStopAnchor = &extreme
		}
	}

	anchor := *state.TrailingStopAnchor
	var distance float64
	switch zone.StopLoss.Kind {
	case model.StopLossTrailingPercent:
		distance = anchor * zone.StopLoss.Value / 100
	case model.StopLossTrailingATR:
		distance = zone.StopLoss.Value * atr
	default:
		return Fill{}, false
	}

	var trigger float64
	if pos.Side == model.SideShort {
		trigger = anchor + distance
	} else {
		trigger = anchor - distance
	}

	if crosses(pos.Side, true, bar, trigger) {
		return Fill{
			Reason:   model.ExitTrailing,
			ZoneName: zone.Name,
			Price:    fillPrice(bar, trigger),
			Qty:      pos.RemainingQty(),
			Full:     true,
		}, true
	}
	return Fill{}, false
}

// checkZoneExit handles spec.md §4.4 step 4c: a partial or full close of the
// zone's configured percentage, fired at most once per triggered_exits entry
// until the zone is left and re-entered under reentry=reset.
func checkZoneExit(pos *model.Position, state *model.ZoneState, zone model.ExitZone, bar model.Candle) (Fill, bool) {
	if state.TriggeredExits[zone.Name] {
		return Fill{}, false
	}
	if !zone.ExitImmediately && zone.ExitPct == nil {
		return Fill{}, false
	}

	remaining := pos.RemainingQty()
	var qty float64
	if zone.ExitImmediately {
		qty = remaining
	} else {
		pct := *zone.ExitPct
		basis := pos.OriginalQty
		if zone.ExitBasis == model.ExitBasisRemaining {
			basis = remaining
		}
		qty = basis * pct / 100
	}
	if qty > remaining {
		qty = remaining
	}
	if qty <= 0 {
		return Fill{}, false
	}

	state.TriggeredExits[zone.Name] = true
	full := qty >= remaining-1e-12
	return Fill{
		Reason:   model.ExitZoneExit,
		ZoneName: zone.Name,
		Price:    bar.Close,
		Qty:      qty,
		Full:     full,
	}, true
}
