// Package engine implements the C7 backtest engine of spec.md §4.5: a
// deterministic, single-threaded bar-by-bar replay that drives entry/exit
// DSL evaluation, DCA scheduling, the C6 exit-zone state machine, and
// position sizing/commission bookkeeping, and produces a BacktestResult.
package engine

import (
	"context"
	"fmt"

	"github.com/rkhatri-dev/zonetrader/internal/apperrors"
	"github.com/rkhatri-dev/zonetrader/internal/config"
	"github.com/rkhatri-dev/zonetrader/internal/evaluator"
	"github.com/rkhatri-dev/zonetrader/internal/indicator"
	"github.com/rkhatri-dev/zonetrader/internal/logger"
	"github.com/rkhatri-dev/zonetrader/internal/metrics"
	"github.com/rkhatri-dev/zonetrader/internal/model"
	"github.com/rkhatri-dev/zonetrader/internal/zonestate"
)

// Engine holds everything one Run needs: the resolved strategy/config, the
// candle series it replays, and the C3/C4/C6 collaborators wired against it.
type Engine struct {
	spec    *config.RunSpec
	candles []model.Candle

	ind       *indicator.Engine
	entryEval *evaluator.Evaluator
	exitEval  *evaluator.Evaluator
	zones     *zonestate.Machine
	nextGroup func() string

	// curPos lets the exit DSL's unrealized_pnl_pct reference whichever
	// position is open at the bar being evaluated (evaluator.WithPositionContext).
	curPos *model.Position

	// globalTrailingAnchor tracks the strategy-level trailing stop's
	// most-favorable price seen since the current position opened; nil
	// when no trailing stop is configured or no position has opened yet.
	globalTrailingAnchor *float64
}

// New builds an Engine over candles, parsing both DSL expressions eagerly so
// a malformed one fails before any bar is processed (spec.md §4.3).
func New(spec *config.RunSpec, candles []model.Candle) (*Engine, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candles to backtest", apperrors.ErrDataUnavailable)
	}
	ind := indicator.New(candles)

	e := &Engine{spec: spec, candles: candles, ind: ind, zones: zonestate.New()}

	entryEval, err := evaluator.Prepare(spec.Strategy.EntryDSL, candles, ind)
	if err != nil {
		return nil, err
	}
	e.entryEval = entryEval

	if spec.Strategy.ExitDSL != "" {
		exitEval, err := evaluator.Prepare(spec.Strategy.ExitDSL, candles, ind, evaluator.WithPositionContext(e.unrealizedPnLPct))
		if err != nil {
			return nil, err
		}
		e.exitEval = exitEval
	}

	e.nextGroup = newGroupIDGenerator(spec.Config.Seed)
	return e, nil
}

func (e *Engine) unrealizedPnLPct(barIndex int) (float64, bool) {
	if e.curPos == nil || e.curPos.IsClosed() {
		return 0, false
	}
	return e.curPos.UnrealizedPnLPct(e.candles[barIndex].Close), true
}

// Run replays the candle series bar by bar per spec.md §4.5's evaluation
// order: global stop/take-profit, then the exit-zone machine, then the exit
// DSL, then entry/DCA gating, then an equity sample. The final bar forces
// any still-open position closed with exit_reason=end_of_data.
func (e *Engine) Run(ctx context.Context) (*model.BacktestResult, error) {
	cfg := e.spec.Config
	strat := e.spec.Strategy

	cash := cfg.InitialCapital
	var trades []*model.Trade
	var equityCurve []model.EquityPoint

	var pos *model.Position
	var state *model.ZoneState
	haveEverEntered := false
	lastEntryBar := 0

	log := logger.With("symbol", cfg.Symbol)

	for i := range e.candles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := e.candles[i]
		atr := e.ind.ATR(i, 14)

		if pos != nil && !pos.IsClosed() && i-pos.LastEntryBar >= strat.MinBarsBeforeExit {
			e.curPos = pos

			if f, ok := e.checkGlobalStopTakeProfit(pos, strat, bar, atr); ok {
				closePositionFully(pos, i, f.Price, f.Reason, "", strat.CommissionRate, &trades, &cash)
			}

			if !pos.IsClosed() {
				for _, fill := range e.zones.Step(pos, state, strat.ExitZones, i, bar, strat.ZoneEvaluation, atr) {
					if fill.Full {
						closePositionFully(pos, i, fill.Price, fill.Reason, fill.ZoneName, strat.CommissionRate, &trades, &cash)
					} else {
						closePositionPartial(pos, i, fill.Qty, fill.Price, fill.Reason, fill.ZoneName, strat.CommissionRate, &trades, &cash)
					}
				}
			}

			if !pos.IsClosed() && e.exitEval != nil {
				if e.exitEval.Evaluate(i) {
					closePositionFully(pos, i, bar.Close, model.ExitSignal, "", strat.CommissionRate, &trades, &cash)
					log.Debugf("bar %d exit signal closed %s", i, pos.GroupID)
				}
			}
		}

		if pos != nil && pos.IsClosed() {
			pos = nil
			state = nil
			e.globalTrailingAnchor = nil
		}
		e.curPos = pos

		if e.entryEval.Evaluate(i) {
			switch {
			case pos == nil:
				if canOpenNewPosition(haveEverEntered, lastEntryBar, i, strat.MinBarsBetweenTrades) {
					price, fillBar := fillPriceForEntry(e.candles, i)
					qty, _ := sizeEntry(strat, cash, price, 1)
					if qty > 0 {
						groupID := e.nextGroup()
						pos = openLeg(nil, groupID, strategySide(strat), fillBar, bar.TimestampMs, price, qty, strat.CommissionRate, &cash)
						state = model.NewZoneState()
						haveEverEntered = true
						lastEntryBar = fillBar
						log.Debugf("bar %d opened %s qty=%.6f @ %.4f", i, groupID, qty, price)
					} else {
						trades = append(trades, rejectedEntry(e.nextGroup(), strategySide(strat), fillBar, bar.TimestampMs, price))
					}
				}
			case strat.DCA.Enabled && canAddDCALeg(pos, i, strat.DCA, strat.MinBarsBetweenTrades):
				price, fillBar := fillPriceForEntry(e.candles, i)
				mult := dcaSizeMultiplier(strat.DCA)
				qty, _ := sizeEntry(strat, cash, price, mult)
				if qty > 0 {
					if strat.DCA.Mode == model.DCAReplace {
						closePositionFully(pos, i, price, model.ExitSignal, "", strat.CommissionRate, &trades, &cash)
						e.globalTrailingAnchor = nil
						groupID := e.nextGroup()
						pos = openLeg(nil, groupID, strategySide(strat), fillBar, bar.TimestampMs, price, qty, strat.CommissionRate, &cash)
						state = model.NewZoneState()
						lastEntryBar = fillBar
					} else {
						openLeg(pos, pos.GroupID, pos.Side, fillBar, bar.TimestampMs, price, qty, strat.CommissionRate, &cash)
					}
					log.Debugf("bar %d dca leg on %s qty=%.6f @ %.4f", i, pos.GroupID, qty, price)
				} else {
					trades = append(trades, rejectedEntry(pos.GroupID, pos.Side, fillBar, bar.TimestampMs, price))
				}
			}
		}

		if pos != nil && !pos.IsClosed() {
			cash -= accrueMarginInterest(pos, strat, cfg.Timeframe)
		}

		equityCurve = append(equityCurve, model.EquityPoint{Bar: i, Equity: markToMarket(cash, pos, bar.Close)})
	}

	if pos != nil && !pos.IsClosed() {
		last := e.candles[len(e.candles)-1]
		closePositionFully(pos, len(e.candles)-1, last.Close, model.ExitEndOfData, "", strat.CommissionRate, &trades, &cash)
		if n := len(equityCurve); n > 0 {
			equityCurve[n-1].Equity = markToMarket(cash, pos, last.Close)
		}
	}

	m := metrics.Compute(trades, equityCurve, cfg.InitialCapital, cfg.Timeframe)
	return &model.BacktestResult{
		Trades:        trades,
		EquityCurve:   equityCurve,
		Metrics:       m,
		BarsProcessed: len(e.candles),
	}, nil
}

// checkGlobalStopTakeProfit resolves the strategy-level stop/take-profit
// (spec.md §4.5 step 5), evaluated against the position's average entry
// price before the zone machine runs; the stop wins when both trigger the
// same bar.
func (e *Engine) checkGlobalStopTakeProfit(pos *model.Position, strat model.Strategy, bar model.Candle, atr float64) (zonestate.Fill, bool) {
	avgEntry := pos.AvgEntryPrice()
	if strat.StopLoss.IsSet() {
		if strat.StopLoss.IsTrailing() {
			if f, ok := e.checkGlobalTrailingStop(pos, strat.StopLoss, bar, atr); ok {
				return f, true
			}
		} else {
			trigger := zonestate.ResolveStopPrice(strat.StopLoss.Kind, strat.StopLoss.Value, avgEntry, atr, pos.Side)
			if zonestate.Crosses(pos.Side, true, bar, trigger) {
				return zonestate.Fill{Reason: model.ExitStopLoss, Price: zonestate.FillPrice(bar, trigger), Qty: pos.RemainingQty(), Full: true}, true
			}
		}
	}
	if strat.TakeProfit.IsSet() && !strat.TakeProfit.IsTrailing() {
		trigger := zonestate.ResolveTakeProfitPrice(strat.TakeProfit.Kind, strat.TakeProfit.Value, avgEntry, atr, pos.Side)
		if zonestate.Crosses(pos.Side, false, bar, trigger) {
			return zonestate.Fill{Reason: model.ExitTakeProfit, Price: zonestate.FillPrice(bar, trigger), Qty: pos.RemainingQty(), Full: true}, true
		}
	}
	return zonestate.Fill{}, false
}

// checkGlobalTrailingStop mirrors zonestate's per-zone trailing-stop
// resolution one level up: it advances e.globalTrailingAnchor to the more
// favorable extreme seen this bar, then checks whether the configured
// retracement distance from that anchor has been violated.
func (e *Engine) checkGlobalTrailingStop(pos *model.Position, sl model.StopLossConfig, bar model.Candle, atr float64) (zonestate.Fill, bool) {
	extreme := bar.High
	if pos.Side == model.SideShort {
		extreme = bar.Low
	}

	if e.globalTrailingAnchor == nil {
		e.globalTrailingAnchor = &extreme
	} else {
		cur := *e.globalTrailingAnchor
		if pos.Side == model.SideShort {
			if extreme < cur {
				e.globalTrailingAnchor = &extreme
			}
		} else if extreme > cur {
			e.globalTrailingAnchor = &extreme
		}
	}

	anchor := *e.globalTrailingAnchor
	var distance float64
	switch sl.Kind {
	case model.StopLossTrailingPercent:
		distance = anchor * sl.Value / 100
	case model.StopLossTrailingATR:
		distance = sl.Value * atr
	default:
		return zonestate.Fill{}, false
	}

	var trigger float64
	if pos.Side == model.SideShort {
		trigger = anchor + distance
	} else {
		trigger = anchor - distance
	}

	if zonestate.Crosses(pos.Side, true, bar, trigger) {
		return zonestate.Fill{Reason: model.ExitTrailing, Price: zonestate.FillPrice(bar, trigger), Qty: pos.RemainingQty(), Full: true}, true
	}
	return zonestate.Fill{}, false
}

// strategySide derives the position side a fresh entry opens under. The
// language-neutral Strategy has no explicit side field beyond market_type's
// implication for spot (spot never shorts); perp strategies are long unless
// the entry_dsl is paired with a short-only convention upstream — spec.md
// leaves the side decision to the DSL author, so perp defaults long too and
// callers wanting shorts express it by sign of position_size in a future
// revision (tracked as an open question, see DESIGN.md).
func strategySide(strat model.Strategy) model.Side {
	return model.SideLong
}

// accrueMarginInterest returns the margin interest owed for one bar on a
// perp position's open notional (spec.md §4.5 step 3's accrued_margin_interest
// term), treating margin_interest_rate as an annualized rate spread evenly
// over the run's bars the same way metrics.sharpeRatio annualizes per-bar
// returns. Spot positions never carry margin and accrue nothing.
func accrueMarginInterest(pos *model.Position, strat model.Strategy, tf model.Timeframe) float64 {
	if strat.MarketType != model.MarketPerp || strat.MarginInterestRate <= 0 {
		return 0
	}
	notional := pos.RemainingQty() * pos.AvgEntryPrice()
	return notional * strat.MarginInterestRate / tf.BarsPerYear()
}

// markToMarket is the spec.md §4.5 step 3 equity formula: cash plus the
// mark-to-market value of whatever quantity is currently open, signed for
// side so a short position's equity falls when price rises.
func markToMarket(cash float64, pos *model.Position, closePrice float64) float64 {
	if pos == nil {
		return cash
	}
	equity := cash
	for _, leg := range pos.Legs {
		if !leg.IsOpen() {
			continue
		}
		switch leg.Side {
		case model.SideShort:
			equity += (leg.EntryPrice - closePrice) * leg.Quantity
		default:
			equity += (closePrice - leg.EntryPrice) * leg.Quantity
		}
	}
	return equity
}
