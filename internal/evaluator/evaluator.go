// Package evaluator implements the C4 condition-evaluator contract of
// spec.md §4.3: parse a boolean DSL expression once, then evaluate it
// cheaply at any bar index. It is the concrete realization of what the rest
// of the engine treats as an opaque ConditionEvaluator.
//
// Parse errors surface eagerly from Prepare, matching the govaluate usage
// pattern in the teacher's strategy-leg expression helper
// (internal/backtest/strategy/helper.go's evaluateLegExpression): build a
// govaluate.EvaluableExpression once, then Evaluate it against a fresh
// parameters map per call site.
package evaluator

import (
	"fmt"

	"github.com/Knetic/govaluate"

	"github.com/rkhatri-dev/zonetrader/internal/indicator"
	"github.com/rkhatri-dev/zonetrader/internal/logger"
	"github.com/rkhatri-dev/zonetrader/internal/model"
)

// ConditionEvaluator is the interface the backtest engine depends on; its
// DSL grammar and AST representation are intentionally opaque to callers.
type ConditionEvaluator interface {
	Evaluate(barIndex int) bool
}

// Evaluator wraps a parsed govaluate expression plus the candle/indicator
// context it is evaluated against.
type Evaluator struct {
	expr      *govaluate.EvaluableExpression
	candles   []model.Candle
	ind       *indicator.Engine
	openPos   func(barIndex int) (unrealizedPnLPct float64, hasPosition bool)
	source    string
}

// Option customizes parameter injection beyond the always-available OHLCV
// and indicator params.
type Option func(*Evaluator)

// WithPositionContext supplies a callback exposing the currently-open
// position's unrealized P&L percent, so exit DSLs can reference it.
func WithPositionContext(fn func(barIndex int) (float64, bool)) Option {
	return func(e *Evaluator) { e.openPos = fn }
}

// Prepare parses the DSL source against the given candle series and
// indicator engine. A malformed expression is returned as an error
// immediately (spec.md §4.3 "parse errors surface before the run").
func Prepare(source string, candles []model.Candle, ind *indicator.Engine, opts ...Option) (*Evaluator, error) {
	expr, err := govaluate.NewEvaluableExpression(source)
	if err != nil {
		return nil, fmt.Errorf("parsing condition %q: %w", source, err)
	}
	e := &Evaluator{expr: expr, candles: candles, ind: ind, source: source}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate runs the parsed expression at barIndex. Per spec.md §4.3,
// evaluation errors at a given bar (e.g. an indicator undefined during
// warm-up, or a parameter key missing from the expression) are swallowed and
// treated as false; this is the documented warm-up policy, not a bug.
func (e *Evaluator) Evaluate(barIndex int) bool {
	if barIndex < 0 || barIndex >= len(e.candles) {
		return false
	}
	params := e.paramsAt(barIndex)
	result, err := e.expr.Evaluate(params)
	if err != nil {
		logger.Tracef("evaluator: %q at bar %d swallowed error: %v", e.source, barIndex, err)
		return false
	}
	b, ok := result.(bool)
	if !ok {
		logger.Tracef("evaluator: %q at bar %d produced non-bool %v, treated as false", e.source, barIndex, result)
		return false
	}
	return b
}

func (e *Evaluator) paramsAt(barIndex int) map[string]any {
	c := e.candles[barIndex]
	params := map[string]any{
		"open":           c.Open,
		"high":           c.High,
		"low":            c.Low,
		"close":          c.Close,
		"volume":         c.Volume,
		"bar_index":      float64(barIndex),
		"sma_10":         e.ind.SMA(barIndex, 10),
		"sma_20":         e.ind.SMA(barIndex, 20),
		"sma_50":         e.ind.SMA(barIndex, 50),
		"ema_12":         e.ind.EMA(barIndex, 12),
		"ema_26":         e.ind.EMA(barIndex, 26),
		"rsi_14":         e.ind.RSI(barIndex, 14),
		"atr_14":         e.ind.ATR(barIndex, 14),
		"stddev_20":      e.ind.StdDev(barIndex, 20),
	}
	if e.openPos != nil {
		if pnlPct, ok := e.openPos(barIndex); ok {
			params["unrealized_pnl_pct"] = pnlPct
		}
	}
	return params
}
