// Package metrics computes the C8 post-run aggregate of spec.md §4.6 from a
// completed trade list and equity curve: win rate, profit factor, total
// return, max drawdown, and an annualized Sharpe ratio.
package metrics

import (
	"math"

	"github.com/rkhatri-dev/zonetrader/internal/model"
)

// Compute derives model.Metrics from the trades and equity curve a Run
// produced. tf is used only to annualize the Sharpe ratio via
// Timeframe.BarsPerYear.
func Compute(trades []*model.Trade, equityCurve []model.EquityPoint, initialCapital float64, tf model.Timeframe) model.Metrics {
	var m model.Metrics

	var grossProfit, grossLoss float64
	for _, t := range trades {
		if t.ExitReason == model.ExitRejected || t.PnL == nil {
			continue
		}
		m.TotalTrades++
		pnl := *t.PnL
		switch {
		case pnl > 0:
			m.WinningTrades++
			grossProfit += pnl
		case pnl < 0:
			m.LosingTrades++
			grossLoss += -pnl
		}
	}
	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	}
	m.ProfitFactor = profitFactor(grossProfit, grossLoss)

	finalEquity := initialCapital
	if n := len(equityCurve); n > 0 {
		finalEquity = equityCurve[n-1].Equity
	}
	m.FinalEquity = finalEquity
	if initialCapital > 0 {
		m.TotalReturnPct = (finalEquity - initialCapital) / initialCapital * 100
	}

	m.MaxDrawdownPct = maxDrawdownPct(equityCurve)
	m.SharpeRatio = sharpeRatio(equityCurve, tf)

	return m
}

// profitFactor is grossProfit/grossLoss; an all-winning run (grossLoss == 0)
// reports +Inf rather than a misleading 0 or NaN.
func profitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return grossProfit / grossLoss
}

// maxDrawdownPct scans the equity curve left to right, tracking the running
// peak and the worst percentage retracement from it.
func maxDrawdownPct(curve []model.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	var worst float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - p.Equity) / peak * 100
		if dd > worst {
			worst = dd
		}
	}
	return worst
}

// sharpeRatio annualizes the mean/stddev of per-bar equity returns using
// Timeframe.BarsPerYear, with a risk-free rate of 0.
func sharpeRatio(curve []model.EquityPoint, tf model.Timeframe) float64 {
	if len(curve) < 2 {
		return 0
	}
	rets := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		rets = append(rets, (curve[i].Equity-prev)/prev)
	}
	if len(rets) < 2 {
		return 0
	}
	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))

	var sumSq float64
	for _, r := range rets {
		d := r - mean
		sumSq += d * d
	}
	stddev := math.Sqrt(sumSq / float64(len(rets)-1))
	if stddev == 0 {
		return 0
	}
	barsPerYear := tf.BarsPerYear()
	if barsPerYear <= 0 {
		barsPerYear = 1
	}
	return mean / stddev * math.Sqrt(barsPerYear)
}
