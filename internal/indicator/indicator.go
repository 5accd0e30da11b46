// Package indicator computes standard technical indicators over a candle
// window. It is the concrete implementation behind the C3 "indicator engine"
// interface spec.md treats as opaque outside the condition evaluator.
package indicator

import (
	"fmt"
	"math"

	"github.com/rkhatri-dev/zonetrader/internal/model"
)

// Engine computes indicators over a fixed candle series, memoizing results
// per (name, period, bar index) for the lifetime of one backtest run.
type Engine struct {
	candles []model.Candle
	cache   map[string]float64
}

// New builds an indicator engine over the given candle series.
func New(candles []model.Candle) *Engine {
	return &Engine{candles: candles, cache: make(map[string]float64)}
}

func (e *Engine) memo(key string, compute func() float64) float64 {
	if v, ok := e.cache[key]; ok {
		return v
	}
	v := compute()
	e.cache[key] = v
	return v
}

// SMA returns the simple moving average of Close over `period` bars ending
// at barIndex (inclusive). NaN if there aren't enough bars (warm-up).
func (e *Engine) SMA(barIndex, period int) float64 {
	key := fmt.Sprintf("sma:%d:%d", period, barIndex)
	return e.memo(key, func() float64 {
		if period <= 0 || barIndex+1 < period {
			return math.NaN()
		}
		var sum float64
		for i := barIndex - period + 1; i <= barIndex; i++ {
			sum += e.candles[i].Close
		}
		return sum / float64(period)
	})
}

// EMA returns the exponential moving average of Close over `period` bars,
// seeded by the SMA of the first `period` bars (the common convention).
func (e *Engine) EMA(barIndex, period int) float64 {
	key := fmt.Sprintf("ema:%d:%d", period, barIndex)
	return e.memo(key, func() float64 {
		if period <= 0 || barIndex+1 < period {
			return math.NaN()
		}
		alpha := 2.0 / (float64(period) + 1.0)
		prev := e.SMA(period-1, period)
		for i := period; i <= barIndex; i++ {
			prev = alpha*e.candles[i].Close + (1-alpha)*prev
		}
		return prev
	})
}

// RSI returns the relative strength index over `period` bars, using simple
// (unsmoothed) averages of the gains and losses in that window.
func (e *Engine) RSI(barIndex, period int) float64 {
	key := fmt.Sprintf("rsi:%d:%d", period, barIndex)
	return e.memo(key, func() float64 {
		if period <= 0 || barIndex < period {
			return math.NaN()
		}
		var gainSum, lossSum float64
		for i := barIndex - period + 1; i <= barIndex; i++ {
			delta := e.candles[i].Close - e.candles[i-1].Close
			if delta > 0 {
				gainSum += delta
			} else {
				lossSum += -delta
			}
		}
		avgGain := gainSum / float64(period)
		avgLoss := lossSum / float64(period)
		if avgLoss == 0 {
			return 100
		}
		rs := avgGain / avgLoss
		return 100 - 100/(1+rs)
	})
}

// ATR returns the simple (unsmoothed) average of the true range over the
// last `period` bars.
func (e *Engine) ATR(barIndex, period int) float64 {
	key := fmt.Sprintf("atr:%d:%d", period, barIndex)
	return e.memo(key, func() float64 {
		if period <= 0 || barIndex < period {
			return math.NaN()
		}
		var sum float64
		for i := barIndex - period + 1; i <= barIndex; i++ {
			sum += trueRange(e.candles[i], e.candles[i-1])
		}
		return sum / float64(period)
	})
}

func trueRange(cur, prev model.Candle) float64 {
	hl := cur.High - cur.Low
	hc := math.Abs(cur.High - prev.Close)
	lc := math.Abs(cur.Low - prev.Close)
	return math.Max(hl, math.Max(hc, lc))
}

// StdDev returns the population standard deviation of Close over `period`
// bars ending at barIndex.
func (e *Engine) StdDev(barIndex, period int) float64 {
	key := fmt.Sprintf("stddev:%d:%d", period, barIndex)
	return e.memo(key, func() float64 {
		if period <= 0 || barIndex+1 < period {
			return math.NaN()
		}
		mean := e.SMA(barIndex, period)
		var sumSq float64
		for i := barIndex - period + 1; i <= barIndex; i++ {
			d := e.candles[i].Close - mean
			sumSq += d * d
		}
		return math.Sqrt(sumSq / float64(period))
	})
}
