package zonestate

import "github.com/rkhatri-dev/zonetrader/internal/model"

// ResolveStopPrice and ResolveTakeProfitPrice are exported so the engine can
// resolve the strategy-level global stop/TP with the same arithmetic used
// for zone-level stops (spec.md §4.5's global check is "the same shape, one
// level up").
func ResolveStopPrice(kind model.StopLossKind, value, refPrice, atr float64, side model.Side) float64 {
	return resolveStopPrice(kind, value, refPrice, atr, side)
}

func ResolveTakeProfitPrice(kind model.TakeProfitKind, value, refPrice, atr float64, side model.Side) float64 {
	return resolveTakeProfitPrice(kind, value, refPrice, atr, side)
}

// Crosses and FillPrice are exported for the same reason.
func Crosses(side model.Side, isStop bool, bar model.Candle, trigger float64) bool {
	return crosses(side, isStop, bar, trigger)
}

func FillPrice(bar model.Candle, trigger float64) float64 {
	return fillPrice(bar, trigger)
}

func resolveStopPrice(kind model.StopLossKind, value, refPrice, atr float64, side model.Side) float64 {
	long := side != model.SideShort
	switch kind {
	case model.StopLossFixedPercent, model.StopLossTrailingPercent:
		if long {
			return refPrice * (1 - value/100)
		}
		return refPrice * (1 + value/100)
	case model.StopLossFixedATR, model.StopLossTrailingATR:
		if long {
			return refPrice - value*atr
		}
		return refPrice + value*atr
	default:
		return refPrice
	}
}

func resolveTakeProfitPrice(kind model.TakeProfitKind, value, refPrice, atr float64, side model.Side) float64 {
	long := side != model.SideShort
	switch kind {
	case model.TakeProfitFixedPercent, model.TakeProfitTrailingPercent:
		if long {
			return refPrice * (1 + value/100)
		}
		return refPrice * (1 - value/100)
	case model.TakeProfitFixedATR, model.TakeProfitTrailingATR:
		if long {
			return refPrice + value*atr
		}
		return refPrice - value*atr
	default:
		return refPrice
	}
}

// crosses reports whether the bar's [low, high] range reaches trigger in the
// adverse-for-a-stop / favorable-for-a-TP direction. isStop selects which
// side of the position the trigger is protecting: a stop is below the
// market for a long (or above for a short); a take-profit is the mirror.
func crosses(side model.Side, isStop bool, bar model.Candle, trigger float64) bool {
	long := side != model.SideShort
	below := long == isStop // long+stop or short+TP -> trigger is below
	if below {
		return bar.Low <= trigger
	}
	return bar.High >= trigger
}

// fillPrice implements spec.md §9's gap-fill decision: fill at the trigger
// price when it falls inside [low, high]; otherwise the bar gapped through
// it, so fill at the bar's open (DESIGN.md Open Question decision #2).
func fillPrice(bar model.Candle, trigger float64) float64 {
	if trigger >= bar.Low && trigger <= bar.High {
		return trigger
	}
	return bar.Open
}
