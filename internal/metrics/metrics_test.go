package metrics

import (
	"math"
	"testing"

	"github.com/rkhatri-dev/zonetrader/internal/model"
)

func pnl(v float64) *float64 { return &v }

func tradeWithPnL(v float64) *model.Trade {
	return &model.Trade{PnL: pnl(v), ExitReason: model.ExitTakeProfit}
}

func TestComputeWinRateAndProfitFactor(t *testing.T) {
	trades := []*model.Trade{tradeWithPnL(100), tradeWithPnL(-50), tradeWithPnL(50)}
	curve := []model.EquityPoint{{Bar: 0, Equity: 1000}, {Bar: 1, Equity: 1100}}
	m := Compute(trades, curve, 1000, model.TF1h)

	if m.TotalTrades != 3 || m.WinningTrades != 2 || m.LosingTrades != 1 {
		t.Fatalf("unexpected trade counts: %+v", m)
	}
	wantWinRate := 2.0 / 3.0 * 100
	if math.Abs(m.WinRate-wantWinRate) > 1e-9 {
		t.Fatalf("expected win rate %.4f, got %.4f", wantWinRate, m.WinRate)
	}
	wantPF := 150.0 / 50.0
	if math.Abs(m.ProfitFactor-wantPF) > 1e-9 {
		t.Fatalf("expected profit factor %.4f, got %.4f", wantPF, m.ProfitFactor)
	}
}

func TestComputeProfitFactorInfinityWhenNoLosses(t *testing.T) {
	trades := []*model.Trade{tradeWithPnL(100), tradeWithPnL(50)}
	m := Compute(trades, nil, 1000, model.TF1h)
	if !math.IsInf(m.ProfitFactor, 1) {
		t.Fatalf("expected +Inf profit factor with no losing trades, got %v", m.ProfitFactor)
	}
}

func TestComputeRejectedTradesExcludedFromCounts(t *testing.T) {
	rejected := &model.Trade{ExitReason: model.ExitRejected, PnL: pnl(0)}
	trades := []*model.Trade{tradeWithPnL(10), rejected}
	m := Compute(trades, nil, 1000, model.TF1h)
	if m.TotalTrades != 1 {
		t.Fatalf("expected rejected trades excluded from TotalTrades, got %d", m.TotalTrades)
	}
}

func TestMaxDrawdownPct(t *testing.T) {
	curve := []model.EquityPoint{
		{Bar: 0, Equity: 1000},
		{Bar: 1, Equity: 1200},
		{Bar: 2, Equity: 900},
		{Bar: 3, Equity: 1100},
	}
	got := maxDrawdownPct(curve)
	want := (1200 - 900.0) / 1200 * 100
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected max drawdown %.4f, got %.4f", want, got)
	}
}

func TestTotalReturnAndFinalEquity(t *testing.T) {
	curve := []model.EquityPoint{{Bar: 0, Equity: 1000}, {Bar: 1, Equity: 1250}}
	m := Compute(nil, curve, 1000, model.TF1h)
	if m.FinalEquity != 1250 {
		t.Fatalf("expected final equity 1250, got %v", m.FinalEquity)
	}
	if math.Abs(m.TotalReturnPct-25) > 1e-9 {
		t.Fatalf("expected total return 25%%, got %v", m.TotalReturnPct)
	}
}
