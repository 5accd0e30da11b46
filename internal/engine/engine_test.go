package engine

import (
	"context"
	"math"
	"testing"

	"github.com/rkhatri-dev/zonetrader/internal/config"
	"github.com/rkhatri-dev/zonetrader/internal/model"
)

func testCandles() []model.Candle {
	return []model.Candle{
		{TimestampMs: 0, Open: 100, High: 101, Low: 99, Close: 100},
		{TimestampMs: 1, Open: 100, High: 105, Low: 100, Close: 104},
		{TimestampMs: 2, Open: 104, High: 108, Low: 103, Close: 106},
		{TimestampMs: 3, Open: 106, High: 107, Low: 104, Close: 105},
		{TimestampMs: 4, Open: 105, High: 106, Low: 102, Close: 103},
	}
}

func baseSpec(entryDSL, exitDSL string) *config.RunSpec {
	return &config.RunSpec{
		Config: config.Config{
			Symbol:         "TESTUSDT",
			Timeframe:      model.TF1m,
			InitialCapital: 10000,
		},
		Strategy: model.Strategy{
			EntryDSL:             entryDSL,
			ExitDSL:              exitDSL,
			MaxOpenTrades:        1,
			MinBarsBetweenTrades: 1,
			PositionSizingType:   model.SizingFixedDollar,
			PositionSize:         1000,
			CommissionRate:       0,
			MarketType:           model.MarketSpot,
		},
	}
}

func TestRunEntersOnSignalAndFillsAtNextBarOpen(t *testing.T) {
	spec := baseSpec("bar_index == 0", "bar_index == 2")
	candles := testCandles()
	eng, err := New(spec, candles)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected exactly one trade, got %d: %+v", len(result.Trades), result.Trades)
	}
	tr := result.Trades[0]
	if tr.EntryBar != 1 || tr.EntryPrice != candles[1].Open {
		t.Fatalf("expected entry at bar 1 open (next-bar-open rule), got bar=%d price=%v", tr.EntryBar, tr.EntryPrice)
	}
	if tr.ExitBar == nil || *tr.ExitBar != 2 {
		t.Fatalf("expected exit signal to fire at bar 2, got %+v", tr.ExitBar)
	}
	if tr.ExitReason != model.ExitSignal {
		t.Fatalf("expected exit_reason=signal, got %v", tr.ExitReason)
	}
}

func TestRunForcesEndOfDataCloseOnFinalBar(t *testing.T) {
	spec := baseSpec("bar_index == 0", "") // no exit DSL: position should ride to the end
	candles := testCandles()
	eng, err := New(spec, candles)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected one trade, got %d", len(result.Trades))
	}
	tr := result.Trades[0]
	lastBar := len(candles) - 1
	if tr.ExitBar == nil || *tr.ExitBar != lastBar {
		t.Fatalf("expected forced close at final bar %d, got %+v", lastBar, tr.ExitBar)
	}
	if tr.ExitReason != model.ExitEndOfData {
		t.Fatalf("expected exit_reason=end_of_data, got %v", tr.ExitReason)
	}
	if *tr.ExitPrice != candles[lastBar].Close {
		t.Fatalf("expected end-of-data fill at final close, got %v", *tr.ExitPrice)
	}
}

func TestRunGlobalStopLossStaysUnhitWhenLowNeverReachesTrigger(t *testing.T) {
	spec := baseSpec("bar_index == 0", "")
	spec.Strategy.StopLoss = model.StopLossConfig{Kind: model.StopLossFixedPercent, Value: 3}
	candles := testCandles()
	// entry fills at bar1 open=100; a 3% stop sits at 97. Bar4's low (102)
	// never reaches it in this fixture, so assert the trade survives to
	// end_of_data instead of asserting a stop that wouldn't trigger.
	eng, err := New(spec, candles)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected one trade, got %d", len(result.Trades))
	}
	if result.Trades[0].ExitReason != model.ExitEndOfData {
		t.Fatalf("expected the stop to stay unhit in this fixture, got exit_reason=%v", result.Trades[0].ExitReason)
	}
}

func TestRunRejectsEntryWhenSizedQuantityIsZero(t *testing.T) {
	spec := baseSpec("bar_index == 0", "")
	spec.Strategy.PositionSizingType = model.SizingPercentEquity
	spec.Strategy.PositionSize = 10
	spec.Config.InitialCapital = 0 // percent_equity of 0 cash sizes to 0
	candles := testCandles()
	eng, err := New(spec, candles)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected one rejected trade record, got %d", len(result.Trades))
	}
	if result.Trades[0].ExitReason != model.ExitRejected {
		t.Fatalf("expected exit_reason=rejected, got %v", result.Trades[0].ExitReason)
	}
	if result.Trades[0].Quantity != 0 {
		t.Fatalf("expected zero quantity on a rejected entry, got %v", result.Trades[0].Quantity)
	}
}

func TestNewRejectsMalformedEntryDSL(t *testing.T) {
	spec := baseSpec("close >", "")
	if _, err := New(spec, testCandles()); err == nil {
		t.Fatal("expected malformed entry_dsl to fail at New, not mid-run")
	}
}

func TestNewRejectsEmptyCandleSeries(t *testing.T) {
	spec := baseSpec("bar_index == 0", "")
	if _, err := New(spec, nil); err == nil {
		t.Fatal("expected an empty candle series to be rejected")
	}
}

func dcaCandles() []model.Candle {
	return []model.Candle{
		{TimestampMs: 0, Open: 100, High: 101, Low: 99, Close: 100},
		{TimestampMs: 1, Open: 100, High: 102, Low: 99, Close: 101},
		{TimestampMs: 2, Open: 101, High: 103, Low: 100, Close: 102},
		{TimestampMs: 3, Open: 102, High: 104, Low: 101, Close: 103},
		{TimestampMs: 4, Open: 103, High: 105, Low: 102, Close: 104},
	}
}

func TestRunDCAContinueAddsLegToSameGroup(t *testing.T) {
	spec := baseSpec("bar_index == 0 || bar_index == 2", "")
	spec.Strategy.DCA = model.DCAConfig{Enabled: true, MaxEntries: 2, BarsBetween: 1, Mode: model.DCAContinue}
	candles := dcaCandles()
	eng, err := New(spec, candles)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// one DCA leg plus the original entry, both forced closed at end_of_data
	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 legs under one DCA group, got %d: %+v", len(result.Trades), result.Trades)
	}
	if result.Trades[0].GroupID != result.Trades[1].GroupID {
		t.Fatalf("expected both legs to share a group id under continue mode, got %q and %q", result.Trades[0].GroupID, result.Trades[1].GroupID)
	}
	if result.Trades[1].EntryBar != 3 {
		t.Fatalf("expected the DCA leg to fill at next-bar-open after the bar_index==2 signal, got %d", result.Trades[1].EntryBar)
	}
}

func TestRunDCAReplaceClosesPriorLegBeforeReopening(t *testing.T) {
	spec := baseSpec("bar_index == 0 || bar_index == 2", "")
	spec.Strategy.DCA = model.DCAConfig{Enabled: true, MaxEntries: 2, BarsBetween: 1, Mode: model.DCAReplace}
	candles := dcaCandles()
	eng, err := New(spec, candles)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// replace mode closes the first group before opening a second, distinct one
	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 separate trades under replace mode, got %d: %+v", len(result.Trades), result.Trades)
	}
	if result.Trades[0].GroupID == result.Trades[1].GroupID {
		t.Fatal("expected replace mode to open a new group id, not extend the old one")
	}
	if result.Trades[0].ExitReason != model.ExitSignal {
		t.Fatalf("expected the replaced leg to close with exit_reason=signal, got %v", result.Trades[0].ExitReason)
	}
}

func TestRunGlobalTrailingStopLocksInProfit(t *testing.T) {
	spec := baseSpec("bar_index == 0", "")
	spec.Strategy.StopLoss = model.StopLossConfig{Kind: model.StopLossTrailingPercent, Value: 5}
	candles := []model.Candle{
		{TimestampMs: 0, Open: 100, High: 101, Low: 99, Close: 100},
		{TimestampMs: 1, Open: 100, High: 102, Low: 100, Close: 101}, // entry fills here @100; anchor=102, trigger=96.9
		{TimestampMs: 2, Open: 101, High: 105, Low: 101, Close: 104}, // anchor=105, trigger=99.75
		{TimestampMs: 3, Open: 104, High: 108, Low: 103, Close: 107}, // anchor=108, trigger=102.6
		{TimestampMs: 4, Open: 107, High: 108, Low: 95, Close: 96},   // low crosses 102.6: trailing stop fires
	}
	eng, err := New(spec, candles)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected one trade, got %d: %+v", len(result.Trades), result.Trades)
	}
	tr := result.Trades[0]
	if tr.ExitReason != model.ExitTrailing {
		t.Fatalf("expected exit_reason=trailing_stop, got %v", tr.ExitReason)
	}
	if tr.ExitBar == nil || *tr.ExitBar != 4 {
		t.Fatalf("expected the trailing stop to fire on bar 4, got %+v", tr.ExitBar)
	}
	wantFill := 108 * (1 - 0.05)
	if tr.ExitPrice == nil || math.Abs(*tr.ExitPrice-wantFill) > 1e-9 {
		t.Fatalf("expected fill at the 5%% trailing distance off the 108 anchor (%.4f), got %v", wantFill, tr.ExitPrice)
	}
}

func TestRunDCARespectsGlobalMinBarsBetweenTradesOverTighterDCASpacing(t *testing.T) {
	spec := baseSpec("bar_index == 0 || bar_index == 2 || bar_index == 4", "")
	spec.Strategy.MinBarsBetweenTrades = 3
	spec.Strategy.DCA = model.DCAConfig{Enabled: true, MaxEntries: 3, BarsBetween: 1, Mode: model.DCAContinue}
	candles := []model.Candle{
		{TimestampMs: 0, Open: 100, High: 101, Low: 99, Close: 100},
		{TimestampMs: 1, Open: 100, High: 102, Low: 99, Close: 101}, // initial entry fills here (bar 1)
		{TimestampMs: 2, Open: 101, High: 103, Low: 100, Close: 102},
		{TimestampMs: 3, Open: 102, High: 104, Low: 101, Close: 103},
		{TimestampMs: 4, Open: 103, High: 105, Low: 102, Close: 104},
		{TimestampMs: 5, Open: 104, High: 106, Low: 103, Close: 105}, // DCA leg fills here (bar 5)
	}
	eng, err := New(spec, candles)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// dca.bars_between=1 alone would allow a leg as soon as bar_index==2 (one
	// bar after the bar-1 fill); min_bars_between_trades=3 must hold it off
	// until the bar_index==4 signal fills at bar 5.
	if len(result.Trades) != 2 {
		t.Fatalf("expected exactly 2 legs (no leg at the bar_index==2 signal), got %d: %+v", len(result.Trades), result.Trades)
	}
	if result.Trades[0].GroupID != result.Trades[1].GroupID {
		t.Fatal("expected both legs in one DCA group under continue mode")
	}
	if result.Trades[0].EntryBar != 1 || result.Trades[1].EntryBar != 5 {
		t.Fatalf("expected entries at bars 1 and 5, got %d and %d", result.Trades[0].EntryBar, result.Trades[1].EntryBar)
	}
}

func TestRunAccruesMarginInterestOnOpenPerpNotional(t *testing.T) {
	spec := baseSpec("bar_index == 0", "")
	spec.Strategy.MarketType = model.MarketPerp
	spec.Strategy.MarginInterestRate = 0.1
	spec.Config.Timeframe = model.TF1h
	candles := testCandles()
	eng, err := New(spec, candles)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected one trade, got %d", len(result.Trades))
	}
	tr := result.Trades[0]
	if tr.PnL == nil {
		t.Fatal("expected a realized pnl on the closed trade")
	}
	// notional=10*100=1000 open every one of the 5 bars this position is held;
	// a spot run with the same fixture would close at exactly pnl=30 (commission=0).
	perBarInterest := 1000.0 * spec.Strategy.MarginInterestRate / model.TF1h.BarsPerYear()
	wantEquity := spec.Config.InitialCapital + 30 - 5*perBarInterest
	if math.Abs(result.Metrics.FinalEquity-wantEquity) > 1e-6 {
		t.Fatalf("expected final equity %.8f after 5 bars of margin interest accrual, got %.8f", wantEquity, result.Metrics.FinalEquity)
	}
}

func TestRunSpotPositionNeverAccruesMarginInterest(t *testing.T) {
	spec := baseSpec("bar_index == 0", "")
	spec.Strategy.MarketType = model.MarketSpot
	spec.Strategy.MarginInterestRate = 0.1 // set but must be ignored for spot
	spec.Config.Timeframe = model.TF1h
	candles := testCandles()
	eng, err := New(spec, candles)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantEquity := spec.Config.InitialCapital + 30
	if math.Abs(result.Metrics.FinalEquity-wantEquity) > 1e-9 {
		t.Fatalf("expected spot final equity %.4f (no margin interest), got %.4f", wantEquity, result.Metrics.FinalEquity)
	}
}

func TestRunZoneExitImmediatelyClosesPositionOnZoneEntry(t *testing.T) {
	spec := baseSpec("bar_index == 0", "")
	spec.Strategy.ZoneEvaluation = model.ZoneEvalCandleClose
	spec.Strategy.ExitZones = []model.ExitZone{
		{Name: "profit", MinPnLPct: 0.5, MaxPnLPct: 1e18, ExitImmediately: true},
	}
	candles := dcaCandles()
	eng, err := New(spec, candles)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected exactly one trade, got %d: %+v", len(result.Trades), result.Trades)
	}
	tr := result.Trades[0]
	if tr.ExitReason != model.ExitZoneExit {
		t.Fatalf("expected exit_reason=zone_exit once unrealized pnl crosses into the zone, got %v", tr.ExitReason)
	}
	if tr.ExitZone != "profit" {
		t.Fatalf("expected exit_zone=profit, got %q", tr.ExitZone)
	}
}
