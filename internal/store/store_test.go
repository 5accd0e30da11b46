package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rkhatri-dev/zonetrader/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), "BTCUSDT", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetCandlesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	candles := []model.Candle{
		{TimestampMs: 1000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{TimestampMs: 2000, Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 20},
	}
	if err := s.SaveCandles(ctx, model.TF1m, model.MarketSpot, candles); err != nil {
		t.Fatalf("SaveCandles: %v", err)
	}

	got, err := s.GetCandles(ctx, model.TF1m, model.MarketSpot, 0, 5000)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(got) != 2 || got[0].TimestampMs != 1000 || got[1].TimestampMs != 2000 {
		t.Fatalf("unexpected candles: %+v", got)
	}
}

func TestSaveCandlesUpsertOverwritesOnConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveCandles(ctx, model.TF1m, model.MarketSpot, []model.Candle{
		{TimestampMs: 1000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
	}); err != nil {
		t.Fatalf("SaveCandles: %v", err)
	}
	if err := s.SaveCandles(ctx, model.TF1m, model.MarketSpot, []model.Candle{
		{TimestampMs: 1000, Open: 9, High: 9, Low: 9, Close: 9, Volume: 99},
	}); err != nil {
		t.Fatalf("SaveCandles (overwrite): %v", err)
	}

	got, err := s.GetCandles(ctx, model.TF1m, model.MarketSpot, 0, 5000)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(got) != 1 || got[0].Close != 9 {
		t.Fatalf("expected upsert to overwrite candle, got %+v", got)
	}
}
