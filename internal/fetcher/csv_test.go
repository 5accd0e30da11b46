package fetcher

import (
	"strings"
	"testing"

	"github.com/rkhatri-dev/zonetrader/internal/model"
)

func TestParseCSVSkipsMalformedRows(t *testing.T) {
	data := "1000,1,2,0.5,1.5,10,1059,15,4,5,6\nnotanumber,bad\n2000,1.5,2.5,1,2,20,2059,30,8,10,12\n"
	out, skipped := parseCSV(strings.NewReader(data), parseCandleRow)
	if len(out) != 2 {
		t.Fatalf("expected 2 parsed candles, got %d", len(out))
	}
	if skipped != 1 {
		t.Fatalf("expected 1 skipped row, got %d", skipped)
	}
}

func TestParseCandleRowRejectsInvalidOHLC(t *testing.T) {
	// high < low is invalid per model.Candle.Valid.
	rec := []string{"1000", "1", "0", "5", "1", "10", "1059", "0", "0", "0", "0"}
	_, ok := parseCandleRow(rec)
	if ok {
		t.Fatal("expected an invalid OHLC row to be rejected")
	}
}

func TestParseFundingRowTimestampFirstLayout(t *testing.T) {
	rec := []string{"1700000000000", "8", "0.0001"}
	row, ok := parseFundingRow(rec)
	if !ok {
		t.Fatal("expected timestamp-first funding row to parse")
	}
	fr := row.(model.FundingRate)
	if fr.FundingTimeMs != 1700000000000 || fr.Rate != 0.0001 {
		t.Fatalf("unexpected parse: %+v", fr)
	}
}

func TestParseFundingRowSymbolFirstLayout(t *testing.T) {
	rec := []string{"BTCUSDT", "1700000000000", "0.0002", "35000.5"}
	row, ok := parseFundingRow(rec)
	if !ok {
		t.Fatal("expected symbol-first funding row to parse")
	}
	fr := row.(model.FundingRate)
	if fr.Symbol != "BTCUSDT" || fr.FundingTimeMs != 1700000000000 || fr.Rate != 0.0002 || fr.MarkPrice != 35000.5 {
		t.Fatalf("unexpected parse: %+v", fr)
	}
}

func TestIsNumeric(t *testing.T) {
	cases := map[string]bool{
		"1700000000000": true,
		"-5":            true,
		"BTCUSDT":       false,
		"":              false,
	}
	for in, want := range cases {
		if got := isNumeric(in); got != want {
			t.Errorf("isNumeric(%q) = %v, want %v", in, got, want)
		}
	}
}
