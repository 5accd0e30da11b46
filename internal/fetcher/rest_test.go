package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-resty/resty/v2"

	"github.com/rkhatri-dev/zonetrader/internal/model"
	"github.com/rkhatri-dev/zonetrader/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(context.Background(), "BTCUSDT", path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestFillCandlesIncrementalPaginatesUntilShortPage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			w.Write([]byte(`[[1000,"1","2","0.5","1.5","10",1059,"5",4,"2","3",""]]`))
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	st := newTestStore(t)
	f := New("BTCUSDT", st, WithRESTBaseURL(srv.URL), WithHTTPClient(resty.New()))

	gap := store.GapRange{StartMs: 1000, EndMs: 2000}
	if err := f.fillCandlesIncremental(context.Background(), model.TF1m, model.MarketSpot, "1m:spot", gap); err != nil {
		t.Fatalf("fillCandlesIncremental: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a short final page to stop pagination, got %d calls", calls)
	}

	candles, err := st.GetCandles(context.Background(), model.TF1m, model.MarketSpot, 0, 3000)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(candles) != 1 || candles[0].TimestampMs != 1000 {
		t.Fatalf("expected the decoded kline row to be persisted, got %+v", candles)
	}
}

func TestFillCandlesIncrementalPropagatesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"msg":"boom"}`))
	}))
	defer srv.Close()

	st := newTestStore(t)
	f := New("BTCUSDT", st, WithRESTBaseURL(srv.URL), WithHTTPClient(resty.New()))

	gap := store.GapRange{StartMs: 1000, EndMs: 2000}
	if err := f.fillCandlesIncremental(context.Background(), model.TF1m, model.MarketSpot, "1m:spot", gap); err == nil {
		t.Fatal("expected a 500 response to surface as an error")
	}
}

func TestDecodeKlineRowRejectsShortRow(t *testing.T) {
	if _, ok := decodeKlineRow([]any{1000.0, "1"}); ok {
		t.Fatal("expected a short row to be rejected")
	}
}

func TestDecodeKlineRowParsesFullRow(t *testing.T) {
	row := []any{1000.0, "1", "2", "0.5", "1.5", "10", 1059.0, "5", 4.0, "2", "3", ""}
	c, ok := decodeKlineRow(row)
	if !ok {
		t.Fatal("expected a full row to decode")
	}
	if c.Open != 1 || c.High != 2 || c.Low != 0.5 || c.Close != 1.5 {
		t.Fatalf("unexpected decoded candle: %+v", c)
	}
}
