package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"

	"github.com/rkhatri-dev/zonetrader/internal/config"
	"github.com/rkhatri-dev/zonetrader/internal/engine"
	"github.com/rkhatri-dev/zonetrader/internal/fetcher"
	"github.com/rkhatri-dev/zonetrader/internal/logger"
	"github.com/rkhatri-dev/zonetrader/internal/model"
	"github.com/rkhatri-dev/zonetrader/internal/report"
	"github.com/rkhatri-dev/zonetrader/internal/store"
)

func main() {
	configPath := flag.String("config", filepath.Join("strategies", "default.json"), "path to JSON run spec")
	dataDir := flag.String("data-dir", "./data", "directory holding per-symbol sqlite stores")
	outDir := flag.String("out", "./out", "directory to write result.json/trades.csv to")
	serve := flag.Bool("serve", false, "run as a REST server instead of a one-shot run")
	addr := flag.String("addr", ":8080", "REST server listen address")
	verbosity := flag.Int("v", int(logger.Info), "log verbosity: 0=error 1=info 2=debug 3=trace")
	flag.Parse()

	logger.SetVerbosity(*verbosity)

	if *serve {
		serveREST(*addr, *dataDir)
		return
	}

	spec, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("loading config: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()
	result, err := runBacktest(ctx, spec, *dataDir)
	if err != nil {
		logger.Errorf("backtest failed: %v", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		logger.Errorf("creating output dir %s: %v", *outDir, err)
		os.Exit(1)
	}
	if err := report.WriteJSON(result, *outDir); err != nil {
		logger.Errorf("writing result.json: %v", err)
	}
	if err := report.WriteCSV(result.Trades, *outDir); err != nil {
		logger.Errorf("writing trades.csv: %v", err)
	}
	logger.Infof("done: %d bars, %d trades, final_equity=%.2f", result.BarsProcessed, len(result.Trades), result.Metrics.FinalEquity)
}

// runBacktest opens the symbol's store, ensures the requested candle range
// is cached (materializing any gaps via the fetcher), and runs the engine
// over the result.
func runBacktest(ctx context.Context, spec *config.RunSpec, dataDir string) (*model.BacktestResult, error) {
	cfg := spec.Config
	st, err := store.Open(ctx, cfg.Symbol, filepath.Join(dataDir, cfg.Symbol+".db"))
	if err != nil {
		return nil, err
	}
	defer st.Close()

	f := fetcher.New(cfg.Symbol, st)
	candles, err := f.EnsureCandles(ctx, cfg.Timeframe, cfg.MarketType, cfg.StartMs, cfg.EndMs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	eng, err := engine.New(spec, candles)
	if err != nil {
		return nil, err
	}
	result, err := eng.Run(ctx)
	if err != nil {
		return nil, err
	}
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

// serveREST exposes POST /run (body: a config.RunSpec JSON document) and
// GET /health over gorilla/mux.
func serveREST(addr, dataDir string) {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/run", func(w http.ResponseWriter, req *http.Request) {
		var spec config.RunSpec
		if err := json.NewDecoder(req.Body).Decode(&spec); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := config.Validate(&spec); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Infof("received /run for %s %s", spec.Config.Symbol, spec.Config.Timeframe)
		result, err := runBacktest(req.Context(), &spec, dataDir)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}).Methods(http.MethodPost)

	logger.Infof("starting REST server on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Errorf("server stopped: %v", err)
		os.Exit(1)
	}
}
