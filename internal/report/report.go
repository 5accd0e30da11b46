// Package report writes a BacktestResult to disk as JSON and CSV, the way
// the teacher's report package serializes a backtest's trades.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rkhatri-dev/zonetrader/internal/model"
)

// WriteJSON writes the full BacktestResult (trades, equity curve, metrics)
// to <outdir>/result.json.
func WriteJSON(res *model.BacktestResult, outdir string) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outdir, "result.json"), b, 0644)
}

// WriteCSV writes one row per trade leg to <outdir>/trades.csv.
func WriteCSV(trades []*model.Trade, outdir string) error {
	f, err := os.Create(filepath.Join(outdir, "trades.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	headers := []string{"group_id", "side", "entry_bar", "entry_price", "quantity", "exit_bar", "exit_price", "exit_reason", "exit_zone", "pnl", "pnl_pct", "commission_paid"}
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, t := range trades {
		exitBar, exitPrice, pnl, pnlPct := "", "", "", ""
		if t.ExitBar != nil {
			exitBar = fmt.Sprintf("%d", *t.ExitBar)
		}
		if t.ExitPrice != nil {
			exitPrice = fmt.Sprintf("%.8f", *t.ExitPrice)
		}
		if t.PnL != nil {
			pnl = fmt.Sprintf("%.8f", *t.PnL)
		}
		if t.PnLPct != nil {
			pnlPct = fmt.Sprintf("%.4f", model.RoundPct(*t.PnLPct))
		}
		row := []string{
			t.GroupID,
			string(t.Side),
			fmt.Sprintf("%d", t.EntryBar),
			fmt.Sprintf("%.8f", t.EntryPrice),
			fmt.Sprintf("%.8f", t.Quantity),
			exitBar,
			exitPrice,
			string(t.ExitReason),
			t.ExitZone,
			pnl,
			pnlPct,
			fmt.Sprintf("%.8f", t.CommissionPaid),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
