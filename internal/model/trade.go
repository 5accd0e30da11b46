package model

import "math"

// Side is long or short.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ExitReason is the stable exit-reason vocabulary of spec.md §6.
type ExitReason string

const (
	ExitOpen        ExitReason = "open"
	ExitSignal      ExitReason = "signal"
	ExitStopLoss    ExitReason = "stop_loss"
	ExitTrailing    ExitReason = "trailing_stop"
	ExitTakeProfit  ExitReason = "take_profit"
	ExitZoneExit    ExitReason = "zone_exit"
	ExitEndOfData   ExitReason = "end_of_data"
	ExitRejected    ExitReason = "rejected"
)

// Trade is one fill record: one leg of a Position group.
type Trade struct {
	ID       int64  `json:"id"`
	GroupID  string `json:"group_id"`
	Side     Side   `json:"side"`

	EntryBar   int       `json:"entry_bar"`
	EntryTime  int64     `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   float64   `json:"quantity"`

	ExitBar   *int        `json:"exit_bar,omitempty"`
	ExitTime  *int64      `json:"exit_time,omitempty"`
	ExitPrice *float64    `json:"exit_price,omitempty"`
	ExitReason ExitReason `json:"exit_reason"`
	ExitZone  string      `json:"exit_zone,omitempty"`

	PnL    *float64 `json:"pnl,omitempty"`
	PnLPct *float64 `json:"pnl_pct,omitempty"`

	CommissionPaid float64 `json:"commission_paid"`
}

// IsOpen reports whether this leg has not yet been closed.
func (t *Trade) IsOpen() bool {
	return t.ExitBar == nil
}

// Position is the implicit group of Trade legs sharing a group_id beginning
// with "dca-". All legs share Side; AvgEntryPrice/RemainingQty/OriginalQty
// are the spec.md §3 invariants (1)-(5).
type Position struct {
	GroupID     string  `json:"group_id"`
	Side        Side    `json:"side"`
	OriginalQty float64 `json:"original_qty"`
	Legs        []*Trade `json:"legs"`

	LastEntryBar int `json:"last_entry_bar"`
}

// RemainingQty sums the quantity of currently open legs.
func (p *Position) RemainingQty() float64 {
	var sum float64
	for _, leg := range p.Legs {
		if leg.IsOpen() {
			sum += leg.Quantity
		}
	}
	return sum
}

// AvgEntryPrice is the quantity-weighted average entry price over open legs.
func (p *Position) AvgEntryPrice() float64 {
	var notional, qty float64
	for _, leg := range p.Legs {
		if leg.IsOpen() {
			notional += leg.Quantity * leg.EntryPrice
			qty += leg.Quantity
		}
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// OpenLegCount returns the number of legs that have not yet been closed. It
// is not the count DCAConfig.MaxEntries is checked against: max_entries counts
// every leg ever opened, open or closed, which is len(p.Legs).
func (p *Position) OpenLegCount() int {
	n := 0
	for _, leg := range p.Legs {
		if leg.IsOpen() {
			n++
		}
	}
	return n
}

// UnrealizedPnLPct computes unrealized P&L percent vs. average entry price
// at the given mark price, signed for side.
func (p *Position) UnrealizedPnLPct(markPrice float64) float64 {
	avg := p.AvgEntryPrice()
	if avg == 0 {
		return 0
	}
	switch p.Side {
	case SideShort:
		return (avg - markPrice) / avg * 100
	default:
		return (markPrice - avg) / avg * 100
	}
}

// IsClosed reports whether every leg in the group has been closed.
func (p *Position) IsClosed() bool {
	return p.RemainingQty() <= 1e-12
}

// ZoneState is the per-Position exit-zone machine state of spec.md §3.
type ZoneState struct {
	CurrentZoneName      string   `json:"current_zone_name,omitempty"`
	ZoneEntryBar         int      `json:"zone_entry_bar"`
	TriggeredExits       map[string]bool `json:"triggered_exits"`
	TrailingStopAnchor   *float64 `json:"trailing_stop_anchor,omitempty"`
	LastZoneProgress     float64  `json:"last_zone_progress"`
}

// NewZoneState returns an initialized, empty zone state.
func NewZoneState() *ZoneState {
	return &ZoneState{TriggeredExits: make(map[string]bool)}
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Bar    int     `json:"bar"`
	Equity float64 `json:"equity"`
}

// Metrics is the spec.md §4.6 post-run aggregate.
type Metrics struct {
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRate        float64 `json:"win_rate"`
	ProfitFactor   float64 `json:"profit_factor"`
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	FinalEquity    float64 `json:"final_equity"`
}

// RoundPct rounds a fractional percentage to 2 decimal places, used only at
// the reporting boundary (spec.md §4.6) — internal math stays float64.
func RoundPct(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	return math.Round(v*100) / 100
}

// BacktestResult is the top-level output of a run.
type BacktestResult struct {
	Trades       []*Trade      `json:"trades"`
	EquityCurve  []EquityPoint `json:"equity_curve"`
	Metrics      Metrics       `json:"metrics"`
	BarsProcessed int          `json:"bars_processed"`
	DurationMs   int64         `json:"duration_ms"`
}
