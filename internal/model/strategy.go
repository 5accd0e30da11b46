package model

import (
	"encoding/json"
	"math"
)

// PositionSizingType selects how entry notional is computed.
type PositionSizingType string

const (
	SizingFixedDollar   PositionSizingType = "fixed_dollar"
	SizingFixedQuantity PositionSizingType = "fixed_quantity"
	SizingPercentEquity PositionSizingType = "percent_equity"
)

// StopLossKind / TakeProfitKind are the tagged-variant stop/TP types called
// for in spec.md §9 ("Dynamic-typed config -> tagged variants").
type StopLossKind string

const (
	StopLossNone            StopLossKind = "none"
	StopLossFixedPercent    StopLossKind = "fixed_percent"
	StopLossFixedATR        StopLossKind = "fixed_atr"
	StopLossTrailingPercent StopLossKind = "trailing_percent"
	StopLossTrailingATR     StopLossKind = "trailing_atr"
)

type TakeProfitKind string

const (
	TakeProfitNone            TakeProfitKind = "none"
	TakeProfitFixedPercent    TakeProfitKind = "fixed_percent"
	TakeProfitFixedATR        TakeProfitKind = "fixed_atr"
	TakeProfitTrailingPercent TakeProfitKind = "trailing_percent"
	TakeProfitTrailingATR     TakeProfitKind = "trailing_atr"
)

// StopLossConfig / TakeProfitConfig are a sum type encoded as a Kind+Value
// pair. For the strategy-level stop/take-profit, Kind is validated against
// the enum (and Value checked > 0 when a kind is set) at config-load time (see
// internal/config); the stop/take-profit configs of exit zones are not
// checked there.
type StopLossConfig struct {
	Kind  StopLossKind `json:"kind"`
	Value float64      `json:"value,omitempty"`
}

func (s StopLossConfig) IsTrailing() bool {
	return s.Kind == StopLossTrailingPercent || s.Kind == StopLossTrailingATR
}

func (s StopLossConfig) IsSet() bool {
	return s.Kind != "" && s.Kind != StopLossNone
}

type TakeProfitConfig struct {
	Kind  TakeProfitKind `json:"kind"`
	Value float64        `json:"value,omitempty"`
}

func (t TakeProfitConfig) IsTrailing() bool {
	return t.Kind == TakeProfitTrailingPercent || t.Kind == TakeProfitTrailingATR
}

func (t TakeProfitConfig) IsSet() bool {
	return t.Kind != "" && t.Kind != TakeProfitNone
}

// DCAMode selects what happens to an existing position when a new DCA leg
// triggers.
type DCAMode string

const (
	DCAContinue DCAMode = "continue"
	DCAReplace  DCAMode = "replace"
)

// DCAConfig describes dollar-cost-averaging pyramiding behavior.
type DCAConfig struct {
	Enabled        bool    `json:"enabled"`
	MaxEntries     int     `json:"max_entries,omitempty"`
	BarsBetween    int     `json:"bars_between,omitempty"`
	Mode           DCAMode `json:"mode,omitempty"`
	SizeMultiplier float64 `json:"size_multiplier,omitempty"`
}

// ZoneEvaluationPolicy selects whether unrealized P&L (and thus zone
// membership) is computed against the bar's close or its intrabar extremes.
type ZoneEvaluationPolicy string

const (
	ZoneEvalCandleClose ZoneEvaluationPolicy = "candle_close"
	ZoneEvalIntrabar    ZoneEvaluationPolicy = "intrabar"
)

// ReentryPolicy controls what happens to triggered_exits / trailing anchor
// when a position re-enters a zone it previously left.
type ReentryPolicy string

const (
	ReentryContinue ReentryPolicy = "continue"
	ReentryReset    ReentryPolicy = "reset"
)

// ExitBasis selects whether a partial exit's percentage is measured against
// the position's original or remaining quantity.
type ExitBasis string

const (
	ExitBasisOriginal  ExitBasis = "original"
	ExitBasisRemaining ExitBasis = "remaining"
)

// ExitZone is one entry in the strategy's ordered exit-zone list. Zone
// membership is the half-open range [MinPnLPct, MaxPnLPct) on unrealized
// P&L percent vs. average entry price; the first matching zone in list order
// wins. Unbounded ends are represented with +/-Inf.
//
// JSON has no Infinity literal, so the wire format carries MinPnLPct/
// MaxPnLPct as optional pointers (omitted/null = unbounded) and UnmarshalJSON
// resolves them to +/-Inf; Contains and all in-memory consumers only ever see
// the resolved float64 fields.
type ExitZone struct {
	Name            string           `json:"name"`
	MinPnLPct       float64          `json:"-"`
	MaxPnLPct       float64          `json:"-"`
	StopLoss        StopLossConfig   `json:"stop_loss"`
	TakeProfit      TakeProfitConfig `json:"take_profit"`
	ExitImmediately bool             `json:"exit_immediately,omitempty"`
	ExitPct         *float64         `json:"exit_pct,omitempty"` // 0..100, nil = zone does not itself close
	ExitBasis       ExitBasis        `json:"exit_basis,omitempty"`
	Reentry         ReentryPolicy    `json:"reentry,omitempty"`
	MinBarsInZone   int              `json:"min_bars_in_zone,omitempty"`
}

// exitZoneWire mirrors ExitZone for JSON (un)marshaling with optional bounds.
type exitZoneWire struct {
	Name            string           `json:"name"`
	MinPnLPct       *float64         `json:"min_pnl_pct,omitempty"`
	MaxPnLPct       *float64         `json:"max_pnl_pct,omitempty"`
	StopLoss        StopLossConfig   `json:"stop_loss"`
	TakeProfit      TakeProfitConfig `json:"take_profit"`
	ExitImmediately bool             `json:"exit_immediately,omitempty"`
	ExitPct         *float64         `json:"exit_pct,omitempty"`
	ExitBasis       ExitBasis        `json:"exit_basis,omitempty"`
	Reentry         ReentryPolicy    `json:"reentry,omitempty"`
	MinBarsInZone   int              `json:"min_bars_in_zone,omitempty"`
}

func (z *ExitZone) UnmarshalJSON(data []byte) error {
	var w exitZoneWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*z = ExitZone{
		Name:            w.Name,
		StopLoss:        w.StopLoss,
		TakeProfit:      w.TakeProfit,
		ExitImmediately: w.ExitImmediately,
		ExitPct:         w.ExitPct,
		ExitBasis:       w.ExitBasis,
		Reentry:         w.Reentry,
		MinBarsInZone:   w.MinBarsInZone,
	}
	if w.MinPnLPct != nil {
		z.MinPnLPct = *w.MinPnLPct
	} else {
		z.MinPnLPct = math.Inf(-1)
	}
	if w.MaxPnLPct != nil {
		z.MaxPnLPct = *w.MaxPnLPct
	} else {
		z.MaxPnLPct = math.Inf(1)
	}
	return nil
}

func (z ExitZone) MarshalJSON() ([]byte, error) {
	w := exitZoneWire{
		Name:            z.Name,
		StopLoss:        z.StopLoss,
		TakeProfit:      z.TakeProfit,
		ExitImmediately: z.ExitImmediately,
		ExitPct:         z.ExitPct,
		ExitBasis:       z.ExitBasis,
		Reentry:         z.Reentry,
		MinBarsInZone:   z.MinBarsInZone,
	}
	if !math.IsInf(z.MinPnLPct, -1) {
		v := z.MinPnLPct
		w.MinPnLPct = &v
	}
	if !math.IsInf(z.MaxPnLPct, 1) {
		v := z.MaxPnLPct
		w.MaxPnLPct = &v
	}
	return json.Marshal(w)
}

// Contains reports whether pnlPct falls in this zone's half-open range.
func (z ExitZone) Contains(pnlPct float64) bool {
	return pnlPct >= z.MinPnLPct && pnlPct < z.MaxPnLPct
}

// Strategy is the language-neutral strategy spec of spec.md §3.
type Strategy struct {
	Name       string `json:"name"`
	EntryDSL   string `json:"entry_dsl"`
	ExitDSL    string `json:"exit_dsl,omitempty"`

	MaxOpenTrades         int `json:"max_open_trades"`
	MinBarsBetweenTrades  int `json:"min_bars_between_trades"`
	MinBarsBeforeExit     int `json:"min_bars_before_exit"`

	PositionSizingType PositionSizingType `json:"position_sizing_type"`
	PositionSize       float64            `json:"position_size"`

	CommissionRate       float64    `json:"commission_rate"`
	MarketType           MarketType `json:"market_type"`
	MarginInterestRate   float64    `json:"margin_interest_rate,omitempty"`

	StopLoss   StopLossConfig   `json:"stop_loss"`
	TakeProfit TakeProfitConfig `json:"take_profit"`
	DCA        DCAConfig        `json:"dca"`

	ExitZones      []ExitZone           `json:"exit_zones"`
	ZoneEvaluation ZoneEvaluationPolicy `json:"zone_evaluation"`
}
