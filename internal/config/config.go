// Package config loads and validates the engine run configuration: the
// spec.md §6 `config` object plus the Strategy it runs against.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/rkhatri-dev/zonetrader/internal/apperrors"
	"github.com/rkhatri-dev/zonetrader/internal/model"
)

var validate = validator.New()

// Config is the spec.md §6 external-interface `config` object.
type Config struct {
	Symbol             string           `json:"symbol" validate:"required"`
	Timeframe          model.Timeframe  `json:"timeframe" validate:"required"`
	StartMs            int64            `json:"start_ms"`
	EndMs              int64            `json:"end_ms" validate:"gtfield=StartMs"`
	InitialCapital     float64          `json:"initial_capital" validate:"gt=0"`
	SizingType         model.PositionSizingType `json:"sizing_type" validate:"required,oneof=fixed_dollar fixed_quantity percent_equity"`
	PositionSize       float64          `json:"position_size" validate:"gt=0"`
	CommissionRate     float64          `json:"commission_rate" validate:"gte=0"`
	MarketType         model.MarketType `json:"market_type" validate:"required,oneof=spot perp"`
	MarginInterestRate float64          `json:"margin_interest_rate,omitempty" validate:"gte=0"`

	// Seed makes group_id generation ("dca-"+uuid) deterministic across runs
	// of the same RunSpec; zero is a valid seed.
	Seed int64 `json:"seed,omitempty"`
}

// RunSpec bundles the Config with the Strategy it backs, as loaded from a
// single JSON file by cmd/zonetrader.
type RunSpec struct {
	Config   Config         `json:"config" validate:"required"`
	Strategy model.Strategy `json:"strategy" validate:"required"`
}

// Load reads and validates a RunSpec from a JSON file. Any validation
// failure is wrapped in apperrors.ErrConfiguration, per spec.md §7 ("surfaced
// before iteration; run does not start").
func Load(path string) (*RunSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var spec RunSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("%w: invalid config json: %v", apperrors.ErrConfiguration, err)
	}
	if err := Validate(&spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate runs struct-tag validation plus the cross-field invariants a
// validator tag can't express: zone range ordering, DCA config consistency,
// and, for the strategy-level stop/take-profit, a known Kind and a positive
// Value whenever a Kind is set.
func Validate(spec *RunSpec) error {
	if err := validate.Struct(spec); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
	}
	if err := validateStrategy(&spec.Strategy); err != nil {
		return err
	}
	return nil
}

func validateStrategy(s *model.Strategy) error {
	if s.MaxOpenTrades <= 0 {
		return fmt.Errorf("%w: max_open_trades must be > 0", apperrors.ErrConfiguration)
	}
	// The engine holds at most one *model.Position at a time (a DCA group is
	// one occupied slot by construction), so it cannot run more than one
	// concurrent non-DCA group; reject what it can't honor instead of
	// silently under-enforcing open_positions_count <= max_open_trades.
	if s.MaxOpenTrades > 1 {
		return fmt.Errorf("%w: max_open_trades > 1 is not supported by this engine (single concurrent position only)", apperrors.ErrConfiguration)
	}
	if s.MinBarsBetweenTrades < 0 || s.MinBarsBeforeExit < 0 {
		return fmt.Errorf("%w: negative bar-gate values not allowed", apperrors.ErrConfiguration)
	}
	switch s.StopLoss.Kind {
	case "", model.StopLossNone, model.StopLossFixedPercent, model.StopLossFixedATR, model.StopLossTrailingPercent, model.StopLossTrailingATR:
	default:
		return fmt.Errorf("%w: unknown stop_loss kind %q", apperrors.ErrConfiguration, s.StopLoss.Kind)
	}
	switch s.TakeProfit.Kind {
	case "", model.TakeProfitNone, model.TakeProfitFixedPercent, model.TakeProfitFixedATR, model.TakeProfitTrailingPercent, model.TakeProfitTrailingATR:
	default:
		return fmt.Errorf("%w: unknown take_profit kind %q", apperrors.ErrConfiguration, s.TakeProfit.Kind)
	}
	if (s.StopLoss.IsSet() && s.StopLoss.Value <= 0) || (s.TakeProfit.IsSet() && s.TakeProfit.Value <= 0) {
		return fmt.Errorf("%w: stop_loss/take_profit value must be > 0 when a kind is set", apperrors.ErrConfiguration)
	}
	if s.DCA.Enabled {
		if s.DCA.MaxEntries < 1 {
			return fmt.Errorf("%w: dca.max_entries must be >= 1 when enabled", apperrors.ErrConfiguration)
		}
		if s.DCA.BarsBetween < 0 {
			return fmt.Errorf("%w: dca.bars_between must be >= 0", apperrors.ErrConfiguration)
		}
		if s.DCA.Mode != model.DCAContinue && s.DCA.Mode != model.DCAReplace {
			return fmt.Errorf("%w: dca.mode must be continue or replace", apperrors.ErrConfiguration)
		}
	}
	for _, z := range s.ExitZones {
		if z.MinPnLPct >= z.MaxPnLPct {
			return fmt.Errorf("%w: exit zone %q has min_pnl_pct >= max_pnl_pct", apperrors.ErrConfiguration, z.Name)
		}
		if z.ExitPct != nil && (*z.ExitPct < 0 || *z.ExitPct > 100) {
			return fmt.Errorf("%w: exit zone %q exit_pct out of [0,100]", apperrors.ErrConfiguration, z.Name)
		}
		if z.MinBarsInZone < 0 {
			return fmt.Errorf("%w: exit zone %q min_bars_in_zone must be >= 0", apperrors.ErrConfiguration, z.Name)
		}
		switch z.Reentry {
		case "", model.ReentryContinue, model.ReentryReset:
		default:
			return fmt.Errorf("%w: exit zone %q has unknown reentry policy %q", apperrors.ErrConfiguration, z.Name, z.Reentry)
		}
	}
	switch s.ZoneEvaluation {
	case "", model.ZoneEvalCandleClose, model.ZoneEvalIntrabar:
	default:
		return fmt.Errorf("%w: unknown zone_evaluation %q", apperrors.ErrConfiguration, s.ZoneEvaluation)
	}
	return nil
}
