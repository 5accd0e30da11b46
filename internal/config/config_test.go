package config

import (
	"testing"

	"github.com/rkhatri-dev/zonetrader/internal/model"
)

func validStrategy() model.Strategy {
	return model.Strategy{
		Name:                 "test",
		EntryDSL:             "close > open",
		MaxOpenTrades:        1,
		MinBarsBetweenTrades: 1,
		PositionSizingType:   model.SizingFixedDollar,
		PositionSize:         1000,
		MarketType:           model.MarketSpot,
	}
}

func TestValidateStrategyAcceptsMaxOpenTradesOne(t *testing.T) {
	s := validStrategy()
	if err := validateStrategy(&s); err != nil {
		t.Fatalf("expected max_open_trades=1 to be accepted, got %v", err)
	}
}

func TestValidateStrategyRejectsMaxOpenTradesZero(t *testing.T) {
	s := validStrategy()
	s.MaxOpenTrades = 0
	if err := validateStrategy(&s); err == nil {
		t.Fatal("expected max_open_trades=0 to be rejected")
	}
}

func TestValidateStrategyRejectsMaxOpenTradesAboveOne(t *testing.T) {
	s := validStrategy()
	s.MaxOpenTrades = 2
	if err := validateStrategy(&s); err == nil {
		t.Fatal("expected max_open_trades=2 to be rejected: this engine never holds more than one concurrent position")
	}
}

func TestValidateStrategyRejectsNegativeBarGates(t *testing.T) {
	s := validStrategy()
	s.MinBarsBetweenTrades = -1
	if err := validateStrategy(&s); err == nil {
		t.Fatal("expected a negative min_bars_between_trades to be rejected")
	}
}
