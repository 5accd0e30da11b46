// Package store implements the C1 market-data store of spec.md §4.1: a
// single embedded SQLite file per symbol holding candles, aggTrades,
// funding rates, open interest, and a gap-aware coverage ledger.
//
// Grounded on stadam23-Eve-flipper's internal/db package (one sqlite file,
// migrate-on-open, typed accessor methods per table) and the pack's
// preference for the pure-Go modernc.org/sqlite driver over cgo-based
// drivers when no cgo extension is required.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/rkhatri-dev/zonetrader/internal/apperrors"
	"github.com/rkhatri-dev/zonetrader/internal/model"
)

// Store is a per-symbol persistent cache. Writes are serialized by writeMu
// (spec.md §5 "per-symbol writer lock"); reads use the shared pool and can
// proceed concurrently with each other.
type Store struct {
	symbol string
	db     *sql.DB
	writeMu sync.Mutex
}

// Open opens (creating if necessary) the SQLite file for symbol at path and
// runs the schema migration.
func Open(ctx context.Context, symbol, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening store for %s: %v", apperrors.ErrStoreIO, symbol, err)
	}
	db.SetMaxOpenConns(8)
	s := &Store{symbol: symbol, db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS candles (
	timeframe TEXT NOT NULL,
	market_type TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	open REAL NOT NULL,
	high REAL NOT NULL,
	low REAL NOT NULL,
	close REAL NOT NULL,
	volume REAL NOT NULL,
	trade_count INTEGER NOT NULL DEFAULT 0,
	quote_volume REAL NOT NULL DEFAULT 0,
	taker_buy_volume REAL NOT NULL DEFAULT 0,
	taker_buy_quote_volume REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (timeframe, market_type, timestamp)
);
CREATE TABLE IF NOT EXISTS agg_trades (
	agg_id INTEGER PRIMARY KEY,
	price REAL NOT NULL,
	quantity REAL NOT NULL,
	first_trade_id INTEGER NOT NULL,
	last_trade_id INTEGER NOT NULL,
	transact_time INTEGER NOT NULL,
	is_buyer_maker INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS funding_rates (
	funding_time INTEGER PRIMARY KEY,
	funding_rate REAL NOT NULL,
	mark_price REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS open_interest (
	timestamp INTEGER PRIMARY KEY,
	open_interest REAL NOT NULL,
	open_interest_value REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS premium_index (
	interval TEXT NOT NULL,
	open_time INTEGER NOT NULL,
	open REAL NOT NULL,
	high REAL NOT NULL,
	low REAL NOT NULL,
	close REAL NOT NULL,
	close_time INTEGER NOT NULL,
	PRIMARY KEY (interval, open_time)
);
CREATE TABLE IF NOT EXISTS data_coverage (
	data_type TEXT NOT NULL,
	sub_key TEXT NOT NULL,
	range_start INTEGER NOT NULL,
	range_end INTEGER NOT NULL,
	is_complete INTEGER NOT NULL,
	last_updated INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_coverage_lookup ON data_coverage(data_type, sub_key, range_start);
`

func (s *Store) migrate(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: migrating store for %s: %v", apperrors.ErrStoreIO, s.symbol, err)
	}
	return nil
}

// wrapStoreErr wraps err with apperrors.ErrStoreIO and a short description,
// or returns nil if err is nil.
func wrapStoreErr(desc string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", apperrors.ErrStoreIO, desc, err)
}
