package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rkhatri-dev/zonetrader/internal/apperrors"
	"github.com/rkhatri-dev/zonetrader/internal/model"
)

// GetCandles returns candles for (timeframe, marketType) in [startMs, endMs],
// sorted ascending by timestamp.
func (s *Store) GetCandles(ctx context.Context, timeframe model.Timeframe, marketType model.MarketType, startMs, endMs int64) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume,
		       trade_count, quote_volume, taker_buy_volume, taker_buy_quote_volume
		FROM candles
		WHERE timeframe = ? AND market_type = ? AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp ASC`, timeframe, marketType, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("%w: querying candles: %v", apperrors.ErrStoreIO, err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.TimestampMs, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
			&c.TradeCount, &c.QuoteVolume, &c.TakerBuyVolume, &c.TakerBuyQuoteVolume); err != nil {
			return nil, fmt.Errorf("%w: scanning candle row: %v", apperrors.ErrStoreIO, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating candle rows: %v", apperrors.ErrStoreIO, err)
	}
	return out, nil
}

// SaveCandles upserts a batch of candles for (timeframe, marketType) as a
// single transaction: either every candle is visible afterward, or none are
// (spec.md §4.1 "no silent data loss").
func (s *Store) SaveCandles(ctx context.Context, timeframe model.Timeframe, marketType model.MarketType, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO candles (timeframe, market_type, timestamp, open, high, low, close, volume,
			                      trade_count, quote_volume, taker_buy_volume, taker_buy_quote_volume)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(timeframe, market_type, timestamp) DO UPDATE SET
				open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
				volume=excluded.volume, trade_count=excluded.trade_count,
				quote_volume=excluded.quote_volume, taker_buy_volume=excluded.taker_buy_volume,
				taker_buy_quote_volume=excluded.taker_buy_quote_volume`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range candles {
			if _, err := stmt.ExecContext(ctx, timeframe, marketType, c.TimestampMs, c.Open, c.High, c.Low, c.Close, c.Volume,
				c.TradeCount, c.QuoteVolume, c.TakerBuyVolume, c.TakerBuyQuoteVolume); err != nil {
				return err
			}
		}
		return nil
	})
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error — the single-transaction-per-batch discipline spec.md
// §4.1/§5 require for atomic batch writes.
func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", apperrors.ErrStoreIO, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %v", apperrors.ErrStoreIO, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", apperrors.ErrStoreIO, err)
	}
	return nil
}
