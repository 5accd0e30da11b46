package store

import (
	"context"
	"database/sql"

	"github.com/rkhatri-dev/zonetrader/internal/model"
)

// SaveAggTrades upserts a batch of ticks keyed by agg_id, as a single
// transaction.
func (s *Store) SaveAggTrades(ctx context.Context, trades []model.AggTrade) error {
	if len(trades) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO agg_trades (agg_id, price, quantity, first_trade_id, last_trade_id, transact_time, is_buyer_maker)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(agg_id) DO UPDATE SET
				price=excluded.price, quantity=excluded.quantity,
				first_trade_id=excluded.first_trade_id, last_trade_id=excluded.last_trade_id,
				transact_time=excluded.transact_time, is_buyer_maker=excluded.is_buyer_maker`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, t := range trades {
			if _, err := stmt.ExecContext(ctx, t.AggID, t.Price, t.Quantity, t.FirstTradeID, t.LastTradeID, t.TransactTimeMs, t.IsBuyerMaker); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetAggTrades returns ticks in [startMs, endMs] ascending by transact time.
func (s *Store) GetAggTrades(ctx context.Context, startMs, endMs int64) ([]model.AggTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agg_id, price, quantity, first_trade_id, last_trade_id, transact_time, is_buyer_maker
		FROM agg_trades WHERE transact_time BETWEEN ? AND ? ORDER BY transact_time ASC`, startMs, endMs)
	if err != nil {
		return nil, wrapStoreErr("querying agg trades", err)
	}
	defer rows.Close()
	var out []model.AggTrade
	for rows.Next() {
		var t model.AggTrade
		if err := rows.Scan(&t.AggID, &t.Price, &t.Quantity, &t.FirstTradeID, &t.LastTradeID, &t.TransactTimeMs, &t.IsBuyerMaker); err != nil {
			return nil, wrapStoreErr("scanning agg trade row", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveFundingRates upserts funding events keyed by funding_time.
func (s *Store) SaveFundingRates(ctx context.Context, rates []model.FundingRate) error {
	if len(rates) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO funding_rates (funding_time, funding_rate, mark_price)
			VALUES (?, ?, ?)
			ON CONFLICT(funding_time) DO UPDATE SET funding_rate=excluded.funding_rate, mark_price=excluded.mark_price`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rates {
			if _, err := stmt.ExecContext(ctx, r.FundingTimeMs, r.Rate, r.MarkPrice); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetFundingRates returns funding events in [startMs, endMs] ascending.
func (s *Store) GetFundingRates(ctx context.Context, startMs, endMs int64) ([]model.FundingRate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT funding_time, funding_rate, mark_price FROM funding_rates
		WHERE funding_time BETWEEN ? AND ? ORDER BY funding_time ASC`, startMs, endMs)
	if err != nil {
		return nil, wrapStoreErr("querying funding rates", err)
	}
	defer rows.Close()
	var out []model.FundingRate
	for rows.Next() {
		var r model.FundingRate
		if err := rows.Scan(&r.FundingTimeMs, &r.Rate, &r.MarkPrice); err != nil {
			return nil, wrapStoreErr("scanning funding row", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveOpenInterest upserts OI snapshots keyed by timestamp.
func (s *Store) SaveOpenInterest(ctx context.Context, points []model.OpenInterest) error {
	if len(points) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO open_interest (timestamp, open_interest, open_interest_value)
			VALUES (?, ?, ?)
			ON CONFLICT(timestamp) DO UPDATE SET open_interest=excluded.open_interest, open_interest_value=excluded.open_interest_value`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range points {
			if _, err := stmt.ExecContext(ctx, p.TimestampMs, p.OI, p.OIValue); err != nil {
				return err
			}
		}
		return nil
	})
}

// SavePremiumIndex upserts premium-index bars keyed by (interval, open_time).
func (s *Store) SavePremiumIndex(ctx context.Context, points []model.PremiumIndexPoint) error {
	if len(points) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO premium_index (interval, open_time, open, high, low, close, close_time)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(interval, open_time) DO UPDATE SET
				open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close, close_time=excluded.close_time`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range points {
			if _, err := stmt.ExecContext(ctx, p.Interval, p.OpenTime, p.Open, p.High, p.Low, p.Close, p.CloseTime); err != nil {
				return err
			}
		}
		return nil
	})
}
