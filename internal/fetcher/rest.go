package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rkhatri-dev/zonetrader/internal/logger"
	"github.com/rkhatri-dev/zonetrader/internal/model"
	"github.com/rkhatri-dev/zonetrader/internal/store"
)

// restPageLimit is the max records per REST page (spec.md §4.2: "<=1000
// records/request").
const restPageLimit = 1000

type klineResp [][]any

// fillCandlesIncremental paginates the klines REST endpoint forward from
// gap.StartMs until gap.EndMs is covered or a page returns fewer than
// restPageLimit rows (meaning the exchange has nothing further).
func (f *Fetcher) fillCandlesIncremental(ctx context.Context, timeframe model.Timeframe, marketType model.MarketType, subKey string, gap store.GapRange) error {
	path := "/api/v3/klines"
	if marketType == model.MarketPerp {
		path = "/fapi/v1/klines"
	}

	cursor := gap.StartMs
	first := true
	for cursor <= gap.EndMs {
		if !first {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(minInterRequestDelay):
			}
		}
		first = false

		var raw klineResp
		resp, err := f.http.R().SetContext(ctx).
			SetQueryParams(map[string]string{
				"symbol":    f.symbol,
				"interval":  string(timeframe),
				"startTime": fmt.Sprintf("%d", cursor),
				"endTime":   fmt.Sprintf("%d", gap.EndMs),
				"limit":     fmt.Sprintf("%d", restPageLimit),
			}).
			SetResult(&raw).
			Get(f.restURL + path)
		if err != nil {
			return fmt.Errorf("fetching candle page: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("candle page request failed: %s", resp.Status())
		}

		candles := make([]model.Candle, 0, len(raw))
		for _, row := range raw {
			c, ok := decodeKlineRow(row)
			if !ok {
				logger.Infof("fetcher: skipped malformed kline row for %s", f.symbol)
				continue
			}
			candles = append(candles, c)
		}
		if len(candles) == 0 {
			break
		}
		if err := f.store.SaveCandles(ctx, timeframe, marketType, candles); err != nil {
			return err
		}

		last := candles[len(candles)-1]
		rangeEnd := last.TimestampMs
		if rangeEnd > gap.EndMs {
			rangeEnd = gap.EndMs
		}
		isComplete := rangeEnd+timeframe.IntervalMs() <= yesterdayUTCMs(time.Now())+24*60*60*1000
		if err := f.store.AddCoverage(ctx, model.DataCandle, subKey, cursor, rangeEnd, isComplete); err != nil {
			return err
		}

		if len(raw) < restPageLimit {
			break
		}
		cursor = last.TimestampMs + timeframe.IntervalMs()
	}
	return nil
}

// decodeKlineRow decodes one Binance-shaped kline array response row:
// [open_time, open, high, low, close, volume, close_time, quote_volume,
// trade_count, taker_buy_base, taker_buy_quote, ignore].
func decodeKlineRow(row []any) (model.Candle, bool) {
	if len(row) < 11 {
		return model.Candle{}, false
	}
	ts, ok := asInt64(row[0])
	open, ok2 := asFloat64(row[1])
	high, ok3 := asFloat64(row[2])
	low, ok4 := asFloat64(row[3])
	closePx, ok5 := asFloat64(row[4])
	vol, ok6 := asFloat64(row[5])
	if !(ok && ok2 && ok3 && ok4 && ok5 && ok6) {
		return model.Candle{}, false
	}
	c := model.Candle{TimestampMs: ts, Open: open, High: high, Low: low, Close: closePx, Volume: vol}
	if qv, ok := asFloat64(row[7]); ok {
		c.QuoteVolume = qv
	}
	if tc, ok := asInt64(row[8]); ok {
		c.TradeCount = tc
	}
	if tbb, ok := asFloat64(row[9]); ok {
		c.TakerBuyVolume = tbb
	}
	if tbq, ok := asFloat64(row[10]); ok {
		c.TakerBuyQuoteVolume = tbq
	}
	if !c.Valid() {
		return model.Candle{}, false
	}
	return c, true
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		var f float64
		_, err := fmt.Sscanf(n, "%f", &f)
		return f, err == nil
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case string:
		var i int64
		_, err := fmt.Sscanf(n, "%d", &i)
		return i, err == nil
	default:
		return 0, false
	}
}

// fillAggTradesIncremental paginates the aggTrades REST endpoint forward.
func (f *Fetcher) fillAggTradesIncremental(ctx context.Context, subKey string, gap store.GapRange) error {
	cursor := gap.StartMs
	first := true
	for cursor <= gap.EndMs {
		if !first {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(minInterRequestDelay):
			}
		}
		first = false

		var raw []struct {
			AggID        int64  `json:"a"`
			Price        string `json:"p"`
			Quantity     string `json:"q"`
			FirstTradeID int64  `json:"f"`
			LastTradeID  int64  `json:"l"`
			TransactTime int64  `json:"T"`
			IsBuyerMaker bool   `json:"m"`
		}
		resp, err := f.http.R().SetContext(ctx).
			SetQueryParams(map[string]string{
				"symbol":    f.symbol,
				"startTime": fmt.Sprintf("%d", cursor),
				"endTime":   fmt.Sprintf("%d", gap.EndMs),
				"limit":     fmt.Sprintf("%d", restPageLimit),
			}).
			SetResult(&raw).
			Get(f.restURL + "/api/v3/aggTrades")
		if err != nil {
			return fmt.Errorf("fetching aggTrade page: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("aggTrade page request failed: %s", resp.Status())
		}
		if len(raw) == 0 {
			break
		}

		trades := make([]model.AggTrade, 0, len(raw))
		for _, r := range raw {
			price, ok1 := asFloat64(r.Price)
			qty, ok2 := asFloat64(r.Quantity)
			if !ok1 || !ok2 {
				continue
			}
			trades = append(trades, model.AggTrade{
				AggID:          r.AggID,
				Price:          price,
				Quantity:       qty,
				FirstTradeID:   r.FirstTradeID,
				LastTradeID:    r.LastTradeID,
				TransactTimeMs: r.TransactTime,
				IsBuyerMaker:   r.IsBuyerMaker,
			})
		}
		if err := f.store.SaveAggTrades(ctx, trades); err != nil {
			return err
		}

		last := raw[len(raw)-1]
		rangeEnd := last.TransactTime
		if rangeEnd > gap.EndMs {
			rangeEnd = gap.EndMs
		}
		if err := f.store.AddCoverage(ctx, model.DataAggTrade, subKey, cursor, rangeEnd, true); err != nil {
			return err
		}

		if len(raw) < restPageLimit {
			break
		}
		cursor = last.TransactTime + 1
	}
	return nil
}

// fillFundingIncremental paginates the funding-rate REST endpoint forward.
// A range that includes the current (not-yet-elapsed) funding window is
// stored with is_complete=false (spec.md §4.2 edge policy).
func (f *Fetcher) fillFundingIncremental(ctx context.Context, subKey string, gap store.GapRange) error {
	const fundingIntervalMs = 8 * 60 * 60 * 1000
	cursor := gap.StartMs
	first := true
	for cursor <= gap.EndMs {
		if !first {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(minInterRequestDelay):
			}
		}
		first = false

		var raw []struct {
			FundingTime int64  `json:"fundingTime"`
			FundingRate string `json:"fundingRate"`
			MarkPrice   string `json:"markPrice"`
		}
		resp, err := f.http.R().SetContext(ctx).
			SetQueryParams(map[string]string{
				"symbol":    f.symbol,
				"startTime": fmt.Sprintf("%d", cursor),
				"endTime":   fmt.Sprintf("%d", gap.EndMs),
				"limit":     fmt.Sprintf("%d", restPageLimit),
			}).
			SetResult(&raw).
			Get(f.restURL + "/fapi/v1/fundingRate")
		if err != nil {
			return fmt.Errorf("fetching funding page: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("funding page request failed: %s", resp.Status())
		}
		if len(raw) == 0 {
			break
		}

		rates := make([]model.FundingRate, 0, len(raw))
		for _, r := range raw {
			rate, ok := asFloat64(r.FundingRate)
			if !ok {
				continue
			}
			markPrice, _ := asFloat64(r.MarkPrice)
			rates = append(rates, model.FundingRate{
				Symbol:        f.symbol,
				FundingTimeMs: r.FundingTime,
				Rate:          rate,
				MarkPrice:     markPrice,
			})
		}
		if err := f.store.SaveFundingRates(ctx, rates); err != nil {
			return err
		}

		last := raw[len(raw)-1]
		rangeEnd := last.FundingTime
		if rangeEnd > gap.EndMs {
			rangeEnd = gap.EndMs
		}
		isComplete := rangeEnd+fundingIntervalMs <= time.Now().UnixMilli()
		if err := f.store.AddCoverage(ctx, model.DataFunding, subKey, cursor, rangeEnd, isComplete); err != nil {
			return err
		}

		if len(raw) < restPageLimit {
			break
		}
		cursor = last.FundingTime + 1
	}
	return nil
}
