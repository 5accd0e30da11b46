package fetcher

import (
	"encoding/csv"
	"io"
	"strconv"
	"unicode"

	"github.com/rkhatri-dev/zonetrader/internal/model"
)

// parseCSV reads every record from r, applying parseRow to each. A row
// parseRow rejects is counted as skipped rather than aborting the archive
// (spec.md §4.2 "malformed CSV lines are skipped with a warning, not
// fatal").
func parseCSV(r io.Reader, parseRow func([]string) (any, bool)) ([]any, int) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	var out []any
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		row, ok := parseRow(record)
		if !ok {
			skipped++
			continue
		}
		out = append(out, row)
	}
	return out, skipped
}

// parseCandleRow parses a Binance-vision-style kline CSV row:
// open_time,open,high,low,close,volume,close_time,quote_volume,trade_count,
// taker_buy_base,taker_buy_quote,ignore.
func parseCandleRow(rec []string) (any, bool) {
	if len(rec) < 11 {
		return nil, false
	}
	ts, err1 := strconv.ParseInt(rec[0], 10, 64)
	open, err2 := strconv.ParseFloat(rec[1], 64)
	high, err3 := strconv.ParseFloat(rec[2], 64)
	low, err4 := strconv.ParseFloat(rec[3], 64)
	closePx, err5 := strconv.ParseFloat(rec[4], 64)
	vol, err6 := strconv.ParseFloat(rec[5], 64)
	if anyErr(err1, err2, err3, err4, err5, err6) {
		return nil, false
	}
	c := model.Candle{
		TimestampMs: ts,
		Open:        open,
		High:        high,
		Low:         low,
		Close:       closePx,
		Volume:      vol,
	}
	if qv, err := strconv.ParseFloat(rec[7], 64); err == nil {
		c.QuoteVolume = qv
	}
	if tc, err := strconv.ParseInt(rec[8], 10, 64); err == nil {
		c.TradeCount = tc
	}
	if tbb, err := strconv.ParseFloat(rec[9], 64); err == nil {
		c.TakerBuyVolume = tbb
	}
	if tbq, err := strconv.ParseFloat(rec[10], 64); err == nil {
		c.TakerBuyQuoteVolume = tbq
	}
	if !c.Valid() {
		return nil, false
	}
	return c, true
}

// parseAggTradeRow parses agg_trade_id,price,quantity,first_trade_id,
// last_trade_id,transact_time,is_buyer_maker[,was_best_match].
func parseAggTradeRow(rec []string) (any, bool) {
	if len(rec) < 7 {
		return nil, false
	}
	aggID, err1 := strconv.ParseInt(rec[0], 10, 64)
	price, err2 := strconv.ParseFloat(rec[1], 64)
	qty, err3 := strconv.ParseFloat(rec[2], 64)
	firstID, err4 := strconv.ParseInt(rec[3], 10, 64)
	lastID, err5 := strconv.ParseInt(rec[4], 10, 64)
	transactTime, err6 := strconv.ParseInt(rec[5], 10, 64)
	if anyErr(err1, err2, err3, err4, err5, err6) {
		return nil, false
	}
	isBuyerMaker := rec[6] == "true" || rec[6] == "True" || rec[6] == "1"
	return model.AggTrade{
		AggID:          aggID,
		Price:          price,
		Quantity:       qty,
		FirstTradeID:   firstID,
		LastTradeID:    lastID,
		TransactTimeMs: transactTime,
		IsBuyerMaker:   isBuyerMaker,
	}, true
}

// parseFundingRow parses a funding-rate CSV row. Vision archives have shipped
// two layouts over time: timestamp-first (calc_time,funding_interval_hours,
// last_funding_rate) and symbol-first (symbol,funding_time,funding_rate,
// mark_price). It sniffs the first token: numeric means timestamp-first,
// alphabetic means symbol-first (DESIGN.md Open Question decision #3).
func parseFundingRow(rec []string) (any, bool) {
	if len(rec) < 2 {
		return nil, false
	}
	if isNumeric(rec[0]) {
		ts, err1 := strconv.ParseInt(rec[0], 10, 64)
		rate, err2 := strconv.ParseFloat(rec[len(rec)-1], 64)
		if anyErr(err1, err2) {
			return nil, false
		}
		return model.FundingRate{FundingTimeMs: ts, Rate: rate}, true
	}
	if len(rec) < 4 {
		return nil, false
	}
	ts, err1 := strconv.ParseInt(rec[1], 10, 64)
	rate, err2 := strconv.ParseFloat(rec[2], 64)
	markPrice, err3 := strconv.ParseFloat(rec[3], 64)
	if anyErr(err1, err2, err3) {
		return nil, false
	}
	return model.FundingRate{
		Symbol:        rec[0],
		FundingTimeMs: ts,
		Rate:          rate,
		MarkPrice:     markPrice,
	}, true
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && (r == '-' || r == '+') {
			continue
		}
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func anyErr(errs ...error) bool {
	for _, e := range errs {
		if e != nil {
			return true
		}
	}
	return false
}
