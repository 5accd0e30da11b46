package fetcher

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/flate"
	"golang.org/x/sync/errgroup"

	"github.com/rkhatri-dev/zonetrader/internal/logger"
	"github.com/rkhatri-dev/zonetrader/internal/model"
	"github.com/rkhatri-dev/zonetrader/internal/store"
)

// archiveResult is one archive download's outcome, indexed to its position in
// the requested range so results can be applied to the store in order even
// though the downloads themselves ran concurrently.
type archiveResult struct {
	rows  []any
	found bool
}

// downloadArchivesConcurrently fetches len(urls) archives with at most
// maxConcurrentDownloads in flight (spec.md §4.2 bounded concurrency),
// returning one result per URL in the same order.
func downloadArchivesConcurrently(ctx context.Context, urls []string, fetch func(ctx context.Context, url string) (archiveResult, error)) ([]archiveResult, error) {
	results := make([]archiveResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDownloads)
	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			r, err := fetch(gctx, url)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func init() {
	// Register the faster klauspost deflate decompressor for every zip.Reader
	// this package opens — the archives are large monthly/daily CSV dumps and
	// the stdlib's flate is the dominant cost of the bulk path.
	zip.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
}

// fillCandlesBulk downloads the monthly candle archives covering gap up to
// yesterday (UTC) and writes them into the store; any part of gap after that
// cutoff is filled through fillCandlesIncremental. No daily archives are
// used. Every month's archive is downloaded and parsed in memory before the
// first store write.
func (f *Fetcher) fillCandlesBulk(ctx context.Context, timeframe model.Timeframe, marketType model.MarketType, subKey string, gap store.GapRange) error {
	cutoff := yesterdayUTCMs(time.Now())
	end := gap.EndMs
	if end > cutoff {
		end = cutoff
	}
	if end < gap.StartMs {
		return f.fillCandlesIncremental(ctx, timeframe, marketType, subKey, gap)
	}

	months := monthsBetween(gap.StartMs, end)
	urls := make([]string, len(months))
	for i, m := range months {
		urls[i] = f.candleArchiveURL(timeframe, marketType, m)
	}
	results, err := downloadArchivesConcurrently(ctx, urls, func(ctx context.Context, url string) (archiveResult, error) {
		rows, found, err := f.downloadAndParseZIP(ctx, url, parseCandleRow)
		if err != nil {
			return archiveResult{}, fmt.Errorf("downloading candle archive %s: %w", url, err)
		}
		if !found {
			logger.Infof("fetcher: candle archive %s absent (404), treating month as empty", url)
		}
		return archiveResult{rows: rows, found: found}, nil
	})
	if err != nil {
		return err
	}
	for i, month := range months {
		if !results[i].found {
			continue
		}
		candles := make([]model.Candle, 0, len(results[i].rows))
		for _, r := range results[i].rows {
			if c, ok := r.(model.Candle); ok {
				candles = append(candles, c)
			}
		}
		if err := f.store.SaveCandles(ctx, timeframe, marketType, candles); err != nil {
			return err
		}
		if err := f.store.AddCoverage(ctx, model.DataCandle, subKey, month.startMs, month.endMs, true); err != nil {
			return err
		}
	}

	if gap.EndMs > end {
		return f.fillCandlesIncremental(ctx, timeframe, marketType, subKey, store.GapRange{StartMs: end + 1, EndMs: gap.EndMs})
	}
	return nil
}

func (f *Fetcher) fillAggTradesBulk(ctx context.Context, subKey string, gap store.GapRange) error {
	cutoff := yesterdayUTCMs(time.Now())
	end := gap.EndMs
	if end > cutoff {
		end = cutoff
	}
	if end < gap.StartMs {
		return f.fillAggTradesIncremental(ctx, subKey, gap)
	}
	days := daysBetween(gap.StartMs, end)
	urls := make([]string, len(days))
	for i, d := range days {
		urls[i] = f.aggTradeArchiveURL(d)
	}
	results, err := downloadArchivesConcurrently(ctx, urls, func(ctx context.Context, url string) (archiveResult, error) {
		rows, found, err := f.downloadAndParseZIP(ctx, url, parseAggTradeRow)
		if err != nil {
			return archiveResult{}, fmt.Errorf("downloading aggTrade archive %s: %w", url, err)
		}
		return archiveResult{rows: rows, found: found}, nil
	})
	if err != nil {
		return err
	}
	for i, day := range days {
		if !results[i].found {
			continue
		}
		trades := make([]model.AggTrade, 0, len(results[i].rows))
		for _, r := range results[i].rows {
			if t, ok := r.(model.AggTrade); ok {
				trades = append(trades, t)
			}
		}
		if err := f.store.SaveAggTrades(ctx, trades); err != nil {
			return err
		}
		if err := f.store.AddCoverage(ctx, model.DataAggTrade, subKey, day.startMs, day.endMs, true); err != nil {
			return err
		}
	}
	if gap.EndMs > end {
		return f.fillAggTradesIncremental(ctx, subKey, store.GapRange{StartMs: end + 1, EndMs: gap.EndMs})
	}
	return nil
}

func (f *Fetcher) fillFundingBulk(ctx context.Context, subKey string, gap store.GapRange) error {
	cutoff := yesterdayUTCMs(time.Now())
	end := gap.EndMs
	if end > cutoff {
		end = cutoff
	}
	if end < gap.StartMs {
		return f.fillFundingIncremental(ctx, subKey, gap)
	}
	months := monthsBetween(gap.StartMs, end)
	urls := make([]string, len(months))
	for i, m := range months {
		urls[i] = f.fundingArchiveURL(m)
	}
	results, err := downloadArchivesConcurrently(ctx, urls, func(ctx context.Context, url string) (archiveResult, error) {
		rows, found, err := f.downloadAndParseZIP(ctx, url, parseFundingRow)
		if err != nil {
			return archiveResult{}, fmt.Errorf("downloading funding archive %s: %w", url, err)
		}
		return archiveResult{rows: rows, found: found}, nil
	})
	if err != nil {
		return err
	}
	for i, month := range months {
		if !results[i].found {
			continue
		}
		rates := make([]model.FundingRate, 0, len(results[i].rows))
		for _, r := range results[i].rows {
			if fr, ok := r.(model.FundingRate); ok {
				rates = append(rates, fr)
			}
		}
		if err := f.store.SaveFundingRates(ctx, rates); err != nil {
			return err
		}
		if err := f.store.AddCoverage(ctx, model.DataFunding, subKey, month.startMs, month.endMs, true); err != nil {
			return err
		}
	}
	if gap.EndMs > end {
		return f.fillFundingIncremental(ctx, subKey, store.GapRange{StartMs: end + 1, EndMs: gap.EndMs})
	}
	return nil
}

func (f *Fetcher) candleArchiveURL(timeframe model.Timeframe, marketType model.MarketType, m monthRange) string {
	kind := "spot"
	if marketType == model.MarketPerp {
		kind = "futures/um"
	}
	return fmt.Sprintf("%s/data/%s/monthly/klines/%s/%s/%s-%s-%04d-%02d.zip",
		f.archiveURL, kind, f.symbol, timeframe, f.symbol, timeframe, m.year, m.month)
}

func (f *Fetcher) aggTradeArchiveURL(d dayRange) string {
	return fmt.Sprintf("%s/data/spot/daily/aggTrades/%s/%s-aggTrades-%04d-%02d-%02d.zip",
		f.archiveURL, f.symbol, f.symbol, d.year, d.month, d.day)
}

func (f *Fetcher) fundingArchiveURL(m monthRange) string {
	return fmt.Sprintf("%s/data/futures/um/monthly/fundingRate/%s/%s-fundingRate-%04d-%02d.zip",
		f.archiveURL, f.symbol, f.symbol, m.year, m.month)
}

// downloadAndParseZIP fetches url, treats a 404 as "month absent" (found=false,
// no error), sniffs the body to confirm it is actually a ZIP archive before
// parsing, then stream-parses each CSV member with parseRow — malformed rows
// are skipped with a warning rather than aborting the whole archive.
func (f *Fetcher) downloadAndParseZIP(ctx context.Context, url string, parseRow func([]string) (any, bool)) ([]any, bool, error) {
	resp, err := f.http.R().SetContext(ctx).SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return nil, false, err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, false, fmt.Errorf("reading archive body: %w", err)
	}

	mt := mimetype.Detect(data)
	if !mt.Is("application/zip") {
		return nil, false, fmt.Errorf("archive at %s is not a zip (sniffed %s)", url, mt.String())
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, false, fmt.Errorf("opening zip: %w", err)
	}

	var out []any
	for _, zf := range zr.File {
		rc, err := zf.Open()
		if err != nil {
			return nil, false, fmt.Errorf("opening zip entry %s: %w", zf.Name, err)
		}
		rows, skipped := parseCSV(rc, parseRow)
		rc.Close()
		if skipped > 0 {
			logger.Infof("fetcher: skipped %d malformed rows in %s", skipped, zf.Name)
		}
		out = append(out, rows...)
	}
	return out, true, nil
}
