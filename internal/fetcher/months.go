package fetcher

import "time"

// monthRange is one calendar month expressed as [startMs, endMs] (the
// month's first millisecond through its last), used both for archive URL
// construction and for the coverage range recorded after a successful fetch.
type monthRange struct {
	year, month int
	startMs     int64
	endMs       int64
}

// dayRange is the daily equivalent, used for aggTrade archives (monthly
// aggTrade dumps are too large per spec.md §4.2).
type dayRange struct {
	year, month, day int
	startMs          int64
	endMs            int64
}

// monthsBetween returns the calendar months overlapping [startMs, endMs],
// each clipped to the requested range.
func monthsBetween(startMs, endMs int64) []monthRange {
	if endMs < startMs {
		return nil
	}
	start := time.UnixMilli(startMs).UTC()
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.UnixMilli(endMs).UTC()

	var out []monthRange
	for !cur.After(end) {
		next := cur.AddDate(0, 1, 0)
		rangeStart := cur.UnixMilli()
		if rangeStart < startMs {
			rangeStart = startMs
		}
		rangeEnd := next.UnixMilli() - 1
		if rangeEnd > endMs {
			rangeEnd = endMs
		}
		out = append(out, monthRange{
			year:    cur.Year(),
			month:   int(cur.Month()),
			startMs: rangeStart,
			endMs:   rangeEnd,
		})
		cur = next
	}
	return out
}

// daysBetween returns the calendar days overlapping [startMs, endMs], each
// clipped to the requested range.
func daysBetween(startMs, endMs int64) []dayRange {
	if endMs < startMs {
		return nil
	}
	start := time.UnixMilli(startMs).UTC()
	cur := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	end := time.UnixMilli(endMs).UTC()

	var out []dayRange
	for !cur.After(end) {
		next := cur.AddDate(0, 0, 1)
		rangeStart := cur.UnixMilli()
		if rangeStart < startMs {
			rangeStart = startMs
		}
		rangeEnd := next.UnixMilli() - 1
		if rangeEnd > endMs {
			rangeEnd = endMs
		}
		out = append(out, dayRange{
			year:    cur.Year(),
			month:   int(cur.Month()),
			day:     cur.Day(),
			startMs: rangeStart,
			endMs:   rangeEnd,
		})
		cur = next
	}
	return out
}
