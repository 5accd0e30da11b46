package fetcher

import "testing"

func TestMonthsBetweenClipsToRequestedRange(t *testing.T) {
	// 2024-01-15 to 2024-03-10
	start := int64(1705276800000) // 2024-01-15T00:00:00Z
	end := int64(1710028800000)   // 2024-03-10T00:00:00Z

	months := monthsBetween(start, end)
	if len(months) != 3 {
		t.Fatalf("expected 3 overlapping calendar months, got %d", len(months))
	}
	if months[0].startMs != start {
		t.Fatalf("expected first month clipped to start=%d, got %d", start, months[0].startMs)
	}
	if months[len(months)-1].endMs != end {
		t.Fatalf("expected last month clipped to end=%d, got %d", end, months[len(months)-1].endMs)
	}
	// the middle month is February.
	feb := months[1]
	if feb.month != 2 {
		t.Fatalf("expected middle month to be February, got %d", feb.month)
	}
}

func TestMonthsBetweenEmptyWhenEndBeforeStart(t *testing.T) {
	if got := monthsBetween(2000, 1000); got != nil {
		t.Fatalf("expected nil for end < start, got %+v", got)
	}
}

func TestDaysBetweenSingleDay(t *testing.T) {
	start := int64(1705276800000) // 2024-01-15T00:00:00Z
	end := start + 3600*1000      // same day, 1 hour later
	days := daysBetween(start, end)
	if len(days) != 1 {
		t.Fatalf("expected 1 day, got %d", len(days))
	}
	if days[0].startMs != start || days[0].endMs != end {
		t.Fatalf("expected day clipped to [%d,%d], got [%d,%d]", start, end, days[0].startMs, days[0].endMs)
	}
}

func TestDaysBetweenSpansMultipleDays(t *testing.T) {
	start := int64(1705276800000)     // 2024-01-15T00:00:00Z
	end := start + 2*24*3600*1000 - 1 // through end of 2024-01-16
	days := daysBetween(start, end)
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}
	if days[1].day != 16 {
		t.Fatalf("expected second day to be the 16th, got %d", days[1].day)
	}
}
