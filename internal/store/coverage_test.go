package store

import (
	"context"
	"testing"

	"github.com/rkhatri-dev/zonetrader/internal/model"
)

func TestAddCoverageMergesAdjacentRanges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddCoverage(ctx, model.DataCandle, "1m:spot", 1000, 1999, true); err != nil {
		t.Fatalf("AddCoverage 1: %v", err)
	}
	if err := s.AddCoverage(ctx, model.DataCandle, "1m:spot", 2000, 2999, true); err != nil {
		t.Fatalf("AddCoverage 2: %v", err)
	}

	gaps, err := s.FindGaps(ctx, model.DataCandle, "1m:spot", 1000, 2999)
	if err != nil {
		t.Fatalf("FindGaps: %v", err)
	}
	if len(gaps) != 0 {
		t.Fatalf("expected adjacent ranges to merge into full coverage, got gaps %+v", gaps)
	}

	ranges, err := s.coverageRanges(ctx, model.DataCandle, "1m:spot", minInt64, maxInt64)
	if err != nil {
		t.Fatalf("coverageRanges: %v", err)
	}
	if len(ranges) != 1 || ranges[0].RangeStartMs != 1000 || ranges[0].RangeEndMs != 2999 {
		t.Fatalf("expected single merged range, got %+v", ranges)
	}
}

func TestAddCoverageIncompleteOverlapMarksMergedIncomplete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddCoverage(ctx, model.DataCandle, "1m:spot", 0, 999, true); err != nil {
		t.Fatalf("AddCoverage 1: %v", err)
	}
	if err := s.AddCoverage(ctx, model.DataCandle, "1m:spot", 500, 1500, false); err != nil {
		t.Fatalf("AddCoverage 2: %v", err)
	}

	ranges, err := s.coverageRanges(ctx, model.DataCandle, "1m:spot", minInt64, maxInt64)
	if err != nil {
		t.Fatalf("coverageRanges: %v", err)
	}
	if len(ranges) != 1 || ranges[0].RangeStartMs != 0 || ranges[0].RangeEndMs != 1500 {
		t.Fatalf("expected merged range [0,1500], got %+v", ranges)
	}
	if ranges[0].IsComplete {
		t.Fatal("expected merged range to inherit incomplete flag from the overlapping insert")
	}
}

func TestFindGapsReportsUncoveredSubRanges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddCoverage(ctx, model.DataCandle, "1m:spot", 2000, 2999, true); err != nil {
		t.Fatalf("AddCoverage: %v", err)
	}

	gaps, err := s.FindGaps(ctx, model.DataCandle, "1m:spot", 0, 3999)
	if err != nil {
		t.Fatalf("FindGaps: %v", err)
	}
	if len(gaps) != 2 {
		t.Fatalf("expected two gaps around the covered middle range, got %+v", gaps)
	}
	if gaps[0].StartMs != 0 || gaps[0].EndMs != 1999 {
		t.Fatalf("unexpected first gap: %+v", gaps[0])
	}
	if gaps[1].StartMs != 3000 || gaps[1].EndMs != 3999 {
		t.Fatalf("unexpected second gap: %+v", gaps[1])
	}
}

func TestConsolidateFoldsOverlappingRowsWithoutChangingCoverage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Insert raw overlapping rows directly, bypassing AddCoverage's own merge,
	// to exercise Consolidate's independent fold.
	for _, r := range [][2]int64{{0, 100}, {50, 150}, {200, 300}} {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO data_coverage (data_type, sub_key, range_start, range_end, is_complete, last_updated)
			VALUES (?, ?, ?, ?, 1, 0)`, model.DataCandle, "1m:spot", r[0], r[1]); err != nil {
			t.Fatalf("seeding raw coverage row: %v", err)
		}
	}

	if err := s.Consolidate(ctx, model.DataCandle, "1m:spot"); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}

	ranges, err := s.coverageRanges(ctx, model.DataCandle, "1m:spot", minInt64, maxInt64)
	if err != nil {
		t.Fatalf("coverageRanges: %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("expected 2 consolidated ranges ([0,150] and [200,300]), got %+v", ranges)
	}
	if ranges[0].RangeStartMs != 0 || ranges[0].RangeEndMs != 150 {
		t.Fatalf("unexpected first consolidated range: %+v", ranges[0])
	}
	if ranges[1].RangeStartMs != 200 || ranges[1].RangeEndMs != 300 {
		t.Fatalf("unexpected second consolidated range: %+v", ranges[1])
	}
}
