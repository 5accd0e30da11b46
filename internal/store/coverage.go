package store

import (
	"context"
	"database/sql"

	"github.com/rkhatri-dev/zonetrader/internal/model"
)

// GapRange is an uncovered [StartMs, EndMs] sub-range returned by FindGaps.
type GapRange struct {
	StartMs int64
	EndMs   int64
}

// consolidateThreshold is the >50-overlapping-ranges fragmentation trigger
// from spec.md §4.1: FindGaps consolidates coverage for the key before
// computing gaps once a (data_type, sub_key) accumulates more ranges than
// this.
const consolidateThreshold = 50

// FindGaps returns the minimal disjoint list of uncovered sub-ranges of
// [startMs, endMs] for (dataType, subKey). If more than consolidateThreshold
// coverage rows exist for the key, it consolidates first.
func (s *Store) FindGaps(ctx context.Context, dataType model.DataType, subKey string, startMs, endMs int64) ([]GapRange, error) {
	n, err := s.countCoverageRows(ctx, dataType, subKey)
	if err != nil {
		return nil, err
	}
	if n > consolidateThreshold {
		if err := s.Consolidate(ctx, dataType, subKey); err != nil {
			return nil, err
		}
	}

	ranges, err := s.coverageRanges(ctx, dataType, subKey, startMs, endMs)
	if err != nil {
		return nil, err
	}

	var gaps []GapRange
	cursor := startMs
	for _, r := range ranges {
		if r.RangeStartMs > cursor {
			gaps = append(gaps, GapRange{StartMs: cursor, EndMs: r.RangeStartMs - 1})
		}
		if r.RangeEndMs+1 > cursor {
			cursor = r.RangeEndMs + 1
		}
	}
	if cursor <= endMs {
		gaps = append(gaps, GapRange{StartMs: cursor, EndMs: endMs})
	}
	return gaps, nil
}

// IsFullyCovered reports whether [startMs, endMs] has zero gaps for
// (dataType, subKey).
func (s *Store) IsFullyCovered(ctx context.Context, dataType model.DataType, subKey string, startMs, endMs int64) (bool, error) {
	gaps, err := s.FindGaps(ctx, dataType, subKey, startMs, endMs)
	if err != nil {
		return false, err
	}
	return len(gaps) == 0, nil
}

// AddCoverage inserts a covered range and atomically merges it with any
// existing range overlapping or within 1ms of either endpoint (spec.md §4.1):
// select ranges where range_start <= new_end+1 AND range_end >= new_start-1,
// compute (min_start, max_end, all_complete) across the selection plus the
// new range, delete the selected rows, insert the union.
func (s *Store) AddCoverage(ctx context.Context, dataType model.DataType, subKey string, startMs, endMs int64, isComplete bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT range_start, range_end, is_complete FROM data_coverage
			WHERE data_type = ? AND sub_key = ? AND range_start <= ? AND range_end >= ?`,
			dataType, subKey, endMs+1, startMs-1)
		if err != nil {
			return err
		}
		minStart, maxEnd := startMs, endMs
		allComplete := isComplete
		for rows.Next() {
			var rs, re int64
			var complete int
			if err := rows.Scan(&rs, &re, &complete); err != nil {
				rows.Close()
				return err
			}
			if rs < minStart {
				minStart = rs
			}
			if re > maxEnd {
				maxEnd = re
			}
			if complete == 0 {
				allComplete = false
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM data_coverage
			WHERE data_type = ? AND sub_key = ? AND range_start <= ? AND range_end >= ?`,
			dataType, subKey, endMs+1, startMs-1); err != nil {
			return err
		}

		completeFlag := 0
		if allComplete {
			completeFlag = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO data_coverage (data_type, sub_key, range_start, range_end, is_complete, last_updated)
			VALUES (?, ?, ?, ?, ?, ?)`,
			dataType, subKey, minStart, maxEnd, completeFlag, endMs)
		return err
	})
}

// Consolidate rewrites all ranges for (dataType, subKey) into the canonical
// non-overlapping, non-adjacent minimal cover by repeatedly folding each row
// through the same merge rule AddCoverage uses.
func (s *Store) Consolidate(ctx context.Context, dataType model.DataType, subKey string) error {
	ranges, err := s.coverageRanges(ctx, dataType, subKey, minInt64, maxInt64)
	if err != nil {
		return err
	}
	if len(ranges) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM data_coverage WHERE data_type = ? AND sub_key = ?`, dataType, subKey); err != nil {
			return err
		}

		// ranges is already ascending by start (coverageRanges' ORDER BY);
		// fold each one into the running non-overlapping cover.
		out := make([]model.CoverageRange, 0, len(ranges))
		for _, r := range ranges {
			if len(out) > 0 && r.RangeStartMs <= out[len(out)-1].RangeEndMs+1 {
				last := &out[len(out)-1]
				if r.RangeEndMs > last.RangeEndMs {
					last.RangeEndMs = r.RangeEndMs
				}
				last.IsComplete = last.IsComplete && r.IsComplete
				continue
			}
			out = append(out, r)
		}

		for _, r := range out {
			completeFlag := 0
			if r.IsComplete {
				completeFlag = 1
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO data_coverage (data_type, sub_key, range_start, range_end, is_complete, last_updated)
				VALUES (?, ?, ?, ?, ?, ?)`,
				dataType, subKey, r.RangeStartMs, r.RangeEndMs, completeFlag, r.RangeEndMs); err != nil {
				return err
			}
		}
		return nil
	})
}

const (
	minInt64 = -1 << 62
	maxInt64 = 1<<62 - 1
)

func (s *Store) countCoverageRows(ctx context.Context, dataType model.DataType, subKey string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM data_coverage WHERE data_type = ? AND sub_key = ?`, dataType, subKey).Scan(&n)
	if err != nil {
		return 0, wrapStoreErr("counting coverage rows", err)
	}
	return n, nil
}

func (s *Store) coverageRanges(ctx context.Context, dataType model.DataType, subKey string, startMs, endMs int64) ([]model.CoverageRange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT range_start, range_end, is_complete FROM data_coverage
		WHERE data_type = ? AND sub_key = ? AND range_end >= ? AND range_start <= ?
		ORDER BY range_start ASC`, dataType, subKey, startMs, endMs)
	if err != nil {
		return nil, wrapStoreErr("querying coverage ranges", err)
	}
	defer rows.Close()

	var out []model.CoverageRange
	for rows.Next() {
		var r model.CoverageRange
		var complete int
		if err := rows.Scan(&r.RangeStartMs, &r.RangeEndMs, &complete); err != nil {
			return nil, wrapStoreErr("scanning coverage row", err)
		}
		r.DataType = dataType
		r.SubKey = subKey
		r.IsComplete = complete != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
