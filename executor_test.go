// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package h5scan

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/h5scan/h5scan/errors"
	"github.com/h5scan/h5scan/hdf5"
	"github.com/h5scan/h5scan/logger"
)

// millionRowFile builds a table with a dense id column and an RSE label
// column of four runs over one million rows.
func millionRowFile(t *testing.T) *hdf5.MemFile {
	t.Helper()
	const rows = 1000000
	f := hdf5.NewMemFile()
	f.AddGroup("/t")

	ids := make([]int64, rows)
	for i := range ids {
		ids[i] = int64(i)
	}
	require.NoError(t, f.AddDataset("/t/id", hdf5.KindInt64, []uint64{rows}, []uint64{65536}, ids))

	require.NoError(t, f.AddDataset("/t/label_run_starts", hdf5.KindUint64,
		[]uint64{4}, nil, []uint64{0, 100000, 400000, 600000}))
	require.NoError(t, f.AddDataset("/t/label_values", hdf5.KindInt32,
		[]uint64{4}, nil, []int32{0, 1, 2, 3}))
	return f
}

func testExecutor(t *testing.T, cfg *Config) *Executor {
	t.Helper()
	e, err := NewExecutor(cfg, OptExecutorLogger(logger.NewLogfLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestExecutorScan(t *testing.T) {
	f := millionRowFile(t)
	cfg := NewDefaultConfig()
	cfg.Workers = 8
	e := testExecutor(t, cfg)

	tbl, err := e.OpenTable(context.Background(), f, "/t")
	require.NoError(t, err)
	require.Equal(t, uint64(1000000), tbl.Rows())
	require.ElementsMatch(t, []string{"id", "label"}, tbl.Columns())

	var mu sync.Mutex
	counts := make(map[int32]uint64)
	var idSum uint64

	stats, err := e.Scan(context.Background(), tbl,
		&ScanRequest{Columns: []string{"id", "label"}},
		func(b RowBatch) error {
			ids := b.Cols[0].(*Vector[int64])
			labels := b.Cols[1].(*Vector[int32])
			if ids.Rows() != labels.Rows() || ids.StartRow() != labels.StartRow() {
				return errors.Errorf("misaligned batch at %d", b.Range.Start)
			}
			mu.Lock()
			defer mu.Unlock()
			for i := 0; i < labels.Rows(); i++ {
				counts[labels.At(i)]++
				idSum += uint64(ids.At(i))
			}
			return nil
		})
	require.NoError(t, err)

	require.Equal(t, uint64(1000000), stats.Rows)
	require.Equal(t, map[int32]uint64{
		0: 100000,
		1: 300000,
		2: 200000,
		3: 400000,
	}, counts)
	// Sum of 0..999999.
	require.Equal(t, uint64(999999)*1000000/2, idSum)
	require.Greater(t, stats.Partitions, 1)
}

// Rows with a given id must carry the label of the run covering them, no
// matter which worker decoded the batch.
func TestExecutorScanRowAlignment(t *testing.T) {
	f := millionRowFile(t)
	cfg := NewDefaultConfig()
	cfg.Workers = 4
	e := testExecutor(t, cfg)

	tbl, err := e.OpenTable(context.Background(), f, "/t")
	require.NoError(t, err)

	wantLabel := func(id int64) int32 {
		switch {
		case id < 100000:
			return 0
		case id < 400000:
			return 1
		case id < 600000:
			return 2
		default:
			return 3
		}
	}

	_, err = e.Scan(context.Background(), tbl,
		&ScanRequest{Columns: []string{"id", "label"}},
		func(b RowBatch) error {
			ids := b.Cols[0].(*Vector[int64])
			labels := b.Cols[1].(*Vector[int32])
			for i := 0; i < ids.Rows(); i++ {
				if labels.At(i) != wantLabel(ids.At(i)) {
					return errors.Errorf("row %d: label %d for id %d", b.Range.Start+uint64(i), labels.At(i), ids.At(i))
				}
			}
			return nil
		})
	require.NoError(t, err)
}

func TestExecutorScanPushdown(t *testing.T) {
	f := millionRowFile(t)
	e := testExecutor(t, nil)

	tbl, err := e.OpenTable(context.Background(), f, "/t")
	require.NoError(t, err)

	// label >= 2 covers rows [400000, 1000000).
	stats, err := e.Scan(context.Background(), tbl,
		&ScanRequest{
			Columns: []string{"id"},
			Filters: []Filter{{Column: "label", Op: OpGe, Value: int32(2)}},
		},
		func(b RowBatch) error {
			if b.Range.Start < 400000 {
				return errors.Errorf("batch at %d should have been pruned", b.Range.Start)
			}
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, uint64(600000), stats.Rows)

	// label == 7 has no runs at all.
	stats, err = e.Scan(context.Background(), tbl,
		&ScanRequest{
			Columns: []string{"id"},
			Filters: []Filter{{Column: "label", Op: OpEq, Value: int32(7)}},
		},
		func(b RowBatch) error {
			return errors.Errorf("unexpected batch at %d", b.Range.Start)
		})
	require.NoError(t, err)
	require.Equal(t, uint64(0), stats.Rows)

	// A filter on a dense column prunes nothing but still scans.
	stats, err = e.Scan(context.Background(), tbl,
		&ScanRequest{
			Columns: []string{"id"},
			Filters: []Filter{{Column: "id", Op: OpGe, Value: int64(999999999)}},
		},
		func(b RowBatch) error { return nil })
	require.NoError(t, err)
	require.Equal(t, uint64(1000000), stats.Rows)
}

func TestExecutorScanRange(t *testing.T) {
	f := millionRowFile(t)
	e := testExecutor(t, nil)

	tbl, err := e.OpenTable(context.Background(), f, "/t")
	require.NoError(t, err)

	stats, err := e.Scan(context.Background(), tbl,
		&ScanRequest{
			Columns: []string{"id"},
			Range:   &ScanRange{Start: 123, End: 4567},
		},
		func(b RowBatch) error {
			ids := b.Cols[0].(*Vector[int64])
			if got := ids.At(0); got != int64(b.Range.Start) {
				return errors.Errorf("first id %d at range %s", got, b.Range)
			}
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, uint64(4444), stats.Rows)

	// Range combined with a filter intersects.
	stats, err = e.Scan(context.Background(), tbl,
		&ScanRequest{
			Columns: []string{"id"},
			Range:   &ScanRange{Start: 0, End: 500000},
			Filters: []Filter{{Column: "label", Op: OpGe, Value: int32(2)}},
		},
		func(b RowBatch) error { return nil })
	require.NoError(t, err)
	require.Equal(t, uint64(100000), stats.Rows)
}

func TestExecutorScanCancellation(t *testing.T) {
	f := millionRowFile(t)
	cfg := NewDefaultConfig()
	cfg.Workers = 2
	e := testExecutor(t, cfg)

	tbl, err := e.OpenTable(context.Background(), f, "/t")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	_, err = e.Scan(ctx, tbl,
		&ScanRequest{Columns: []string{"id"}},
		func(b RowBatch) error {
			once.Do(cancel)
			return nil
		})
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExecutorScanEmitError(t *testing.T) {
	f := millionRowFile(t)
	e := testExecutor(t, nil)

	tbl, err := e.OpenTable(context.Background(), f, "/t")
	require.NoError(t, err)

	boom := errors.Errorf("consumer full")
	_, err = e.Scan(context.Background(), tbl,
		&ScanRequest{Columns: []string{"id"}},
		func(b RowBatch) error { return boom })
	require.Error(t, err)
	require.Equal(t, boom.Error(), err.Error())
}

func TestExecutorShutdown(t *testing.T) {
	f := millionRowFile(t)
	e, err := NewExecutor(nil)
	require.NoError(t, err)

	tbl, err := e.OpenTable(context.Background(), f, "/t")
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close()) // idempotent

	_, err = e.Scan(context.Background(), tbl,
		&ScanRequest{Columns: []string{"id"}}, func(RowBatch) error { return nil })
	require.Error(t, err)
}

func TestPartitionRanges(t *testing.T) {
	// Split points stay on vector multiples from the range start.
	parts := partitionRanges([]ScanRange{{0, 1000000}}, 8, 2048, 1)
	require.Greater(t, len(parts), 1)
	var total uint64
	for i, p := range parts {
		require.False(t, p.Empty())
		if i > 0 {
			require.Equal(t, parts[i-1].End, p.Start)
			require.Zero(t, p.Start%2048)
		}
		total += p.Rows()
	}
	require.Equal(t, uint64(1000000), total)

	// Small ranges are not split.
	parts = partitionRanges([]ScanRange{{0, 100}}, 8, 2048, 16384)
	require.Equal(t, []ScanRange{{0, 100}}, parts)

	require.Nil(t, partitionRanges(nil, 8, 2048, 1))
}
