// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package h5scan

import (
	"context"
	"sort"

	"github.com/h5scan/h5scan/errors"
	"github.com/h5scan/h5scan/hdf5"
)

// Column is a loaded, validated RSE column. Implementations are immutable
// for the duration of a scan and safe for concurrent use from any number
// of goroutines: decoding carries no cursor, every lookup is derived from
// the absolute row alone.
type Column interface {
	Name() string
	Kind() hdf5.Kind
	Len() uint64
	NumRuns() int

	// Decode expands rows in rng into vectors of at most vecSize rows,
	// emitted in row order. A batch fully covered by one run is emitted in
	// the constant representation.
	Decode(rng ScanRange, vecSize int, emit func(Batch) error) error

	// planFilters computes row ranges that can satisfy the conjunction of
	// filters, or reports that no reduction is possible.
	planFilters(filters []Filter) ([]ScanRange, bool)
}

// runIndex addresses runs by position in an immutable starts array. There
// is deliberately no iterator over it: a shared decode cursor is how
// cross-thread corruption happens, so which run covers a row is always
// recomputed from the row by binary search.
type runIndex struct {
	starts []uint64
	length uint64
}

// runContaining returns the index of the run covering the given row: the
// greatest start <= row. The validator guarantees starts[0] == 0, so the
// result is always valid for row < length.
func (r *runIndex) runContaining(row uint64) int {
	i := sort.Search(len(r.starts), func(i int) bool { return r.starts[i] > row })
	return i - 1
}

// runEnd returns the exclusive end row of run i; the last run implicitly
// ends at the column's logical length.
func (r *runIndex) runEnd(i int) uint64 {
	if i+1 < len(r.starts) {
		return r.starts[i+1]
	}
	return r.length
}

// decodeRuns walks rng in vecSize steps. Batch boundaries align to
// multiples of vecSize within the range, so a run crossing a boundary is
// split across batches and a run covering a whole batch becomes a
// constant vector.
func decodeRuns[T Scalar](kind hdf5.Kind, idx *runIndex, values []T, rng ScanRange, vecSize int, emit func(Batch) error) error {
	if vecSize <= 0 {
		vecSize = DefaultVectorSize
	}
	for pos := rng.Start; pos < rng.End; {
		n := vecSize
		if left := rng.End - pos; left < uint64(n) {
			n = int(left)
		}
		run := idx.runContaining(pos)
		runEnd := idx.runEnd(run)

		if runEnd >= pos+uint64(n) {
			if err := emit(NewConstVector(kind, pos, n, values[run])); err != nil {
				return err
			}
			pos += uint64(n)
			continue
		}

		data := make([]T, n)
		i := 0
		for i < n {
			fill := n - i
			if inRun := runEnd - (pos + uint64(i)); inRun < uint64(fill) {
				fill = int(inRun)
			}
			v := values[run]
			for j := 0; j < fill; j++ {
				data[i+j] = v
			}
			i += fill
			if i < n {
				run++
				runEnd = idx.runEnd(run)
			}
		}
		if err := emit(NewVector(kind, pos, n, 1, data)); err != nil {
			return err
		}
		pos += uint64(n)
	}
	return nil
}

// RunColumn is a numeric RSE column.
type RunColumn[T Number] struct {
	name   string
	kind   hdf5.Kind
	idx    runIndex
	values []T
}

// NewRunColumn validates the run structure and builds a column over it.
func NewRunColumn[T Number](name string, kind hdf5.Kind, runStarts []uint64, startsKind hdf5.Kind, values []T, length uint64) (*RunColumn[T], error) {
	if err := ValidateRunStarts(runStarts, startsKind, len(values), length); err != nil {
		return nil, errors.Wrapf(err, "column %s", name)
	}
	return &RunColumn[T]{
		name:   name,
		kind:   kind,
		idx:    runIndex{starts: runStarts, length: length},
		values: values,
	}, nil
}

func (c *RunColumn[T]) Name() string    { return c.name }
func (c *RunColumn[T]) Kind() hdf5.Kind { return c.kind }
func (c *RunColumn[T]) Len() uint64     { return c.idx.length }
func (c *RunColumn[T]) NumRuns() int    { return len(c.idx.starts) }

func (c *RunColumn[T]) Decode(rng ScanRange, vecSize int, emit func(Batch) error) error {
	return decodeRuns(c.kind, &c.idx, c.values, rng, vecSize, emit)
}

// StringRunColumn is a string-valued RSE column. It decodes like any other
// column but is never eligible for predicate pushdown.
type StringRunColumn struct {
	name   string
	kind   hdf5.Kind // KindString or KindBytes
	idx    runIndex
	values []string
}

func NewStringRunColumn(name string, kind hdf5.Kind, runStarts []uint64, startsKind hdf5.Kind, values []string, length uint64) (*StringRunColumn, error) {
	if err := ValidateRunStarts(runStarts, startsKind, len(values), length); err != nil {
		return nil, errors.Wrapf(err, "column %s", name)
	}
	return &StringRunColumn{
		name:   name,
		kind:   kind,
		idx:    runIndex{starts: runStarts, length: length},
		values: values,
	}, nil
}

func (c *StringRunColumn) Name() string    { return c.name }
func (c *StringRunColumn) Kind() hdf5.Kind { return c.kind }
func (c *StringRunColumn) Len() uint64     { return c.idx.length }
func (c *StringRunColumn) NumRuns() int    { return len(c.idx.starts) }

func (c *StringRunColumn) Decode(rng ScanRange, vecSize int, emit func(Batch) error) error {
	return decodeRuns(c.kind, &c.idx, c.values, rng, vecSize, emit)
}

func (c *StringRunColumn) planFilters(filters []Filter) ([]ScanRange, bool) {
	return nil, false
}

// LoadRSEColumn reads the run_starts and values datasets of one RSE
// column, validates them, and builds a Column of the values' kind. The
// logical length comes from the table's regular datasets; it is never
// stored on the column itself.
func LoadRSEColumn(ctx context.Context, r hdf5.Reader, layout hdf5.RSELayout, length uint64) (Column, error) {
	startsInfo, err := r.Stat(layout.RunStartsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "column %s", layout.Name)
	}
	valuesInfo, err := r.Stat(layout.ValuesPath)
	if err != nil {
		return nil, errors.Wrapf(err, "column %s", layout.Name)
	}

	if !startsInfo.Kind.IsInteger() {
		return nil, errors.Wrapf(
			errors.Newf(errors.ErrNonIntegerRunStarts, "run_starts stored as %s, want an integer type", startsInfo.Kind),
			"column %s", layout.Name)
	}

	rawStarts, err := readWholeDataset(ctx, r, startsInfo)
	if err != nil {
		return nil, errors.Wrapf(err, "column %s: reading run_starts", layout.Name)
	}
	runStarts, err := hdf5.DecodeUint64s(startsInfo.Kind, rawStarts)
	if err != nil {
		return nil, errors.Wrapf(err, "column %s", layout.Name)
	}

	switch {
	case valuesInfo.Kind.IsNumeric():
		raw, err := readWholeDataset(ctx, r, valuesInfo)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s: reading values", layout.Name)
		}
		vals, err := hdf5.DecodeValues(valuesInfo.Kind, raw)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", layout.Name)
		}
		return newNumericColumn(layout.Name, valuesInfo.Kind, runStarts, startsInfo.Kind, vals, length)

	case valuesInfo.Kind == hdf5.KindString || valuesInfo.Kind == hdf5.KindBytes:
		vals, err := r.ReadStrings(ctx, valuesInfo)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s: reading values", layout.Name)
		}
		return NewStringRunColumn(layout.Name, valuesInfo.Kind, runStarts, startsInfo.Kind, vals, length)

	default:
		return nil, errors.Newf(errors.ErrUnsupportedColumnType,
			"column %s: cannot decode %s values", layout.Name, valuesInfo.Kind)
	}
}

// newNumericColumn dispatches the untyped decode result to the matching
// generic column. The kind switch is exhaustive over the numeric kinds.
func newNumericColumn(name string, kind hdf5.Kind, runStarts []uint64, startsKind hdf5.Kind, vals interface{}, length uint64) (Column, error) {
	switch v := vals.(type) {
	case []int8:
		return NewRunColumn(name, kind, runStarts, startsKind, v, length)
	case []int16:
		return NewRunColumn(name, kind, runStarts, startsKind, v, length)
	case []int32:
		return NewRunColumn(name, kind, runStarts, startsKind, v, length)
	case []int64:
		return NewRunColumn(name, kind, runStarts, startsKind, v, length)
	case []uint8:
		return NewRunColumn(name, kind, runStarts, startsKind, v, length)
	case []uint16:
		return NewRunColumn(name, kind, runStarts, startsKind, v, length)
	case []uint32:
		return NewRunColumn(name, kind, runStarts, startsKind, v, length)
	case []uint64:
		return NewRunColumn(name, kind, runStarts, startsKind, v, length)
	case []float32:
		return NewRunColumn(name, kind, runStarts, startsKind, v, length)
	case []float64:
		return NewRunColumn(name, kind, runStarts, startsKind, v, length)
	}
	return nil, errors.Newf(errors.ErrUnsupportedColumnType, "column %s: cannot decode %s values", name, kind)
}

// readWholeDataset concatenates every chunk of a 1-D dataset. RSE side
// datasets are small relative to the column they encode, so they are read
// in full once per scan.
func readWholeDataset(ctx context.Context, r hdf5.Reader, info *hdf5.DatasetInfo) ([]byte, error) {
	if info.Rank() != 1 {
		return nil, errors.Errorf("dataset %s has rank %d, want 1", info.Path, info.Rank())
	}
	grid := info.GridDims()
	var buf []byte
	for i := uint64(0); i < grid[0]; i++ {
		b, err := r.ReadChunk(ctx, info, hdf5.ChunkCoord{i})
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
	}
	return buf, nil
}
