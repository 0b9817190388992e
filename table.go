// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package h5scan

import (
	"context"
	"sync"

	"github.com/h5scan/h5scan/errors"
	"github.com/h5scan/h5scan/hdf5"
)

// ColumnSource produces batches for one column of an open table. Sources
// are stateless with respect to scan position, so any number of workers
// may pull batches from one source concurrently.
type ColumnSource interface {
	Name() string
	Kind() hdf5.Kind
	Len() uint64

	// Batch materializes the rows in rng, which never exceeds the
	// configured vector size.
	Batch(ctx context.Context, rng ScanRange) (Batch, error)

	planFilters(filters []Filter) ([]ScanRange, bool)
}

// Table is a scannable group: its usable columns, and the columns that
// were discovered but cannot be scanned, with the reason each was set
// aside.
type Table struct {
	exec   *Executor
	reader hdf5.Reader
	layout *hdf5.TableLayout

	cols  map[string]ColumnSource
	order []string

	// Columns present in the group but excluded from scanning, keyed by
	// name with a human-readable reason. Scans touching one of these
	// fail; scans of the remaining columns proceed.
	unusable map[string]string
}

// OpenTable discovers the columns under dir and prepares them for
// scanning. Columns with unsupported types or layouts are set aside
// rather than failing the open; RSE columns are decoded and validated
// here so that scans only ever see well-formed runs.
func (e *Executor) OpenTable(ctx context.Context, r hdf5.Reader, dir string) (*Table, error) {
	layout, err := hdf5.DiscoverTable(r, dir)
	if err != nil {
		return nil, err
	}

	t := &Table{
		exec:     e,
		reader:   r,
		layout:   layout,
		cols:     make(map[string]ColumnSource),
		unusable: make(map[string]string),
	}

	for _, info := range layout.Dense {
		name := baseName(info.Path)
		if reason := denseUnusable(info); reason != "" {
			t.unusable[name] = reason
			e.log.Warnf("column %s not scannable: %s", info.Path, reason)
			continue
		}
		if info.Kind == hdf5.KindString || info.Kind == hdf5.KindBytes {
			t.addColumn(name, &denseStringColumn{tbl: t, info: info, name: name})
		} else {
			t.addColumn(name, &denseColumn{tbl: t, info: info, name: name})
		}
	}

	for _, rse := range layout.RSE {
		col, err := LoadRSEColumn(ctx, r, rse, layout.Rows)
		if err != nil {
			if errors.CodeOf(err) == errors.ErrUncoded {
				return nil, err
			}
			t.unusable[rse.Name] = err.Error()
			e.log.Warnf("column %s not scannable: %v", rse.ValuesPath, err)
			continue
		}
		t.addColumn(rse.Name, &rseSource{col: col})
	}

	return t, nil
}

func (t *Table) addColumn(name string, src ColumnSource) {
	t.cols[name] = src
	t.order = append(t.order, name)
}

// Rows returns the logical row count shared by every column.
func (t *Table) Rows() uint64 { return t.layout.Rows }

// Columns returns the scannable column names in discovery order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Unusable returns the columns excluded from scanning and why.
func (t *Table) Unusable() map[string]string {
	out := make(map[string]string, len(t.unusable))
	for k, v := range t.unusable {
		out[k] = v
	}
	return out
}

// Column returns the source for name, or a coded error naming the reason
// when the column exists but cannot be scanned.
func (t *Table) Column(name string) (ColumnSource, error) {
	if src, ok := t.cols[name]; ok {
		return src, nil
	}
	if reason, ok := t.unusable[name]; ok {
		return nil, errors.Newf(errors.ErrUnsupportedColumnType, "column %q: %s", name, reason)
	}
	return nil, errors.Errorf("no column %q in %s", name, t.layout.Dir)
}

// denseUnusable reports why a dense dataset cannot be scanned, or "".
// Scans slice whole logical rows out of chunks, so a chunked dataset must
// chunk only along the first dimension; its inner chunk extents have to
// cover the full inner shape.
func denseUnusable(info *hdf5.DatasetInfo) string {
	if info.Kind == hdf5.KindUnsupported || info.Kind == hdf5.KindFloat16 ||
		info.Kind == hdf5.KindEnum || info.Kind == hdf5.KindCompound {
		return "unsupported element type " + info.Kind.String()
	}
	if !info.Kind.IsDecodable() && info.Kind != hdf5.KindString {
		return "unsupported element type " + info.Kind.String()
	}
	if info.Chunked() {
		cs := info.EffectiveChunkShape()
		for d := 1; d < info.Rank(); d++ {
			if cs[d] != info.Shape[d] {
				return "chunked across row boundaries"
			}
		}
	}
	return ""
}

// denseColumn reads numeric rows through the shared chunk cache.
type denseColumn struct {
	tbl  *Table
	info *hdf5.DatasetInfo
	name string
}

func (c *denseColumn) Name() string                             { return c.name }
func (c *denseColumn) Kind() hdf5.Kind                          { return c.info.Kind }
func (c *denseColumn) Len() uint64                              { return c.info.Rows() }
func (c *denseColumn) planFilters([]Filter) ([]ScanRange, bool) { return nil, false }

func (c *denseColumn) Batch(ctx context.Context, rng ScanRange) (Batch, error) {
	rowBytes := c.info.RowBytes()
	buf := make([]byte, int(rng.Rows())*rowBytes)

	cache := c.tbl.exec.cache
	for row := rng.Start; row < rng.End; {
		var coord hdf5.ChunkCoord
		coord[0] = c.info.ChunkForRow(row)
		ch, err := cache.GetOrLoad(ctx, c.tbl.reader, c.info, coord)
		if err != nil {
			return nil, err
		}
		end := rng.End
		if ch.RowEnd < end {
			end = ch.RowEnd
		}
		for r := row; r < end; r++ {
			copy(buf[int(r-rng.Start)*rowBytes:], ch.Row(r))
		}
		cache.Release(ch)
		row = end
	}

	return vectorFromBytes(c.info.Kind, rng.Start, int(rng.Rows()), c.info.RowWidth(), buf)
}

// denseStringColumn serves a 1-D string dataset. Variable-length string
// data bypasses the chunk cache; the dataset is read once on first use
// and sliced per batch.
type denseStringColumn struct {
	tbl  *Table
	info *hdf5.DatasetInfo
	name string

	once    sync.Once
	values  []string
	loadErr error
}

func (c *denseStringColumn) Name() string                             { return c.name }
func (c *denseStringColumn) Kind() hdf5.Kind                          { return hdf5.KindString }
func (c *denseStringColumn) Len() uint64                              { return c.info.Rows() }
func (c *denseStringColumn) planFilters([]Filter) ([]ScanRange, bool) { return nil, false }

func (c *denseStringColumn) Batch(ctx context.Context, rng ScanRange) (Batch, error) {
	c.once.Do(func() {
		c.values, c.loadErr = c.tbl.reader.ReadStrings(ctx, c.info)
	})
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	rows := int(rng.Rows())
	return NewVector(hdf5.KindString, rng.Start, rows, 1, c.values[rng.Start:rng.End]), nil
}

// rseSource adapts a decoded RSE column to the batch interface. Decoding
// a window no larger than the vector size emits exactly one batch.
type rseSource struct {
	col Column
}

func (s *rseSource) Name() string    { return s.col.Name() }
func (s *rseSource) Kind() hdf5.Kind { return s.col.Kind() }
func (s *rseSource) Len() uint64     { return s.col.Len() }

func (s *rseSource) planFilters(filters []Filter) ([]ScanRange, bool) {
	return s.col.planFilters(filters)
}

func (s *rseSource) Batch(ctx context.Context, rng ScanRange) (Batch, error) {
	var out Batch
	err := s.col.Decode(rng, int(rng.Rows()), func(b Batch) error {
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func vectorFromBytes(kind hdf5.Kind, start uint64, rows, width int, b []byte) (Batch, error) {
	vals, err := hdf5.DecodeValues(kind, b)
	if err != nil {
		return nil, err
	}
	switch v := vals.(type) {
	case []int8:
		return NewVector(kind, start, rows, width, v), nil
	case []int16:
		return NewVector(kind, start, rows, width, v), nil
	case []int32:
		return NewVector(kind, start, rows, width, v), nil
	case []int64:
		return NewVector(kind, start, rows, width, v), nil
	case []uint8:
		return NewVector(kind, start, rows, width, v), nil
	case []uint16:
		return NewVector(kind, start, rows, width, v), nil
	case []uint32:
		return NewVector(kind, start, rows, width, v), nil
	case []uint64:
		return NewVector(kind, start, rows, width, v), nil
	case []float32:
		return NewVector(kind, start, rows, width, v), nil
	case []float64:
		return NewVector(kind, start, rows, width, v), nil
	}
	return nil, errors.Newf(errors.ErrUnsupportedColumnType, "no vector representation for %s", kind)
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
