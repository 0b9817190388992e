// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package h5scan

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/h5scan/h5scan/errors"
	"github.com/h5scan/h5scan/logger"
)

// ScanRange is a half-open row interval [Start, End).
type ScanRange struct {
	Start uint64
	End   uint64
}

func (r ScanRange) Rows() uint64   { return r.End - r.Start }
func (r ScanRange) Empty() bool    { return r.End <= r.Start }
func (r ScanRange) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// Executor coordinates parallel scans over tables. A fixed worker pool is
// started at construction and shared by every scan; each worker owns its
// partition end to end, decoding through stateless column sources so no
// scan state is shared between workers.
type Executor struct {
	cfg   *Config
	cache *ChunkCache
	log   logger.Logger
	stats StatsClient

	shutdown       bool
	workMu         sync.RWMutex
	workersWG      sync.WaitGroup
	workerPoolSize int
	work           chan job
}

// executorOption is a functional option type for Executor.
type executorOption func(e *Executor) error

func OptExecutorLogger(l logger.Logger) executorOption {
	return func(e *Executor) error {
		e.log = l
		return nil
	}
}

func OptExecutorStats(s StatsClient) executorOption {
	return func(e *Executor) error {
		e.stats = s
		return nil
	}
}

// NewExecutor returns a new instance of Executor. A nil cfg means
// defaults.
func NewExecutor(cfg *Config, opts ...executorOption) (*Executor, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Executor{
		cfg:   cfg,
		log:   logger.NopLogger,
		stats: NopStatsClient,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.cache = NewChunkCache(cfg.CacheBudget, e.log, e.stats)
	e.workerPoolSize = cfg.Workers
	if e.workerPoolSize == 0 {
		e.workerPoolSize = runtime.GOMAXPROCS(0)
	}
	e.work = make(chan job, e.workerPoolSize)
	for i := 0; i < e.workerPoolSize; i++ {
		e.workersWG.Add(1)
		go func() {
			defer e.workersWG.Done()
			worker(e.work)
		}()
	}
	return e, nil
}

func (e *Executor) Close() error {
	e.workMu.Lock()
	defer e.workMu.Unlock()
	if e.shutdown {
		return nil
	}
	e.shutdown = true
	close(e.work)
	e.workersWG.Wait()
	return nil
}

// Cache exposes the shared chunk cache, mostly for inspection.
func (e *Executor) Cache() *ChunkCache { return e.cache }

// ScanRequest describes one scan: which columns to emit, an optional row
// range restriction, and filters. Filters on columns whose runs are not
// sorted, or whose constants do not convert exactly, still scan soundly;
// they simply prune nothing, and the caller re-checks emitted rows.
type ScanRequest struct {
	// Columns to emit, in order. Nil means every scannable column in
	// discovery order.
	Columns []string

	// Range restricts the scan to a row interval. Nil means all rows.
	Range *ScanRange

	// Filters prune row ranges before decoding where a column can prove
	// the pruning sound. Emitted rows are a superset of the matching
	// rows unless pruning was provably exact.
	Filters []Filter
}

// RowBatch is one vector-aligned window of projected columns. Cols holds
// one batch per requested column, in request order, all covering Range.
type RowBatch struct {
	Range ScanRange
	Cols  []Batch
}

// ScanStats summarizes one completed scan.
type ScanStats struct {
	Rows       uint64
	Batches    int64
	Partitions int
}

type mapResponse struct {
	partial ScanStats
	err     error
}

type job struct {
	part       ScanRange
	mapFn      func(ctx context.Context, part ScanRange) (ScanStats, error)
	ctx        context.Context
	resultChan chan mapResponse
}

func worker(work chan job) {
	for j := range work {
		partial, err := j.mapFn(j.ctx, j.part)

		select {
		case <-j.ctx.Done():
		case j.resultChan <- mapResponse{partial: partial, err: err}:
		}
	}
}

var errShutdown = errors.Errorf("executor has shut down")

// Scan runs the request over the table, delivering batches to emit.
// Partitions run on the shared worker pool, so emit may be called
// concurrently from multiple goroutines; batches within one partition
// arrive in row order. An emit error or a context cancellation stops the
// scan promptly.
func (e *Executor) Scan(ctx context.Context, t *Table, req *ScanRequest, emit func(RowBatch) error) (*ScanStats, error) {
	if req == nil {
		req = &ScanRequest{}
	}
	begin := time.Now()

	proj, err := e.projection(t, req)
	if err != nil {
		return nil, err
	}

	ranges, err := e.planRanges(t, req)
	if err != nil {
		return nil, err
	}

	parts := partitionRanges(ranges, e.workerPoolSize, e.cfg.VectorSize, e.cfg.MinPartitionRows)
	if len(parts) == 0 {
		return &ScanStats{}, nil
	}

	mapFn := func(ctx context.Context, part ScanRange) (ScanStats, error) {
		return e.scanPartition(ctx, part, proj, emit)
	}

	total, err := e.mapperLocal(ctx, parts, mapFn)
	if err != nil {
		return nil, err
	}
	total.Partitions = len(parts)

	e.stats.Count("scan_rows", int64(total.Rows), 1.0)
	e.stats.Timing("scan_duration", time.Since(begin), 1.0)
	return total, nil
}

// projection resolves the requested column names to sources.
func (e *Executor) projection(t *Table, req *ScanRequest) ([]ColumnSource, error) {
	names := req.Columns
	if names == nil {
		names = t.order
	}
	proj := make([]ColumnSource, len(names))
	for i, name := range names {
		src, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		proj[i] = src
	}
	return proj, nil
}

// planRanges computes the row ranges to scan: the requested range clamped
// to the table, narrowed by whatever pruning the filtered columns can
// prove. The result is sorted and disjoint. An empty result means the
// filters are provably unsatisfiable.
func (e *Executor) planRanges(t *Table, req *ScanRequest) ([]ScanRange, error) {
	base := ScanRange{End: t.Rows()}
	if req.Range != nil {
		if req.Range.Start > base.Start {
			base.Start = req.Range.Start
		}
		if req.Range.End < base.End {
			base.End = req.Range.End
		}
	}
	if base.Empty() {
		return nil, nil
	}
	ranges := []ScanRange{base}

	byCol := make(map[string][]Filter)
	for _, f := range req.Filters {
		byCol[f.Column] = append(byCol[f.Column], f)
	}
	for name, filters := range byCol {
		src, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		pruned, ok := src.planFilters(filters)
		if !ok {
			continue
		}
		ranges = intersectRanges(ranges, pruned)
		if len(ranges) == 0 {
			return nil, nil
		}
	}
	return ranges, nil
}

func (e *Executor) scanPartition(ctx context.Context, part ScanRange, proj []ColumnSource, emit func(RowBatch) error) (ScanStats, error) {
	var partial ScanStats
	vecSize := uint64(e.cfg.VectorSize)

	for pos := part.Start; pos < part.End; {
		if err := validateScanContext(ctx); err != nil {
			return partial, err
		}
		end := pos + vecSize
		if end > part.End {
			end = part.End
		}
		w := ScanRange{Start: pos, End: end}

		batch := RowBatch{Range: w, Cols: make([]Batch, len(proj))}
		for i, src := range proj {
			b, err := src.Batch(ctx, w)
			if err != nil {
				return partial, errors.Wrapf(err, "column %s at %s", src.Name(), w)
			}
			batch.Cols[i] = b
		}
		if err := emit(batch); err != nil {
			return partial, err
		}
		partial.Rows += w.Rows()
		partial.Batches++
		pos = end
	}
	return partial, nil
}

// mapperLocal fans the partitions out over the worker pool and reduces
// the partial stats. The first error cancels the remaining work.
func (e *Executor) mapperLocal(ctx context.Context, parts []ScanRange, mapFn func(ctx context.Context, part ScanRange) (ScanStats, error)) (*ScanStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := ctx.Done()
	e.workMu.RLock()
	defer e.workMu.RUnlock()

	if e.shutdown {
		return nil, errShutdown
	}

	ch := make(chan mapResponse, len(parts))

	for _, part := range parts {
		e.work <- job{
			part:       part,
			mapFn:      mapFn,
			ctx:        ctx,
			resultChan: ch,
		}
	}

	var total ScanStats
	for n := 0; n < len(parts); {
		select {
		case <-done:
			return nil, ctx.Err()
		case resp := <-ch:
			if resp.err != nil {
				cancel()
				return nil, resp.err
			}
			total.Rows += resp.partial.Rows
			total.Batches += resp.partial.Batches
			n++
		}
	}
	return &total, nil
}

// validateScanContext returns an error if the context has been cancelled.
func validateScanContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		err := ctx.Err()
		if err == context.Canceled {
			return errors.Wrap(err, "scan cancelled")
		}
		return err
	default:
		return nil
	}
}

// partitionRanges splits the planned ranges into worker partitions.
// Split points fall on vector-size multiples measured from each range's
// start, so batch boundaries stay aligned no matter how many workers run.
// Ranges smaller than minRows are not split.
func partitionRanges(ranges []ScanRange, workers, vecSize int, minRows uint64) []ScanRange {
	var total uint64
	for _, r := range ranges {
		total += r.Rows()
	}
	if total == 0 {
		return nil
	}

	target := total / uint64(workers)
	if target < minRows {
		target = minRows
	}
	// Round the step up to a whole number of vectors.
	vs := uint64(vecSize)
	step := (target + vs - 1) / vs * vs

	var parts []ScanRange
	for _, r := range ranges {
		if r.Empty() {
			continue
		}
		if r.Rows() <= minRows {
			parts = append(parts, r)
			continue
		}
		for pos := r.Start; pos < r.End; pos += step {
			end := pos + step
			if end > r.End {
				end = r.End
			}
			parts = append(parts, ScanRange{Start: pos, End: end})
		}
	}
	return parts
}

// intersectRanges intersects two sorted, disjoint range lists.
func intersectRanges(a, b []ScanRange) []ScanRange {
	var out []ScanRange
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		lo := a[i].Start
		if b[j].Start > lo {
			lo = b[j].Start
		}
		hi := a[i].End
		if b[j].End < hi {
			hi = b[j].End
		}
		if lo < hi {
			out = append(out, ScanRange{Start: lo, End: hi})
		}
		if a[i].End < b[j].End {
			i++
		} else {
			j++
		}
	}
	return out
}
