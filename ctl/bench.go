// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/h5scan/h5scan"
	"github.com/h5scan/h5scan/logger"
)

// BenchCommand scans a generated table and reports throughput. With a
// filter value set it scans the sorted label column twice, once with
// pushdown and once without, so the pruning effect is visible.
type BenchCommand struct {
	Config *h5scan.Config

	// Fixture parameters.
	Rows      uint64
	ChunkRows uint64
	Seed      int64

	// Optional label threshold; rows with label < FilterBelow are pruned.
	FilterBelow int64
	Filtered    bool

	Stdout io.Writer
	Stderr io.Writer
}

// NewBenchCommand returns a new instance of BenchCommand.
func NewBenchCommand(stdout, stderr io.Writer) *BenchCommand {
	return &BenchCommand{
		Config:    h5scan.NewDefaultConfig(),
		Rows:      1 << 22,
		ChunkRows: 1 << 16,
		Seed:      1,
		Stdout:    stdout,
		Stderr:    stderr,
	}
}

// Run executes the benchmark.
func (cmd *BenchCommand) Run(ctx context.Context) error {
	f, err := buildFixture(cmd.Rows, cmd.ChunkRows, rand.New(rand.NewSource(cmd.Seed)))
	if err != nil {
		return err
	}
	defer f.Close()

	exec, err := h5scan.NewExecutor(cmd.Config, h5scan.OptExecutorLogger(logger.NewStandardLogger(cmd.Stderr)))
	if err != nil {
		return err
	}
	defer exec.Close()

	tbl, err := exec.OpenTable(ctx, f, "/data")
	if err != nil {
		return err
	}

	req := &h5scan.ScanRequest{Columns: []string{"id", "payload", "label", "temperature"}}
	if err := cmd.runOnce(ctx, exec, tbl, "full scan", req); err != nil {
		return err
	}

	if cmd.Filtered {
		req = &h5scan.ScanRequest{
			Columns: []string{"id", "label"},
			Filters: []h5scan.Filter{{Column: "label", Op: h5scan.OpGe, Value: cmd.FilterBelow}},
		}
		if err := cmd.runOnce(ctx, exec, tbl, "filtered scan", req); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.Stdout, "cache: %d chunks, %d bytes resident\n", exec.Cache().Len(), exec.Cache().Bytes())
	return nil
}

func (cmd *BenchCommand) runOnce(ctx context.Context, exec *h5scan.Executor, tbl *h5scan.Table, name string, req *h5scan.ScanRequest) error {
	begin := time.Now()
	stats, err := exec.Scan(ctx, tbl, req, func(h5scan.RowBatch) error { return nil })
	if err != nil {
		return err
	}
	d := time.Since(begin)
	rate := float64(stats.Rows) / d.Seconds() / 1e6
	fmt.Fprintf(cmd.Stdout, "%s: %d rows in %d batches over %d partitions, %v (%.1f Mrows/s)\n",
		name, stats.Rows, stats.Batches, stats.Partitions, d.Round(time.Millisecond), rate)
	return nil
}
