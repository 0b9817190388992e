// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package h5scan

import (
	"runtime"

	"github.com/spf13/pflag"

	"github.com/h5scan/h5scan/errors"
)

const (
	// DefaultVectorSize is the row capacity of one emitted batch.
	DefaultVectorSize = 2048

	// DefaultCacheBudget bounds resident decoded chunk bytes.
	DefaultCacheBudget = 256 << 20

	// DefaultMinPartitionRows is the smallest row span worth handing to
	// its own worker; below this, splitting costs more than it buys.
	DefaultMinPartitionRows = 16384
)

// Config defines externally configurable scan engine options.
type Config struct {

	// Rows per emitted batch. Batch boundaries are aligned to multiples
	// of this size within a scan range.
	VectorSize int

	// Maximum decoded chunk bytes held by the cache. Chunks checked out
	// by active scans can push past this temporarily.
	CacheBudget int64

	// Number of scan workers. 0 means GOMAXPROCS.
	Workers int

	// Row spans smaller than this are not split across workers.
	MinPartitionRows uint64
}

func NewDefaultConfig() *Config {
	return &Config{
		VectorSize:       DefaultVectorSize,
		CacheBudget:      DefaultCacheBudget,
		Workers:          runtime.GOMAXPROCS(0),
		MinPartitionRows: DefaultMinPartitionRows,
	}
}

func (cfg *Config) DefineFlags(flags *pflag.FlagSet) {
	default0 := NewDefaultConfig()
	flags.IntVar(&cfg.VectorSize, "vector-size", default0.VectorSize, "rows per emitted batch; scan output is aligned to multiples of this")
	flags.Int64Var(&cfg.CacheBudget, "cache-budget", default0.CacheBudget, "maximum decoded chunk bytes held by the chunk cache")
	flags.IntVar(&cfg.Workers, "workers", default0.Workers, "number of scan workers, 0 means number of CPUs")
	flags.Uint64Var(&cfg.MinPartitionRows, "min-partition-rows", default0.MinPartitionRows, "row spans smaller than this are not split across workers")
}

func (cfg *Config) validate() error {
	if cfg.VectorSize <= 0 {
		return errors.Errorf("vector size must be positive, got %d", cfg.VectorSize)
	}
	if cfg.CacheBudget <= 0 {
		return errors.Errorf("cache budget must be positive, got %d", cfg.CacheBudget)
	}
	if cfg.Workers < 0 {
		return errors.Errorf("workers must be non-negative, got %d", cfg.Workers)
	}
	if cfg.MinPartitionRows == 0 {
		cfg.MinPartitionRows = 1
	}
	return nil
}
