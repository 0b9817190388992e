// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"math/rand"

	"github.com/h5scan/h5scan/hdf5"
)

// buildFixture generates an in-memory file with one table group holding a
// dense id column, a dense float payload, a sorted RSE label column, and
// an RSE temperature column, sized to rows. Run lengths are drawn from
// rng so repeated invocations with one seed are reproducible.
func buildFixture(rows uint64, chunkRows uint64, rng *rand.Rand) (*hdf5.MemFile, error) {
	f := hdf5.NewMemFile()
	f.AddGroup("/data")

	ids := make([]int64, rows)
	payload := make([]float64, rows)
	for i := uint64(0); i < rows; i++ {
		ids[i] = int64(i)
		payload[i] = rng.NormFloat64()
	}
	if err := f.AddDataset("/data/id", hdf5.KindInt64, []uint64{rows}, []uint64{chunkRows}, ids); err != nil {
		return nil, err
	}
	if err := f.AddDataset("/data/payload", hdf5.KindFloat64, []uint64{rows}, []uint64{chunkRows}, payload); err != nil {
		return nil, err
	}

	// Sorted runs: ascending values, so filters on this column prune.
	starts, vals := randomRuns(rows, rng)
	f.AddGroup("/data/label")
	if err := f.AddDataset("/data/label/run_starts", hdf5.KindUint64, []uint64{uint64(len(starts))}, nil, starts); err != nil {
		return nil, err
	}
	if err := f.AddDataset("/data/label/values", hdf5.KindInt32, []uint64{uint64(len(vals))}, nil, vals); err != nil {
		return nil, err
	}

	// Unsorted runs: same structure, shuffled values.
	starts2, vals2 := randomRuns(rows, rng)
	rng.Shuffle(len(vals2), func(i, j int) { vals2[i], vals2[j] = vals2[j], vals2[i] })
	temps := make([]float32, len(vals2))
	for i, v := range vals2 {
		temps[i] = float32(v)/10 + 273
	}
	if err := f.AddDataset("/data/temperature_run_starts", hdf5.KindUint64, []uint64{uint64(len(starts2))}, nil, starts2); err != nil {
		return nil, err
	}
	if err := f.AddDataset("/data/temperature_values", hdf5.KindFloat32, []uint64{uint64(len(temps))}, nil, temps); err != nil {
		return nil, err
	}

	if err := f.AddAttr("/data", hdf5.Attribute{Name: "units", Kind: hdf5.KindString, Scalar: true, Value: "kelvin"}); err != nil {
		return nil, err
	}
	return f, nil
}

// randomRuns produces strictly increasing run starts covering rows, with
// one ascending int32 value per run.
func randomRuns(rows uint64, rng *rand.Rand) ([]uint64, []int32) {
	var starts []uint64
	var vals []int32
	pos := uint64(0)
	v := int32(0)
	for pos < rows {
		starts = append(starts, pos)
		vals = append(vals, v)
		v += int32(rng.Intn(5) + 1)
		pos += uint64(rng.Intn(4096) + 1)
	}
	return starts, vals
}
