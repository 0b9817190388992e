// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package h5scan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/h5scan/h5scan/errors"
	"github.com/h5scan/h5scan/hdf5"
)

func TestValidateRunStarts(t *testing.T) {
	tests := []struct {
		name       string
		starts     []uint64
		startsKind hdf5.Kind
		numValues  int
		length     uint64
		wantCode   errors.Code
	}{
		{
			name:       "valid",
			starts:     []uint64{0, 3, 7},
			startsKind: hdf5.KindUint64,
			numValues:  3,
			length:     10,
		},
		{
			name:       "valid single run",
			starts:     []uint64{0},
			startsKind: hdf5.KindInt32,
			numValues:  1,
			length:     1000,
		},
		{
			name:       "empty column",
			starts:     nil,
			startsKind: hdf5.KindUint64,
			numValues:  0,
			length:     0,
		},
		{
			name:       "float starts kind",
			starts:     []uint64{0, 3},
			startsKind: hdf5.KindFloat64,
			numValues:  2,
			length:     10,
			wantCode:   errors.ErrNonIntegerRunStarts,
		},
		{
			name:       "more starts than values",
			starts:     []uint64{0, 3, 7},
			startsKind: hdf5.KindUint64,
			numValues:  2,
			length:     10,
			wantCode:   errors.ErrSizeMismatch,
		},
		{
			name:       "fewer starts than values",
			starts:     []uint64{0, 3},
			startsKind: hdf5.KindUint64,
			numValues:  3,
			length:     10,
			wantCode:   errors.ErrSizeMismatch,
		},
		{
			name:       "decreasing",
			starts:     []uint64{0, 7, 3},
			startsKind: hdf5.KindUint64,
			numValues:  3,
			length:     10,
			wantCode:   errors.ErrNonIncreasingRunStarts,
		},
		{
			name:       "duplicate start",
			starts:     []uint64{0, 3, 3},
			startsKind: hdf5.KindUint64,
			numValues:  3,
			length:     10,
			wantCode:   errors.ErrNonIncreasingRunStarts,
		},
		{
			name:       "missing initial run",
			starts:     []uint64{1, 3, 7},
			startsKind: hdf5.KindUint64,
			numValues:  3,
			length:     10,
			wantCode:   errors.ErrMissingInitialRun,
		},
		{
			name:       "no runs for nonempty column",
			starts:     nil,
			startsKind: hdf5.KindUint64,
			numValues:  0,
			length:     10,
			wantCode:   errors.ErrMissingInitialRun,
		},
		{
			name:       "start beyond length",
			starts:     []uint64{0, 3, 10},
			startsKind: hdf5.KindUint64,
			numValues:  3,
			length:     10,
			wantCode:   errors.ErrExceedsLength,
		},
		{
			name:       "start at length",
			starts:     []uint64{0, 10},
			startsKind: hdf5.KindUint64,
			numValues:  2,
			length:     10,
			wantCode:   errors.ErrExceedsLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRunStarts(tt.starts, tt.startsKind, tt.numValues, tt.length)
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.wantCode), "got %v, want code %s", err, tt.wantCode)
		})
	}
}

// Ordering matters when an input violates several invariants at once: the
// size check fires before the monotonicity check.
func TestValidateRunStartsOrdering(t *testing.T) {
	err := ValidateRunStarts([]uint64{5, 2}, hdf5.KindUint64, 3, 4)
	require.True(t, errors.Is(err, errors.ErrSizeMismatch), "got %v", err)

	err = ValidateRunStarts([]uint64{5, 2}, hdf5.KindUint64, 2, 4)
	require.True(t, errors.Is(err, errors.ErrNonIncreasingRunStarts), "got %v", err)
}
