// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package h5scan

import (
	"github.com/h5scan/h5scan/errors"
	"github.com/h5scan/h5scan/hdf5"
)

// ValidateRunStarts checks the structural invariants of an RSE column's
// run_starts against its values length and the column's logical length.
// Checks run in order and short-circuit on the first failure, returning a
// coded error naming the violation; nil means the column is usable. Pure
// function, applied once per column before any scan touches it.
func ValidateRunStarts(runStarts []uint64, startsKind hdf5.Kind, numValues int, logicalLength uint64) error {
	if !startsKind.IsInteger() {
		return errors.Newf(errors.ErrNonIntegerRunStarts,
			"run_starts stored as %s, want an integer type", startsKind)
	}
	if len(runStarts) != numValues {
		return errors.Newf(errors.ErrSizeMismatch,
			"got %d run starts and %d values", len(runStarts), numValues)
	}
	for i := 1; i < len(runStarts); i++ {
		if runStarts[i] <= runStarts[i-1] {
			return errors.Newf(errors.ErrNonIncreasingRunStarts,
				"run_starts[%d] = %d does not increase over %d", i, runStarts[i], runStarts[i-1])
		}
	}
	// Rows before the first run would be undefined.
	if len(runStarts) == 0 && logicalLength > 0 {
		return errors.Newf(errors.ErrMissingInitialRun,
			"column has %d rows but no runs", logicalLength)
	}
	if len(runStarts) > 0 && runStarts[0] != 0 {
		return errors.Newf(errors.ErrMissingInitialRun,
			"run_starts must begin with 0, got %d", runStarts[0])
	}
	if len(runStarts) > 0 && runStarts[len(runStarts)-1] >= logicalLength {
		return errors.Newf(errors.ErrExceedsLength,
			"run start %d exceeds column length %d", runStarts[len(runStarts)-1], logicalLength)
	}
	return nil
}
