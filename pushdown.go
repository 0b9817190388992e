// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package h5scan

import (
	"math"
	"sort"
)

// CmpOp is a comparison operator in a scan filter.
type CmpOp uint8

const (
	OpEq CmpOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

func (op CmpOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	}
	return "?"
}

// Filter compares a column against a constant. Filters are advisory: the
// planner uses them to narrow the physical rows read, and the consumer
// re-applies them after the scan, so ignoring one never changes results.
type Filter struct {
	Column string
	Op     CmpOp
	Value  interface{}
}

// planFilters narrows the rows that can satisfy the conjunction of
// filters on a numeric RSE column. The planned ranges are a superset of
// the satisfying rows, never a subset.
//
// Returns (ranges, true) when pushdown applies; ranges may be empty, which
// means the predicate is provably unsatisfiable (distinct from "scan
// everything"). Returns (nil, false) when no reduction is possible: a
// non-sargable operator, a constant that does not convert cleanly, or
// values that are not ascending. Sortedness is verified here rather than
// trusted from file metadata.
func (c *RunColumn[T]) planFilters(filters []Filter) ([]ScanRange, bool) {
	if len(filters) == 0 || len(c.values) == 0 {
		return nil, false
	}

	// A conjunction of sargable comparisons collapses to one interval.
	iv := interval[T]{hasLo: false, hasHi: false}
	for _, f := range filters {
		v, ok := toNumber[T](f.Value)
		if !ok {
			return nil, false
		}
		switch f.Op {
		case OpEq:
			iv.tightenLo(v, false)
			iv.tightenHi(v, false)
		case OpGt:
			iv.tightenLo(v, true)
		case OpGe:
			iv.tightenLo(v, false)
		case OpLt:
			iv.tightenHi(v, true)
		case OpLe:
			iv.tightenHi(v, false)
		default:
			// != and friends cannot narrow a sorted scan.
			return nil, false
		}
	}

	if !valuesAscending(c.values) {
		return nil, false
	}

	// First run whose value can be in the interval.
	first := 0
	if iv.hasLo {
		if iv.loOpen {
			first = sort.Search(len(c.values), func(i int) bool { return c.values[i] > iv.lo })
		} else {
			first = sort.Search(len(c.values), func(i int) bool { return c.values[i] >= iv.lo })
		}
	}
	// One past the last run whose value can be in the interval.
	last := len(c.values)
	if iv.hasHi {
		if iv.hiOpen {
			last = sort.Search(len(c.values), func(i int) bool { return c.values[i] >= iv.hi })
		} else {
			last = sort.Search(len(c.values), func(i int) bool { return c.values[i] > iv.hi })
		}
	}

	if first >= last {
		// Provably empty, not "scan everything".
		return []ScanRange{}, true
	}
	return []ScanRange{{
		Start: c.idx.starts[first],
		End:   c.idx.runEnd(last - 1),
	}}, true
}

// valuesAscending reports whether values are non-strictly ascending. The
// negated comparison makes NaN anywhere in a float column read as
// unsorted, which degrades to a full scan.
func valuesAscending[T Number](values []T) bool {
	for i := 1; i < len(values); i++ {
		if !(values[i-1] <= values[i]) {
			return false
		}
	}
	return true
}

type interval[T Number] struct {
	lo, hi         T
	hasLo, hasHi   bool
	loOpen, hiOpen bool
}

func (iv *interval[T]) tightenLo(v T, open bool) {
	if !iv.hasLo || v > iv.lo || (v == iv.lo && open) {
		iv.lo, iv.loOpen, iv.hasLo = v, open, true
	}
}

func (iv *interval[T]) tightenHi(v T, open bool) {
	if !iv.hasHi || v < iv.hi || (v == iv.hi && open) {
		iv.hi, iv.hiOpen, iv.hasHi = v, open, true
	}
}

// toNumber converts a filter constant to the column's scalar type, only
// when the conversion is exact. A lossy constant disables pushdown for the
// filter rather than risking a range that misses rows.
func toNumber[T Number](v interface{}) (T, bool) {
	switch x := v.(type) {
	case int:
		return fromInt64[T](int64(x))
	case int8:
		return fromInt64[T](int64(x))
	case int16:
		return fromInt64[T](int64(x))
	case int32:
		return fromInt64[T](int64(x))
	case int64:
		return fromInt64[T](x)
	case uint:
		return fromUint64[T](uint64(x))
	case uint8:
		return fromUint64[T](uint64(x))
	case uint16:
		return fromUint64[T](uint64(x))
	case uint32:
		return fromUint64[T](uint64(x))
	case uint64:
		return fromUint64[T](x)
	case float32:
		return fromFloat64[T](float64(x))
	case float64:
		return fromFloat64[T](x)
	}
	var zero T
	return zero, false
}

func fromInt64[T Number](x int64) (T, bool) {
	if isFloatKind[T]() && (x > 1<<53 || x < -(1<<53)) {
		var zero T
		return zero, false
	}
	t := T(x)
	return t, int64(t) == x && (t >= 0) == (x >= 0)
}

func fromUint64[T Number](x uint64) (T, bool) {
	if isFloatKind[T]() && x > 1<<53 {
		var zero T
		return zero, false
	}
	t := T(x)
	return t, t >= 0 && uint64(t) == x
}

func fromFloat64[T Number](x float64) (T, bool) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		var zero T
		return zero, false
	}
	if !isFloatKind[T]() && (x != math.Trunc(x) || x < -9.3e18 || x > 1.9e19) {
		var zero T
		return zero, false
	}
	t := T(x)
	return t, float64(t) == x
}

func isFloatKind[T Number]() bool {
	var z T
	switch interface{}(z).(type) {
	case float32, float64:
		return true
	}
	return false
}
