// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package h5scan

import (
	"golang.org/x/exp/constraints"

	"github.com/h5scan/h5scan/hdf5"
)

// Number constrains the numeric scalar kinds a column can carry.
type Number interface {
	constraints.Integer | constraints.Float
}

// Scalar adds strings, for columns that decode but never push down.
type Scalar interface {
	Number | ~string
}

// Batch is one row-aligned output vector handed to the consumer. Concrete
// batches are *Vector[T] for the column's scalar type; consumers dispatch
// on Kind. Rows within a batch are contiguous starting at StartRow.
type Batch interface {
	StartRow() uint64
	Rows() int
	Kind() hdf5.Kind

	// Constant reports whether the batch is a single value logically
	// repeated Rows times (the constant-vector representation for runs
	// that cover a whole batch).
	Constant() bool
}

// Vector is a fixed-capacity output vector of T. A constant vector stores
// one value instead of materializing Rows copies; Materialize expands it
// when a consumer needs flat data.
type Vector[T Scalar] struct {
	kind     hdf5.Kind
	start    uint64
	rows     int
	width    int // scalar elements per row; >1 for tensor rows
	constant bool
	constVal T
	data     []T // len rows*width when not constant
}

// NewVector wraps flat row data. len(data) must be rows*width.
func NewVector[T Scalar](kind hdf5.Kind, start uint64, rows, width int, data []T) *Vector[T] {
	return &Vector[T]{kind: kind, start: start, rows: rows, width: width, data: data}
}

// NewConstVector represents rows repetitions of val without materializing
// them.
func NewConstVector[T Scalar](kind hdf5.Kind, start uint64, rows int, val T) *Vector[T] {
	return &Vector[T]{kind: kind, start: start, rows: rows, width: 1, constant: true, constVal: val}
}

func (v *Vector[T]) StartRow() uint64 { return v.start }
func (v *Vector[T]) Rows() int        { return v.rows }
func (v *Vector[T]) Kind() hdf5.Kind  { return v.kind }
func (v *Vector[T]) Constant() bool   { return v.constant }

// Width returns the number of scalar elements per row.
func (v *Vector[T]) Width() int { return v.width }

// ConstValue returns the repeated value of a constant vector.
func (v *Vector[T]) ConstValue() T { return v.constVal }

// Materialize returns the batch as a flat slice of rows*width scalars,
// expanding the constant representation if necessary.
func (v *Vector[T]) Materialize() []T {
	if !v.constant {
		return v.data
	}
	out := make([]T, v.rows)
	for i := range out {
		out[i] = v.constVal
	}
	return out
}

// At returns the scalar at row i (width-1 vectors only).
func (v *Vector[T]) At(i int) T {
	if v.constant {
		return v.constVal
	}
	return v.data[i]
}
