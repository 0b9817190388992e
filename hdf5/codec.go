// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package hdf5

import (
	"encoding/binary"
	"math"

	"github.com/h5scan/h5scan/errors"
)

// Raw chunk bytes cross the reader boundary in little-endian native order;
// these helpers convert between typed slices and that representation.

// EncodeValues flattens a typed slice into raw little-endian bytes. The
// slice's element type must match kind.
func EncodeValues(kind Kind, v interface{}) ([]byte, error) {
	switch kind {
	case KindInt8:
		s := v.([]int8)
		b := make([]byte, len(s))
		for i, x := range s {
			b[i] = byte(x)
		}
		return b, nil
	case KindUint8:
		s := v.([]uint8)
		b := make([]byte, len(s))
		copy(b, s)
		return b, nil
	case KindInt16:
		s := v.([]int16)
		b := make([]byte, 2*len(s))
		for i, x := range s {
			binary.LittleEndian.PutUint16(b[2*i:], uint16(x))
		}
		return b, nil
	case KindUint16:
		s := v.([]uint16)
		b := make([]byte, 2*len(s))
		for i, x := range s {
			binary.LittleEndian.PutUint16(b[2*i:], x)
		}
		return b, nil
	case KindInt32:
		s := v.([]int32)
		b := make([]byte, 4*len(s))
		for i, x := range s {
			binary.LittleEndian.PutUint32(b[4*i:], uint32(x))
		}
		return b, nil
	case KindUint32:
		s := v.([]uint32)
		b := make([]byte, 4*len(s))
		for i, x := range s {
			binary.LittleEndian.PutUint32(b[4*i:], x)
		}
		return b, nil
	case KindInt64:
		s := v.([]int64)
		b := make([]byte, 8*len(s))
		for i, x := range s {
			binary.LittleEndian.PutUint64(b[8*i:], uint64(x))
		}
		return b, nil
	case KindUint64:
		s := v.([]uint64)
		b := make([]byte, 8*len(s))
		for i, x := range s {
			binary.LittleEndian.PutUint64(b[8*i:], x)
		}
		return b, nil
	case KindFloat32:
		s := v.([]float32)
		b := make([]byte, 4*len(s))
		for i, x := range s {
			binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
		}
		return b, nil
	case KindFloat64:
		s := v.([]float64)
		b := make([]byte, 8*len(s))
		for i, x := range s {
			binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(x))
		}
		return b, nil
	}
	return nil, errors.Newf(errors.ErrUnsupportedColumnType, "cannot encode %s values", kind)
}

// DecodeValues expands raw little-endian bytes into a typed slice of the
// given kind.
func DecodeValues(kind Kind, b []byte) (interface{}, error) {
	size := kind.Size()
	if size == 0 {
		return nil, errors.Newf(errors.ErrUnsupportedColumnType, "cannot decode %s values", kind)
	}
	if len(b)%size != 0 {
		return nil, errors.Errorf("byte length %d is not a multiple of %s width %d", len(b), kind, size)
	}
	n := len(b) / size
	switch kind {
	case KindInt8:
		s := make([]int8, n)
		for i := range s {
			s[i] = int8(b[i])
		}
		return s, nil
	case KindUint8:
		s := make([]uint8, n)
		copy(s, b)
		return s, nil
	case KindInt16:
		s := make([]int16, n)
		for i := range s {
			s[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
		}
		return s, nil
	case KindUint16:
		s := make([]uint16, n)
		for i := range s {
			s[i] = binary.LittleEndian.Uint16(b[2*i:])
		}
		return s, nil
	case KindInt32:
		s := make([]int32, n)
		for i := range s {
			s[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
		}
		return s, nil
	case KindUint32:
		s := make([]uint32, n)
		for i := range s {
			s[i] = binary.LittleEndian.Uint32(b[4*i:])
		}
		return s, nil
	case KindInt64:
		s := make([]int64, n)
		for i := range s {
			s[i] = int64(binary.LittleEndian.Uint64(b[8*i:]))
		}
		return s, nil
	case KindUint64:
		s := make([]uint64, n)
		for i := range s {
			s[i] = binary.LittleEndian.Uint64(b[8*i:])
		}
		return s, nil
	case KindFloat32:
		s := make([]float32, n)
		for i := range s {
			s[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
		return s, nil
	case KindFloat64:
		s := make([]float64, n)
		for i := range s {
			s[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
		}
		return s, nil
	}
	return nil, errors.Newf(errors.ErrUnsupportedColumnType, "cannot decode %s values", kind)
}

// DecodeUint64s reads an integer dataset of any width into uint64s. Used
// for run_starts, which may be stored at any integer width but always
// address rows.
func DecodeUint64s(kind Kind, b []byte) ([]uint64, error) {
	if !kind.IsInteger() {
		return nil, errors.Newf(errors.ErrNonIntegerRunStarts, "run starts stored as %s, want an integer type", kind)
	}
	v, err := DecodeValues(kind, b)
	if err != nil {
		return nil, err
	}
	switch s := v.(type) {
	case []int8:
		return widen(s), nil
	case []int16:
		return widen(s), nil
	case []int32:
		return widen(s), nil
	case []int64:
		return widen(s), nil
	case []uint8:
		return widen(s), nil
	case []uint16:
		return widen(s), nil
	case []uint32:
		return widen(s), nil
	case []uint64:
		return s, nil
	}
	return nil, errors.Newf(errors.ErrNonIntegerRunStarts, "run starts stored as %s, want an integer type", kind)
}

func widen[T int8 | int16 | int32 | int64 | uint8 | uint16 | uint32](s []T) []uint64 {
	out := make([]uint64, len(s))
	for i, x := range s {
		out[i] = uint64(x)
	}
	return out
}
