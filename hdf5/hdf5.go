// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0

// Package hdf5 defines the boundary between the scan engine and the
// underlying HDF5 file reader. The reader itself (file parsing, chunk
// decompression, B-tree traversal) is an external collaborator; this
// package pins down the narrow contract the engine needs from it: stat a
// dataset, read a chunk, list children, read attributes. It also carries
// the scalar kind enumeration and the chunk-grid geometry helpers shared
// by the engine.
package hdf5

import (
	"context"

	"github.com/cespare/xxhash/v2"
	"github.com/h5scan/h5scan/errors"
)

// Kind identifies the scalar type of a dataset or attribute. It is a
// closed enumeration: the validator and decoder match exhaustively on the
// supported kinds and route everything else to the unsupported bucket.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindString // variable-length string
	KindBytes  // fixed-size byte string

	// Kinds the reader can report but the engine never decodes.
	KindFloat16
	KindEnum
	KindCompound
	KindUnsupported
)

var kindNames = map[Kind]string{
	KindInvalid:     "invalid",
	KindInt8:        "int8",
	KindInt16:       "int16",
	KindInt32:       "int32",
	KindInt64:       "int64",
	KindUint8:       "uint8",
	KindUint16:      "uint16",
	KindUint32:      "uint32",
	KindUint64:      "uint64",
	KindFloat32:     "float32",
	KindFloat64:     "float64",
	KindString:      "string",
	KindBytes:       "bytes",
	KindFloat16:     "float16",
	KindEnum:        "enum",
	KindCompound:    "compound",
	KindUnsupported: "unsupported",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unsupported"
}

// Size returns the width in bytes of one scalar of this kind, or 0 for
// variable-length and unsupported kinds.
func (k Kind) Size() int {
	switch k {
	case KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32:
		return 4
	case KindInt64, KindUint64, KindFloat64:
		return 8
	}
	return 0
}

func (k Kind) IsInteger() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64,
		KindUint8, KindUint16, KindUint32, KindUint64:
		return true
	}
	return false
}

func (k Kind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

func (k Kind) IsNumeric() bool {
	return k.IsInteger() || k.IsFloat()
}

// IsDecodable reports whether the engine can expand values of this kind
// into output vectors.
func (k Kind) IsDecodable() bool {
	return k.IsNumeric() || k == KindString || k == KindBytes
}

// MaxRank bounds dataset dimensionality. Datasets with more dimensions are
// reported as unsupported by the reader.
const MaxRank = 4

// ChunkCoord locates one chunk within a dataset's chunk grid. It is a
// fixed-size tuple so it can serve directly as a map key; dimensions past
// the dataset's rank are zero.
type ChunkCoord [MaxRank]uint64

// DatasetID identifies a dataset object. Hard links to the same object
// share one ID; it is derived from the object's canonical path at creation
// time.
type DatasetID uint64

// HashPath derives a DatasetID from a canonical object path.
func HashPath(path string) DatasetID {
	return DatasetID(xxhash.Sum64String(path))
}

// DatasetInfo describes one dataset as the reader sees it. Shape is
// row-major with the row dimension first; inner dimensions (if any) mean
// each logical row carries a fixed-size sub-array.
type DatasetInfo struct {
	Path       string
	ID         DatasetID
	Kind       Kind
	Shape      []uint64
	ChunkShape []uint64 // nil when the dataset is stored contiguously
	ElemSize   int      // bytes per scalar element; 0 for variable-length
}

func (d *DatasetInfo) Rank() int {
	return len(d.Shape)
}

// Rows returns the dataset's logical row count (extent of the first
// dimension).
func (d *DatasetInfo) Rows() uint64 {
	if len(d.Shape) == 0 {
		return 0
	}
	return d.Shape[0]
}

// RowWidth returns the number of scalar elements per logical row, i.e. the
// product of the inner dimensions. 1 for plain 1-D datasets.
func (d *DatasetInfo) RowWidth() int {
	w := 1
	for _, dim := range d.Shape[1:] {
		w *= int(dim)
	}
	return w
}

// RowBytes returns the byte width of one logical row.
func (d *DatasetInfo) RowBytes() int {
	return d.RowWidth() * d.ElemSize
}

func (d *DatasetInfo) Chunked() bool {
	return len(d.ChunkShape) > 0
}

// EffectiveChunkShape returns the chunk shape used for cache addressing. A
// contiguous dataset is modeled as a single chunk spanning the whole
// dataset so it can reuse the same cache path.
func (d *DatasetInfo) EffectiveChunkShape() []uint64 {
	if d.Chunked() {
		return d.ChunkShape
	}
	return d.Shape
}

// GridDims returns the number of chunks along each dimension.
func (d *DatasetInfo) GridDims() []uint64 {
	cs := d.EffectiveChunkShape()
	grid := make([]uint64, len(d.Shape))
	for i, dim := range d.Shape {
		if cs[i] == 0 {
			grid[i] = 0
			continue
		}
		grid[i] = (dim + cs[i] - 1) / cs[i]
	}
	return grid
}

// ChunkExtent returns the true extent of the chunk at coord. Boundary
// chunks are smaller than the nominal chunk shape when the dataset shape
// is not a multiple of it.
func (d *DatasetInfo) ChunkExtent(coord ChunkCoord) ([]uint64, error) {
	cs := d.EffectiveChunkShape()
	grid := d.GridDims()
	extent := make([]uint64, len(d.Shape))
	for i := range d.Shape {
		if coord[i] >= grid[i] {
			return nil, errors.Errorf("chunk coordinate %v out of range for dataset %s (grid %v)", coord, d.Path, grid)
		}
		start := coord[i] * cs[i]
		end := start + cs[i]
		if end > d.Shape[i] {
			end = d.Shape[i]
		}
		extent[i] = end - start
	}
	return extent, nil
}

// ChunkForRow returns the chunk index along the row dimension that covers
// the given logical row.
func (d *DatasetInfo) ChunkForRow(row uint64) uint64 {
	cs := d.EffectiveChunkShape()
	if len(cs) == 0 || cs[0] == 0 {
		return 0
	}
	return row / cs[0]
}

// ChunkRowSpan returns the logical row range [start, end) covered by the
// chunk with the given row-dimension index.
func (d *DatasetInfo) ChunkRowSpan(idx uint64) (uint64, uint64) {
	cs := d.EffectiveChunkShape()
	start := idx * cs[0]
	end := start + cs[0]
	if end > d.Rows() {
		end = d.Rows()
	}
	return start, end
}

// ObjectType distinguishes the kinds of objects the reader enumerates.
type ObjectType uint8

const (
	ObjectGroup ObjectType = iota
	ObjectDataset
)

func (t ObjectType) String() string {
	if t == ObjectGroup {
		return "group"
	}
	return "dataset"
}

// ObjectInfo describes one child object when walking a file. Path is the
// path by which the object was reached; soft links have already been
// followed, so Type, Kind and Shape describe the link target.
type ObjectInfo struct {
	Path  string
	Type  ObjectType
	Kind  Kind
	Shape []uint64
}

// Reader is the capability the engine requires from the underlying HDF5
// library. Implementations serialize raw file access internally (the
// common case is a single global lock on the library handle); callers may
// invoke any method from multiple goroutines. ReadChunk returns the
// chunk's decoded raw bytes in row-major order, sized by the chunk's true
// extent.
type Reader interface {
	// Stat resolves path (following soft links) and describes the dataset
	// there.
	Stat(path string) (*DatasetInfo, error)

	// Resolve follows links and returns the canonical object path.
	Resolve(path string) (string, error)

	// ReadChunk reads the raw bytes of one chunk. For contiguous datasets
	// the only valid coordinate is the zero tuple.
	ReadChunk(ctx context.Context, ds *DatasetInfo, coord ChunkCoord) ([]byte, error)

	// ReadStrings reads an entire 1-D string dataset. String data is never
	// chunk-cached, so it bypasses the chunk path.
	ReadStrings(ctx context.Context, ds *DatasetInfo) ([]string, error)

	// ListChildren enumerates the objects directly under a group,
	// transparently following soft links (including links that target
	// groups).
	ListChildren(path string) ([]ObjectInfo, error)

	// Attrs returns the attributes on a dataset or group, with unsupported
	// shapes and types classified rather than failing.
	Attrs(path string) ([]Attribute, error)

	// SWMR reports whether the file was opened in single-writer
	// multiple-reader mode. SWMR affects write-time locking in the
	// library, not the decode logic here.
	SWMR() bool

	Close() error
}
