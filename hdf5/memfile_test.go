// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package hdf5

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadChunk2D(t *testing.T) {
	f := NewMemFile()
	// 4x6 matrix, 2x3 chunks.
	data := make([]int16, 24)
	for i := range data {
		data[i] = int16(i)
	}
	require.NoError(t, f.AddDataset("/m", KindInt16, []uint64{4, 6}, []uint64{2, 3}, data))
	info, err := f.Stat("/m")
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 2}, info.GridDims())

	// Chunk (1,1) covers rows 2..3, cols 3..5.
	raw, err := f.ReadChunk(context.Background(), info, ChunkCoord{1, 1})
	require.NoError(t, err)
	vals, err := DecodeValues(KindInt16, raw)
	require.NoError(t, err)
	require.Equal(t, []int16{15, 16, 17, 21, 22, 23}, vals.([]int16))
}

func TestReadChunkRaggedExtent(t *testing.T) {
	f := NewMemFile()
	// 5x5 matrix, 3x3 chunks: boundary chunks are ragged.
	data := make([]uint8, 25)
	for i := range data {
		data[i] = uint8(i)
	}
	require.NoError(t, f.AddDataset("/m", KindUint8, []uint64{5, 5}, []uint64{3, 3}, data))
	info, err := f.Stat("/m")
	require.NoError(t, err)

	ext, err := info.ChunkExtent(ChunkCoord{1, 1})
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 2}, ext)

	raw, err := f.ReadChunk(context.Background(), info, ChunkCoord{1, 1})
	require.NoError(t, err)
	require.Equal(t, []byte{18, 19, 23, 24}, raw)

	// Out-of-grid coordinates are rejected.
	_, err = f.ReadChunk(context.Background(), info, ChunkCoord{2, 0})
	require.Error(t, err)
}

func TestReadChunkContiguous(t *testing.T) {
	f := NewMemFile()
	require.NoError(t, f.AddDataset("/c", KindInt32, []uint64{8}, nil, []int32{0, 1, 2, 3, 4, 5, 6, 7}))
	info, err := f.Stat("/c")
	require.NoError(t, err)
	require.False(t, info.Chunked())

	raw, err := f.ReadChunk(context.Background(), info, ChunkCoord{})
	require.NoError(t, err)
	vals, err := DecodeValues(KindInt32, raw)
	require.NoError(t, err)
	require.Len(t, vals.([]int32), 8)
}

// Hard links share the dataset object; soft links resolve by path. Both
// must report the same DatasetID as the target, which is what makes the
// chunk cache share entries across them.
func TestLinkIdentity(t *testing.T) {
	f := NewMemFile()
	require.NoError(t, f.AddDataset("/orig", KindInt64, []uint64{4}, nil, []int64{1, 2, 3, 4}))
	require.NoError(t, f.AddHardLink("/hard", "/orig"))
	f.AddSoftLink("/soft", "/orig")

	orig, err := f.Stat("/orig")
	require.NoError(t, err)
	hard, err := f.Stat("/hard")
	require.NoError(t, err)
	soft, err := f.Stat("/soft")
	require.NoError(t, err)

	require.Equal(t, orig.ID, hard.ID)
	require.Equal(t, orig.ID, soft.ID)

	canon, err := f.Resolve("/soft")
	require.NoError(t, err)
	require.Equal(t, "/orig", canon)
}

func TestAttrClassification(t *testing.T) {
	f := NewMemFile()
	f.AddGroup("/g")
	require.NoError(t, f.AddAttr("/g", Attribute{Name: "scale", Kind: KindFloat64, Value: 2.5}))
	require.NoError(t, f.AddAttr("/g", Attribute{Name: "offsets", Kind: KindInt32, Dims: []uint64{3}, Value: []int32{1, 2, 3}}))
	require.NoError(t, f.AddAttr("/g", Attribute{Name: "matrix", Kind: KindFloat64, Dims: []uint64{2, 2}, Value: []float64{1, 2, 3, 4}}))
	require.NoError(t, f.AddAttr("/g", Attribute{Name: "half", Kind: KindFloat16, Value: nil}))
	require.NoError(t, f.AddAttr("/g", Attribute{Name: "state", Kind: KindEnum, Value: nil}))

	attrs, err := f.Attrs("/g")
	require.NoError(t, err)
	byName := map[string]Attribute{}
	for _, a := range attrs {
		byName[a.Name] = a
	}

	require.True(t, byName["scale"].Supported())
	require.True(t, byName["scale"].Scalar)
	require.Equal(t, 2.5, byName["scale"].Value)

	require.True(t, byName["offsets"].Supported())
	require.False(t, byName["offsets"].Scalar)
	require.Equal(t, []int32{1, 2, 3}, byName["offsets"].Value)

	// Two or more dimensions: classified unsupported, value dropped,
	// dims preserved for reporting.
	require.False(t, byName["matrix"].Supported())
	require.Nil(t, byName["matrix"].Value)
	require.Equal(t, []uint64{2, 2}, byName["matrix"].Dims)

	require.False(t, byName["half"].Supported())
	require.False(t, byName["state"].Supported())
}

func TestReadStrings(t *testing.T) {
	f := NewMemFile()
	f.AddStringDataset("/s", KindString, []string{"x", "y", "z"})
	info, err := f.Stat("/s")
	require.NoError(t, err)
	require.Equal(t, KindString, info.Kind)

	got, err := f.ReadStrings(context.Background(), info)
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y", "z"}, got)
}

func TestSWMRFlag(t *testing.T) {
	f := NewMemFile()
	require.False(t, f.SWMR())
	f.SetSWMR(true)
	require.True(t, f.SWMR())
}
