// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package h5scan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/h5scan/h5scan/errors"
	"github.com/h5scan/h5scan/hdf5"
)

func chunkedFixture(t *testing.T) (*hdf5.MemFile, *hdf5.DatasetInfo) {
	t.Helper()
	f := hdf5.NewMemFile()
	data := make([]int32, 1000)
	for i := range data {
		data[i] = int32(i)
	}
	err := f.AddDataset("/d", hdf5.KindInt32, []uint64{1000}, []uint64{100}, data)
	require.NoError(t, err)
	info, err := f.Stat("/d")
	require.NoError(t, err)
	return f, info
}

func TestChunkCacheReadsBytes(t *testing.T) {
	f, info := chunkedFixture(t)
	c := NewChunkCache(1<<20, nil, nil)
	ctx := context.Background()

	ch, err := c.GetOrLoad(ctx, f, info, hdf5.ChunkCoord{3})
	require.NoError(t, err)
	defer c.Release(ch)

	require.Equal(t, uint64(300), ch.RowStart)
	require.Equal(t, uint64(400), ch.RowEnd)
	require.Equal(t, []uint64{100}, ch.Extent)
	require.Equal(t, 4, ch.RowBytes())

	vals, err := hdf5.DecodeValues(hdf5.KindInt32, ch.Data)
	require.NoError(t, err)
	got := vals.([]int32)
	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, int32(300+i), v)
	}
	require.Equal(t, []byte{0x2c, 0x01, 0x00, 0x00}, ch.Row(300))
}

// A cache hit must not touch the reader again, and the bytes must be
// identical to an uncached read.
func TestChunkCacheHit(t *testing.T) {
	f, info := chunkedFixture(t)
	c := NewChunkCache(1<<20, nil, nil)
	ctx := context.Background()

	ch1, err := c.GetOrLoad(ctx, f, info, hdf5.ChunkCoord{0})
	require.NoError(t, err)
	first := append([]byte(nil), ch1.Data...)
	c.Release(ch1)
	require.Equal(t, 1, f.ReadCount("/d"))

	ch2, err := c.GetOrLoad(ctx, f, info, hdf5.ChunkCoord{0})
	require.NoError(t, err)
	require.Equal(t, first, ch2.Data)
	c.Release(ch2)
	require.Equal(t, 1, f.ReadCount("/d"))
}

// Concurrent first requests for one coordinate coalesce into a single
// underlying read.
func TestChunkCacheSingleFlight(t *testing.T) {
	f, info := chunkedFixture(t)
	c := NewChunkCache(1<<20, nil, nil)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			ch, err := c.GetOrLoad(ctx, f, info, hdf5.ChunkCoord{7})
			if err != nil {
				return err
			}
			defer c.Release(ch)
			if ch.RowStart != 700 {
				return errors.Errorf("bad row start %d", ch.RowStart)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 1, f.ReadCount("/d"))
	require.Equal(t, 1, c.Len())
}

func TestChunkCacheEviction(t *testing.T) {
	f, info := chunkedFixture(t)
	// Budget for two 400-byte chunks.
	c := NewChunkCache(800, nil, nil)
	ctx := context.Background()

	for i := uint64(0); i < 5; i++ {
		ch, err := c.GetOrLoad(ctx, f, info, hdf5.ChunkCoord{i})
		require.NoError(t, err)
		c.Release(ch)
	}
	require.LessOrEqual(t, c.Bytes(), int64(800))
	require.Equal(t, 2, c.Len())

	// Oldest chunks were evicted; re-reading chunk 0 hits the reader.
	reads := f.ReadCount("/d")
	ch, err := c.GetOrLoad(ctx, f, info, hdf5.ChunkCoord{0})
	require.NoError(t, err)
	c.Release(ch)
	require.Equal(t, reads+1, f.ReadCount("/d"))

	// Chunk 4 is still the most recent resident; no new read.
	reads = f.ReadCount("/d")
	ch, err = c.GetOrLoad(ctx, f, info, hdf5.ChunkCoord{4})
	require.NoError(t, err)
	c.Release(ch)
	require.Equal(t, reads, f.ReadCount("/d"))
}

// A chunk checked out by a reader survives any amount of cache pressure.
func TestChunkCachePinnedNotEvicted(t *testing.T) {
	f, info := chunkedFixture(t)
	c := NewChunkCache(400, nil, nil)
	ctx := context.Background()

	pinned, err := c.GetOrLoad(ctx, f, info, hdf5.ChunkCoord{0})
	require.NoError(t, err)

	for i := uint64(1); i < 6; i++ {
		ch, err := c.GetOrLoad(ctx, f, info, hdf5.ChunkCoord{i})
		require.NoError(t, err)
		c.Release(ch)
	}

	// Still resident without a new read.
	reads := f.ReadCount("/d")
	again, err := c.GetOrLoad(ctx, f, info, hdf5.ChunkCoord{0})
	require.NoError(t, err)
	require.Equal(t, reads, f.ReadCount("/d"))

	c.Release(again)
	c.Release(pinned)
}

// A failed read surfaces to every waiter and caches nothing; other
// coordinates are unaffected.
func TestChunkCacheReadError(t *testing.T) {
	f, info := chunkedFixture(t)
	c := NewChunkCache(1<<20, nil, nil)
	ctx := context.Background()

	boom := errors.Errorf("disk gone")
	f.FailReads("/d", boom)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := c.GetOrLoad(ctx, f, info, hdf5.ChunkCoord{1})
			if err == nil {
				return errors.Errorf("expected error")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 0, c.Len())

	f.FailReads("/d", nil)
	ch, err := c.GetOrLoad(ctx, f, info, hdf5.ChunkCoord{1})
	require.NoError(t, err)
	c.Release(ch)
}

// Boundary chunks are keyed and sized by their true extent.
func TestChunkCacheRaggedBoundary(t *testing.T) {
	f := hdf5.NewMemFile()
	data := make([]int64, 250)
	for i := range data {
		data[i] = int64(i)
	}
	require.NoError(t, f.AddDataset("/r", hdf5.KindInt64, []uint64{250}, []uint64{100}, data))
	info, err := f.Stat("/r")
	require.NoError(t, err)

	c := NewChunkCache(1<<20, nil, nil)
	ch, err := c.GetOrLoad(context.Background(), f, info, hdf5.ChunkCoord{2})
	require.NoError(t, err)
	defer c.Release(ch)

	require.Equal(t, []uint64{50}, ch.Extent)
	require.Equal(t, uint64(200), ch.RowStart)
	require.Equal(t, uint64(250), ch.RowEnd)
	require.Len(t, ch.Data, 50*8)
}

// A contiguous dataset is cached as a single whole-dataset chunk at the
// zero coordinate.
func TestChunkCacheContiguous(t *testing.T) {
	f := hdf5.NewMemFile()
	require.NoError(t, f.AddDataset("/c", hdf5.KindFloat64, []uint64{64}, nil, make([]float64, 64)))
	info, err := f.Stat("/c")
	require.NoError(t, err)
	require.False(t, info.Chunked())

	c := NewChunkCache(1<<20, nil, nil)
	ch, err := c.GetOrLoad(context.Background(), f, info, hdf5.ChunkCoord{})
	require.NoError(t, err)
	defer c.Release(ch)

	require.Equal(t, uint64(0), ch.RowStart)
	require.Equal(t, uint64(64), ch.RowEnd)
	require.Len(t, ch.Data, 64*8)
}
