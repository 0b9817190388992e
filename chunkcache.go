// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package h5scan

import (
	"context"
	"fmt"

	"sync"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/singleflight"

	"github.com/h5scan/h5scan/errors"
	"github.com/h5scan/h5scan/hdf5"
	"github.com/h5scan/h5scan/logger"
)

// ChunkKey identifies one cached chunk: which dataset object, and where in
// its chunk grid. Hard-linked paths share a DatasetID, so they share cache
// entries.
type ChunkKey struct {
	Dataset hdf5.DatasetID
	Coord   hdf5.ChunkCoord
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("%x/%d.%d.%d.%d", uint64(k.Dataset), k.Coord[0], k.Coord[1], k.Coord[2], k.Coord[3])
}

// Chunk holds the decoded raw bytes of one chunk, reshaped to its true
// extent (boundary chunks are smaller than the nominal chunk shape).
// Chunks are read-only once loaded and shared by any number of concurrent
// readers; callers return them with Release when done.
type Chunk struct {
	Key    ChunkKey
	Extent []uint64
	Data   []byte

	// Logical row span covered along the first dimension.
	RowStart, RowEnd uint64

	rowBytes int
}

// RowBytes returns the byte width of one logical row within this chunk.
func (ch *Chunk) RowBytes() int { return ch.rowBytes }

// Row returns the raw bytes of the logical row at the given absolute row
// index.
func (ch *Chunk) Row(row uint64) []byte {
	off := int(row-ch.RowStart) * ch.rowBytes
	return ch.Data[off : off+ch.rowBytes]
}

// ChunkCache caches decoded chunks across overlapping scan ranges, bounded
// by a byte budget with least-recently-used eviction. Concurrent first
// requests for one coordinate are coalesced so the underlying read happens
// at most once, and a chunk checked out by an active reader is never
// evicted until released. Steady-state hits take only a short map lookup
// under the cache mutex; raw I/O happens outside it.
type ChunkCache struct {
	mu        sync.Mutex
	budget    int64
	bytes     int64
	entries   map[ChunkKey]*cacheEntry
	recency   *lru.Cache // holds only unpinned entries
	detaching bool       // suppresses the eviction callback during pin detach

	group singleflight.Group

	stats StatsClient
	log   logger.Logger
}

type cacheEntry struct {
	chunk *Chunk
	pins  int
}

// NewChunkCache creates a cache bounded by approximately budget bytes of
// chunk data. Pinned chunks can push the total over budget; it settles
// back as they are released.
func NewChunkCache(budget int64, log logger.Logger, stats StatsClient) *ChunkCache {
	if log == nil {
		log = logger.NopLogger
	}
	if stats == nil {
		stats = NopStatsClient
	}
	c := &ChunkCache{
		budget:  budget,
		entries: make(map[ChunkKey]*cacheEntry),
		recency: lru.New(0),
		stats:   stats,
		log:     log,
	}
	c.recency.OnEvicted = c.onEvicted
	return c
}

// GetOrLoad returns the chunk at coord, reading it through r on a miss.
// The returned chunk is pinned; the caller must Release it. A read error
// is returned to every caller waiting on that coordinate and leaves the
// rest of the cache untouched.
func (c *ChunkCache) GetOrLoad(ctx context.Context, r hdf5.Reader, info *hdf5.DatasetInfo, coord hdf5.ChunkCoord) (*Chunk, error) {
	key := ChunkKey{Dataset: info.ID, Coord: coord}

	for {
		c.mu.Lock()
		if e, ok := c.entries[key]; ok {
			if e.pins == 0 {
				c.detach(key)
			}
			e.pins++
			c.mu.Unlock()
			c.stats.Count("chunk_cache_hits", 1, 1.0)
			return e.chunk, nil
		}
		c.mu.Unlock()

		c.stats.Count("chunk_cache_misses", 1, 1.0)
		_, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
			return nil, c.load(ctx, r, info, key)
		})
		if err != nil {
			return nil, err
		}
		// Loop rather than trusting the flight result: the entry could
		// have been released and evicted between the load and our pin.
	}
}

func (c *ChunkCache) load(ctx context.Context, r hdf5.Reader, info *hdf5.DatasetInfo, key ChunkKey) error {
	extent, err := info.ChunkExtent(key.Coord)
	if err != nil {
		return err
	}
	data, err := r.ReadChunk(ctx, info, key.Coord)
	if err != nil {
		return errors.Wrapf(err, "reading chunk %v of %s", key.Coord, info.Path)
	}

	rowBytes := info.ElemSize
	for _, e := range extent[1:] {
		rowBytes *= int(e)
	}
	rowStart, rowEnd := info.ChunkRowSpan(key.Coord[0])

	ch := &Chunk{
		Key:      key,
		Extent:   extent,
		Data:     data,
		RowStart: rowStart,
		RowEnd:   rowEnd,
		rowBytes: rowBytes,
	}

	c.mu.Lock()
	if _, ok := c.entries[key]; !ok {
		c.entries[key] = &cacheEntry{chunk: ch}
		c.bytes += int64(len(data))
		c.enforceBudget()
	}
	c.mu.Unlock()
	return nil
}

// Release returns a checked-out chunk. Once its last reader releases it,
// the chunk becomes eligible for eviction.
func (c *ChunkCache) Release(ch *Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ch.Key]
	if !ok || e.pins == 0 {
		c.log.Panicf("release of chunk %v which is not checked out", ch.Key)
		return
	}
	e.pins--
	if e.pins == 0 {
		c.recency.Add(ch.Key, e)
		c.enforceBudget()
	}
}

// Bytes returns the bytes currently held, pinned or not.
func (c *ChunkCache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Len returns the number of resident chunks.
func (c *ChunkCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// detach removes a key from the recency list without treating it as an
// eviction; callers must hold mu.
func (c *ChunkCache) detach(key ChunkKey) {
	c.detaching = true
	c.recency.Remove(key)
	c.detaching = false
}

// enforceBudget evicts least-recently-used unpinned chunks until the
// budget holds or nothing evictable remains; callers must hold mu.
func (c *ChunkCache) enforceBudget() {
	for c.bytes > c.budget && c.recency.Len() > 0 {
		c.recency.RemoveOldest()
	}
}

// onEvicted fires from the recency list; ignore the callback when we are
// only detaching a pinned entry.
func (c *ChunkCache) onEvicted(key lru.Key, value interface{}) {
	if c.detaching {
		return
	}
	e := value.(*cacheEntry)
	delete(c.entries, key.(ChunkKey))
	c.bytes -= int64(len(e.chunk.Data))
	c.stats.Count("chunk_cache_evictions", 1, 1.0)
	c.stats.Gauge("chunk_cache_bytes", float64(c.bytes), 1.0)
}
