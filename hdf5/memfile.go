// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package hdf5

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/h5scan/h5scan/errors"
)

// MemFile is an in-memory Reader implementation. Tests and the bench
// command use it in place of a real HDF5 library binding; it reproduces
// the contract the engine depends on, including the single global lock on
// raw reads, link resolution, and SWMR marking. Read counting and fault
// injection hooks exist so cache coalescing can be verified.
type MemFile struct {
	mu      sync.Mutex // emulates the library handle's single-access lock
	objects map[string]*memObject
	swmr    bool
	reads   map[string]int
	fail    map[string]error
}

type memObjectType uint8

const (
	memGroup memObjectType = iota
	memDataset
	memSoftLink
)

type memObject struct {
	typ    memObjectType
	target string // soft link target path
	ds     *memDatasetData
	attrs  []Attribute
}

// memDatasetData is shared between hard-linked paths; identity of the
// pointer is identity of the dataset object.
type memDatasetData struct {
	info DatasetInfo
	raw  []byte   // numeric datasets, row-major little-endian
	strs []string // string datasets
}

func NewMemFile() *MemFile {
	f := &MemFile{
		objects: make(map[string]*memObject),
		reads:   make(map[string]int),
		fail:    make(map[string]error),
	}
	f.objects["/"] = &memObject{typ: memGroup}
	return f
}

func (f *MemFile) SetSWMR(on bool) { f.swmr = on }

func (f *MemFile) SWMR() bool { return f.swmr }

func (f *MemFile) Close() error { return nil }

func (f *MemFile) AddGroup(path string) {
	f.objects[clean(path)] = &memObject{typ: memGroup}
}

// AddDataset stores a numeric dataset. data must be a typed slice matching
// kind, flattened row-major over shape. chunk may be nil for a contiguous
// layout.
func (f *MemFile) AddDataset(path string, kind Kind, shape, chunk []uint64, data interface{}) error {
	path = clean(path)
	raw, err := EncodeValues(kind, data)
	if err != nil {
		return err
	}
	f.objects[path] = &memObject{
		typ: memDataset,
		ds: &memDatasetData{
			info: DatasetInfo{
				Path:       path,
				ID:         HashPath(path),
				Kind:       kind,
				Shape:      shape,
				ChunkShape: chunk,
				ElemSize:   kind.Size(),
			},
			raw: raw,
		},
	}
	return nil
}

// AddStringDataset stores a 1-D string dataset. kind is KindString for
// variable-length strings or KindBytes for the fixed-size byte-string
// variant.
func (f *MemFile) AddStringDataset(path string, kind Kind, values []string) {
	path = clean(path)
	f.objects[path] = &memObject{
		typ: memDataset,
		ds: &memDatasetData{
			info: DatasetInfo{
				Path:  path,
				ID:    HashPath(path),
				Kind:  kind,
				Shape: []uint64{uint64(len(values))},
			},
			strs: values,
		},
	}
}

// AddUntypedDataset registers a dataset of a kind the engine cannot
// decode, such as enum or compound. Stat succeeds; reads fail.
func (f *MemFile) AddUntypedDataset(path string, kind Kind, shape []uint64) {
	path = clean(path)
	f.objects[path] = &memObject{
		typ: memDataset,
		ds: &memDatasetData{
			info: DatasetInfo{
				Path:  path,
				ID:    HashPath(path),
				Kind:  kind,
				Shape: shape,
			},
		},
	}
}

// AddSoftLink creates a link resolved by path lookup at access time.
func (f *MemFile) AddSoftLink(path, target string) {
	f.objects[clean(path)] = &memObject{typ: memSoftLink, target: clean(target)}
}

// AddHardLink creates a second path to the same underlying dataset object.
func (f *MemFile) AddHardLink(path, target string) error {
	obj, err := f.resolve(target)
	if err != nil {
		return err
	}
	if obj.typ != memDataset {
		return errors.Errorf("hard link target %s is not a dataset", target)
	}
	// Same *memDatasetData, so Stat reports the same DatasetID.
	f.objects[clean(path)] = &memObject{typ: memDataset, ds: obj.ds, attrs: obj.attrs}
	return nil
}

// AddAttr attaches a raw attribute to an object; classification happens on
// read.
func (f *MemFile) AddAttr(path string, a Attribute) error {
	obj, ok := f.objects[clean(path)]
	if !ok {
		return errors.Errorf("no object at %s", path)
	}
	obj.attrs = append(obj.attrs, a)
	return nil
}

// FailReads makes every subsequent chunk read of path return err.
func (f *MemFile) FailReads(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[clean(path)] = err
}

// ReadCount reports how many chunk reads have hit the dataset at path.
func (f *MemFile) ReadCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[clean(path)]
}

func (f *MemFile) resolve(path string) (*memObject, error) {
	path = clean(path)
	for i := 0; i < 40; i++ {
		obj, ok := f.objects[path]
		if !ok {
			return nil, errors.Errorf("no object at %s", path)
		}
		if obj.typ != memSoftLink {
			return obj, nil
		}
		path = obj.target
	}
	return nil, errors.Errorf("link loop at %s", path)
}

func (f *MemFile) Resolve(path string) (string, error) {
	path = clean(path)
	for i := 0; i < 40; i++ {
		obj, ok := f.objects[path]
		if !ok {
			return "", errors.Errorf("no object at %s", path)
		}
		if obj.typ != memSoftLink {
			return path, nil
		}
		path = obj.target
	}
	return "", errors.Errorf("link loop at %s", path)
}

func (f *MemFile) Stat(path string) (*DatasetInfo, error) {
	obj, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	if obj.typ != memDataset {
		return nil, errors.Errorf("%s is not a dataset", path)
	}
	info := obj.ds.info
	return &info, nil
}

func (f *MemFile) ListChildren(path string) ([]ObjectInfo, error) {
	dir := clean(path)
	if _, err := f.resolve(dir); err != nil {
		return nil, err
	}
	canon, err := f.Resolve(dir)
	if err != nil {
		return nil, err
	}
	prefix := canon
	if prefix != "/" {
		prefix += "/"
	}

	var out []ObjectInfo
	for p := range f.objects {
		if !strings.HasPrefix(p, prefix) || p == canon {
			continue
		}
		rest := p[len(prefix):]
		if rest == "" || strings.ContainsRune(rest, '/') {
			continue
		}
		obj, err := f.resolve(p)
		if err != nil {
			return nil, errors.Wrapf(err, "following link %s", p)
		}
		// Report the child under the path it was reached by, describing
		// the link target.
		childPath := dir
		if childPath != "/" {
			childPath += "/"
		}
		childPath += rest
		info := ObjectInfo{Path: childPath, Type: ObjectGroup}
		if obj.typ == memDataset {
			info.Type = ObjectDataset
			info.Kind = obj.ds.info.Kind
			info.Shape = obj.ds.info.Shape
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *MemFile) Attrs(path string) ([]Attribute, error) {
	obj, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	out := make([]Attribute, 0, len(obj.attrs))
	for _, a := range obj.attrs {
		out = append(out, ClassifyAttr(a))
	}
	return out, nil
}

func (f *MemFile) ReadChunk(ctx context.Context, ds *DatasetInfo, coord ChunkCoord) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	extent, err := ds.ChunkExtent(coord)
	if err != nil {
		return nil, err
	}

	// The raw read holds the global handle lock, as a real binding would.
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads[ds.Path]++
	if ferr := f.fail[ds.Path]; ferr != nil {
		return nil, ferr
	}

	obj, rerr := f.resolve(ds.Path)
	if rerr != nil {
		return nil, rerr
	}
	if obj.ds == nil || obj.ds.raw == nil {
		return nil, errors.Newf(errors.ErrUnsupportedColumnType, "dataset %s holds no raw data", ds.Path)
	}

	cs := ds.EffectiveChunkShape()
	start := make([]uint64, ds.Rank())
	for i := range start {
		start[i] = coord[i] * cs[i]
	}
	return copySlab(obj.ds.raw, ds.ElemSize, ds.Shape, start, extent), nil
}

func (f *MemFile) ReadStrings(ctx context.Context, ds *DatasetInfo) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads[ds.Path]++
	if ferr := f.fail[ds.Path]; ferr != nil {
		return nil, ferr
	}
	obj, err := f.resolve(ds.Path)
	if err != nil {
		return nil, err
	}
	if obj.ds == nil || obj.ds.strs == nil {
		return nil, errors.Errorf("dataset %s is not a string dataset", ds.Path)
	}
	out := make([]string, len(obj.ds.strs))
	copy(out, obj.ds.strs)
	return out, nil
}

// copySlab extracts the row-major hyperslab [start, start+extent) from a
// flat row-major buffer of the given shape. The innermost dimension is
// copied run by run; outer dimensions advance odometer-style.
func copySlab(src []byte, elem int, shape, start, extent []uint64) []byte {
	rank := len(shape)
	if rank == 0 {
		return nil
	}

	// Element strides of the full dataset per dimension.
	strides := make([]uint64, rank)
	strides[rank-1] = 1
	for i := rank - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * shape[i+1]
	}

	total := uint64(1)
	for _, e := range extent {
		total *= e
	}
	dst := make([]byte, int(total)*elem)

	runLen := int(extent[rank-1]) * elem
	idx := make([]uint64, rank-1) // odometer over the outer dims
	dstOff := 0
	for {
		srcElem := start[rank-1]
		for i := 0; i < rank-1; i++ {
			srcElem += (start[i] + idx[i]) * strides[i]
		}
		copy(dst[dstOff:dstOff+runLen], src[int(srcElem)*elem:])
		dstOff += runLen

		// Advance the odometer; done when it wraps.
		i := rank - 2
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < extent[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			break
		}
	}
	return dst
}

func clean(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
