// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package hdf5

import (
	"sort"
	"strings"

	"github.com/h5scan/h5scan/errors"
)

// An RSE column appears in a file in one of two layouts: a dedicated group
// whose children include run_starts and values datasets, or a pair of
// sibling datasets named <base>_run_starts / <base>_values next to a
// regular "long" dataset that establishes the logical row count.

const (
	runStartsName   = "run_starts"
	valuesName      = "values"
	runStartsSuffix = "_run_starts"
	valuesSuffix    = "_values"
)

// RSELayout locates the physical datasets backing one RSE column.
type RSELayout struct {
	Name          string // column name
	RunStartsPath string
	ValuesPath    string
}

// TableLayout describes the columns found under one group: dense datasets
// scanned through the chunk cache, and RSE columns decoded from run
// starts. Rows is the logical row count shared by every column, inferred
// from the dense datasets (it is never stored on an RSE column itself).
type TableLayout struct {
	Dir   string
	Rows  uint64
	Dense []*DatasetInfo
	RSE   []RSELayout
}

// DiscoverTable inspects the children of dir and classifies them into
// dense and RSE columns. Soft links among the children are followed. At
// least one dense dataset must exist to establish the row count, and all
// dense datasets must agree on it.
func DiscoverTable(r Reader, dir string) (*TableLayout, error) {
	children, err := r.ListChildren(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}

	layout := &TableLayout{Dir: dir}
	byName := make(map[string]ObjectInfo, len(children))
	for _, c := range children {
		byName[baseName(c.Path)] = c
	}

	claimed := make(map[string]bool)

	// Group-form RSE columns first: a child group holding run_starts and
	// values datasets.
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := byName[name]
		if c.Type != ObjectGroup {
			continue
		}
		sub, err := r.ListChildren(c.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s", c.Path)
		}
		var starts, values string
		for _, s := range sub {
			switch baseName(s.Path) {
			case runStartsName:
				starts = s.Path
			case valuesName:
				values = s.Path
			}
		}
		if starts != "" && values != "" {
			claimed[name] = true
			layout.RSE = append(layout.RSE, RSELayout{
				Name:          name,
				RunStartsPath: starts,
				ValuesPath:    values,
			})
		}
	}

	// Sibling-pair RSE columns: <base>_run_starts next to <base>_values.
	for _, name := range names {
		if !strings.HasSuffix(name, runStartsSuffix) {
			continue
		}
		base := strings.TrimSuffix(name, runStartsSuffix)
		partner := base + valuesSuffix
		p, ok := byName[partner]
		if !ok || byName[name].Type != ObjectDataset || p.Type != ObjectDataset {
			continue
		}
		claimed[name] = true
		claimed[partner] = true
		layout.RSE = append(layout.RSE, RSELayout{
			Name:          base,
			RunStartsPath: byName[name].Path,
			ValuesPath:    p.Path,
		})
	}

	// Everything else that is a dataset is a dense column.
	for _, name := range names {
		c := byName[name]
		if claimed[name] || c.Type != ObjectDataset {
			continue
		}
		info, err := r.Stat(c.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", c.Path)
		}
		layout.Dense = append(layout.Dense, info)
	}

	if len(layout.Dense) == 0 {
		return nil, errors.Errorf("no regular dataset under %s to establish the row count", dir)
	}

	layout.Rows = layout.Dense[0].Rows()
	for _, d := range layout.Dense[1:] {
		if d.Rows() != layout.Rows {
			return nil, errors.Newf(errors.ErrRowCountMismatch,
				"dataset %s has %d rows but %s has %d",
				d.Path, d.Rows(), layout.Dense[0].Path, layout.Rows)
		}
	}
	return layout, nil
}

// Walk visits every object reachable from root in depth-first order,
// following soft links (including links that target groups). Link cycles
// are broken by tracking canonical paths.
func Walk(r Reader, root string, fn func(ObjectInfo) error) error {
	seen := make(map[string]bool)
	return walk(r, root, fn, seen)
}

func walk(r Reader, dir string, fn func(ObjectInfo) error, seen map[string]bool) error {
	canon, err := r.Resolve(dir)
	if err != nil {
		return err
	}
	if seen[canon] {
		return nil
	}
	seen[canon] = true

	children, err := r.ListChildren(dir)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := fn(c); err != nil {
			return err
		}
		if c.Type == ObjectGroup {
			if err := walk(r, c.Path, fn, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
