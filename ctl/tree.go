// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0

// Package ctl implements the subcommands of the h5scan binary.
package ctl

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"

	"github.com/h5scan/h5scan/hdf5"
)

// TreeCommand prints the object tree of a generated file, the table
// layout discovered under its root group, and how each attribute was
// classified.
type TreeCommand struct {
	// Fixture parameters.
	Rows      uint64
	ChunkRows uint64
	Seed      int64

	Stdout io.Writer
	Stderr io.Writer
}

// NewTreeCommand returns a new instance of TreeCommand.
func NewTreeCommand(stdout, stderr io.Writer) *TreeCommand {
	return &TreeCommand{
		Rows:      1 << 20,
		ChunkRows: 1 << 14,
		Seed:      1,
		Stdout:    stdout,
		Stderr:    stderr,
	}
}

// Run builds the fixture and walks it.
func (cmd *TreeCommand) Run(ctx context.Context) error {
	f, err := buildFixture(cmd.Rows, cmd.ChunkRows, rand.New(rand.NewSource(cmd.Seed)))
	if err != nil {
		return err
	}
	defer f.Close()

	err = hdf5.Walk(f, "/", func(obj hdf5.ObjectInfo) error {
		depth := strings.Count(strings.TrimRight(obj.Path, "/"), "/")
		indent := strings.Repeat("  ", depth)
		switch obj.Type {
		case hdf5.ObjectGroup:
			fmt.Fprintf(cmd.Stdout, "%s%s/\n", indent, obj.Path)
		default:
			fmt.Fprintf(cmd.Stdout, "%s%s %v\n", indent, obj.Path, obj.Shape)
		}

		attrs, err := f.Attrs(obj.Path)
		if err != nil {
			return err
		}
		for _, a := range attrs {
			if !a.Supported() {
				fmt.Fprintf(cmd.Stdout, "%s  @%s (unsupported, dims %v)\n", indent, a.Name, a.Dims)
				continue
			}
			fmt.Fprintf(cmd.Stdout, "%s  @%s = %v\n", indent, a.Name, a.Value)
		}
		return nil
	})
	if err != nil {
		return err
	}

	layout, err := hdf5.DiscoverTable(f, "/data")
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Stdout, "\ntable /data: %d rows\n", layout.Rows)
	for _, d := range layout.Dense {
		fmt.Fprintf(cmd.Stdout, "  dense %s %s %v\n", d.Path, d.Kind, d.Shape)
	}
	for _, r := range layout.RSE {
		fmt.Fprintf(cmd.Stdout, "  rse   %s (starts=%s values=%s)\n", r.Name, r.RunStartsPath, r.ValuesPath)
	}
	return nil
}
