// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0

/*
This is the entrypoint for the h5scan binary.
*/
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/h5scan/h5scan/ctl"
)

func main() {
	rootCmd := newRootCommand(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "h5scan",
		Short: "h5scan is a parallel columnar scan engine for HDF5-shaped tables.",
		Long: `h5scan scans table groups whose columns are dense datasets or
run-start encoded pairs, with chunk caching and predicate pushdown.

The subcommands operate on generated in-memory fixtures; they exist to
inspect layouts and to benchmark the scan path.
`,
	}
	rc.AddCommand(newTreeCommand(stdout, stderr))
	rc.AddCommand(newBenchCommand(stdout, stderr))
	rc.SetOutput(stderr)
	return rc
}

func newTreeCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd := ctl.NewTreeCommand(stdout, stderr)
	c := &cobra.Command{
		Use:   "tree",
		Short: "Print the object tree and discovered table layout.",
		RunE: func(cc *cobra.Command, args []string) error {
			return cmd.Run(context.Background())
		},
	}
	flags := c.Flags()
	flags.Uint64Var(&cmd.Rows, "rows", cmd.Rows, "rows in the generated table")
	flags.Uint64Var(&cmd.ChunkRows, "chunk-rows", cmd.ChunkRows, "chunk size of the dense datasets")
	flags.Int64Var(&cmd.Seed, "seed", cmd.Seed, "fixture random seed")
	return c
}

func newBenchCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd := ctl.NewBenchCommand(stdout, stderr)
	c := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark scans over a generated table.",
		RunE: func(cc *cobra.Command, args []string) error {
			cmd.Filtered = cc.Flags().Changed("filter-below")
			return cmd.Run(context.Background())
		},
	}
	flags := c.Flags()
	cmd.Config.DefineFlags(flags)
	flags.Uint64Var(&cmd.Rows, "rows", cmd.Rows, "rows in the generated table")
	flags.Uint64Var(&cmd.ChunkRows, "chunk-rows", cmd.ChunkRows, "chunk size of the dense datasets")
	flags.Int64Var(&cmd.Seed, "seed", cmd.Seed, "fixture random seed")
	flags.Int64Var(&cmd.FilterBelow, "filter-below", 0, "also run a scan keeping only rows with label >= this value")
	return c
}
