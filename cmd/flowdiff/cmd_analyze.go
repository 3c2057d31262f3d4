// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
	"github.com/AleutianAI/flowdiff/services/flowdiff/pipeline"
	"github.com/AleutianAI/flowdiff/services/flowdiff/snapshot"
)

func newAnalyzeCommand() *cobra.Command {
	var (
		jsonOutput      bool
		entryPointsOnly bool
		workers         int
		snapshotDir     string
		saveSnapshot    bool
		snapshotLabel   string
	)

	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Analyze a project and print its symbol universe",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectPath(args)
			if err != nil {
				return err
			}

			var opts []pipeline.Option
			if workers > 0 {
				opts = append(opts, pipeline.WithWorkers(workers))
			}
			tables, err := pipeline.Default(opts...).Analyze(cmd.Context(), root)
			if err != nil {
				return err
			}

			if saveSnapshot {
				if snapshotDir == "" {
					snapshotDir = defaultSnapshotDir()
				}
				store, err := snapshot.Open(snapshotDir)
				if err != nil {
					return err
				}
				defer store.Close()
				meta, err := store.Save(cmd.Context(), root, tables, snapshotLabel)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Snapshot saved: %s\n", meta.SnapshotID)
			}

			if entryPointsOnly {
				return printEntryPoints(tables, jsonOutput)
			}
			return printUniverse(tables, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit JSON instead of text")
	cmd.Flags().BoolVar(&entryPointsOnly, "entry-points-only", false, "print only entry-point symbols")
	cmd.Flags().IntVar(&workers, "workers", 0, "per-file analysis workers (default: CPU count, capped at 8)")
	cmd.Flags().StringVar(&snapshotDir, "snapshot-dir", "", "snapshot database directory")
	cmd.Flags().BoolVar(&saveSnapshot, "save-snapshot", false, "save the analysis as a snapshot")
	cmd.Flags().StringVar(&snapshotLabel, "label", "", "label for the saved snapshot")
	return cmd
}

func printEntryPoints(tables map[string]core.Table, jsonOutput bool) error {
	entries := pipeline.EntryPoints(tables)
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	for _, sym := range entries {
		fmt.Printf("%s  (%s, %s:%d)\n", sym.QualifiedName, sym.Language, sym.FilePath, sym.LineNumber)
	}
	return nil
}

func printUniverse(tables map[string]core.Table, jsonOutput bool) error {
	universe := core.FlattenTables(tables)
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(universe)
	}

	names := make([]string, 0, len(universe))
	for name := range universe {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sym := universe[name]
		marker := " "
		if sym.IsEntryPoint {
			marker = "*"
		}
		fmt.Printf("%s %s  (%s, %s:%d)\n", marker, name, sym.Language, sym.FilePath, sym.LineNumber)
		for _, call := range sym.ResolvedCalls {
			fmt.Printf("    -> %s\n", call)
		}
	}
	fmt.Printf("\n%d symbols across %d languages\n", len(universe), len(tables))
	return nil
}
