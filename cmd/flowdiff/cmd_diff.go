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

	"github.com/AleutianAI/flowdiff/services/flowdiff/gitdiff"
	"github.com/AleutianAI/flowdiff/services/flowdiff/pipeline"
)

func newDiffCommand() *cobra.Command {
	var (
		beforeRef  string
		afterRef   string
		jsonOutput bool
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "diff [path]",
		Short: "Diff the symbol structure between two git references",
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
			d := gitdiff.NewDiffAnalyzer(root,
				gitdiff.WithOrchestrator(pipeline.Default(opts...)),
			)
			result, err := d.AnalyzeDiff(cmd.Context(), beforeRef, afterRef)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printDiffResult(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&beforeRef, "before", "HEAD", "before reference")
	cmd.Flags().StringVar(&afterRef, "after", gitdiff.WorkingTree, "after reference")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit JSON instead of text")
	cmd.Flags().IntVar(&workers, "workers", 0, "per-file analysis workers")
	return cmd
}

func printDiffResult(result *gitdiff.DiffResult) {
	fmt.Printf("Before: %s\n", result.BeforeDescription)
	fmt.Printf("After:  %s\n\n", result.AfterDescription)

	if len(result.FileChanges) > 0 {
		fmt.Println("Changed files:")
		for _, change := range result.FileChanges {
			switch change.Status {
			case gitdiff.StatusRenamed:
				fmt.Printf("  %-8s %s -> %s\n", change.Status, change.OldPath, change.Path)
			case gitdiff.StatusModified:
				fmt.Printf("  %-8s %s (+%d/-%d)\n", change.Status, change.Path, change.Additions, change.Deletions)
			default:
				fmt.Printf("  %-8s %s\n", change.Status, change.Path)
			}
		}
		fmt.Println()
	}

	names := make([]string, 0, len(result.SymbolChanges))
	for name := range result.SymbolChanges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-8s %s\n", result.SymbolChanges[name].Type, name)
	}

	fmt.Printf("\n%d added, %d modified, %d deleted\n",
		result.Added, result.Modified, result.Deleted)
}
