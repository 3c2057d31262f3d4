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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/flowdiff/services/flowdiff/snapshot"
)

func newSnapshotsCommand() *cobra.Command {
	var snapshotDir string

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Manage saved analysis snapshots",
	}
	cmd.PersistentFlags().StringVar(&snapshotDir, "snapshot-dir", "", "snapshot database directory")

	openStore := func() (*snapshot.Store, error) {
		dir := snapshotDir
		if dir == "" {
			dir = defaultSnapshotDir()
		}
		return snapshot.Open(dir)
	}

	var listProject string
	var listLimit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved snapshots, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			metas, err := store.List(cmd.Context(), listProject, listLimit)
			if err != nil {
				return err
			}
			if len(metas) == 0 {
				fmt.Println("No snapshots.")
				return nil
			}
			for _, meta := range metas {
				created := time.UnixMilli(meta.CreatedAtMilli).Format(time.RFC3339)
				label := meta.Label
				if label == "" {
					label = "-"
				}
				fmt.Printf("%s  %s  %6d symbols  %-12s  %s\n",
					meta.SnapshotID, created, meta.SymbolCount, label, meta.ProjectRoot)
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&listProject, "project", "", "only snapshots of this project root")
	listCmd.Flags().IntVar(&listLimit, "limit", 100, "maximum entries")

	var pruneProject string
	var pruneKeep int
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest snapshots of a project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pruneProject == "" {
				return fmt.Errorf("--project is required")
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			pruned, err := store.Prune(cmd.Context(), pruneProject, pruneKeep)
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d snapshots.\n", pruned)
			return nil
		},
	}
	pruneCmd.Flags().StringVar(&pruneProject, "project", "", "project root whose snapshots to prune")
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 3, "snapshots to keep")

	var deleteID string
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete one snapshot by ID",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if deleteID == "" {
				return fmt.Errorf("--id is required")
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Delete(cmd.Context(), deleteID)
		},
	}
	deleteCmd.Flags().StringVar(&deleteID, "id", "", "snapshot ID")

	cmd.AddCommand(listCmd, pruneCmd, deleteCmd)
	return cmd
}
