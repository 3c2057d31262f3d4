// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command flowdiff builds cross-language call graphs over a project and
// diffs the symbol structure between two git references.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var logLevel string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:     "flowdiff",
		Short:   "Cross-language call-graph analysis and structural diffing",
		Version: version,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogging(logLevel)
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn",
		"log level (debug, info, warn, error)")

	rootCmd.AddCommand(newAnalyzeCommand())
	rootCmd.AddCommand(newDiffCommand())
	rootCmd.AddCommand(newSnapshotsCommand())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging installs a text slog handler on stderr so stdout stays
// clean for command output.
func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

// projectPath resolves the optional positional path argument to an
// absolute path, defaulting to the current directory.
func projectPath(args []string) (string, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path %s: %w", path, err)
	}
	return abs, nil
}

// defaultSnapshotDir returns the snapshot database location when the flag
// is not given.
func defaultSnapshotDir() string {
	if cache, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cache, "flowdiff", "snapshots")
	}
	return filepath.Join(os.TempDir(), "flowdiff-snapshots")
}
