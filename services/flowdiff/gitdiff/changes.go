// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gitdiff

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// ChangeStatus classifies one changed file.
type ChangeStatus string

const (
	StatusAdded    ChangeStatus = "added"
	StatusModified ChangeStatus = "modified"
	StatusDeleted  ChangeStatus = "deleted"
	StatusRenamed  ChangeStatus = "renamed"
)

// FileChange is one file-level difference between two states. OldPath is
// set only for renames. Additions and Deletions are hunk line counts,
// populated best-effort for modified files.
type FileChange struct {
	Path      string       `json:"path"`
	OldPath   string       `json:"old_path,omitempty"`
	Status    ChangeStatus `json:"status"`
	Additions int          `json:"additions"`
	Deletions int          `json:"deletions"`
}

// ChangedFiles lists the files that differ between two resolved states,
// restricted to extensions the predicate owns. An empty SHA on either side
// means the working tree: that ref argument is omitted so git compares
// against the work tree. Renames are detected (-M) and carry both paths.
func (g *GitClient) ChangedFiles(ctx context.Context, beforeSHA, afterSHA string, owns func(ext string) bool) ([]FileChange, error) {
	args := diffArgs([]string{"diff", "--name-status", "-M"}, beforeSHA, afterSHA)
	out, err := g.run(ctx, diffContextRef(beforeSHA, afterSHA), args...)
	if err != nil {
		return nil, err
	}

	var changes []FileChange
	for _, line := range strings.Split(out, "\n") {
		change, ok := parseNameStatus(line)
		if !ok {
			continue
		}
		if owns != nil && !owns(filepath.Ext(change.Path)) {
			continue
		}
		changes = append(changes, change)
	}

	g.attachHunkStats(ctx, beforeSHA, afterSHA, changes)
	return changes, nil
}

// diffArgs appends the non-empty SHAs to a git diff argument list. An
// empty SHA is the working tree and contributes no ref argument; git then
// diffs the remaining ref against the work tree.
func diffArgs(base []string, beforeSHA, afterSHA string) []string {
	if beforeSHA != "" {
		base = append(base, beforeSHA)
	}
	if afterSHA != "" {
		base = append(base, afterSHA)
	}
	return base
}

// diffContextRef picks the ref reported in errors for a diff invocation.
func diffContextRef(beforeSHA, afterSHA string) string {
	if beforeSHA != "" {
		return beforeSHA
	}
	return afterSHA
}

// parseNameStatus parses one `git diff --name-status` line.
func parseNameStatus(line string) (FileChange, bool) {
	fields := strings.Split(strings.TrimSpace(line), "\t")
	if len(fields) < 2 || fields[0] == "" {
		return FileChange{}, false
	}

	switch fields[0][0] {
	case 'A':
		return FileChange{Path: fields[1], Status: StatusAdded}, true
	case 'M':
		return FileChange{Path: fields[1], Status: StatusModified}, true
	case 'D':
		return FileChange{Path: fields[1], Status: StatusDeleted}, true
	case 'R':
		if len(fields) < 3 {
			return FileChange{}, false
		}
		return FileChange{Path: fields[2], OldPath: fields[1], Status: StatusRenamed}, true
	default:
		// Copy, type-change and unmerged statuses are out of scope.
		return FileChange{}, false
	}
}

// attachHunkStats fills Additions/Deletions on modified and renamed
// entries from a unified diff. Stats are decoration: any failure here is
// logged and the change list stands without counts.
func (g *GitClient) attachHunkStats(ctx context.Context, beforeSHA, afterSHA string, changes []FileChange) {
	if len(changes) == 0 {
		return
	}

	args := diffArgs([]string{"diff", "-U0", "-M"}, beforeSHA, afterSHA)
	out, err := g.run(ctx, diffContextRef(beforeSHA, afterSHA), args...)
	if err != nil {
		slog.Warn("Hunk stat collection failed", slog.String("error", err.Error()))
		return
	}

	fileDiffs, err := diff.ParseMultiFileDiff([]byte(out))
	if err != nil {
		slog.Warn("Unified diff parse failed", slog.String("error", err.Error()))
		return
	}

	stats := make(map[string][2]int, len(fileDiffs))
	for _, fd := range fileDiffs {
		stat := fd.Stat()
		name := strings.TrimPrefix(fd.NewName, "b/")
		stats[name] = [2]int{int(stat.Added + stat.Changed), int(stat.Deleted + stat.Changed)}
	}

	for i := range changes {
		if s, ok := stats[changes[i].Path]; ok {
			changes[i].Additions = s[0]
			changes[i].Deletions = s[1]
		}
	}
}
