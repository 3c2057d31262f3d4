// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// skipDirs are path segments never descended into, regardless of gitignore.
var skipDirs = map[string]bool{
	".git":          true,
	"venv":          true,
	".venv":         true,
	"node_modules":  true,
	"__pycache__":   true,
	".pytest_cache": true,
	".mypy_cache":   true,
	"build":         true,
	"dist":          true,
}

// discoverFiles walks projectRoot and returns the slash-relative paths of
// every file owned by a registered analyzer, sorted. Hidden directories and
// the fixed skip set are pruned; a root .gitignore is honored when present;
// include/exclude globs narrow the result further.
func (o *Orchestrator) discoverFiles(projectRoot string) ([]string, error) {
	info, err := os.Stat(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("project root not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", projectRoot)
	}

	var gi *ignore.GitIgnore
	if compiled, err := ignore.CompileIgnoreFile(filepath.Join(projectRoot, ".gitignore")); err == nil {
		gi = compiled
	}

	var paths []string
	err = filepath.WalkDir(projectRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable entries are skipped, not fatal.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path == projectRoot {
				return nil
			}
			if skipDirs[name] || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(projectRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		if !o.matchesGlobs(rel) {
			return nil
		}
		if _, ok := o.registry.ForFile(rel); !ok {
			return nil
		}

		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("file discovery failed: %w", err)
	}

	sort.Strings(paths)
	return paths, nil
}

// matchesGlobs applies the optional include/exclude doublestar patterns.
// Excludes win; an empty include list admits everything.
func (o *Orchestrator) matchesGlobs(rel string) bool {
	for _, pattern := range o.excludeGlobs {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return false
		}
	}
	if len(o.includeGlobs) == 0 {
		return true
	}
	for _, pattern := range o.includeGlobs {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}
