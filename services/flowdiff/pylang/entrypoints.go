// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pylang

import (
	"path"
	"strings"

	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
)

// runnerNames are conventional runner function names that count as entry
// points on exact match.
var runnerNames = map[string]bool{
	"main":       true,
	"run":        true,
	"execute":    true,
	"start":      true,
	"init":       true,
	"initialize": true,
}

// testFixtureNames are unittest fixture methods that count as test-shaped.
var testFixtureNames = map[string]bool{
	"setUp":          true,
	"tearDown":       true,
	"setUpClass":     true,
	"tearDownClass":  true,
	"setUpModule":    true,
	"tearDownModule": true,
}

// cliCallMarkers are raw-call fragments indicating command-line argument
// parsing inside a function body.
var cliCallMarkers = []string{
	"ArgumentParser",
	"parse_args",
	"add_argument",
}

// MarkEntryPoints flags entry-point symbols after resolution.
//
// A symbol is an entry point if it is an HTTP-decorated handler, a
// test-shaped function (test_* name, test-shaped file, or unittest
// fixture), directly invoked inside its module's __main__ guard, using
// command-line argument parsing, or exactly named one of the conventional
// runner names. Private and dunder names are never entry points regardless
// of other signals. Synthetic <script:*> symbols are always entry points;
// they exist only to anchor a tree root.
func (a *Analyzer) MarkEntryPoints(table core.Table) {
	pt, ok := table.(*Table)
	if !ok {
		return
	}
	for _, sym := range pt.Symbols() {
		sym.IsEntryPoint = pt.isEntryPoint(sym)
	}
}

func (t *Table) isEntryPoint(sym *core.Symbol) bool {
	if strings.HasPrefix(sym.Name, "<script:") {
		return true
	}
	if strings.HasPrefix(sym.Name, "_") {
		return false
	}

	if sym.Metadata != nil && sym.Metadata.HTTPRoute != "" {
		return true
	}
	if isTestShaped(sym) {
		return true
	}
	if t.calledInMainGuard(sym) {
		return true
	}
	if usesCLIParsing(sym) || t.CLIUsage[sym.QualifiedName] {
		return true
	}
	return runnerNames[sym.Name]
}

// EntryPointContext exposes the per-symbol signals that feed entry-point
// marking, for collaborators that re-rank candidates.
func (t *Table) EntryPointContext(sym *core.Symbol) (usesCLI, calledInMainGuard bool) {
	return usesCLIParsing(sym) || t.CLIUsage[sym.QualifiedName], t.calledInMainGuard(sym)
}

// isTestShaped reports whether the symbol is a test by name pattern, file
// pattern, or unittest fixture convention.
func isTestShaped(sym *core.Symbol) bool {
	if strings.HasPrefix(sym.Name, "test_") {
		return true
	}
	if testFixtureNames[sym.Name] {
		return true
	}
	base := path.Base(sym.FilePath)
	return strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py")
}

// calledInMainGuard reports whether the symbol is directly invoked inside
// its own module's __main__ guard, by bare name or dotted suffix.
func (t *Table) calledInMainGuard(sym *core.Symbol) bool {
	guard := t.MainGuardCalls[moduleName(sym.FilePath)]
	if len(guard) == 0 {
		return false
	}
	if guard[sym.Name] {
		return true
	}
	for callee := range guard {
		if strings.HasSuffix(callee, "."+sym.Name) {
			return true
		}
	}
	return false
}

// usesCLIParsing detects argparse-style calls and click/typer decorators.
func usesCLIParsing(sym *core.Symbol) bool {
	for _, raw := range sym.RawCalls {
		for _, marker := range cliCallMarkers {
			if strings.Contains(raw, marker) {
				return true
			}
		}
		if strings.HasPrefix(raw, "click.") || strings.HasPrefix(raw, "typer.") {
			return true
		}
	}
	if sym.Metadata == nil {
		return false
	}
	for _, dec := range sym.Metadata.Decorators {
		if strings.HasPrefix(dec, "click.") || strings.HasPrefix(dec, "typer.") {
			return true
		}
	}
	return false
}
