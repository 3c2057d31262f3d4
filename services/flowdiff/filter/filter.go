// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package filter defines the entry-point filtering collaborator port.
//
// The heuristics in the language analyzers over-approximate: every HTTP
// handler, test, runner-named function and CLI-shaped function becomes a
// candidate. An EntryPointFilter implementation may narrow that set. The
// port is strictly fail-open: a nil, failing, or empty-handed filter
// leaves every heuristic candidate in place.
package filter

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
)

// Candidate is one entry-point candidate with the contextual signals a
// filter may weigh.
type Candidate struct {
	Name              string   `json:"name"`
	QualifiedName     string   `json:"qualified_name"`
	FileName          string   `json:"file_name"`
	FilePath          string   `json:"file_path"`
	Parameters        []string `json:"parameters,omitempty"`
	UsesCLIParsing    bool     `json:"uses_cli_parsing"`
	CalledInMainGuard bool     `json:"called_in_main_guard"`
	IsTest            bool     `json:"is_test"`
	IsPrivate         bool     `json:"is_private"`
	CalledBy          int      `json:"called_by"`
	Calls             int      `json:"calls"`
}

// EntryPointFilter narrows a candidate list to the accepted subset.
type EntryPointFilter interface {
	Filter(ctx context.Context, candidates []Candidate) ([]Candidate, error)
}

// contextSource is implemented by language tables that can report
// per-symbol entry-point signals (the python table does).
type contextSource interface {
	EntryPointContext(sym *core.Symbol) (usesCLI, calledInMainGuard bool)
}

// Candidates builds the candidate list for the given entry points.
// Caller/callee counts come from the flat universe; CLI and main-guard
// signals come from the owning language table when it exposes them.
func Candidates(entryPoints []*core.Symbol, universe map[string]*core.Symbol, tables map[string]core.Table) []Candidate {
	calledBy := make(map[string]int, len(universe))
	for _, sym := range universe {
		for target := range sym.ResolvedCallSet() {
			calledBy[target]++
		}
	}

	out := make([]Candidate, 0, len(entryPoints))
	for _, sym := range entryPoints {
		c := Candidate{
			Name:          sym.Name,
			QualifiedName: sym.QualifiedName,
			FileName:      path.Base(sym.FilePath),
			FilePath:      sym.FilePath,
			IsTest:        strings.HasPrefix(sym.Name, "test_"),
			IsPrivate:     strings.HasPrefix(sym.Name, "_"),
			CalledBy:      calledBy[sym.QualifiedName],
			Calls:         len(sym.ResolvedCallSet()),
		}
		if sym.Metadata != nil {
			c.Parameters = sym.Metadata.Parameters
		}
		if table, ok := tables[sym.Language]; ok {
			if src, ok := table.(contextSource); ok {
				c.UsesCLIParsing, c.CalledInMainGuard = src.EntryPointContext(sym)
			}
		}
		out = append(out, c)
	}
	return out
}

// Apply runs the filter over the entry points and returns the accepted
// subset in the original order. Fail-open: a nil filter, a filter error,
// or an empty acceptance keeps every candidate.
func Apply(ctx context.Context, f EntryPointFilter, entryPoints []*core.Symbol, universe map[string]*core.Symbol, tables map[string]core.Table) []*core.Symbol {
	if f == nil || len(entryPoints) == 0 {
		return entryPoints
	}

	accepted, err := f.Filter(ctx, Candidates(entryPoints, universe, tables))
	if err != nil {
		slog.Warn("Entry-point filter failed, keeping all candidates",
			slog.String("error", err.Error()),
		)
		return entryPoints
	}
	if len(accepted) == 0 {
		return entryPoints
	}

	keep := make(map[string]bool, len(accepted))
	for _, c := range accepted {
		keep[c.QualifiedName] = true
	}
	out := make([]*core.Symbol, 0, len(accepted))
	for _, sym := range entryPoints {
		if keep[sym.QualifiedName] {
			out = append(out, sym)
		}
	}
	if len(out) == 0 {
		return entryPoints
	}
	return out
}
