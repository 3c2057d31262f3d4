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
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/flowdiff/services/flowdiff/calltree"
	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
	"github.com/AleutianAI/flowdiff/services/flowdiff/pipeline"
)

// ChangeType classifies one symbol-level difference.
type ChangeType string

const (
	SymbolAdded    ChangeType = "added"
	SymbolModified ChangeType = "modified"
	SymbolDeleted  ChangeType = "deleted"
)

// SymbolChange records one symbol's difference between the two states.
// Before is nil for additions, After is nil for deletions.
type SymbolChange struct {
	QualifiedName string       `json:"qualified_name"`
	Type          ChangeType   `json:"type"`
	Before        *core.Symbol `json:"before,omitempty"`
	After         *core.Symbol `json:"after,omitempty"`
}

// DiffResult aggregates everything a diff run produced: descriptions of
// both states, the file and symbol change lists, and the call trees built
// over each pre-stamped universe.
type DiffResult struct {
	BeforeRef         string                  `json:"before_ref"`
	AfterRef          string                  `json:"after_ref"`
	BeforeDescription string                  `json:"before_description"`
	AfterDescription  string                  `json:"after_description"`
	FileChanges       []FileChange            `json:"file_changes"`
	SymbolChanges     map[string]SymbolChange `json:"symbol_changes"`
	BeforeTrees       []*calltree.Node        `json:"before_trees"`
	AfterTrees        []*calltree.Node        `json:"after_trees"`
	Added             int                     `json:"added"`
	Modified          int                     `json:"modified"`
	Deleted           int                     `json:"deleted"`
}

// AnalyzerOption configures a DiffAnalyzer.
type AnalyzerOption func(*DiffAnalyzer)

// WithOrchestrator substitutes the analysis pipeline used for both states.
func WithOrchestrator(o *pipeline.Orchestrator) AnalyzerOption {
	return func(d *DiffAnalyzer) {
		d.orchestrator = o
	}
}

// WithClient substitutes the git client.
func WithClient(c *GitClient) AnalyzerOption {
	return func(d *DiffAnalyzer) {
		d.client = c
	}
}

// DiffAnalyzer runs the full analysis pipeline at two git references and
// diffs the resulting symbol universes.
type DiffAnalyzer struct {
	projectRoot  string
	client       *GitClient
	orchestrator *pipeline.Orchestrator
}

// NewDiffAnalyzer creates a diff analyzer for the repository at
// projectRoot, with the stock pipeline unless overridden.
func NewDiffAnalyzer(projectRoot string, opts ...AnalyzerOption) *DiffAnalyzer {
	d := &DiffAnalyzer{
		projectRoot: projectRoot,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = NewGitClient(projectRoot)
	}
	if d.orchestrator == nil {
		d.orchestrator = pipeline.Default()
	}
	return d
}

// AnalyzeDiff compares the symbol universes at beforeRef and afterRef.
// Either reference may be the WorkingTree token. The two extraction and
// analysis runs are independent and execute concurrently, each in its own
// private directory.
func (d *DiffAnalyzer) AnalyzeDiff(ctx context.Context, beforeRef, afterRef string) (*DiffResult, error) {
	start := time.Now()

	if !d.client.IsRepository(ctx) {
		return nil, fmt.Errorf("%w: %s", core.ErrNotGitRepository, d.projectRoot)
	}

	beforeSHA, err := d.client.ResolveRef(ctx, beforeRef)
	if err != nil {
		return nil, err
	}
	afterSHA, err := d.client.ResolveRef(ctx, afterRef)
	if err != nil {
		return nil, err
	}

	fileChanges, err := d.client.ChangedFiles(ctx, beforeSHA, afterSHA, d.orchestrator.Registry().OwnsExtension)
	if err != nil {
		return nil, err
	}

	var beforeTables, afterTables map[string]core.Table
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tables, err := d.analyzeState(gctx, beforeSHA)
		beforeTables = tables
		return err
	})
	g.Go(func() error {
		tables, err := d.analyzeState(gctx, afterSHA)
		afterTables = tables
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	beforeUniverse := core.FlattenTables(beforeTables)
	afterUniverse := core.FlattenTables(afterTables)

	changes := DiffSymbols(beforeUniverse, afterUniverse)
	stampChanges(changes, beforeUniverse, afterUniverse)

	result := &DiffResult{
		BeforeRef:         beforeRef,
		AfterRef:          afterRef,
		BeforeDescription: d.client.DescribeRef(ctx, beforeRef),
		AfterDescription:  d.client.DescribeRef(ctx, afterRef),
		FileChanges:       fileChanges,
		SymbolChanges:     changes,
		BeforeTrees:       calltree.BuildCallTrees(pipeline.EntryPoints(beforeTables), beforeUniverse),
		AfterTrees:        calltree.BuildCallTrees(pipeline.EntryPoints(afterTables), afterUniverse),
	}
	for _, change := range changes {
		switch change.Type {
		case SymbolAdded:
			result.Added++
		case SymbolModified:
			result.Modified++
		case SymbolDeleted:
			result.Deleted++
		}
	}

	slog.Info("Diff analysis completed",
		slog.String("before", beforeRef),
		slog.String("after", afterRef),
		slog.Int("file_changes", len(fileChanges)),
		slog.Int("added", result.Added),
		slog.Int("modified", result.Modified),
		slog.Int("deleted", result.Deleted),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// analyzeState runs the pipeline at one resolved state. An empty sha means
// the working tree, analyzed in place; otherwise the commit's tree is
// materialized into a private temporary directory and discarded after.
func (d *DiffAnalyzer) analyzeState(ctx context.Context, sha string) (map[string]core.Table, error) {
	if sha == "" {
		return d.orchestrator.Analyze(ctx, d.projectRoot)
	}

	dir, cleanup, err := d.client.MaterializeRef(ctx, sha)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return d.orchestrator.Analyze(ctx, dir)
}

// DiffSymbols compares two flat symbol universes by qualified name.
//
// A symbol on both sides is modified when its metadata, its resolved-call
// set (order-insensitive), or its documentation differs. Line numbers are
// deliberately not compared: code shifting position because of unrelated
// edits elsewhere is not a change.
func DiffSymbols(before, after map[string]*core.Symbol) map[string]SymbolChange {
	changes := make(map[string]SymbolChange)

	for name, b := range before {
		a, ok := after[name]
		if !ok {
			changes[name] = SymbolChange{QualifiedName: name, Type: SymbolDeleted, Before: b}
			continue
		}
		if !symbolsEquivalent(b, a) {
			changes[name] = SymbolChange{QualifiedName: name, Type: SymbolModified, Before: b, After: a}
		}
	}
	for name, a := range after {
		if _, ok := before[name]; !ok {
			changes[name] = SymbolChange{QualifiedName: name, Type: SymbolAdded, After: a}
		}
	}
	return changes
}

func symbolsEquivalent(a, b *core.Symbol) bool {
	if !a.Metadata.Equal(b.Metadata) {
		return false
	}
	if a.Documentation != b.Documentation {
		return false
	}
	aCalls, bCalls := a.ResolvedCallSet(), b.ResolvedCallSet()
	if len(aCalls) != len(bCalls) {
		return false
	}
	for call := range aCalls {
		if _, ok := bCalls[call]; !ok {
			return false
		}
	}
	return true
}

// stampChanges marks HasChanges on each universe for the changes that
// exist in it: modified and deleted symbols on the before side, modified
// and added symbols on the after side.
func stampChanges(changes map[string]SymbolChange, before, after map[string]*core.Symbol) {
	for name, change := range changes {
		switch change.Type {
		case SymbolModified:
			if sym, ok := before[name]; ok {
				sym.HasChanges = true
			}
			if sym, ok := after[name]; ok {
				sym.HasChanges = true
			}
		case SymbolDeleted:
			if sym, ok := before[name]; ok {
				sym.HasChanges = true
			}
		case SymbolAdded:
			if sym, ok := after[name]; ok {
				sym.HasChanges = true
			}
		}
	}
}
