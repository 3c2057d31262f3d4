// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates the full analysis run: file discovery,
// per-file symbol extraction, per-language merge and call resolution,
// entry-point marking, and cross-language bridge resolution.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/flowdiff/services/flowdiff/bridges"
	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
	"github.com/AleutianAI/flowdiff/services/flowdiff/filter"
	"github.com/AleutianAI/flowdiff/services/flowdiff/pylang"
	"github.com/AleutianAI/flowdiff/services/flowdiff/shell"
)

// MaxWorkers caps the per-file analysis pool regardless of CPU count.
const MaxWorkers = 8

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the bounded worker count for per-file analysis.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithEntryPointFilter installs the optional entry-point filtering
// collaborator. Applied fail-open after bridge resolution.
func WithEntryPointFilter(f filter.EntryPointFilter) Option {
	return func(o *Orchestrator) {
		o.filter = f
	}
}

// WithIncludeGlobs restricts discovery to paths matching the patterns.
func WithIncludeGlobs(globs ...string) Option {
	return func(o *Orchestrator) {
		o.includeGlobs = append(o.includeGlobs, globs...)
	}
}

// WithExcludeGlobs prunes discovered paths matching the patterns.
func WithExcludeGlobs(globs ...string) Option {
	return func(o *Orchestrator) {
		o.excludeGlobs = append(o.excludeGlobs, globs...)
	}
}

// Orchestrator runs the six-stage analysis pipeline.
//
// Stages: (1) discover candidate files, (2) group them by owning analyzer,
// (3) build one symbol table per file and merge per language, (4) resolve
// intra-language calls, (5) mark entry points, (6) run cross-language
// bridges. Stage 3 is the only concurrent stage; the merge after it is the
// only synchronization point.
type Orchestrator struct {
	registry     *core.Registry
	bridges      *core.BridgeRegistry
	filter       filter.EntryPointFilter
	workers      int
	includeGlobs []string
	excludeGlobs []string
}

// New creates an orchestrator over the given analyzer and bridge
// registries.
func New(registry *core.Registry, bridgeRegistry *core.BridgeRegistry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		bridges:  bridgeRegistry,
		workers:  defaultWorkers(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Default creates an orchestrator with the stock analyzers (python, shell)
// and the HTTP → Python bridge registered.
func Default(opts ...Option) *Orchestrator {
	registry := core.NewRegistry()
	registry.Register(pylang.NewAnalyzer())
	registry.Register(shell.NewAnalyzer())

	bridgeRegistry := core.NewBridgeRegistry()
	bridgeRegistry.Register(bridges.NewHTTPToPythonBridge())

	return New(registry, bridgeRegistry, opts...)
}

// Registry returns the analyzer registry, for callers that need extension
// ownership checks.
func (o *Orchestrator) Registry() *core.Registry {
	return o.registry
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > MaxWorkers {
		return MaxWorkers
	}
	if n < 1 {
		return 1
	}
	return n
}

// Analyze runs the full pipeline and returns the fully resolved table per
// language. Per-file failures are recoverable and logged by the analyzers;
// only discovery failures and context cancellation abort the run.
func (o *Orchestrator) Analyze(ctx context.Context, projectRoot string) (map[string]core.Table, error) {
	runID := uuid.NewString()
	start := time.Now()
	log := slog.With(slog.String("run_id", runID), slog.String("project_root", projectRoot))

	files, err := o.discoverFiles(projectRoot)
	if err != nil {
		recordRun("failed", time.Since(start).Seconds())
		return nil, err
	}

	byLanguage := o.groupByLanguage(files)
	tables := make(map[string]core.Table, len(byLanguage))

	languages := make([]string, 0, len(byLanguage))
	for lang := range byLanguage {
		languages = append(languages, lang)
	}
	sort.Strings(languages)

	for _, lang := range languages {
		analyzer, ok := o.registry.ByLanguage(lang)
		if !ok {
			continue
		}
		merged, err := o.buildLanguageTable(ctx, analyzer, projectRoot, byLanguage[lang])
		if err != nil {
			recordRun("failed", time.Since(start).Seconds())
			return nil, fmt.Errorf("analysis of %s files failed: %w", lang, err)
		}
		tables[lang] = merged
		recordLanguage(lang, len(byLanguage[lang]), merged.Len())
	}

	for _, lang := range languages {
		if table, ok := tables[lang]; ok {
			analyzer, _ := o.registry.ByLanguage(lang)
			analyzer.ResolveCalls(table)
		}
	}

	for _, lang := range languages {
		analyzer, _ := o.registry.ByLanguage(lang)
		if marker, ok := analyzer.(core.EntryPointMarker); ok {
			marker.MarkEntryPoints(tables[lang])
		}
	}

	o.bridges.ResolveAll(tables)
	o.applyEntryPointFilter(ctx, tables)

	symbolCount := 0
	for _, table := range tables {
		symbolCount += table.Len()
	}
	log.Info("Analysis pipeline completed",
		slog.Int("files", len(files)),
		slog.Int("languages", len(tables)),
		slog.Int("symbols", symbolCount),
		slog.Duration("duration", time.Since(start)),
	)
	recordRun("completed", time.Since(start).Seconds())
	return tables, nil
}

// groupByLanguage assigns each discovered file to its owning analyzer.
func (o *Orchestrator) groupByLanguage(files []string) map[string][]string {
	byLanguage := make(map[string][]string)
	for _, path := range files {
		analyzer, ok := o.registry.ForFile(path)
		if !ok {
			continue
		}
		lang := analyzer.LanguageName()
		byLanguage[lang] = append(byLanguage[lang], path)
	}
	return byLanguage
}

// buildLanguageTable builds one table per file with a bounded worker pool,
// then merges. paths arrive sorted, so results keep a deterministic order
// for the merge's collision rule.
func (o *Orchestrator) buildLanguageTable(ctx context.Context, analyzer core.Analyzer, projectRoot string, paths []string) (core.Table, error) {
	results := make([]core.Table, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			table, err := analyzer.BuildSymbolTable(gctx, projectRoot, path)
			if err != nil {
				return err
			}
			results[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tables := make([]core.Table, 0, len(results))
	for _, t := range results {
		if t != nil {
			tables = append(tables, t)
		}
	}
	return analyzer.MergeSymbolTables(tables), nil
}

// applyEntryPointFilter narrows heuristic entry points through the optional
// collaborator. Shell symbols are exempt; rejection clears IsEntryPoint.
func (o *Orchestrator) applyEntryPointFilter(ctx context.Context, tables map[string]core.Table) {
	if o.filter == nil {
		return
	}

	entries := EntryPoints(tables)
	universe := core.FlattenTables(tables)
	accepted := filter.Apply(ctx, o.filter, entries, universe, tables)

	keep := make(map[string]bool, len(accepted))
	for _, sym := range accepted {
		keep[sym.QualifiedName] = true
	}
	for _, sym := range entries {
		if sym.Language == shell.LanguageName {
			continue
		}
		if !keep[sym.QualifiedName] {
			sym.IsEntryPoint = false
		}
	}
}

// EntryPoints returns the entry-point symbols across all tables, sorted by
// qualified name. Shell symbols are always included; a script's only
// caller is the operator.
func EntryPoints(tables map[string]core.Table) []*core.Symbol {
	var out []*core.Symbol
	for _, lang := range sortedLanguages(tables) {
		for _, sym := range tables[lang].Symbols() {
			if sym.IsEntryPoint || sym.Language == shell.LanguageName {
				out = append(out, sym)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QualifiedName < out[j].QualifiedName
	})
	return out
}

func sortedLanguages(tables map[string]core.Table) []string {
	langs := make([]string, 0, len(tables))
	for lang := range tables {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}
