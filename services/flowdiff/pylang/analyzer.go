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
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
)

// LanguageName is the stable identifier for this analyzer.
const LanguageName = "python"

// DefaultMaxFileSize is the largest Python file the analyzer will parse.
const DefaultMaxFileSize = 10 * 1024 * 1024 // 10MB

// Option configures an Analyzer instance.
type Option func(*Analyzer)

// WithMaxFileSize sets the maximum file size the analyzer will accept.
func WithMaxFileSize(bytes int64) Option {
	return func(a *Analyzer) {
		if bytes > 0 {
			a.maxFileSize = bytes
		}
	}
}

// Analyzer implements core.Analyzer for Python source files.
//
// Description:
//
//	Uses tree-sitter to parse Python files and extract one symbol per
//	top-level function, class, and class method, with the raw call
//	expressions, local constructor bindings, and function-scoped imports
//	the call resolver needs. Parse failures are recoverable: the file
//	contributes an empty table and a warning log, never an error.
//
// Thread Safety:
//
//	Safe for concurrent BuildSymbolTable calls; each call creates its own
//	tree-sitter parser instance.
type Analyzer struct {
	maxFileSize int64
}

// NewAnalyzer creates a Python analyzer with the given options.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LanguageName returns "python".
func (a *Analyzer) LanguageName() string {
	return LanguageName
}

// Extensions returns the file extensions this analyzer owns.
func (a *Analyzer) Extensions() []string {
	return []string{".py"}
}

// CanAnalyze reports whether the path is a Python source file.
func (a *Analyzer) CanAnalyze(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".py")
}

// BuildSymbolTable parses one Python file into a symbol table.
//
// path is relative to projectRoot and determines the module qualified-name
// prefix ("src/api.py" → symbols under "src.api"). Malformed source yields
// partial symbols where tree-sitter can recover, an empty table otherwise;
// neither case is an error. Errors are returned only for context
// cancellation and unreadable files.
func (a *Analyzer) BuildSymbolTable(ctx context.Context, projectRoot, path string) (core.Table, error) {
	ctx, span := core.StartAnalyzeSpan(ctx, LanguageName, path)
	defer span.End()

	start := time.Now()
	table := NewTable()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis canceled before start: %w", err)
	}

	content, err := os.ReadFile(filepath.Join(projectRoot, filepath.FromSlash(path)))
	if err != nil {
		core.RecordAnalyzeMetrics(ctx, LanguageName, time.Since(start), 0, false)
		slog.Warn("Skipping unreadable Python file",
			slog.String("file", path),
			slog.String("error", err.Error()),
		)
		return table, nil
	}

	if int64(len(content)) > a.maxFileSize {
		core.RecordAnalyzeMetrics(ctx, LanguageName, time.Since(start), 0, false)
		slog.Warn("Skipping oversized Python file",
			slog.String("file", path),
			slog.Int("size_bytes", len(content)),
			slog.Int64("limit_bytes", a.maxFileSize),
		)
		return table, nil
	}
	if !utf8.Valid(content) {
		core.RecordAnalyzeMetrics(ctx, LanguageName, time.Since(start), 0, false)
		slog.Warn("Skipping non-UTF-8 Python file", slog.String("file", path))
		return table, nil
	}

	// New tree-sitter parser per call for thread safety.
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("analysis canceled during parse: %w", ctxErr)
		}
		core.RecordAnalyzeMetrics(ctx, LanguageName, time.Since(start), 0, false)
		slog.Warn("Python parse failed, file skipped",
			slog.String("file", path),
			slog.String("error", err.Error()),
		)
		return table, nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		core.RecordAnalyzeMetrics(ctx, LanguageName, time.Since(start), 0, false)
		slog.Warn("Python parse produced no tree, file skipped", slog.String("file", path))
		return table, nil
	}
	if root.HasError() {
		// Partial extraction still runs; tree-sitter recovers around
		// syntax errors.
		slog.Debug("Python source contains syntax errors",
			slog.String("file", path))
	}

	ext := &extraction{
		content:   content,
		filePath:  path,
		module:    moduleName(path),
		isPackage: strings.HasSuffix(path, "__init__.py"),
		table:     table,
	}
	ext.run(root)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis canceled after extraction: %w", err)
	}

	core.SetAnalyzeSpanResult(span, table.Len())
	core.RecordAnalyzeMetrics(ctx, LanguageName, time.Since(start), table.Len(), true)
	return table, nil
}

// MergeSymbolTables combines per-file tables into one table.
//
// The symbol set is independent of input order. On qualified-name (or
// index-key) collision the table later in lexicographic file-path order
// wins; inputs are re-sorted here so callers cannot accidentally depend on
// goroutine completion order.
func (a *Analyzer) MergeSymbolTables(tables []core.Table) core.Table {
	merged := NewTable()

	ordered := make([]*Table, 0, len(tables))
	for _, t := range tables {
		if pt, ok := t.(*Table); ok {
			ordered = append(ordered, pt)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return tableOrigin(ordered[i]) < tableOrigin(ordered[j])
	})

	for _, t := range ordered {
		merged.absorb(t)
	}
	return merged
}

// tableOrigin returns the file path a per-file table was built from, using
// the first symbol's location. Empty tables sort first; their order cannot
// matter since they contribute nothing.
func tableOrigin(t *Table) string {
	syms := t.Symbols()
	if len(syms) == 0 {
		return ""
	}
	return syms[0].FilePath
}

// ResolveCalls populates ResolvedCalls for every symbol in the table.
// Idempotent: resolution always recomputes from RawCalls.
func (a *Analyzer) ResolveCalls(table core.Table) {
	pt, ok := table.(*Table)
	if !ok {
		return
	}
	resolver := newCallResolver(pt)
	for _, sym := range pt.Symbols() {
		resolver.resolveSymbol(sym)
	}
}
