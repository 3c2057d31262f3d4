// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package core

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Analyzer is the contract every language plugin implements.
//
// Description:
//
//	An analyzer owns a set of file extensions, turns individual files into
//	symbol tables, merges per-file tables into one per-language table, and
//	resolves that language's internal calls. Parse failures are recoverable:
//	BuildSymbolTable returns an empty table (plus a warning log) rather than
//	an error for malformed input. Errors are reserved for context
//	cancellation and unreadable files.
//
// Thread Safety: implementations must be safe for concurrent
// BuildSymbolTable calls on distinct files; the remaining methods are
// called from a single goroutine.
type Analyzer interface {
	// CanAnalyze reports whether this analyzer owns the file. Pure
	// predicate on the path, no I/O.
	CanAnalyze(path string) bool

	// BuildSymbolTable analyzes one file. path is relative to projectRoot.
	BuildSymbolTable(ctx context.Context, projectRoot, path string) (Table, error)

	// MergeSymbolTables combines per-file tables into one. The symbol set
	// is independent of input order; on qualified-name collision the table
	// later in lexicographic file-path order wins. Callers pass tables
	// pre-sorted by file path.
	MergeSymbolTables(tables []Table) Table

	// ResolveCalls populates ResolvedCalls on every symbol in the table.
	// Idempotent: it recomputes from RawCalls rather than accumulating.
	ResolveCalls(table Table)

	// LanguageName returns the stable identifier used as map key everywhere.
	LanguageName() string

	// Extensions returns the file extensions this analyzer owns, with dots.
	Extensions() []string
}

// EntryPointMarker is the optional capability of flagging entry-point
// symbols after resolution. Analyzers without language-specific heuristics
// simply do not implement it.
type EntryPointMarker interface {
	MarkEntryPoints(table Table)
}

// Registry maps languages and file extensions to analyzers.
//
// Thread Safety: safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	byLanguage  map[string]Analyzer
	byExtension map[string]Analyzer
}

// NewRegistry creates an empty analyzer registry.
func NewRegistry() *Registry {
	return &Registry{
		byLanguage:  make(map[string]Analyzer),
		byExtension: make(map[string]Analyzer),
	}
}

// Register adds an analyzer, replacing any previous registration for the
// same language or extensions.
func (r *Registry) Register(a Analyzer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLanguage[a.LanguageName()] = a
	for _, ext := range a.Extensions() {
		r.byExtension[strings.ToLower(ext)] = a
	}
}

// ForFile returns the analyzer owning the path, consulting CanAnalyze so
// analyzers can veto files within their extension set.
func (r *Registry) ForFile(path string) (Analyzer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.byLanguage {
		if a.CanAnalyze(path) {
			return a, true
		}
	}
	return nil, false
}

// ByLanguage returns the analyzer registered for a language.
func (r *Registry) ByLanguage(language string) (Analyzer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byLanguage[language]
	return a, ok
}

// Languages returns the registered language names, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]string, 0, len(r.byLanguage))
	for lang := range r.byLanguage {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// OwnsExtension reports whether any registered analyzer owns the extension
// (with leading dot, case-insensitive). The diff engine uses this to
// restrict file-change detection to analyzable files.
func (r *Registry) OwnsExtension(ext string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byExtension[strings.ToLower(ext)]
	return ok
}
