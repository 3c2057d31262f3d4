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

import "sort"

// Table is a per-language container of symbols plus whatever indices that
// language's resolver needs. One table per language per analysis run; the
// orchestrator owns the language→table map for the duration of one pipeline
// execution. Tables are not safe for concurrent mutation.
type Table interface {
	// Language returns the stable language identifier ("python", "shell").
	Language() string

	// Add inserts a symbol. A symbol with the same qualified name replaces
	// the existing one (last write wins).
	Add(sym *Symbol)

	// Get looks up a symbol by qualified name.
	Get(qualifiedName string) (*Symbol, bool)

	// Symbols returns all symbols sorted by qualified name. The sort makes
	// downstream iteration deterministic.
	Symbols() []*Symbol

	// Len returns the number of symbols in the table.
	Len() int
}

// BaseTable is the minimal Table implementation. Language analyzers either
// use it directly (shell) or embed it and layer resolution indices on top
// (python).
type BaseTable struct {
	language string
	symbols  map[string]*Symbol
}

// NewBaseTable creates an empty table for the given language.
func NewBaseTable(language string) *BaseTable {
	return &BaseTable{
		language: language,
		symbols:  make(map[string]*Symbol),
	}
}

func (t *BaseTable) Language() string {
	return t.language
}

func (t *BaseTable) Add(sym *Symbol) {
	if sym == nil || sym.QualifiedName == "" {
		return
	}
	t.symbols[sym.QualifiedName] = sym
}

func (t *BaseTable) Get(qualifiedName string) (*Symbol, bool) {
	sym, ok := t.symbols[qualifiedName]
	return sym, ok
}

func (t *BaseTable) Symbols() []*Symbol {
	out := make([]*Symbol, 0, len(t.symbols))
	for _, sym := range t.symbols {
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QualifiedName < out[j].QualifiedName
	})
	return out
}

func (t *BaseTable) Len() int {
	return len(t.symbols)
}

// FlattenTables merges every table's symbols into one qualified-name map.
// This is the "universe" the call-tree builder and diff engine operate on.
// Cross-language qualified names do not collide in practice (shell symbols
// carry a script: prefix); if they do, the lexicographically later language
// name wins, matching the deterministic merge rule.
func FlattenTables(tables map[string]Table) map[string]*Symbol {
	langs := make([]string, 0, len(tables))
	for lang := range tables {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	universe := make(map[string]*Symbol)
	for _, lang := range langs {
		for _, sym := range tables[lang].Symbols() {
			universe[sym.QualifiedName] = sym
		}
	}
	return universe
}
