// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pylang implements the Python language analyzer: tree-sitter based
// symbol extraction, call resolution via lightweight type inference, and
// entry-point heuristics.
package pylang

import (
	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
)

// Table is the Python symbol table: symbols plus the indices the call
// resolver needs. Built per file, then merged into one table per run.
type Table struct {
	*core.BaseTable

	// Imports maps an imported alias (or dotted module path) to the fully
	// qualified target it binds. Covers "import a.b", "import a.b as c",
	// "from m import x", "from m import x as y". Relative imports are
	// resolved against the importing module at extraction time.
	Imports map[string]string

	// ClassesByName maps a bare class name to its qualified name. On
	// collision across modules the entry from the lexicographically later
	// file wins, same as symbol merge.
	ClassesByName map[string]string

	// Methods maps a class qualified name to the set of its method names.
	Methods map[string]map[string]bool

	// InstanceBindings maps a class qualified name to the self-attribute
	// bindings inferred from simple "self.x = Ctor(...)" assignments in
	// __init__: attribute name → bare class name of the constructor.
	InstanceBindings map[string]map[string]string

	// MainGuardCalls maps a module qualified name to the set of callee
	// names invoked directly inside that module's __main__ guard.
	MainGuardCalls map[string]map[string]bool

	// CLIUsage is the set of function qualified names whose bodies touch
	// sys.argv. Other CLI-parsing signals (argparse, click, typer) are
	// derived from raw calls and decorators at entry-point marking time.
	CLIUsage map[string]bool
}

// NewTable creates an empty Python symbol table.
func NewTable() *Table {
	return &Table{
		BaseTable:        core.NewBaseTable(LanguageName),
		Imports:          make(map[string]string),
		ClassesByName:    make(map[string]string),
		Methods:          make(map[string]map[string]bool),
		InstanceBindings: make(map[string]map[string]string),
		MainGuardCalls:   make(map[string]map[string]bool),
		CLIUsage:         make(map[string]bool),
	}
}

// addMethod records a method name under its owning class.
func (t *Table) addMethod(classQualified, method string) {
	set, ok := t.Methods[classQualified]
	if !ok {
		set = make(map[string]bool)
		t.Methods[classQualified] = set
	}
	set[method] = true
}

// addInstanceBinding records a self-attribute → class binding.
func (t *Table) addInstanceBinding(classQualified, attr, className string) {
	bindings, ok := t.InstanceBindings[classQualified]
	if !ok {
		bindings = make(map[string]string)
		t.InstanceBindings[classQualified] = bindings
	}
	bindings[attr] = className
}

// addMainGuardCall records a callee invoked inside a module's main guard.
func (t *Table) addMainGuardCall(module, callee string) {
	set, ok := t.MainGuardCalls[module]
	if !ok {
		set = make(map[string]bool)
		t.MainGuardCalls[module] = set
	}
	set[callee] = true
}

// absorb merges another table's symbols and indices into this one.
// Last write wins on every keyed collision; callers control determinism by
// absorbing in lexicographic file-path order.
func (t *Table) absorb(other *Table) {
	for _, sym := range other.Symbols() {
		t.Add(sym)
	}
	for k, v := range other.Imports {
		t.Imports[k] = v
	}
	for k, v := range other.ClassesByName {
		t.ClassesByName[k] = v
	}
	for class, methods := range other.Methods {
		for m := range methods {
			t.addMethod(class, m)
		}
	}
	for class, bindings := range other.InstanceBindings {
		for attr, typ := range bindings {
			t.addInstanceBinding(class, attr, typ)
		}
	}
	for module, calls := range other.MainGuardCalls {
		for c := range calls {
			t.addMainGuardCall(module, c)
		}
	}
	for k := range other.CLIUsage {
		t.CLIUsage[k] = true
	}
}
