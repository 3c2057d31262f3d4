// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package core defines the cross-language symbol model and the analyzer and
// bridge contracts that every language plugin implements.
//
// A Symbol is the universal unit of "something callable": a Python function,
// a class method, or a whole shell script. Symbols are identified solely by
// their qualified name; two Symbol values with the same qualified name refer
// to the same entity regardless of any other field, which is what lets the
// diff engine compare universes built by independent analysis runs.
package core

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Symbol is the normalized representation of one callable unit.
//
// RawCalls holds the callee expressions exactly as written in the source
// (dotted attribute chains collapse to dotted strings). ResolvedCalls holds
// fully qualified targets and is populated by the resolution passes; it only
// ever grows, and may exceed RawCalls in length after cross-language
// bridging appends entries.
//
// HasChanges is set only by the diff engine, never during plain analysis.
type Symbol struct {
	Name          string          `json:"name"`
	QualifiedName string          `json:"qualified_name"`
	Language      string          `json:"language"`
	FilePath      string          `json:"file_path"`
	LineNumber    int             `json:"line_number"`
	Metadata      *SymbolMetadata `json:"metadata,omitempty"`
	RawCalls      []string        `json:"raw_calls,omitempty"`
	ResolvedCalls []string        `json:"resolved_calls,omitempty"`
	IsEntryPoint  bool            `json:"is_entry_point"`
	HasChanges    bool            `json:"has_changes"`
	Documentation string          `json:"documentation,omitempty"`
}

// Key returns the identity of the symbol. Symbols are equal iff their keys
// are equal; all maps and graph structures key symbols by this value.
func (s *Symbol) Key() string {
	return s.QualifiedName
}

// AddResolvedCall appends a fully qualified target to ResolvedCalls,
// skipping duplicates. Resolution passes and bridges go through this so
// ResolvedCalls never accumulates repeats.
func (s *Symbol) AddResolvedCall(target string) {
	if target == "" {
		return
	}
	for _, existing := range s.ResolvedCalls {
		if existing == target {
			return
		}
	}
	s.ResolvedCalls = append(s.ResolvedCalls, target)
}

// ResolvedCallSet returns the resolved calls as a set. The diff engine
// compares resolved calls order-insensitively.
func (s *Symbol) ResolvedCallSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.ResolvedCalls))
	for _, c := range s.ResolvedCalls {
		set[c] = struct{}{}
	}
	return set
}

// SymbolMetadata holds language-specific facts about a symbol. One flat
// struct serves every language; each analyzer populates only its fields.
type SymbolMetadata struct {
	// Python
	Parameters    []string          `json:"parameters,omitempty"`
	ReturnType    string            `json:"return_type,omitempty"`
	Decorators    []string          `json:"decorators,omitempty"`
	IsClassMethod bool              `json:"is_class_method,omitempty"`
	LocalBindings map[string]string `json:"local_bindings,omitempty"`
	LocalImports  map[string]string `json:"function_local_imports,omitempty"`
	HTTPMethod    string            `json:"http_method,omitempty"`
	HTTPRoute     string            `json:"http_route,omitempty"`

	// Shell
	Interpreter string `json:"interpreter,omitempty"`
}

// Equal reports whether two metadata values are structurally identical.
// A nil metadata and an all-zero metadata compare equal, so analyzers that
// omit the struct entirely and analyzers that attach an empty one agree.
func (m *SymbolMetadata) Equal(other *SymbolMetadata) bool {
	a, b := m, other
	if a == nil {
		a = &SymbolMetadata{}
	}
	if b == nil {
		b = &SymbolMetadata{}
	}
	return stringSlicesEqual(a.Parameters, b.Parameters) &&
		a.ReturnType == b.ReturnType &&
		stringSlicesEqual(a.Decorators, b.Decorators) &&
		a.IsClassMethod == b.IsClassMethod &&
		stringMapsEqual(a.LocalBindings, b.LocalBindings) &&
		stringMapsEqual(a.LocalImports, b.LocalImports) &&
		a.HTTPMethod == b.HTTPMethod &&
		a.HTTPRoute == b.HTTPRoute &&
		a.Interpreter == b.Interpreter
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringMapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// FingerprintSymbols computes a stable xxhash fingerprint over a symbol
// slice. The hash covers qualified names and resolved-call sets in sorted
// order, so two universes with the same structure produce the same value
// regardless of construction order. Used for snapshot identity and log
// correlation, not for security.
func FingerprintSymbols(symbols []*Symbol) uint64 {
	keys := make([]string, 0, len(symbols))
	byKey := make(map[string]*Symbol, len(symbols))
	for _, s := range symbols {
		if _, seen := byKey[s.QualifiedName]; !seen {
			keys = append(keys, s.QualifiedName)
		}
		byKey[s.QualifiedName] = s
	}
	sort.Strings(keys)

	h := xxhash.New()
	for _, k := range keys {
		sym := byKey[k]
		_, _ = h.WriteString(k)
		_, _ = h.WriteString("\x00")
		calls := append([]string(nil), sym.ResolvedCalls...)
		sort.Strings(calls)
		_, _ = h.WriteString(strings.Join(calls, ","))
		_, _ = h.WriteString("\x01")
	}
	return h.Sum64()
}
