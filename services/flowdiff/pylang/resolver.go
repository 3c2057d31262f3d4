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
	"strings"

	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
)

// callResolver resolves raw call expressions against one merged table.
//
// Per raw call it tries, in fixed priority order:
//
//  1. attribute-chain type inference (local/self bindings → class method)
//  2. function-scoped import match
//  3. constructor call (class name → __init__, or the class itself)
//  4. module-level import match
//  5. same-module name
//  6. prefix-based qualified resolution (progressively shorter dotted
//     prefixes against the import table)
//
// The first hit wins. A raw call no strategy matches stays unresolved;
// that is the common case (standard library, dynamic dispatch), not an
// error.
type callResolver struct {
	table *Table
}

func newCallResolver(table *Table) *callResolver {
	return &callResolver{table: table}
}

// resolveSymbol recomputes a symbol's ResolvedCalls from its RawCalls.
func (r *callResolver) resolveSymbol(sym *core.Symbol) {
	sym.ResolvedCalls = nil

	module := moduleName(sym.FilePath)
	ownClass := ""
	if sym.Metadata != nil && sym.Metadata.IsClassMethod {
		if idx := strings.LastIndex(sym.QualifiedName, "."); idx >= 0 {
			ownClass = sym.QualifiedName[:idx]
		}
	}

	for _, raw := range sym.RawCalls {
		if target := r.resolve(sym, raw, module, ownClass); target != "" {
			sym.AddResolvedCall(target)
		}
	}
}

func (r *callResolver) resolve(sym *core.Symbol, raw, module, ownClass string) string {
	if raw == "" {
		return ""
	}

	if target := r.resolveMethodCall(sym, raw, ownClass); target != "" {
		return target
	}
	if sym.Metadata != nil {
		if target := r.resolveViaImports(raw, sym.Metadata.LocalImports); target != "" {
			return target
		}
	}
	if target := r.resolveConstructor(raw); target != "" {
		return target
	}
	if target := r.resolveViaImports(raw, r.table.Imports); target != "" {
		return target
	}
	if target := r.resolveSameModule(raw, module); target != "" {
		return target
	}
	return r.resolveByPrefix(raw)
}

// resolveMethodCall handles obj.method via local bindings, self.method via
// the owning class, and self.attr.method via __init__ instance bindings.
func (r *callResolver) resolveMethodCall(sym *core.Symbol, raw, ownClass string) string {
	parts := strings.Split(raw, ".")
	if len(parts) < 2 {
		return ""
	}

	if parts[0] == "self" && ownClass != "" {
		switch len(parts) {
		case 2:
			return r.methodOf(ownClass, parts[1])
		case 3:
			bindings := r.table.InstanceBindings[ownClass]
			className, ok := bindings[parts[1]]
			if !ok {
				return ""
			}
			qualified, ok := r.table.ClassesByName[className]
			if !ok {
				return ""
			}
			return r.methodOf(qualified, parts[2])
		}
		return ""
	}

	if len(parts) != 2 || sym.Metadata == nil {
		return ""
	}
	className, ok := sym.Metadata.LocalBindings[parts[0]]
	if !ok {
		return ""
	}
	qualified, ok := r.table.ClassesByName[className]
	if !ok {
		return ""
	}
	return r.methodOf(qualified, parts[1])
}

// methodOf returns classQualified.method when the class defines the method.
func (r *callResolver) methodOf(classQualified, method string) string {
	if r.table.Methods[classQualified][method] {
		return classQualified + "." + method
	}
	return ""
}

// resolveConstructor maps a bare class-name call to the class's __init__
// when defined, otherwise to the class's own identity.
func (r *callResolver) resolveConstructor(raw string) string {
	if strings.Contains(raw, ".") {
		return ""
	}
	qualified, ok := r.table.ClassesByName[raw]
	if !ok {
		return ""
	}
	if r.table.Methods[qualified]["__init__"] {
		return qualified + ".__init__"
	}
	return qualified
}

// resolveViaImports matches the callee (or its leading component) against
// an alias→target import map and checks the candidate exists in the table.
func (r *callResolver) resolveViaImports(raw string, imports map[string]string) string {
	if len(imports) == 0 {
		return ""
	}
	if target, ok := imports[raw]; ok {
		if r.exists(target) {
			return target
		}
	}
	idx := strings.Index(raw, ".")
	if idx < 0 {
		return ""
	}
	if target, ok := imports[raw[:idx]]; ok {
		candidate := target + raw[idx:]
		if r.exists(candidate) {
			return candidate
		}
	}
	return ""
}

// resolveSameModule resolves the callee against the current module's own
// namespace ("helper" → "src.api.helper", "Cls.method" → "src.api.Cls.method").
func (r *callResolver) resolveSameModule(raw, module string) string {
	candidate := module + "." + raw
	if r.exists(candidate) {
		return candidate
	}
	return ""
}

// resolveByPrefix progressively shortens the dotted callee, trying each
// prefix against the import table and appending the remaining suffix to the
// resolved module.
func (r *callResolver) resolveByPrefix(raw string) string {
	parts := strings.Split(raw, ".")
	for k := len(parts) - 1; k >= 1; k-- {
		prefix := strings.Join(parts[:k], ".")
		target, ok := r.table.Imports[prefix]
		if !ok {
			continue
		}
		candidate := target + "." + strings.Join(parts[k:], ".")
		if r.exists(candidate) {
			return candidate
		}
	}
	return ""
}

func (r *callResolver) exists(qualifiedName string) bool {
	_, ok := r.table.Get(qualifiedName)
	return ok
}
