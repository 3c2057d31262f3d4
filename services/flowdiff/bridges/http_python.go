// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bridges resolves calls that cross language boundaries. Bridges
// run after every analyzer's intra-language resolution and append their
// results to the source symbols' resolved calls.
package bridges

import (
	"path"
	"strings"

	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
	"github.com/AleutianAI/flowdiff/services/flowdiff/pylang"
	"github.com/AleutianAI/flowdiff/services/flowdiff/shell"
)

// HTTPToPythonBridge maps shell-script HTTP requests to the Python handlers
// that serve those routes, and shell invocations of Python scripts/modules
// to the matching Python symbols.
//
// Matching is exact: a request resolves only when its method and path both
// equal a handler's registered route. Unmatched calls stay as literal raw
// strings, visible for debugging but never an error.
type HTTPToPythonBridge struct{}

// NewHTTPToPythonBridge creates the shell → python bridge.
func NewHTTPToPythonBridge() *HTTPToPythonBridge {
	return &HTTPToPythonBridge{}
}

// Name implements core.Bridge.
func (b *HTTPToPythonBridge) Name() string {
	return "http-python"
}

// CanBridge implements core.Bridge.
func (b *HTTPToPythonBridge) CanBridge(fromLanguage, toLanguage string) bool {
	return fromLanguage == shell.LanguageName && toLanguage == pylang.LanguageName
}

// Resolve implements core.Bridge. It tolerates either language's table
// being absent: no shell callers or no python targets simply means no
// cross-references, never an error.
func (b *HTTPToPythonBridge) Resolve(tables map[string]core.Table) (map[string][]string, error) {
	refs := make(map[string][]string)

	shellTable, ok := tables[shell.LanguageName]
	if !ok || shellTable == nil {
		return refs, nil
	}
	pyTable, ok := tables[pylang.LanguageName]
	if !ok || pyTable == nil {
		return refs, nil
	}

	endpoints := endpointIndex(pyTable)

	for _, src := range shellTable.Symbols() {
		seen := make(map[string]bool)
		for _, raw := range src.RawCalls {
			var target string
			switch {
			case strings.HasPrefix(raw, shell.HTTPCallPrefix):
				target = endpoints[strings.TrimPrefix(raw, shell.HTTPCallPrefix)]
			case strings.HasPrefix(raw, shell.PythonCallPrefix):
				target = pythonTarget(pyTable, strings.TrimPrefix(raw, shell.PythonCallPrefix))
			}
			if target == "" || seen[target] {
				continue
			}
			seen[target] = true
			refs[src.QualifiedName] = append(refs[src.QualifiedName], target)
		}
	}
	return refs, nil
}

// endpointIndex maps "METHOD:PATH" to the handler's qualified name for
// every python symbol carrying HTTP route metadata. Symbols() iterates in
// sorted order, so duplicate routes resolve deterministically.
func endpointIndex(pyTable core.Table) map[string]string {
	index := make(map[string]string)
	for _, sym := range pyTable.Symbols() {
		if sym.Metadata == nil || sym.Metadata.HTTPMethod == "" || sym.Metadata.HTTPRoute == "" {
			continue
		}
		index[sym.Metadata.HTTPMethod+":"+sym.Metadata.HTTPRoute] = sym.QualifiedName
	}
	return index
}

// pythonTarget resolves a shell-side python invocation target. The target
// is either a module path ("src.worker", the -m form) or a script path
// ("scripts/job.py"); both normalize to a dotted module. Candidates are
// checked in order: the module's synthetic script symbol, then its main
// function.
func pythonTarget(pyTable core.Table, target string) string {
	module := targetModule(target)
	if module == "" {
		return ""
	}
	base := module
	if idx := strings.LastIndex(module, "."); idx >= 0 {
		base = module[idx+1:]
	}
	for _, candidate := range []string{"<script:" + base + ">", module + ".main"} {
		if _, ok := pyTable.Get(candidate); ok {
			return candidate
		}
	}
	return ""
}

// targetModule converts a script path or module name to dotted-module form.
func targetModule(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	if strings.HasSuffix(target, ".py") {
		target = strings.TrimSuffix(path.Clean(target), ".py")
		target = strings.TrimPrefix(target, "./")
		return strings.ReplaceAll(target, "/", ".")
	}
	return target
}
