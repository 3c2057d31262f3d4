// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bridges

import (
	"strings"
	"testing"

	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
	"github.com/AleutianAI/flowdiff/services/flowdiff/pylang"
	"github.com/AleutianAI/flowdiff/services/flowdiff/shell"
)

func pythonTable(symbols ...*core.Symbol) core.Table {
	table := core.NewBaseTable(pylang.LanguageName)
	for _, sym := range symbols {
		sym.Language = pylang.LanguageName
		table.Add(sym)
	}
	return table
}

func shellScript(name string, rawCalls ...string) *core.Symbol {
	return &core.Symbol{
		Name:          name,
		QualifiedName: shell.QualifiedPrefix + name,
		Language:      shell.LanguageName,
		FilePath:      "scripts/" + name + ".sh",
		LineNumber:    1,
		RawCalls:      rawCalls,
		IsEntryPoint:  true,
	}
}

func shellTable(scripts ...*core.Symbol) core.Table {
	table := core.NewBaseTable(shell.LanguageName)
	for _, sym := range scripts {
		table.Add(sym)
	}
	return table
}

func handler(qualified, method, route string) *core.Symbol {
	parts := strings.Split(qualified, ".")
	return &core.Symbol{
		Name:          parts[len(parts)-1],
		QualifiedName: qualified,
		FilePath:      "src/api.py",
		Metadata:      &core.SymbolMetadata{HTTPMethod: method, HTTPRoute: route},
	}
}

func TestResolveHTTPCallToHandler(t *testing.T) {
	tables := map[string]core.Table{
		pylang.LanguageName: pythonTable(
			handler("src.api.analyze", "POST", "/analyze"),
			handler("src.api.health", "GET", "/health"),
		),
		shell.LanguageName: shellTable(
			shellScript("analyze", "HTTP:POST:/analyze"),
		),
	}

	refs, err := NewHTTPToPythonBridge().Resolve(tables)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	got := refs["script:analyze"]
	if len(got) != 1 || got[0] != "src.api.analyze" {
		t.Errorf("refs[script:analyze] = %v, want [src.api.analyze]", got)
	}
}

func TestUnmatchedHTTPCallsStayUnresolved(t *testing.T) {
	tables := map[string]core.Table{
		pylang.LanguageName: pythonTable(
			handler("src.api.analyze", "POST", "/analyze"),
		),
		shell.LanguageName: shellTable(
			// Wrong method and unknown path; neither resolves.
			shellScript("probe", "HTTP:GET:/analyze", "HTTP:POST:/missing"),
		),
	}

	refs, err := NewHTTPToPythonBridge().Resolve(tables)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("refs = %v, want empty", refs)
	}
}

func TestResolvePythonModuleInvocation(t *testing.T) {
	worker := &core.Symbol{
		Name:          "main",
		QualifiedName: "src.worker.main",
		FilePath:      "src/worker.py",
	}
	server := &core.Symbol{
		Name:          "<script:serve>",
		QualifiedName: "<script:serve>",
		FilePath:      "src/serve.py",
	}
	tables := map[string]core.Table{
		pylang.LanguageName: pythonTable(worker, server),
		shell.LanguageName: shellTable(
			shellScript("run", "PYTHON:src.worker", "PYTHON:./src/serve.py"),
		),
	}

	refs, err := NewHTTPToPythonBridge().Resolve(tables)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	got := refs["script:run"]
	want := []string{"src.worker.main", "<script:serve>"}
	if len(got) != len(want) {
		t.Fatalf("refs[script:run] = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("refs[script:run][%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDuplicateRawCallsResolveOnce(t *testing.T) {
	tables := map[string]core.Table{
		pylang.LanguageName: pythonTable(
			handler("src.api.analyze", "POST", "/analyze"),
		),
		shell.LanguageName: shellTable(
			shellScript("retry", "HTTP:POST:/analyze", "HTTP:POST:/analyze"),
		),
	}

	refs, err := NewHTTPToPythonBridge().Resolve(tables)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := refs["script:retry"]; len(got) != 1 {
		t.Errorf("refs[script:retry] = %v, want exactly one target", got)
	}
}

func TestMissingPythonTableIsNotAnError(t *testing.T) {
	tables := map[string]core.Table{
		shell.LanguageName: shellTable(
			shellScript("lonely", "HTTP:GET:/health"),
		),
	}

	refs, err := NewHTTPToPythonBridge().Resolve(tables)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("refs = %v, want empty", refs)
	}
}

func TestCanBridge(t *testing.T) {
	b := NewHTTPToPythonBridge()
	if !b.CanBridge("shell", "python") {
		t.Error("CanBridge(shell, python) = false, want true")
	}
	if b.CanBridge("python", "shell") {
		t.Error("CanBridge(python, shell) = true, want false")
	}
}

func TestBridgeAppliesThroughRegistry(t *testing.T) {
	script := shellScript("analyze", "HTTP:POST:/analyze")
	tables := map[string]core.Table{
		pylang.LanguageName: pythonTable(
			handler("src.api.analyze", "POST", "/analyze"),
		),
		shell.LanguageName: shellTable(script),
	}

	registry := core.NewBridgeRegistry()
	registry.Register(NewHTTPToPythonBridge())
	registry.ResolveAll(tables)

	if _, ok := script.ResolvedCallSet()["src.api.analyze"]; !ok {
		t.Errorf("ResolvedCalls = %v, want to contain src.api.analyze", script.ResolvedCalls)
	}
}
