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
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
)

const apiSource = `"""HTTP API handlers."""
from fastapi import FastAPI
from src.engine import Engine

app = FastAPI()


@app.post("/analyze")
def analyze(payload, depth=3):
    """Run one analysis."""
    engine = Engine()
    engine.run()
    return build_report(payload)


@app.get("/health")
def health():
    return {"ok": True}


@app.route("/legacy", methods=["PUT", "POST"])
def legacy_update(payload):
    return payload


def build_report(payload):
    return payload


def _format(payload):
    return payload
`

const engineSource = `class Engine:
    """Core engine."""

    def __init__(self, store=None):
        self.store = Store()

    def run(self):
        self.store.flush()
        self._prepare()

    def _prepare(self):
        pass


class Store:
    def flush(self):
        pass
`

// writeProject materializes source files under a temp dir and returns the
// root. Paths use forward slashes.
func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, src := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(src), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

// buildMerged analyzes every file and returns the merged, resolved table.
func buildMerged(t *testing.T, files map[string]string) *Table {
	t.Helper()
	a := NewAnalyzer()
	ctx := context.Background()

	var tables []core.Table
	root := writeProject(t, files)
	for rel := range files {
		table, err := a.BuildSymbolTable(ctx, root, rel)
		if err != nil {
			t.Fatalf("BuildSymbolTable(%s): %v", rel, err)
		}
		tables = append(tables, table)
	}
	merged := a.MergeSymbolTables(tables).(*Table)
	a.ResolveCalls(merged)
	return merged
}

func TestBuildSymbolTableExtractsFunctions(t *testing.T) {
	table := buildMerged(t, map[string]string{"src/api.py": apiSource})

	sym, ok := table.Get("src.api.analyze")
	if !ok {
		t.Fatalf("src.api.analyze not found")
	}
	if sym.Name != "analyze" {
		t.Errorf("Name = %q, want analyze", sym.Name)
	}
	if sym.Language != "python" {
		t.Errorf("Language = %q, want python", sym.Language)
	}
	if sym.Documentation != "Run one analysis." {
		t.Errorf("Documentation = %q, want docstring", sym.Documentation)
	}
	if sym.LineNumber == 0 {
		t.Errorf("LineNumber = 0, want 1-based line")
	}
	if sym.Metadata == nil {
		t.Fatalf("Metadata is nil")
	}
	if got := sym.Metadata.Parameters; len(got) != 2 || got[0] != "payload" || got[1] != "depth" {
		t.Errorf("Parameters = %v, want [payload depth]", got)
	}
}

func TestBuildSymbolTableHTTPDecorators(t *testing.T) {
	table := buildMerged(t, map[string]string{"src/api.py": apiSource})

	tests := []struct {
		qualified string
		method    string
		route     string
	}{
		{"src.api.analyze", "POST", "/analyze"},
		{"src.api.health", "GET", "/health"},
		{"src.api.legacy_update", "PUT", "/legacy"},
	}
	for _, tc := range tests {
		sym, ok := table.Get(tc.qualified)
		if !ok {
			t.Fatalf("%s not found", tc.qualified)
		}
		if sym.Metadata.HTTPMethod != tc.method {
			t.Errorf("%s HTTPMethod = %q, want %q", tc.qualified, sym.Metadata.HTTPMethod, tc.method)
		}
		if sym.Metadata.HTTPRoute != tc.route {
			t.Errorf("%s HTTPRoute = %q, want %q", tc.qualified, sym.Metadata.HTTPRoute, tc.route)
		}
	}
}

func TestBuildSymbolTableExtractsClassesAndMethods(t *testing.T) {
	table := buildMerged(t, map[string]string{"src/engine.py": engineSource})

	if _, ok := table.Get("src.engine.Engine"); !ok {
		t.Fatalf("class symbol src.engine.Engine not found")
	}
	method, ok := table.Get("src.engine.Engine.run")
	if !ok {
		t.Fatalf("method symbol src.engine.Engine.run not found")
	}
	if !method.Metadata.IsClassMethod {
		t.Errorf("IsClassMethod = false, want true")
	}

	if !table.Methods["src.engine.Engine"]["__init__"] {
		t.Errorf("Methods index missing Engine.__init__")
	}
	if got := table.InstanceBindings["src.engine.Engine"]["store"]; got != "Store" {
		t.Errorf("InstanceBindings[store] = %q, want Store", got)
	}
	if got := table.ClassesByName["Store"]; got != "src.engine.Store" {
		t.Errorf("ClassesByName[Store] = %q, want src.engine.Store", got)
	}
}

func TestBuildSymbolTableLocalBindingsAndImports(t *testing.T) {
	const src = `def work():
    from src.helpers import transform
    client = HttpClient()
    client.send()
    transform()
`
	table := buildMerged(t, map[string]string{"src/job.py": src})

	sym, ok := table.Get("src.job.work")
	if !ok {
		t.Fatalf("src.job.work not found")
	}
	if got := sym.Metadata.LocalBindings["client"]; got != "HttpClient" {
		t.Errorf("LocalBindings[client] = %q, want HttpClient", got)
	}
	if got := sym.Metadata.LocalImports["transform"]; got != "src.helpers.transform" {
		t.Errorf("LocalImports[transform] = %q, want src.helpers.transform", got)
	}
	if len(sym.RawCalls) != 3 {
		t.Errorf("RawCalls = %v, want 3 entries", sym.RawCalls)
	}
}

func TestBuildSymbolTableRelativeImports(t *testing.T) {
	const src = `from . import sibling
from .utils import helper
from ..common import shared
`
	table := buildMerged(t, map[string]string{"pkg/sub/mod.py": src})

	wants := map[string]string{
		"sibling": "pkg.sub.sibling",
		"helper":  "pkg.sub.utils.helper",
		"shared":  "pkg.common.shared",
	}
	for alias, want := range wants {
		if got := table.Imports[alias]; got != want {
			t.Errorf("Imports[%s] = %q, want %q", alias, got, want)
		}
	}
}

func TestBuildSymbolTablePackageInitRelativeImports(t *testing.T) {
	const initSrc = `from .engine import Engine
from ..common import shared

def bootstrap():
    engine = Engine()
    engine.run()
`
	const pkgEngine = `class Engine:
    def run(self):
        pass
`
	table := buildMerged(t, map[string]string{
		"src/api/__init__.py": initSrc,
		"src/api/engine.py":   pkgEngine,
	})

	// In __init__.py the module name is the package itself, so one dot
	// stays inside src.api instead of climbing out of it.
	wants := map[string]string{
		"Engine": "src.api.engine.Engine",
		"shared": "src.common.shared",
	}
	for alias, want := range wants {
		if got := table.Imports[alias]; got != want {
			t.Errorf("Imports[%s] = %q, want %q", alias, got, want)
		}
	}

	sym, ok := table.Get("src.api.bootstrap")
	if !ok {
		t.Fatalf("src.api.bootstrap not found")
	}
	if _, ok := sym.ResolvedCallSet()["src.api.engine.Engine.run"]; !ok {
		t.Errorf("ResolvedCalls = %v, want src.api.engine.Engine.run", sym.ResolvedCalls)
	}
}

func TestBuildSymbolTableMalformedSourceIsRecoverable(t *testing.T) {
	const src = "def broken(:\n  ???\n"
	a := NewAnalyzer()
	root := writeProject(t, map[string]string{"bad.py": src})

	table, err := a.BuildSymbolTable(context.Background(), root, "bad.py")
	if err != nil {
		t.Fatalf("malformed source must not error, got %v", err)
	}
	if table == nil {
		t.Fatalf("table is nil, want empty table")
	}
}

func TestBuildSymbolTableMissingFileIsRecoverable(t *testing.T) {
	a := NewAnalyzer()
	table, err := a.BuildSymbolTable(context.Background(), t.TempDir(), "absent.py")
	if err != nil {
		t.Fatalf("unreadable file must not error, got %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0", table.Len())
	}
}

func TestMergeSymbolTablesDeterministicCollision(t *testing.T) {
	a := NewAnalyzer()
	ctx := context.Background()
	root := writeProject(t, map[string]string{
		"a.py": "def dup():\n    pass\n",
		"b.py": "def dup():\n    return 1\n",
	})

	// Both files define a symbol whose bare name collides once the module
	// prefix is stripped by a synthetic rename.
	ta, err := a.BuildSymbolTable(ctx, root, "a.py")
	if err != nil {
		t.Fatalf("build a.py: %v", err)
	}
	tb, err := a.BuildSymbolTable(ctx, root, "b.py")
	if err != nil {
		t.Fatalf("build b.py: %v", err)
	}

	// Force a qualified-name collision.
	symA, _ := ta.Get("a.dup")
	symB, _ := tb.Get("b.dup")
	symA.QualifiedName = "dup"
	symB.QualifiedName = "dup"
	ta.(*Table).Add(symA)
	tb.(*Table).Add(symB)

	m1 := a.MergeSymbolTables([]core.Table{ta, tb}).(*Table)
	m2 := a.MergeSymbolTables([]core.Table{tb, ta}).(*Table)

	s1, _ := m1.Get("dup")
	s2, _ := m2.Get("dup")
	if s1 == nil || s2 == nil {
		t.Fatalf("collision symbol missing after merge")
	}
	if s1.FilePath != s2.FilePath {
		t.Errorf("merge order changed the winner: %s vs %s", s1.FilePath, s2.FilePath)
	}
	if s1.FilePath != "b.py" {
		t.Errorf("winner = %s, want b.py (lexicographically last path wins)", s1.FilePath)
	}
}

func TestCanAnalyze(t *testing.T) {
	a := NewAnalyzer()
	if !a.CanAnalyze("src/api.py") {
		t.Errorf("CanAnalyze(src/api.py) = false, want true")
	}
	if a.CanAnalyze("run.sh") {
		t.Errorf("CanAnalyze(run.sh) = true, want false")
	}
}

func TestModuleName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"src/api/handlers.py", "src.api.handlers"},
		{"src/api/__init__.py", "src.api"},
		{"main.py", "main"},
	}
	for _, tc := range tests {
		if got := moduleName(tc.path); got != tc.want {
			t.Errorf("moduleName(%s) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
