// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shell

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
)

func buildScript(t *testing.T, name, content string) *core.Symbol {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	a := NewAnalyzer()
	table, err := a.BuildSymbolTable(context.Background(), root, name)
	if err != nil {
		t.Fatalf("BuildSymbolTable: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("Len() = %d, want exactly one symbol per script", table.Len())
	}
	return table.Symbols()[0]
}

func TestBuildSymbolTableCurlCalls(t *testing.T) {
	const script = `#!/bin/bash
curl -X POST http://localhost:8000/analyze
curl --request PUT "http://localhost:8000/update"
curl http://localhost:8000/health
`
	sym := buildScript(t, "run.sh", script)

	if sym.QualifiedName != "script:run.sh" {
		t.Errorf("QualifiedName = %q, want script:run.sh", sym.QualifiedName)
	}
	if sym.Metadata == nil || sym.Metadata.Interpreter != "/bin/bash" {
		t.Errorf("Interpreter not captured from shebang")
	}

	want := []string{
		"HTTP:POST:/analyze",
		"HTTP:PUT:/update",
		"HTTP:GET:/health",
	}
	if len(sym.RawCalls) != len(want) {
		t.Fatalf("RawCalls = %v, want %v", sym.RawCalls, want)
	}
	for i, w := range want {
		if sym.RawCalls[i] != w {
			t.Errorf("RawCalls[%d] = %q, want %q", i, sym.RawCalls[i], w)
		}
	}
}

func TestBuildSymbolTableCurlJoinedMethodFlag(t *testing.T) {
	sym := buildScript(t, "run.sh", "curl -XDELETE http://localhost:8000/items/1\n")
	if len(sym.RawCalls) != 1 || sym.RawCalls[0] != "HTTP:DELETE:/items/1" {
		t.Errorf("RawCalls = %v, want [HTTP:DELETE:/items/1]", sym.RawCalls)
	}
}

func TestBuildSymbolTableWgetPost(t *testing.T) {
	const script = `wget --post-data "x=1" http://localhost:9000/submit
wget http://localhost:9000/fetch
`
	sym := buildScript(t, "fetch.sh", script)
	want := []string{"HTTP:POST:/submit", "HTTP:GET:/fetch"}
	if len(sym.RawCalls) != 2 || sym.RawCalls[0] != want[0] || sym.RawCalls[1] != want[1] {
		t.Errorf("RawCalls = %v, want %v", sym.RawCalls, want)
	}
}

func TestBuildSymbolTableRootPathDefaults(t *testing.T) {
	sym := buildScript(t, "ping.sh", "curl http://localhost:8000\n")
	if len(sym.RawCalls) != 1 || sym.RawCalls[0] != "HTTP:GET:/" {
		t.Errorf("RawCalls = %v, want [HTTP:GET:/]", sym.RawCalls)
	}
}

func TestBuildSymbolTablePythonInvocations(t *testing.T) {
	const script = `#!/bin/sh
python3 -m src.worker
python ./scripts/migrate.py --all
`
	sym := buildScript(t, "ops.sh", script)
	want := []string{"PYTHON:src.worker", "PYTHON:scripts/migrate.py"}
	if len(sym.RawCalls) != 2 || sym.RawCalls[0] != want[0] || sym.RawCalls[1] != want[1] {
		t.Errorf("RawCalls = %v, want %v", sym.RawCalls, want)
	}
}

func TestBuildSymbolTableIgnoresComments(t *testing.T) {
	const script = `# curl -X POST http://localhost:8000/analyze
echo "no calls here"
`
	sym := buildScript(t, "quiet.sh", script)
	if len(sym.RawCalls) != 0 {
		t.Errorf("RawCalls = %v, want none from comments", sym.RawCalls)
	}
}

func TestMarkEntryPointsAlwaysTrue(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.sh"), []byte("echo hi\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	a := NewAnalyzer()
	table, err := a.BuildSymbolTable(context.Background(), root, "a.sh")
	if err != nil {
		t.Fatalf("BuildSymbolTable: %v", err)
	}
	a.MarkEntryPoints(table)
	if sym := table.Symbols()[0]; !sym.IsEntryPoint {
		t.Errorf("shell symbol IsEntryPoint = false, want true")
	}
}

func TestCanAnalyze(t *testing.T) {
	a := NewAnalyzer()
	if !a.CanAnalyze("scripts/run.sh") || !a.CanAnalyze("x.bash") {
		t.Errorf("CanAnalyze should accept .sh and .bash")
	}
	if a.CanAnalyze("api.py") {
		t.Errorf("CanAnalyze(api.py) = true, want false")
	}
}
