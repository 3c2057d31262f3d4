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

import "testing"

func containsCall(calls []string, target string) bool {
	for _, c := range calls {
		if c == target {
			return true
		}
	}
	return false
}

func TestResolveLocalBindingMethodCall(t *testing.T) {
	const src = `class Foo:
    def bar(self):
        pass


def f():
    x = Foo()
    x.bar()
`
	table := buildMerged(t, map[string]string{"mod.py": src})

	sym, ok := table.Get("mod.f")
	if !ok {
		t.Fatalf("mod.f not found")
	}
	if !containsCall(sym.ResolvedCalls, "mod.Foo.bar") {
		t.Errorf("ResolvedCalls = %v, want to contain mod.Foo.bar", sym.ResolvedCalls)
	}
}

func TestResolveConstructorPrefersInit(t *testing.T) {
	const src = `class WithInit:
    def __init__(self):
        pass


class Bare:
    def method(self):
        pass


def f():
    WithInit()
    Bare()
`
	table := buildMerged(t, map[string]string{"mod.py": src})

	sym, _ := table.Get("mod.f")
	if !containsCall(sym.ResolvedCalls, "mod.WithInit.__init__") {
		t.Errorf("ResolvedCalls = %v, want mod.WithInit.__init__", sym.ResolvedCalls)
	}
	if !containsCall(sym.ResolvedCalls, "mod.Bare") {
		t.Errorf("ResolvedCalls = %v, want mod.Bare (class identity, no __init__)", sym.ResolvedCalls)
	}
}

func TestResolveSelfMethodAndInstanceAttribute(t *testing.T) {
	table := buildMerged(t, map[string]string{"src/engine.py": engineSource})

	run, _ := table.Get("src.engine.Engine.run")
	if run == nil {
		t.Fatalf("src.engine.Engine.run not found")
	}
	if !containsCall(run.ResolvedCalls, "src.engine.Store.flush") {
		t.Errorf("ResolvedCalls = %v, want src.engine.Store.flush via self.store", run.ResolvedCalls)
	}
	if !containsCall(run.ResolvedCalls, "src.engine.Engine._prepare") {
		t.Errorf("ResolvedCalls = %v, want src.engine.Engine._prepare via self", run.ResolvedCalls)
	}
}

func TestResolveModuleImport(t *testing.T) {
	files := map[string]string{
		"src/helpers.py": "def transform():\n    pass\n",
		"src/job.py": `from src.helpers import transform


def work():
    transform()
`,
	}
	table := buildMerged(t, files)

	sym, _ := table.Get("src.job.work")
	if !containsCall(sym.ResolvedCalls, "src.helpers.transform") {
		t.Errorf("ResolvedCalls = %v, want src.helpers.transform", sym.ResolvedCalls)
	}
}

func TestResolveFunctionLocalImport(t *testing.T) {
	files := map[string]string{
		"src/helpers.py": "def transform():\n    pass\n",
		"src/job.py": `def work():
    from src.helpers import transform
    transform()
`,
	}
	table := buildMerged(t, files)

	sym, _ := table.Get("src.job.work")
	if !containsCall(sym.ResolvedCalls, "src.helpers.transform") {
		t.Errorf("ResolvedCalls = %v, want src.helpers.transform via local import", sym.ResolvedCalls)
	}
}

func TestResolveSameModuleCall(t *testing.T) {
	table := buildMerged(t, map[string]string{"src/api.py": apiSource})

	sym, _ := table.Get("src.api.analyze")
	if !containsCall(sym.ResolvedCalls, "src.api.build_report") {
		t.Errorf("ResolvedCalls = %v, want src.api.build_report", sym.ResolvedCalls)
	}
}

func TestResolveDottedPrefixAgainstImports(t *testing.T) {
	files := map[string]string{
		"src/utils/text.py": "def clean():\n    pass\n",
		"src/job.py": `import src.utils.text


def work():
    src.utils.text.clean()
`,
	}
	table := buildMerged(t, files)

	sym, _ := table.Get("src.job.work")
	if !containsCall(sym.ResolvedCalls, "src.utils.text.clean") {
		t.Errorf("ResolvedCalls = %v, want src.utils.text.clean", sym.ResolvedCalls)
	}
}

func TestResolveAliasedModuleImport(t *testing.T) {
	files := map[string]string{
		"src/utils/text.py": "def clean():\n    pass\n",
		"src/job.py": `import src.utils.text as txt


def work():
    txt.clean()
`,
	}
	table := buildMerged(t, files)

	sym, _ := table.Get("src.job.work")
	if !containsCall(sym.ResolvedCalls, "src.utils.text.clean") {
		t.Errorf("ResolvedCalls = %v, want src.utils.text.clean via alias", sym.ResolvedCalls)
	}
}

func TestResolveUnknownCallsStayUnresolved(t *testing.T) {
	const src = `import json


def work():
    json.dumps({})
    print("hi")
`
	table := buildMerged(t, map[string]string{"mod.py": src})

	sym, _ := table.Get("mod.work")
	if len(sym.ResolvedCalls) != 0 {
		t.Errorf("ResolvedCalls = %v, want none (stdlib calls unresolvable)", sym.ResolvedCalls)
	}
	if len(sym.RawCalls) != 2 {
		t.Errorf("RawCalls = %v, want the two raw expressions preserved", sym.RawCalls)
	}
}

func TestResolveCallsIsIdempotent(t *testing.T) {
	a := NewAnalyzer()
	table := buildMerged(t, map[string]string{"src/api.py": apiSource, "src/engine.py": engineSource})

	first := make(map[string][]string)
	for _, sym := range table.Symbols() {
		first[sym.QualifiedName] = append([]string(nil), sym.ResolvedCalls...)
	}

	a.ResolveCalls(table)

	for _, sym := range table.Symbols() {
		want := first[sym.QualifiedName]
		if len(sym.ResolvedCalls) != len(want) {
			t.Fatalf("%s: resolved %v after second pass, want %v",
				sym.QualifiedName, sym.ResolvedCalls, want)
		}
		for i := range want {
			if sym.ResolvedCalls[i] != want[i] {
				t.Errorf("%s: ResolvedCalls[%d] = %s, want %s",
					sym.QualifiedName, i, sym.ResolvedCalls[i], want[i])
			}
		}
	}
}
