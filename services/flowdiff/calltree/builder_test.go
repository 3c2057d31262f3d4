// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package calltree

import (
	"testing"

	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
)

// universe builds a flat symbol map from name → resolved calls.
func universe(edges map[string][]string) map[string]*core.Symbol {
	out := make(map[string]*core.Symbol, len(edges))
	for name, calls := range edges {
		out[name] = &core.Symbol{
			Name:          name,
			QualifiedName: name,
			Language:      "python",
			ResolvedCalls: calls,
		}
	}
	return out
}

func childNames(node *Node) []string {
	names := make([]string, 0, len(node.Children))
	for _, child := range node.Children {
		names = append(names, child.Symbol.QualifiedName)
	}
	return names
}

func TestBuildSimpleChain(t *testing.T) {
	u := universe(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": nil,
	})

	trees := BuildCallTrees([]*core.Symbol{u["a"]}, u)
	if len(trees) != 1 {
		t.Fatalf("len(trees) = %d, want 1", len(trees))
	}

	root := trees[0]
	if root.Symbol.QualifiedName != "a" || root.Depth != 0 {
		t.Fatalf("root = %s depth %d, want a depth 0", root.Symbol.QualifiedName, root.Depth)
	}
	if len(root.Children) != 1 || root.Children[0].Symbol.QualifiedName != "b" {
		t.Fatalf("root children = %v, want [b]", childNames(root))
	}
	leaf := root.Children[0].Children[0]
	if leaf.Symbol.QualifiedName != "c" || leaf.Depth != 2 {
		t.Errorf("grandchild = %s depth %d, want c depth 2", leaf.Symbol.QualifiedName, leaf.Depth)
	}
	for _, node := range []*Node{root, root.Children[0], leaf} {
		if !node.Expanded {
			t.Errorf("node %s at depth %d not expanded", node.Symbol.QualifiedName, node.Depth)
		}
	}
}

func TestMutualRecursionTerminates(t *testing.T) {
	u := universe(map[string][]string{
		"a": {"b"},
		"b": {"a"},
	})

	root := BuildCallTrees([]*core.Symbol{u["a"]}, u)[0]
	b := root.Children[0]
	if len(b.Children) != 1 {
		t.Fatalf("b children = %v, want the cycle leaf [a]", childNames(b))
	}
	leaf := b.Children[0]
	if leaf.Symbol.QualifiedName != "a" || len(leaf.Children) != 0 {
		t.Errorf("cycle leaf = %s with %d children, want a with none",
			leaf.Symbol.QualifiedName, len(leaf.Children))
	}
}

func TestSelfRecursionTerminates(t *testing.T) {
	u := universe(map[string][]string{
		"loop": {"loop"},
	})

	root := BuildCallTrees([]*core.Symbol{u["loop"]}, u)[0]
	if len(root.Children) != 1 || len(root.Children[0].Children) != 0 {
		t.Errorf("self-recursive tree = %v, want single leaf child", childNames(root))
	}
}

func TestVisitedSetIsPerBranch(t *testing.T) {
	// d is reachable through both b and c; a per-branch visited set must
	// expand it under each parent independently.
	u := universe(map[string][]string{
		"a": {"b", "c"},
		"b": {"d"},
		"c": {"d"},
		"d": {"e"},
		"e": nil,
	})

	root := BuildCallTrees([]*core.Symbol{u["a"]}, u)[0]
	for i, parent := range root.Children {
		if len(parent.Children) != 1 || parent.Children[0].Symbol.QualifiedName != "d" {
			t.Fatalf("child %d children = %v, want [d]", i, childNames(parent))
		}
		d := parent.Children[0]
		if len(d.Children) != 1 || d.Children[0].Symbol.QualifiedName != "e" {
			t.Errorf("d under %s = %v, want expanded to [e]",
				parent.Symbol.QualifiedName, childNames(d))
		}
	}
}

func TestUnknownTargetsSkipped(t *testing.T) {
	u := universe(map[string][]string{
		"a": {"json.dumps", "b"},
		"b": nil,
	})

	root := BuildCallTrees([]*core.Symbol{u["a"]}, u)[0]
	got := childNames(root)
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("children = %v, want [b]", got)
	}
}

func TestDuplicateCallsProduceOneChild(t *testing.T) {
	u := universe(map[string][]string{
		"a": {"b", "b"},
		"b": nil,
	})

	root := BuildCallTrees([]*core.Symbol{u["a"]}, u)[0]
	if len(root.Children) != 1 {
		t.Errorf("children = %v, want one", childNames(root))
	}
}

func TestDefaultDepthCollapsesDeepNodes(t *testing.T) {
	edges := map[string][]string{
		"n0": {"n1"}, "n1": {"n2"}, "n2": {"n3"}, "n3": {"n4"},
		"n4": {"n5"}, "n5": {"n6"}, "n6": {"n7"}, "n7": {"n8"},
		"n8": nil,
	}
	u := universe(edges)

	root := BuildCallTrees([]*core.Symbol{u["n0"]}, u)[0]
	node := root
	for node != nil {
		wantExpanded := node.Depth < DefaultDepth
		if node.Expanded != wantExpanded {
			t.Errorf("depth %d expanded = %v, want %v", node.Depth, node.Expanded, wantExpanded)
		}
		if len(node.Children) == 0 {
			break
		}
		node = node.Children[0]
	}
}

func TestDeepChangeForcesExpansion(t *testing.T) {
	edges := map[string][]string{
		"n0": {"n1"}, "n1": {"n2"}, "n2": {"n3"}, "n3": {"n4"},
		"n4": {"n5"}, "n5": {"n6"}, "n6": {"n7"}, "n7": {"n8"},
		"n8": nil,
	}
	u := universe(edges)
	u["n8"].HasChanges = true

	root := BuildCallTrees([]*core.Symbol{u["n0"]}, u)[0]
	node := root
	for node != nil {
		// The change at depth 8 raises the expansion depth to 8, so every
		// node above it opens.
		wantExpanded := node.Depth < 8
		if node.Expanded != wantExpanded {
			t.Errorf("depth %d expanded = %v, want %v", node.Depth, node.Expanded, wantExpanded)
		}
		if len(node.Children) == 0 {
			break
		}
		node = node.Children[0]
	}
}

func TestWithDefaultDepth(t *testing.T) {
	u := universe(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": nil,
	})

	root := BuildCallTrees([]*core.Symbol{u["a"]}, u, WithDefaultDepth(1))[0]
	if !root.Expanded {
		t.Error("root not expanded")
	}
	if root.Children[0].Expanded {
		t.Error("depth-1 node expanded, want collapsed at default depth 1")
	}
}

func TestOneTreePerEntryPoint(t *testing.T) {
	u := universe(map[string][]string{
		"a": nil,
		"b": nil,
	})

	trees := BuildCallTrees([]*core.Symbol{u["a"], u["b"]}, u)
	if len(trees) != 2 {
		t.Fatalf("len(trees) = %d, want 2", len(trees))
	}
	if trees[0].Symbol.QualifiedName != "a" || trees[1].Symbol.QualifiedName != "b" {
		t.Errorf("tree roots = %s, %s; want a, b",
			trees[0].Symbol.QualifiedName, trees[1].Symbol.QualifiedName)
	}
}
