// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package calltree builds call trees rooted at entry-point symbols over
// the flat resolved-symbol universe produced by analysis.
package calltree

import (
	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
)

// DefaultDepth is the minimum depth to which trees are marked expanded.
const DefaultDepth = 6

// Node is one vertex of a call tree. Children follow the owning symbol's
// resolved-call order, deduplicated, restricted to targets present in the
// universe.
type Node struct {
	Symbol   *core.Symbol `json:"symbol"`
	Children []*Node      `json:"children,omitempty"`
	Depth    int          `json:"depth"`
	Expanded bool         `json:"expanded"`
}

// Option configures tree building.
type Option func(*treeBuilder)

// WithDefaultDepth overrides the minimum expansion depth.
func WithDefaultDepth(depth int) Option {
	return func(b *treeBuilder) {
		if depth > 0 {
			b.defaultDepth = depth
		}
	}
}

type treeBuilder struct {
	universe        map[string]*core.Symbol
	defaultDepth    int
	maxChangedDepth int
}

// BuildCallTrees builds one tree per entry point, in the order given.
//
// Construction is two-pass. The first pass builds nodes depth-first,
// carrying a per-branch visited set (copied, not shared) so a symbol
// already on the current path becomes a leaf instead of looping; it also
// records the deepest node whose symbol carries HasChanges. The second
// pass marks every node shallower than max(DefaultDepth, deepest changed
// depth) as expanded, so a change buried deep in a tree forces the whole
// tree open to at least that depth.
func BuildCallTrees(entryPoints []*core.Symbol, universe map[string]*core.Symbol, opts ...Option) []*Node {
	b := &treeBuilder{
		universe:        universe,
		defaultDepth:    DefaultDepth,
		maxChangedDepth: -1,
	}
	for _, opt := range opts {
		opt(b)
	}

	trees := make([]*Node, 0, len(entryPoints))
	for _, entry := range entryPoints {
		trees = append(trees, b.build(entry, 0, nil))
	}

	expansionDepth := b.defaultDepth
	if b.maxChangedDepth > expansionDepth {
		expansionDepth = b.maxChangedDepth
	}
	for _, tree := range trees {
		markExpanded(tree, expansionDepth)
	}
	return trees
}

// build constructs the node for sym at the given depth. visited holds the
// qualified names on the path from the root to sym's parent; each
// recursion copies it, so sibling branches never see each other's paths.
func (b *treeBuilder) build(sym *core.Symbol, depth int, visited map[string]bool) *Node {
	node := &Node{Symbol: sym, Depth: depth}
	if sym.HasChanges && depth > b.maxChangedDepth {
		b.maxChangedDepth = depth
	}
	if visited[sym.QualifiedName] {
		return node
	}

	branch := make(map[string]bool, len(visited)+1)
	for name := range visited {
		branch[name] = true
	}
	branch[sym.QualifiedName] = true

	seen := make(map[string]bool, len(sym.ResolvedCalls))
	for _, call := range sym.ResolvedCalls {
		if seen[call] {
			continue
		}
		seen[call] = true
		target, ok := b.universe[call]
		if !ok {
			continue
		}
		node.Children = append(node.Children, b.build(target, depth+1, branch))
	}
	return node
}

func markExpanded(node *Node, expansionDepth int) {
	node.Expanded = node.Depth < expansionDepth
	for _, child := range node.Children {
		markExpanded(child, expansionDepth)
	}
}
