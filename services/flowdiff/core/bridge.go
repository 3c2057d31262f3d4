// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package core

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Bridge resolves calls that cross a language boundary. Bridges run only
// after every analyzer's ResolveCalls has completed, and must tolerate the
// partner language's table being absent (return an empty map, not an error).
type Bridge interface {
	// Name identifies the bridge in logs and error reports.
	Name() string

	// CanBridge reports whether this bridge maps calls from one language
	// to another.
	CanBridge(fromLanguage, toLanguage string) bool

	// Resolve inspects all tables and returns source qualified name →
	// target qualified names for every cross-language edge it can prove.
	Resolve(tables map[string]Table) (map[string][]string, error)
}

// BridgeRegistry holds registered bridges and applies their results.
//
// Thread Safety: safe for concurrent use.
type BridgeRegistry struct {
	mu      sync.RWMutex
	bridges []Bridge
}

// NewBridgeRegistry creates an empty bridge registry.
func NewBridgeRegistry() *BridgeRegistry {
	return &BridgeRegistry{}
}

// Register adds a bridge. Bridges run in registration order.
func (r *BridgeRegistry) Register(b Bridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bridges = append(r.bridges, b)
}

// Bridges returns the registered bridges in registration order.
func (r *BridgeRegistry) Bridges() []Bridge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Bridge, len(r.bridges))
	copy(out, r.bridges)
	return out
}

// ResolveAll runs every registered bridge and appends its cross-references
// to the source symbols' ResolvedCalls. A bridge returning an error, or
// panicking, contributes nothing for this run; the failure is logged as a
// warning and the pipeline continues with those edges missing.
func (r *BridgeRegistry) ResolveAll(tables map[string]Table) {
	for _, b := range r.Bridges() {
		refs, err := runBridge(b, tables)
		if err != nil {
			slog.Warn("Bridge resolution failed, cross-language edges missing",
				slog.String("bridge", b.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		applyCrossRefs(tables, refs)
	}
}

// runBridge invokes one bridge with panic containment.
func runBridge(b Bridge, tables map[string]Table) (refs map[string][]string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			refs = nil
			err = fmt.Errorf("bridge %s panicked: %v", b.Name(), rec)
		}
	}()
	return b.Resolve(tables)
}

// applyCrossRefs appends bridge results to the owning symbols. This is the
// single permitted mutation of a table after resolution completes.
func applyCrossRefs(tables map[string]Table, refs map[string][]string) {
	sources := make([]string, 0, len(refs))
	for source := range refs {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	for _, source := range sources {
		for _, table := range tables {
			sym, ok := table.Get(source)
			if !ok {
				continue
			}
			for _, target := range refs[source] {
				sym.AddResolvedCall(target)
			}
			break
		}
	}
}
