// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package shell implements the shell-script analyzer. A script is the unit
// of analysis: every file yields exactly one symbol whose raw calls are the
// HTTP client invocations and Python interpreter invocations found by
// pattern matching. Shell symbols are always entry points; a script's only
// caller is the operator.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
)

// LanguageName is the stable identifier for this analyzer.
const LanguageName = "shell"

// QualifiedPrefix prefixes every shell symbol's qualified name so script
// names can never collide with Python module paths.
const QualifiedPrefix = "script:"

// Raw-call encodings shared with the HTTP bridge.
const (
	HTTPCallPrefix   = "HTTP:"
	PythonCallPrefix = "PYTHON:"
)

var (
	// curl/wget/httpie invocations. Method flags are extracted separately;
	// these only gate which lines are inspected for a URL.
	curlPattern   = regexp.MustCompile(`\bcurl\b`)
	wgetPattern   = regexp.MustCompile(`\bwget\b`)
	httpiePattern = regexp.MustCompile(`^\s*https?\s+([A-Z]+)\s+(\S+)`)

	// Explicit method flags: -X POST, -XPOST, --request POST, --request=POST,
	// --method=POST.
	methodFlagPattern = regexp.MustCompile(`(?:-X\s*|--request[\s=]|--method[\s=])([A-Za-z]+)`)

	// First http(s) URL on the line, possibly quoted.
	urlPattern = regexp.MustCompile(`https?://[^\s"']+`)

	// wget POST-implying flags.
	wgetPostPattern = regexp.MustCompile(`--post-(?:data|file)\b`)

	// python module invocation: python -m pkg.mod, python3 -m pkg.mod.
	pythonModulePattern = regexp.MustCompile(`\bpython[0-9.]*\s+(?:[^|;#]*\s)?-m\s+([A-Za-z0-9_.]+)`)

	// python script invocation: python path/to/script.py.
	pythonScriptPattern = regexp.MustCompile(`\bpython[0-9.]*\s+(?:-[A-Za-z]+\s+)*([^\s;|&]+\.py)\b`)
)

// Analyzer implements core.Analyzer for shell scripts.
//
// Thread Safety: safe for concurrent BuildSymbolTable calls; the analyzer
// itself is stateless.
type Analyzer struct{}

// NewAnalyzer creates a shell analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// LanguageName returns "shell".
func (a *Analyzer) LanguageName() string {
	return LanguageName
}

// Extensions returns the file extensions this analyzer owns.
func (a *Analyzer) Extensions() []string {
	return []string{".sh", ".bash"}
}

// CanAnalyze reports whether the path is a shell script.
func (a *Analyzer) CanAnalyze(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".sh" || ext == ".bash"
}

// BuildSymbolTable produces the script's single symbol. Unreadable files
// contribute an empty table and a warning, never an error.
func (a *Analyzer) BuildSymbolTable(ctx context.Context, projectRoot, path string) (core.Table, error) {
	ctx, span := core.StartAnalyzeSpan(ctx, LanguageName, path)
	defer span.End()

	start := time.Now()
	table := core.NewBaseTable(LanguageName)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis canceled before start: %w", err)
	}

	content, err := os.ReadFile(filepath.Join(projectRoot, filepath.FromSlash(path)))
	if err != nil {
		core.RecordAnalyzeMetrics(ctx, LanguageName, time.Since(start), 0, false)
		slog.Warn("Skipping unreadable shell script",
			slog.String("file", path),
			slog.String("error", err.Error()),
		)
		return table, nil
	}

	base := filepath.Base(path)
	sym := &core.Symbol{
		Name:          base,
		QualifiedName: QualifiedPrefix + base,
		Language:      LanguageName,
		FilePath:      path,
		LineNumber:    1,
	}

	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		line := scanner.Text()
		lineNo++

		if lineNo == 1 && strings.HasPrefix(line, "#!") {
			sym.Metadata = &core.SymbolMetadata{
				Interpreter: strings.TrimSpace(strings.TrimPrefix(line, "#!")),
			}
			continue
		}
		if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		sym.RawCalls = append(sym.RawCalls, extractHTTPCalls(line)...)
		sym.RawCalls = append(sym.RawCalls, extractPythonCalls(line)...)
	}

	table.Add(sym)
	core.SetAnalyzeSpanResult(span, table.Len())
	core.RecordAnalyzeMetrics(ctx, LanguageName, time.Since(start), table.Len(), true)
	return table, nil
}

// MergeSymbolTables combines per-script tables. Scripts never collide (one
// symbol per file, keyed by file name), so ordering only matters for the
// documented last-write-wins rule on same-named scripts in different
// directories.
func (a *Analyzer) MergeSymbolTables(tables []core.Table) core.Table {
	ordered := make([]core.Table, len(tables))
	copy(ordered, tables)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && tableOrigin(ordered[j-1]) > tableOrigin(ordered[j]); j-- {
			ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
		}
	}

	merged := core.NewBaseTable(LanguageName)
	for _, t := range ordered {
		for _, sym := range t.Symbols() {
			merged.Add(sym)
		}
	}
	return merged
}

func tableOrigin(t core.Table) string {
	syms := t.Symbols()
	if len(syms) == 0 {
		return ""
	}
	return syms[0].FilePath
}

// ResolveCalls is a no-op: shell has no intra-language resolution. Cross
// language targets are appended later by bridges.
func (a *Analyzer) ResolveCalls(core.Table) {}

// MarkEntryPoints flags every script symbol. Shell scripts are always
// entry points.
func (a *Analyzer) MarkEntryPoints(table core.Table) {
	for _, sym := range table.Symbols() {
		sym.IsEntryPoint = true
	}
}

// extractHTTPCalls returns HTTP:<METHOD>:<PATH> raw calls for HTTP client
// invocations found on the line. The method defaults to GET when no verb
// flag is present.
func extractHTTPCalls(line string) []string {
	var calls []string

	if m := httpiePattern.FindStringSubmatch(line); m != nil {
		if p := urlPath(m[2]); p != "" {
			calls = append(calls, HTTPCallPrefix+strings.ToUpper(m[1])+":"+p)
		}
		return calls
	}

	isCurl := curlPattern.MatchString(line)
	isWget := wgetPattern.MatchString(line)
	if !isCurl && !isWget {
		return nil
	}

	rawURL := urlPattern.FindString(line)
	if rawURL == "" {
		return nil
	}
	p := urlPath(rawURL)
	if p == "" {
		return nil
	}

	method := "GET"
	if m := methodFlagPattern.FindStringSubmatch(line); m != nil {
		method = strings.ToUpper(m[1])
	} else if isWget && wgetPostPattern.MatchString(line) {
		method = "POST"
	}

	return append(calls, HTTPCallPrefix+method+":"+p)
}

// urlPath extracts the path component of a URL-ish token, defaulting to "/".
func urlPath(raw string) string {
	raw = strings.Trim(raw, `"'`)
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// extractPythonCalls returns PYTHON:<target> raw calls for interpreter
// invocations: module form yields the dotted module, script form the
// script path as written.
func extractPythonCalls(line string) []string {
	var calls []string
	if m := pythonModulePattern.FindStringSubmatch(line); m != nil {
		calls = append(calls, PythonCallPrefix+m[1])
		return calls
	}
	if m := pythonScriptPattern.FindStringSubmatch(line); m != nil {
		target := strings.TrimPrefix(m[1], "./")
		calls = append(calls, PythonCallPrefix+target)
	}
	return calls
}
