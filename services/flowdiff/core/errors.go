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
	"errors"
	"fmt"
)

// Sentinel errors for the analysis and diff pipeline. Callers match these
// with errors.Is; the typed error structs below carry the context.
var (
	// ErrUnsupportedLanguage indicates no registered analyzer owns the file.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrInvalidContent indicates the file content cannot be analyzed
	// (empty, too large, or not valid text).
	ErrInvalidContent = errors.New("invalid content")

	// ErrParseFailed indicates the language parser could not produce a
	// syntax tree. Per-file parse failures are recoverable: the file is
	// skipped with a warning and the run continues.
	ErrParseFailed = errors.New("parse failed")

	// ErrNotGitRepository indicates a diff was requested against a path
	// that is not inside a git work tree. Fatal to the diff operation.
	ErrNotGitRepository = errors.New("not a git repository")

	// ErrUnknownRef indicates a reference string could not be resolved to
	// a commit. Fatal to the diff operation.
	ErrUnknownRef = errors.New("unknown git reference")

	// ErrExtractionFailed indicates materializing a reference's tree into
	// a temporary directory failed. Fatal to the diff operation for that
	// reference.
	ErrExtractionFailed = errors.New("ref extraction failed")

	// ErrContextCanceled indicates the caller's context was canceled.
	ErrContextCanceled = errors.New("context canceled")

	// ErrTimeout indicates an external process exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")
)

// AnalysisError is a recoverable per-file analysis failure with location
// context. It wraps one of the sentinel errors above.
type AnalysisError struct {
	FilePath string
	Line     int
	Message  string
	Cause    error
}

func (e *AnalysisError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("analysis error in %s:%d: %s", e.FilePath, e.Line, e.Message)
	}
	return fmt.Sprintf("analysis error in %s: %s", e.FilePath, e.Message)
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// NewAnalysisError creates an AnalysisError wrapping cause.
func NewAnalysisError(filePath string, line int, message string, cause error) *AnalysisError {
	return &AnalysisError{
		FilePath: filePath,
		Line:     line,
		Message:  message,
		Cause:    cause,
	}
}

// GitError is a failure of an external git invocation. Cmd is the argv that
// failed and Stderr the captured (truncated) standard error, so callers can
// report exactly which command and reference broke.
type GitError struct {
	Ref    string
	Cmd    string
	Stderr string
	Cause  error
}

func (e *GitError) Error() string {
	msg := fmt.Sprintf("git %s failed", e.Cmd)
	if e.Ref != "" {
		msg += fmt.Sprintf(" for ref %q", e.Ref)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *GitError) Unwrap() error {
	return e.Cause
}
