// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gitdiff compares the symbol universes of two git references and
// reports structural changes: which symbols were added, modified, or
// deleted, and how those changes ripple through the call trees.
package gitdiff

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
)

// WorkingTree is the reference token meaning "current uncommitted state".
// It resolves to an empty commit identifier; the diff engine reads the
// project directory in place instead of materializing an archive.
const WorkingTree = "working"

const (
	// DefaultTimeout bounds ordinary git invocations.
	DefaultTimeout = 30 * time.Second

	// DefaultArchiveTimeout bounds archive extraction, which scales with
	// repository size.
	DefaultArchiveTimeout = 120 * time.Second

	// maxOutputBytes caps captured command output. Diff listings beyond
	// this indicate something pathological; the output is truncated.
	maxOutputBytes = 16 * 1024 * 1024
)

// ClientOption configures a GitClient.
type ClientOption func(*GitClient)

// WithTimeout sets the per-command timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(g *GitClient) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithArchiveTimeout sets the archive-extraction timeout.
func WithArchiveTimeout(d time.Duration) ClientOption {
	return func(g *GitClient) {
		if d > 0 {
			g.archiveTimeout = d
		}
	}
}

// GitClient executes git commands against one repository.
//
// Thread Safety: all methods are safe for concurrent use.
type GitClient struct {
	repoPath       string
	timeout        time.Duration
	archiveTimeout time.Duration
}

// NewGitClient creates a git client rooted at repoPath.
func NewGitClient(repoPath string, opts ...ClientOption) *GitClient {
	g := &GitClient{
		repoPath:       repoPath,
		timeout:        DefaultTimeout,
		archiveTimeout: DefaultArchiveTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// limitedWriter retains the first limit bytes and discards the rest, so a
// runaway command cannot exhaust memory. Truncation is not an error.
type limitedWriter struct {
	buf   bytes.Buffer
	limit int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if remaining := w.limit - w.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			w.buf.Write(p[:remaining])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}

func (w *limitedWriter) String() string {
	return w.buf.String()
}

// run executes one git command and returns trimmed stdout.
func (g *GitClient) run(ctx context.Context, ref string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.repoPath

	stdout := &limitedWriter{limit: maxOutputBytes}
	stderr := &limitedWriter{limit: 64 * 1024}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		cause := err
		if ctx.Err() == context.DeadlineExceeded {
			cause = fmt.Errorf("%w after %v", core.ErrTimeout, g.timeout)
		}
		return "", &core.GitError{
			Ref:    ref,
			Cmd:    strings.Join(args, " "),
			Stderr: strings.TrimSpace(stderr.String()),
			Cause:  cause,
		}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// IsRepository reports whether the project root is inside a git work tree.
func (g *GitClient) IsRepository(ctx context.Context) bool {
	_, err := g.run(ctx, "", "rev-parse", "--git-dir")
	return err == nil
}

// ResolveRef resolves a symbolic reference to a full commit sha. The
// WorkingTree token resolves to the empty string, the sentinel for "use
// the work tree in place". Unresolvable references yield ErrUnknownRef.
func (g *GitClient) ResolveRef(ctx context.Context, ref string) (string, error) {
	if ref == WorkingTree {
		return "", nil
	}
	sha, err := g.run(ctx, ref, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", core.ErrUnknownRef, ref, err)
	}
	return sha, nil
}

// DescribeRef renders a human-readable description of a reference:
// "<ref> (<branch>, <shortsha>) - <subject>". The working tree describes
// as "working (uncommitted changes)"; lookup failures fall back to the
// raw reference string.
func (g *GitClient) DescribeRef(ctx context.Context, ref string) string {
	if ref == WorkingTree {
		return "working (uncommitted changes)"
	}

	short, err := g.run(ctx, ref, "rev-parse", "--short", ref+"^{commit}")
	if err != nil {
		return ref
	}
	branch, err := g.run(ctx, ref, "rev-parse", "--abbrev-ref", ref)
	switch {
	case err != nil || branch == "" || branch == "HEAD":
		branch = "detached"
	case branch == ref && (strings.HasPrefix(ref, short) || strings.HasPrefix(short, ref)):
		// A raw sha has no branch to abbreviate to; git echoes it back.
		branch = "detached"
	}
	subject, err := g.run(ctx, ref, "log", "-1", "--format=%s", ref)
	if err != nil {
		subject = ""
	}

	desc := fmt.Sprintf("%s (%s, %s)", ref, branch, short)
	if subject != "" {
		desc += " - " + subject
	}
	return desc
}

// MaterializeRef extracts the full tree of a resolved commit into a fresh
// private temporary directory via git archive piped into tar. The caller
// must invoke cleanup when done with the directory.
func (g *GitClient) MaterializeRef(ctx context.Context, sha string) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "flowdiff-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", core.ErrExtractionFailed, err)
	}
	cleanup = func() { _ = os.RemoveAll(dir) }

	ctx, cancel := context.WithTimeout(ctx, g.archiveTimeout)
	defer cancel()

	archive := exec.CommandContext(ctx, "git", "archive", sha)
	archive.Dir = g.repoPath
	archiveErr := &limitedWriter{limit: 64 * 1024}
	archive.Stderr = archiveErr

	extract := exec.CommandContext(ctx, "tar", "-x", "-C", dir)
	extractErr := &limitedWriter{limit: 64 * 1024}
	extract.Stderr = extractErr

	pipe, err := archive.StdoutPipe()
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("%w: %w", core.ErrExtractionFailed, err)
	}
	extract.Stdin = pipe

	if err := extract.Start(); err != nil {
		cleanup()
		return "", nil, extractionError(sha, "tar -x", extractErr.String(), err)
	}
	if err := archive.Run(); err != nil {
		_ = extract.Wait()
		cleanup()
		return "", nil, extractionError(sha, "archive "+sha, archiveErr.String(), err)
	}
	if err := extract.Wait(); err != nil {
		cleanup()
		return "", nil, extractionError(sha, "tar -x", extractErr.String(), err)
	}
	return dir, cleanup, nil
}

func extractionError(ref, cmd, stderr string, cause error) error {
	return fmt.Errorf("%w: %w", core.ErrExtractionFailed, &core.GitError{
		Ref:    ref,
		Cmd:    cmd,
		Stderr: strings.TrimSpace(stderr),
		Cause:  cause,
	})
}
