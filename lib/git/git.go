// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for repository
// operations. Relockd uses git for the direct-push reconciliation
// path: cloning the target repository, committing regenerated
// lockfiles, merging remote movement under a conflict policy, and
// pushing. All commands target a specific repository directory via the
// -C flag, which is automatically injected by all Repository methods.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNothingToCommit is returned by Commit when the index matches
// HEAD.
var ErrNothingToCommit = errors.New("git: nothing to commit")

// ErrNonFastForward is returned by Push when the remote rejected the
// update because the remote ref moved.
var ErrNonFastForward = errors.New("git: push rejected, not a fast-forward")

// ConflictError is returned by Merge when the merge produced
// conflicts and no strategy option was given to resolve them. The
// working tree is left clean: Merge aborts the failed merge before
// returning.
type ConflictError struct {
	// Ref is the commitish that was being merged.
	Ref string

	// Output is git's conflict report.
	Output string
}

func (err *ConflictError) Error() string {
	return fmt.Sprintf("git: merging %s produced conflicts", err.Ref)
}

// Repository represents a git repository at a specific directory. All
// operations target this directory via "git -C <dir>". There is no
// default directory — callers must always specify which repository
// they mean.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Clone clones a repository into dir at the given branch and returns
// a Repository targeting it. The clone is shallow: relockd only needs
// the branch tip to commit on top of.
func Clone(ctx context.Context, url, branch, dir string) (*Repository, error) {
	var stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--branch", branch, url, dir)
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("git clone %s (branch %s): %w (stderr: %s)",
			url, branch, err, strings.TrimSpace(stderr.String()))
	}
	return &Repository{dir: dir}, nil
}

// Dir returns the repository directory.
func (repository *Repository) Dir() string {
	return repository.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (repository *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", repository.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), repository.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// SetIdentity configures the author identity for commits made in this
// repository. Repository-local config, so it never leaks into the
// invoking user's global state.
func (repository *Repository) SetIdentity(ctx context.Context, name, email string) error {
	if _, err := repository.Run(ctx, "config", "user.name", name); err != nil {
		return err
	}
	_, err := repository.Run(ctx, "config", "user.email", email)
	return err
}

// WriteFiles writes the given paths (relative to the working tree)
// and stages them. Parent directories are created as needed.
func (repository *Repository) WriteFiles(ctx context.Context, files map[string][]byte) error {
	for path, content := range files {
		target := filepath.Join(repository.dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("git: creating directory for %s: %w", path, err)
		}
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return fmt.Errorf("git: writing %s: %w", path, err)
		}
		if _, err := repository.Run(ctx, "add", "--", path); err != nil {
			return err
		}
	}
	return nil
}

// Commit commits the staged changes. Returns ErrNothingToCommit when
// the index matches HEAD, which callers treat as a clean no-op.
func (repository *Repository) Commit(ctx context.Context, message string) error {
	status, err := repository.Run(ctx, "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		return ErrNothingToCommit
	}
	_, err = repository.Run(ctx, "commit", "--message", message)
	return err
}

// Fetch updates the remote-tracking ref for branch from remote.
func (repository *Repository) Fetch(ctx context.Context, remote, branch string) error {
	_, err := repository.Run(ctx, "fetch", remote, branch)
	return err
}

// Merge merges commitish into the current branch. strategyOption may
// be "theirs" or "ours" to auto-resolve conflicts (git's -X option),
// or empty to fail on conflict. On conflict with no strategy option,
// the merge is aborted and a *ConflictError is returned with the
// working tree restored to its pre-merge state.
func (repository *Repository) Merge(ctx context.Context, commitish, strategyOption string) error {
	args := []string{"merge", "--no-edit"}
	if strategyOption != "" {
		args = append(args, "--strategy-option", strategyOption)
	}
	args = append(args, commitish)

	output, err := repository.Run(ctx, args...)
	if err == nil {
		return nil
	}
	if !strings.Contains(err.Error(), "CONFLICT") && !strings.Contains(err.Error(), "Automatic merge failed") {
		return err
	}
	// Leave the tree clean for the caller's next attempt.
	if _, abortErr := repository.Run(ctx, "merge", "--abort"); abortErr != nil {
		return fmt.Errorf("aborting conflicted merge: %w (merge error: %v)", abortErr, err)
	}
	return &ConflictError{Ref: commitish, Output: output}
}

// Push pushes the current branch to remote branch. Returns
// ErrNonFastForward when the remote rejected the update because its
// ref moved; the caller can fetch, re-merge, and retry.
func (repository *Repository) Push(ctx context.Context, remote, branch string) error {
	_, err := repository.Run(ctx, "push", remote, "HEAD:"+branch)
	if err == nil {
		return nil
	}
	message := err.Error()
	if strings.Contains(message, "non-fast-forward") ||
		strings.Contains(message, "fetch first") ||
		strings.Contains(message, "[rejected]") {
		return fmt.Errorf("%w: %s", ErrNonFastForward, message)
	}
	return err
}

// HeadSHA returns the full SHA of HEAD.
func (repository *Repository) HeadSHA(ctx context.Context) (string, error) {
	output, err := repository.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// Command returns an *exec.Cmd for a git command without running it.
// The caller gets full control over Stdin, Stdout, Stderr, and
// SysProcAttr before starting the process. The -C flag targeting
// this repository is automatically prepended.
func (repository *Repository) Command(ctx context.Context, args ...string) *exec.Cmd {
	fullArgs := append([]string{"-C", repository.dir}, args...)
	return exec.CommandContext(ctx, "git", fullArgs...)
}
