// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/relockd/relockd/lib/bundle"
	"github.com/relockd/relockd/lib/git"
)

// DirectPush commits a bundle straight onto the triggering branch.
// Concurrent movement on the branch is reconciled per the configured
// ConflictPolicy, and pushes retry within a bounded budget when the
// remote moves between merge and push.
type DirectPush struct {
	// CloneURL is the authenticated clone URL for the target
	// repository.
	CloneURL string

	// Branch is the branch the trigger named. Direct push never picks
	// its own branch.
	Branch string

	// Policy resolves conflicts between regenerated lockfiles and
	// concurrent edits. The zero value is PolicyReject.
	Policy ConflictPolicy

	// PushRetries bounds push attempts. Zero or negative means 3.
	PushRetries int

	// WorkDir is the scratch directory for the clone. A per-run
	// subdirectory is created inside it.
	WorkDir string

	// CommitMessage is the message for the regeneration commit.
	CommitMessage string

	// AuthorName and AuthorEmail set the commit identity.
	AuthorName  string
	AuthorEmail string

	// Logger receives reconciliation events. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// testHookBeforePush runs after the local commit exists and
	// before the first push attempt. Tests use it to move the remote
	// underneath the run.
	testHookBeforePush func()
}

// Reconcile clones the branch, writes the bundle's artifacts, and
// pushes. Returns OutcomeNoChange when the artifacts match the branch
// tip exactly. A *git.ConflictError escapes (wrapped) when the policy
// is PolicyReject and the branch moved conflictingly underneath the
// run.
func (strategy *DirectPush) Reconcile(ctx context.Context, locked *bundle.Bundle) (*Result, error) {
	logger := strategy.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retries := strategy.PushRetries
	if retries <= 0 {
		retries = 3
	}

	repository, err := git.Clone(ctx, strategy.CloneURL, strategy.Branch, filepath.Join(strategy.WorkDir, locked.RunID))
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	name, email := strategy.AuthorName, strategy.AuthorEmail
	if name == "" {
		name = "relockd"
	}
	if email == "" {
		email = "relockd@localhost"
	}
	if err := repository.SetIdentity(ctx, name, email); err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	files := make(map[string][]byte, len(locked.Artifacts))
	for _, artifact := range locked.Artifacts {
		files[artifact.Path] = artifact.Content
	}
	if err := repository.WriteFiles(ctx, files); err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	err = repository.Commit(ctx, strategy.CommitMessage)
	if errors.Is(err, git.ErrNothingToCommit) {
		logger.Info("lockfiles already current", "run", locked.RunID, "branch", strategy.Branch)
		return &Result{Outcome: OutcomeNoChange}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	if strategy.testHookBeforePush != nil {
		strategy.testHookBeforePush()
	}

	for attempt := 1; ; attempt++ {
		err := repository.Push(ctx, "origin", strategy.Branch)
		if err == nil {
			break
		}
		if !errors.Is(err, git.ErrNonFastForward) {
			return nil, fmt.Errorf("reconcile: %w", err)
		}
		if attempt >= retries {
			return nil, fmt.Errorf("reconcile: branch %s kept moving, gave up after %d push attempts: %w",
				strategy.Branch, attempt, err)
		}

		logger.Info("remote moved, merging and retrying",
			"run", locked.RunID,
			"branch", strategy.Branch,
			"attempt", attempt,
			"policy", strategy.Policy)

		if err := repository.Fetch(ctx, "origin", strategy.Branch); err != nil {
			return nil, fmt.Errorf("reconcile: %w", err)
		}
		err = repository.Merge(ctx, "origin/"+strategy.Branch, strategy.Policy.strategyOption())
		var conflict *git.ConflictError
		if errors.As(err, &conflict) {
			return nil, fmt.Errorf("reconcile: branch %s diverged and policy is %s: %w",
				strategy.Branch, strategy.Policy, err)
		}
		if err != nil {
			return nil, fmt.Errorf("reconcile: %w", err)
		}
	}

	head, err := repository.HeadSHA(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	logger.Info("branch updated",
		"run", locked.RunID,
		"branch", strategy.Branch,
		"commit", head)

	return &Result{Outcome: OutcomeUpdated, CommitSHA: head}, nil
}
