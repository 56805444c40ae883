// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/relockd/relockd/lib/bundle"
	"github.com/relockd/relockd/lib/github"
)

// ChangeRequest lands bundles on a fixed work branch and maintains a
// single open pull request from it. The work branch is a mutable
// "latest regeneration": every run that lands content force-updates
// it to one commit on top of the current base branch tip, so stale
// proposals never accumulate history and the PR diff is always
// against fresh base.
type ChangeRequest struct {
	// Client is the forge client, authenticated with the run's leased
	// token.
	Client *github.Client

	// Owner and Repo identify the target repository.
	Owner string
	Repo  string

	// BaseBranch is the branch the pull request merges into.
	BaseBranch string

	// WorkBranch is the fixed branch that carries the regeneration
	// commit.
	WorkBranch string

	// CommitMessage is the message for the regeneration commit.
	CommitMessage string

	// Labels are applied when the pull request is first opened.
	Labels []string

	// StatusContext, when non-empty, names the commit status posted
	// on the regeneration commit.
	StatusContext string

	// Logger receives reconciliation events. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Reconcile applies the bundle. It diffs every artifact against the
// current contents at the work branch (falling back to the base branch
// when no fresh work branch exists) and returns OutcomeNoChange
// without touching any ref when nothing differs, so re-running over
// unchanged dependencies never rewrites the branch or re-requests
// review.
func (strategy *ChangeRequest) Reconcile(ctx context.Context, locked *bundle.Bundle) (*Result, error) {
	logger := strategy.Logger
	if logger == nil {
		logger = slog.Default()
	}

	baseRef, err := strategy.Client.GetRef(ctx, strategy.Owner, strategy.Repo, "heads/"+strategy.BaseBranch)
	if err != nil {
		return nil, fmt.Errorf("reconcile: resolving base branch %s: %w", strategy.BaseBranch, err)
	}
	baseSHA := baseRef.Object.SHA

	diffRef, treeSHA, err := strategy.diffTarget(ctx, baseSHA)
	if err != nil {
		return nil, err
	}

	changed, err := strategy.changedArtifacts(ctx, locked, diffRef)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		logger.Info("lockfiles already current", "run", locked.RunID, "ref", diffRef)
		return &Result{Outcome: OutcomeNoChange}, nil
	}

	commit, err := strategy.commitArtifacts(ctx, baseSHA, treeSHA, changed)
	if err != nil {
		return nil, err
	}

	if err := strategy.pointWorkBranch(ctx, commit.SHA); err != nil {
		return nil, err
	}

	pull, err := strategy.ensurePullRequest(ctx, locked)
	if err != nil {
		return nil, err
	}

	if strategy.StatusContext != "" {
		_, err := strategy.Client.CreateCommitStatus(ctx, strategy.Owner, strategy.Repo, commit.SHA, github.CreateStatusOptions{
			State:       "success",
			Description: fmt.Sprintf("regenerated %d lockfile(s)", len(changed)),
			Context:     strategy.StatusContext,
		})
		if err != nil {
			// Status is advisory; the branch and PR are already
			// correct.
			logger.Warn("posting commit status failed", "error", err)
		}
	}

	logger.Info("work branch updated",
		"run", locked.RunID,
		"branch", strategy.WorkBranch,
		"commit", commit.SHA,
		"pull_request", pull.Number,
		"changed", len(changed))

	return &Result{Outcome: OutcomeUpdated, CommitSHA: commit.SHA, PullRequest: pull}, nil
}

// diffTarget picks the branch whose file contents the bundle is
// diffed against, and the tree the next commit builds on. A fresh
// work branch, one whose single commit sits on the current base tip,
// already carries the previous run's artifacts, so diffing against it
// makes an identical re-run a clean no-op. A missing work branch, or
// one stranded on an old base tip, falls back to the base branch and
// the next commit rebuilds from the new tip.
func (strategy *ChangeRequest) diffTarget(ctx context.Context, baseSHA string) (ref, treeSHA string, err error) {
	workRef, err := strategy.Client.GetRef(ctx, strategy.Owner, strategy.Repo, "heads/"+strategy.WorkBranch)
	switch {
	case github.IsNotFound(err):
		// First run; the work branch does not exist yet.
	case err != nil:
		return "", "", fmt.Errorf("reconcile: checking work branch %s: %w", strategy.WorkBranch, err)
	default:
		workCommit, err := strategy.Client.GetCommit(ctx, strategy.Owner, strategy.Repo, workRef.Object.SHA)
		if err != nil {
			return "", "", fmt.Errorf("reconcile: reading work branch commit: %w", err)
		}
		if len(workCommit.Parents) > 0 && workCommit.Parents[0].SHA == baseSHA {
			return strategy.WorkBranch, workCommit.Tree.SHA, nil
		}
	}

	baseCommit, err := strategy.Client.GetCommit(ctx, strategy.Owner, strategy.Repo, baseSHA)
	if err != nil {
		return "", "", fmt.Errorf("reconcile: reading base commit: %w", err)
	}
	return strategy.BaseBranch, baseCommit.Tree.SHA, nil
}

// changedArtifacts returns the artifacts whose content differs from
// the named ref. A missing file counts as changed.
func (strategy *ChangeRequest) changedArtifacts(ctx context.Context, locked *bundle.Bundle, ref string) ([]bundle.Artifact, error) {
	var changed []bundle.Artifact
	for _, artifact := range locked.Artifacts {
		existing, err := strategy.Client.GetFileContent(ctx, strategy.Owner, strategy.Repo, artifact.Path, ref)
		switch {
		case github.IsNotFound(err):
			changed = append(changed, artifact)
		case err != nil:
			return nil, fmt.Errorf("reconcile: reading %s on %s: %w", artifact.Path, ref, err)
		case !bytes.Equal(existing, artifact.Content):
			changed = append(changed, artifact)
		}
	}
	return changed, nil
}

// commitArtifacts builds one commit parented on baseSHA, layering the
// changed artifacts over treeSHA. The tree comes from the diff target,
// so artifacts already landed on a fresh work branch carry forward
// even when this run only changed others.
func (strategy *ChangeRequest) commitArtifacts(ctx context.Context, baseSHA, treeSHA string, changed []bundle.Artifact) (*github.Commit, error) {
	entries := make([]github.TreeEntry, 0, len(changed))
	for _, artifact := range changed {
		blob, err := strategy.Client.CreateBlob(ctx, strategy.Owner, strategy.Repo, artifact.Content)
		if err != nil {
			return nil, fmt.Errorf("reconcile: uploading %s: %w", artifact.Path, err)
		}
		entries = append(entries, github.TreeEntry{
			Path: artifact.Path,
			Mode: "100644",
			Type: "blob",
			SHA:  blob.SHA,
		})
	}

	tree, err := strategy.Client.CreateTree(ctx, strategy.Owner, strategy.Repo, treeSHA, entries)
	if err != nil {
		return nil, fmt.Errorf("reconcile: building tree: %w", err)
	}

	commit, err := strategy.Client.CreateCommit(ctx, strategy.Owner, strategy.Repo, strategy.CommitMessage, tree.SHA, []string{baseSHA})
	if err != nil {
		return nil, fmt.Errorf("reconcile: creating commit: %w", err)
	}
	return commit, nil
}

// pointWorkBranch force-updates the work branch to sha, creating the
// branch on first use.
func (strategy *ChangeRequest) pointWorkBranch(ctx context.Context, sha string) error {
	_, err := strategy.Client.GetRef(ctx, strategy.Owner, strategy.Repo, "heads/"+strategy.WorkBranch)
	if github.IsNotFound(err) {
		if _, err := strategy.Client.CreateRef(ctx, strategy.Owner, strategy.Repo, "refs/heads/"+strategy.WorkBranch, sha); err != nil {
			return fmt.Errorf("reconcile: creating work branch %s: %w", strategy.WorkBranch, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile: checking work branch %s: %w", strategy.WorkBranch, err)
	}
	if _, err := strategy.Client.UpdateRef(ctx, strategy.Owner, strategy.Repo, "heads/"+strategy.WorkBranch, sha, true); err != nil {
		return fmt.Errorf("reconcile: force-updating work branch %s: %w", strategy.WorkBranch, err)
	}
	return nil
}

// ensurePullRequest returns the open pull request from the work
// branch into the base branch, opening it if absent. At most one such
// PR exists at a time; the forge enforces uniqueness per head/base
// pair, and a 422 on create means another actor won the race, in
// which case the existing PR is fetched and returned.
func (strategy *ChangeRequest) ensurePullRequest(ctx context.Context, locked *bundle.Bundle) (*github.PullRequest, error) {
	existing, err := strategy.findOpenPullRequest(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	pull, err := strategy.Client.CreatePullRequest(ctx, strategy.Owner, strategy.Repo, github.CreatePullRequestOptions{
		Title: strategy.CommitMessage,
		Body:  fmt.Sprintf("Automated lockfile regeneration (run %s).", locked.RunID),
		Head:  strategy.WorkBranch,
		Base:  strategy.BaseBranch,
	})
	if github.IsUnprocessable(err) {
		existing, findErr := strategy.findOpenPullRequest(ctx)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("reconcile: opening pull request: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("reconcile: opening pull request: %w", err)
	}

	if len(strategy.Labels) > 0 {
		if err := strategy.Client.AddLabels(ctx, strategy.Owner, strategy.Repo, pull.Number, strategy.Labels); err != nil {
			return nil, fmt.Errorf("reconcile: labeling pull request #%d: %w", pull.Number, err)
		}
	}
	return pull, nil
}

func (strategy *ChangeRequest) findOpenPullRequest(ctx context.Context) (*github.PullRequest, error) {
	pulls, err := strategy.Client.ListPullRequests(ctx, strategy.Owner, strategy.Repo, github.ListPullRequestsOptions{
		State: "open",
		Head:  strategy.Owner + ":" + strategy.WorkBranch,
		Base:  strategy.BaseBranch,
	}).Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: listing pull requests: %w", err)
	}
	if len(pulls) == 0 {
		return nil, nil
	}
	return &pulls[0], nil
}
