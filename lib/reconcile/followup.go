// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relockd/relockd/lib/github"
)

// ApprovalAutomerge approves the maintained pull request and enables
// rebase automerge, so a green check suite merges the regeneration
// without human traffic. Runs only after the change-request strategy
// reports OutcomeUpdated.
type ApprovalAutomerge struct {
	Client *github.Client
	Owner  string
	Repo   string
	Logger *slog.Logger
}

// Apply approves pull and turns on rebase automerge. Approval and
// automerge are one unit: an approved PR that never merges and an
// automerging PR without approval are both half-finished states worth
// failing loudly over.
func (followup *ApprovalAutomerge) Apply(ctx context.Context, pull *github.PullRequest) error {
	logger := followup.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := followup.Client.ApprovePullRequest(ctx, followup.Owner, followup.Repo, pull.Number, "Automated lockfile regeneration."); err != nil {
		return fmt.Errorf("followup: %w", err)
	}
	if err := followup.Client.EnableAutoMerge(ctx, pull.NodeID); err != nil {
		return fmt.Errorf("followup: enabling automerge on #%d: %w", pull.Number, err)
	}

	logger.Info("pull request approved with automerge", "pull_request", pull.Number)
	return nil
}

// NotificationEmitter acknowledges the comment that dispatched a run.
// Only successful dispatch-triggered runs are acknowledged: a "+1"
// on the triggering comment means "done", and the absence of one
// means the requester should look at the run log. Scheduled and
// manual runs have no comment to react to.
type NotificationEmitter struct {
	Client *github.Client
	Owner  string
	Repo   string
	Logger *slog.Logger
}

// Acknowledge reacts "+1" to the dispatching comment.
func (emitter *NotificationEmitter) Acknowledge(ctx context.Context, commentID int64) error {
	logger := emitter.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := emitter.Client.CreateCommentReaction(ctx, emitter.Owner, emitter.Repo, commentID, "+1"); err != nil {
		return fmt.Errorf("followup: %w", err)
	}
	logger.Info("dispatch comment acknowledged", "comment", commentID)
	return nil
}
