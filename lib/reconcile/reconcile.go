// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile lands a generated lockfile bundle in the target
// repository. Two strategies exist: ChangeRequest maintains a fixed
// work branch plus a single open pull request for human (or
// automerge) review, and DirectPush commits straight to the
// triggering branch under an explicit conflict policy. The trigger
// router decides which strategy a run uses; this package only
// executes the decision.
package reconcile

import (
	"fmt"

	"github.com/relockd/relockd/lib/github"
)

// Outcome classifies what a reconciliation did.
type Outcome int

const (
	// OutcomeNoChange means the bundle matched what the repository
	// already holds; nothing was written.
	OutcomeNoChange Outcome = iota

	// OutcomeUpdated means new content landed (branch force-updated
	// or commit pushed).
	OutcomeUpdated
)

// String returns the outcome name used in logs and the run log.
func (outcome Outcome) String() string {
	switch outcome {
	case OutcomeNoChange:
		return "no-op"
	case OutcomeUpdated:
		return "updated"
	default:
		return fmt.Sprintf("Outcome(%d)", int(outcome))
	}
}

// Result reports what a strategy did with a bundle.
type Result struct {
	Outcome Outcome

	// CommitSHA is the commit that landed. Empty for OutcomeNoChange.
	CommitSHA string

	// PullRequest is the open pull request maintained by the
	// change-request strategy. Nil for direct push and for
	// OutcomeNoChange.
	PullRequest *github.PullRequest
}

// ConflictPolicy controls how the direct-push strategy resolves
// divergence between the generated lockfiles and concurrent movement
// on the target branch.
type ConflictPolicy int

const (
	// PolicyReject fails the run when the merge conflicts. The
	// default: silent overwrites of concurrent edits need explicit
	// opt-in.
	PolicyReject ConflictPolicy = iota

	// PolicyRemoteWins keeps the remote side of conflicting hunks.
	PolicyRemoteWins

	// PolicyLocalWins keeps the regenerated lockfile content.
	PolicyLocalWins
)

// ParsePolicy converts the config spelling of a policy.
func ParsePolicy(name string) (ConflictPolicy, error) {
	switch name {
	case "reject":
		return PolicyReject, nil
	case "remote-wins":
		return PolicyRemoteWins, nil
	case "local-wins":
		return PolicyLocalWins, nil
	default:
		return 0, fmt.Errorf("reconcile: unknown conflict policy %q", name)
	}
}

func (policy ConflictPolicy) String() string {
	switch policy {
	case PolicyReject:
		return "reject"
	case PolicyRemoteWins:
		return "remote-wins"
	case PolicyLocalWins:
		return "local-wins"
	default:
		return fmt.Sprintf("ConflictPolicy(%d)", int(policy))
	}
}

// strategyOption maps the policy to git's -X merge option. Empty
// means plain merge, which fails on conflict.
func (policy ConflictPolicy) strategyOption() string {
	switch policy {
	case PolicyRemoteWins:
		return "theirs"
	case PolicyLocalWins:
		return "ours"
	default:
		return ""
	}
}
