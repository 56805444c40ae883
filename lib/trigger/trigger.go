// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package trigger

import (
	"errors"
	"fmt"
)

// Kind identifies how a relock run was initiated.
type Kind string

const (
	// Scheduled runs fire from the cron scheduler. No payload beyond
	// the recurrence signal.
	Scheduled Kind = "scheduled"

	// Manual runs fire from an operator invocation (relockd run).
	Manual Kind = "manual"

	// Dispatch runs fire from an external event carrying a reference
	// to an already-open change: a maintainer comment asking to
	// refresh the lockfiles on its branch.
	Dispatch Kind = "dispatch"
)

// Strategy selects how a completed bundle is reconciled into version
// control.
type Strategy string

const (
	// ChangeRequest reconciles through the standing, force-updated
	// proposal branch plus a review request.
	ChangeRequest Strategy = "change-request"

	// DirectPush reconciles by committing onto the caller-specified
	// branch named in the dispatch origin.
	DirectPush Strategy = "direct-push"
)

// Origin identifies the source of a Dispatch event: the repository,
// the branch to push onto, and the comment to acknowledge on success.
// Empty for Scheduled and Manual events.
type Origin struct {
	// Repo is the repository the dispatch came from, "owner/name".
	Repo string `json:"repo"`

	// Ref is the branch to reconcile onto (e.g. "feature/x").
	Ref string `json:"ref"`

	// CommentID is the comment that requested the run. The success
	// acknowledgement reaction is attached to it.
	CommentID int64 `json:"comment_id"`
}

// Event is one run trigger. Immutable; created once per invocation.
type Event struct {
	Kind   Kind   `json:"kind"`
	Origin Origin `json:"origin,omitzero"`
}

// ErrUnknownKind is wrapped by Route for unrecognized or malformed
// events. Classification failure is fatal: no downstream work is
// scheduled and the run is not retried.
var ErrUnknownKind = errors.New("trigger: unknown event kind")

// Route classifies an event into its reconciliation strategy. The
// mapping is total over the declared kinds and pure: Scheduled and
// Manual refresh the standing change request, Dispatch pushes
// directly onto the origin branch.
//
// A Dispatch event must name its origin repository and branch; a
// dispatch with no branch to push onto is malformed and fails closed
// like an unknown kind.
func Route(event Event) (Strategy, error) {
	switch event.Kind {
	case Scheduled, Manual:
		return ChangeRequest, nil
	case Dispatch:
		if event.Origin.Repo == "" || event.Origin.Ref == "" {
			return "", fmt.Errorf("%w: dispatch event missing origin (repo=%q ref=%q)",
				ErrUnknownKind, event.Origin.Repo, event.Origin.Ref)
		}
		return DirectPush, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, event.Kind)
	}
}
