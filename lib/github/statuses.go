// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
)

// CreateStatusOptions are the fields for creating a commit status.
type CreateStatusOptions struct {
	// State is "error", "failure", "pending", or "success".
	State string `json:"state"`

	// Description is a short human-readable summary. Max 140
	// characters.
	Description string `json:"description,omitempty"`

	// Context is the status context identifier (e.g. "relock").
	Context string `json:"context,omitempty"`
}

// CreateCommitStatus creates a status on a commit. The sha is the
// full 40-character commit SHA.
func (client *Client) CreateCommitStatus(ctx context.Context, owner, repo, sha string, options CreateStatusOptions) (*CommitStatus, error) {
	var status CommitStatus
	path := fmt.Sprintf("/repos/%s/%s/statuses/%s", owner, repo, sha)
	if err := client.post(ctx, path, options, &status); err != nil {
		return nil, fmt.Errorf("creating status on %s/%s@%s: %w", owner, repo, shortSHA(sha), err)
	}
	return &status, nil
}
