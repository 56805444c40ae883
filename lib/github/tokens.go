// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
)

// TokenScope narrows an installation token to specific repositories
// and permissions. An empty scope grants the installation's full
// access — always pass the tightest scope the run needs.
type TokenScope struct {
	// Repositories limits the token to the named repositories
	// (names only, not "owner/name").
	Repositories []string `json:"repositories,omitempty"`

	// Permissions limits the token's capabilities, e.g.
	// {"contents": "write", "pull_requests": "write"}.
	Permissions map[string]string `json:"permissions,omitempty"`
}

// CreateInstallationToken mints a short-lived installation token.
// Requires App JWT authentication. GitHub tokens expire after one
// hour; relockd leases one per run and revokes it at run end.
func (client *Client) CreateInstallationToken(ctx context.Context, installationID int64, scope TokenScope) (*InstallationToken, error) {
	var token InstallationToken
	path := fmt.Sprintf("/app/installations/%d/access_tokens", installationID)
	if err := client.post(ctx, path, scope, &token); err != nil {
		return nil, fmt.Errorf("minting installation token for %d: %w", installationID, err)
	}
	if token.Token == "" {
		return nil, fmt.Errorf("github: token mint returned empty token")
	}
	return &token, nil
}

// RevokeInstallationToken revokes the installation token the client
// is authenticated with. Must be called on a client configured with
// that token, not with App auth.
func (client *Client) RevokeInstallationToken(ctx context.Context) error {
	if err := client.delete(ctx, "/installation/token"); err != nil {
		return fmt.Errorf("revoking installation token: %w", err)
	}
	return nil
}
