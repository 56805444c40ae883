// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// EnableAutoMerge enables auto-merge on a pull request with the
// rebase method (no merge commit; linear history). The pull request
// merges automatically once its required checks pass.
//
// Auto-merge has no REST endpoint; this is the one GraphQL call in
// the client. prNodeID is PullRequest.NodeID.
func (client *Client) EnableAutoMerge(ctx context.Context, prNodeID string) error {
	const mutation = `
mutation($pullRequestId: ID!) {
  enablePullRequestAutoMerge(input: {pullRequestId: $pullRequestId, mergeMethod: REBASE}) {
    pullRequest { number }
  }
}`

	request := struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}{
		Query:     mutation,
		Variables: map[string]any{"pullRequestId": prNodeID},
	}

	var response struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := client.do(ctx, http.MethodPost, "/graphql", request, &response); err != nil {
		return fmt.Errorf("enabling auto-merge: %w", err)
	}

	// GraphQL reports failures with HTTP 200 and an errors array.
	if len(response.Errors) > 0 {
		messages := make([]string, len(response.Errors))
		for i, graphqlError := range response.Errors {
			messages[i] = graphqlError.Message
		}
		return fmt.Errorf("enabling auto-merge: %s", strings.Join(messages, "; "))
	}
	return nil
}
