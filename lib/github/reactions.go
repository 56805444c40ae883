// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
)

// CreateCommentReaction attaches an emoji reaction to an issue or PR
// comment. content is one of GitHub's fixed reaction names ("+1",
// "-1", "laugh", "confused", "heart", "hooray", "rocket", "eyes").
func (client *Client) CreateCommentReaction(ctx context.Context, owner, repo string, commentID int64, content string) (*Reaction, error) {
	var reaction Reaction
	request := struct {
		Content string `json:"content"`
	}{Content: content}
	path := fmt.Sprintf("/repos/%s/%s/issues/comments/%d/reactions", owner, repo, commentID)
	if err := client.post(ctx, path, request, &reaction); err != nil {
		return nil, fmt.Errorf("reacting to comment %d in %s/%s: %w", commentID, owner, repo, err)
	}
	return &reaction, nil
}
