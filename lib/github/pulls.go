// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"net/url"
)

// ListPullRequestsOptions controls filtering for ListPullRequests.
type ListPullRequestsOptions struct {
	State   string // "open", "closed", "all" (default: "open")
	Head    string // filter by head, "owner:branch"
	Base    string // filter by base branch name
	PerPage int    // results per page (max 100, default 30)
}

func (options ListPullRequestsOptions) queryParams() string {
	values := url.Values{}
	if options.State != "" {
		values.Set("state", options.State)
	}
	if options.Head != "" {
		values.Set("head", options.Head)
	}
	if options.Base != "" {
		values.Set("base", options.Base)
	}
	if options.PerPage > 0 {
		values.Set("per_page", fmt.Sprint(options.PerPage))
	}
	return values.Encode()
}

// ListPullRequests returns a paginated iterator over pull requests.
func (client *Client) ListPullRequests(ctx context.Context, owner, repo string, options ListPullRequestsOptions) *PageIterator[PullRequest] {
	path := fmt.Sprintf("/repos/%s/%s/pulls", owner, repo)
	if query := options.queryParams(); query != "" {
		path += "?" + query
	}
	return list[PullRequest](client, path)
}

// CreatePullRequestOptions are the fields for opening a pull request.
type CreatePullRequestOptions struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
	Head  string `json:"head"` // branch with the changes
	Base  string `json:"base"` // branch to merge into
}

// CreatePullRequest opens a pull request. GitHub returns 422
// (IsUnprocessable) when an open PR already exists for the same
// head/base pair.
func (client *Client) CreatePullRequest(ctx context.Context, owner, repo string, options CreatePullRequestOptions) (*PullRequest, error) {
	var pullRequest PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls", owner, repo)
	if err := client.post(ctx, path, options, &pullRequest); err != nil {
		return nil, fmt.Errorf("creating PR %s→%s in %s/%s: %w", options.Head, options.Base, owner, repo, err)
	}
	return &pullRequest, nil
}

// AddLabels adds labels to an issue or pull request.
func (client *Client) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	request := struct {
		Labels []string `json:"labels"`
	}{Labels: labels}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels", owner, repo, number)
	if err := client.post(ctx, path, request, nil); err != nil {
		return fmt.Errorf("labeling %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

// ApprovePullRequest submits an approving review.
func (client *Client) ApprovePullRequest(ctx context.Context, owner, repo string, number int, body string) (*Review, error) {
	var review Review
	request := struct {
		Body  string `json:"body,omitempty"`
		Event string `json:"event"`
	}{Body: body, Event: "APPROVE"}
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", owner, repo, number)
	if err := client.post(ctx, path, request, &review); err != nil {
		return nil, fmt.Errorf("approving %s/%s#%d: %w", owner, repo, number, err)
	}
	return &review, nil
}
