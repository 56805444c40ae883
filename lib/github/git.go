// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
)

// GetRef fetches a git reference. The ref is the short form without
// the "refs/" prefix, e.g. "heads/relock". Returns an error
// satisfying IsNotFound when the ref does not exist.
func (client *Client) GetRef(ctx context.Context, owner, repo, ref string) (*Ref, error) {
	var result Ref
	path := fmt.Sprintf("/repos/%s/%s/git/ref/%s", owner, repo, ref)
	if err := client.get(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("getting ref %s in %s/%s: %w", ref, owner, repo, err)
	}
	return &result, nil
}

// CreateRef creates a git reference. Unlike GetRef and UpdateRef, the
// create endpoint wants the fully qualified name ("refs/heads/...").
func (client *Client) CreateRef(ctx context.Context, owner, repo, fullRef, sha string) (*Ref, error) {
	var result Ref
	request := struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}{Ref: fullRef, SHA: sha}
	path := fmt.Sprintf("/repos/%s/%s/git/refs", owner, repo)
	if err := client.post(ctx, path, request, &result); err != nil {
		return nil, fmt.Errorf("creating ref %s in %s/%s: %w", fullRef, owner, repo, err)
	}
	return &result, nil
}

// UpdateRef points an existing reference at a new commit. With force,
// the update replaces whatever the ref held — non-fast-forward moves
// included. This is how the standing proposal branch is refreshed:
// the branch is a single mutable "latest regeneration", not history.
func (client *Client) UpdateRef(ctx context.Context, owner, repo, ref, sha string, force bool) (*Ref, error) {
	var result Ref
	request := struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}{SHA: sha, Force: force}
	path := fmt.Sprintf("/repos/%s/%s/git/refs/%s", owner, repo, ref)
	if err := client.patch(ctx, path, request, &result); err != nil {
		return nil, fmt.Errorf("updating ref %s in %s/%s: %w", ref, owner, repo, err)
	}
	return &result, nil
}

// CreateBlob uploads file content as a git blob.
func (client *Client) CreateBlob(ctx context.Context, owner, repo string, content []byte) (*Blob, error) {
	var result Blob
	request := struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}{Content: encodeBase64(content), Encoding: "base64"}
	path := fmt.Sprintf("/repos/%s/%s/git/blobs", owner, repo)
	if err := client.post(ctx, path, request, &result); err != nil {
		return nil, fmt.Errorf("creating blob in %s/%s: %w", owner, repo, err)
	}
	return &result, nil
}

// TreeEntry describes one entry in a tree creation request.
type TreeEntry struct {
	// Path is the file path relative to the repository root.
	Path string `json:"path"`

	// Mode is the file mode. Lockfiles are always regular files,
	// "100644".
	Mode string `json:"mode"`

	// Type is the object type, "blob" for relockd's purposes.
	Type string `json:"type"`

	// SHA is the blob SHA from CreateBlob.
	SHA string `json:"sha"`
}

// CreateTree creates a git tree derived from baseTree with the given
// entries applied.
func (client *Client) CreateTree(ctx context.Context, owner, repo, baseTree string, entries []TreeEntry) (*Tree, error) {
	var result Tree
	request := struct {
		BaseTree string      `json:"base_tree,omitempty"`
		Entries  []TreeEntry `json:"tree"`
	}{BaseTree: baseTree, Entries: entries}
	path := fmt.Sprintf("/repos/%s/%s/git/trees", owner, repo)
	if err := client.post(ctx, path, request, &result); err != nil {
		return nil, fmt.Errorf("creating tree in %s/%s: %w", owner, repo, err)
	}
	return &result, nil
}

// CreateCommit creates a git commit object.
func (client *Client) CreateCommit(ctx context.Context, owner, repo, message, tree string, parents []string) (*Commit, error) {
	var result Commit
	request := struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}{Message: message, Tree: tree, Parents: parents}
	path := fmt.Sprintf("/repos/%s/%s/git/commits", owner, repo)
	if err := client.post(ctx, path, request, &result); err != nil {
		return nil, fmt.Errorf("creating commit in %s/%s: %w", owner, repo, err)
	}
	return &result, nil
}

// GetCommit fetches a git commit object by SHA.
func (client *Client) GetCommit(ctx context.Context, owner, repo, sha string) (*Commit, error) {
	var result Commit
	path := fmt.Sprintf("/repos/%s/%s/git/commits/%s", owner, repo, sha)
	if err := client.get(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("getting commit %s in %s/%s: %w", shortSHA(sha), owner, repo, err)
	}
	return &result, nil
}

// shortSHA abbreviates a commit SHA for error messages.
func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
