// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package github

import "time"

// User is a GitHub user reference.
type User struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// Label is an issue/PR label.
type Label struct {
	Name string `json:"name"`
}

// BranchRef is a branch reference on a pull request.
type BranchRef struct {
	Ref string `json:"ref"` // branch name
	SHA string `json:"sha"` // head commit SHA
}

// PullRequest is a GitHub pull request.
type PullRequest struct {
	Number    int       `json:"number"`
	NodeID    string    `json:"node_id"` // GraphQL identifier, needed for auto-merge
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"` // "open" or "closed"
	HTMLURL   string    `json:"html_url"`
	User      User      `json:"user"`
	Head      BranchRef `json:"head"`
	Base      BranchRef `json:"base"`
	Merged    bool      `json:"merged"`
	Labels    []Label   `json:"labels"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Review is a pull request review.
type Review struct {
	ID    int64  `json:"id"`
	State string `json:"state"` // "APPROVED", "CHANGES_REQUESTED", "COMMENTED"
	User  User   `json:"user"`
}

// Reaction is an emoji reaction on a comment.
type Reaction struct {
	ID      int64  `json:"id"`
	Content string `json:"content"` // "+1", "-1", "rocket", ...
}

// Ref is a git reference.
type Ref struct {
	Ref    string `json:"ref"` // full name, e.g. "refs/heads/relock"
	Object struct {
		Type string `json:"type"` // "commit"
		SHA  string `json:"sha"`
	} `json:"object"`
}

// Commit is a git commit object.
type Commit struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
	Tree    struct {
		SHA string `json:"sha"`
	} `json:"tree"`
	Parents []struct {
		SHA string `json:"sha"`
	} `json:"parents"`
}

// Tree is a git tree object.
type Tree struct {
	SHA string `json:"sha"`
}

// Blob is a created git blob.
type Blob struct {
	SHA string `json:"sha"`
}

// ContentFile is a file fetched from the contents endpoint.
type ContentFile struct {
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Encoding string `json:"encoding"` // "base64"
	Content  string `json:"content"`
}

// CommitStatus is a status attached to a commit SHA.
type CommitStatus struct {
	ID          int64  `json:"id"`
	State       string `json:"state"` // "error", "failure", "pending", "success"
	Context     string `json:"context"`
	Description string `json:"description"`
}

// InstallationToken is a short-lived token minted for a GitHub App
// installation, optionally scoped to specific repositories and
// permissions.
type InstallationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
