// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetRefAndNotFound(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		switch request.URL.Path {
		case "/repos/acme/widgets/git/ref/heads/relock":
			json.NewEncoder(writer).Encode(map[string]any{
				"ref":    "refs/heads/relock",
				"object": map[string]string{"type": "commit", "sha": "abc123"},
			})
		default:
			writer.WriteHeader(http.StatusNotFound)
			writer.Write([]byte(`{"message": "Not Found"}`))
		}
	}))
	defer server.Close()
	client := newTestClient(t, server)

	ref, err := client.GetRef(context.Background(), "acme", "widgets", "heads/relock")
	if err != nil {
		t.Fatalf("GetRef: %v", err)
	}
	if ref.Object.SHA != "abc123" {
		t.Errorf("SHA = %q, want abc123", ref.Object.SHA)
	}

	_, err = client.GetRef(context.Background(), "acme", "widgets", "heads/missing")
	if !IsNotFound(err) {
		t.Errorf("missing ref error = %v, want IsNotFound", err)
	}
}

func TestUpdateRefForce(t *testing.T) {
	var receivedMethod string
	var receivedBody struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		receivedMethod = request.Method
		json.NewDecoder(request.Body).Decode(&receivedBody)
		json.NewEncoder(writer).Encode(map[string]any{"ref": "refs/heads/relock"})
	}))
	defer server.Close()
	client := newTestClient(t, server)

	if _, err := client.UpdateRef(context.Background(), "acme", "widgets", "heads/relock", "def456", true); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}
	if receivedMethod != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", receivedMethod)
	}
	if !receivedBody.Force || receivedBody.SHA != "def456" {
		t.Errorf("body = %+v, want force update to def456", receivedBody)
	}
}

func TestCommitPath(t *testing.T) {
	// Exercise the blob → tree → commit sequence the reconciler uses.
	var treeRequest struct {
		BaseTree string      `json:"base_tree"`
		Entries  []TreeEntry `json:"tree"`
	}
	var commitRequest struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		switch request.URL.Path {
		case "/repos/acme/widgets/git/blobs":
			writer.WriteHeader(http.StatusCreated)
			json.NewEncoder(writer).Encode(Blob{SHA: "blob-sha"})
		case "/repos/acme/widgets/git/trees":
			json.NewDecoder(request.Body).Decode(&treeRequest)
			writer.WriteHeader(http.StatusCreated)
			json.NewEncoder(writer).Encode(Tree{SHA: "tree-sha"})
		case "/repos/acme/widgets/git/commits":
			json.NewDecoder(request.Body).Decode(&commitRequest)
			writer.WriteHeader(http.StatusCreated)
			json.NewEncoder(writer).Encode(Commit{SHA: "commit-sha"})
		default:
			t.Errorf("unexpected path %s", request.URL.Path)
			writer.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	client := newTestClient(t, server)
	ctx := context.Background()

	blob, err := client.CreateBlob(ctx, "acme", "widgets", []byte("pinned==1.0\n"))
	if err != nil {
		t.Fatalf("CreateBlob: %v", err)
	}
	tree, err := client.CreateTree(ctx, "acme", "widgets", "base-tree", []TreeEntry{
		{Path: "locks/3.11.lock", Mode: "100644", Type: "blob", SHA: blob.SHA},
	})
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	commit, err := client.CreateCommit(ctx, "acme", "widgets", "chore: relock dependencies", tree.SHA, []string{"parent-sha"})
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}

	if commit.SHA != "commit-sha" {
		t.Errorf("commit SHA = %q", commit.SHA)
	}
	if treeRequest.BaseTree != "base-tree" || len(treeRequest.Entries) != 1 {
		t.Errorf("tree request = %+v", treeRequest)
	}
	if commitRequest.Tree != "tree-sha" || len(commitRequest.Parents) != 1 {
		t.Errorf("commit request = %+v", commitRequest)
	}
}

func TestGetFileContent(t *testing.T) {
	content := []byte("package==1.2.3\n")
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/repos/acme/widgets/contents/locks/3.11.lock" {
			t.Errorf("path = %s", request.URL.Path)
		}
		if got := request.URL.Query().Get("ref"); got != "relock" {
			t.Errorf("ref = %q, want relock", got)
		}
		// GitHub wraps long base64 payloads with newlines.
		encoded := base64.StdEncoding.EncodeToString(content)
		json.NewEncoder(writer).Encode(ContentFile{
			Path:     "locks/3.11.lock",
			Encoding: "base64",
			Content:  encoded[:8] + "\n" + encoded[8:],
		})
	}))
	defer server.Close()
	client := newTestClient(t, server)

	got, err := client.GetFileContent(context.Background(), "acme", "widgets", "locks/3.11.lock", "relock")
	if err != nil {
		t.Fatalf("GetFileContent: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content = %q", got)
	}
}

func TestCreatePullRequestConflict(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusUnprocessableEntity)
		writer.Write([]byte(`{"message": "Validation Failed", "errors": [{"resource": "PullRequest", "code": "custom", "message": "A pull request already exists"}]}`))
	}))
	defer server.Close()
	client := newTestClient(t, server)

	_, err := client.CreatePullRequest(context.Background(), "acme", "widgets", CreatePullRequestOptions{
		Title: "Relock dependencies",
		Head:  "relock",
		Base:  "main",
	})
	if !IsUnprocessable(err) {
		t.Errorf("error = %v, want IsUnprocessable", err)
	}
}

func TestApprovePullRequest(t *testing.T) {
	var received struct {
		Event string `json:"event"`
	}
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/repos/acme/widgets/pulls/12/reviews" {
			t.Errorf("path = %s", request.URL.Path)
		}
		json.NewDecoder(request.Body).Decode(&received)
		writer.WriteHeader(http.StatusCreated)
		json.NewEncoder(writer).Encode(Review{ID: 1, State: "APPROVED"})
	}))
	defer server.Close()
	client := newTestClient(t, server)

	review, err := client.ApprovePullRequest(context.Background(), "acme", "widgets", 12, "auto-approved")
	if err != nil {
		t.Fatalf("ApprovePullRequest: %v", err)
	}
	if received.Event != "APPROVE" {
		t.Errorf("event = %q, want APPROVE", received.Event)
	}
	if review.State != "APPROVED" {
		t.Errorf("state = %q", review.State)
	}
}

func TestEnableAutoMerge(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/graphql" {
			t.Errorf("path = %s", request.URL.Path)
		}
		writer.Write([]byte(`{"data": {"enablePullRequestAutoMerge": {"pullRequest": {"number": 12}}}}`))
	}))
	defer server.Close()
	client := newTestClient(t, server)

	if err := client.EnableAutoMerge(context.Background(), "PR_node123"); err != nil {
		t.Fatalf("EnableAutoMerge: %v", err)
	}
}

func TestEnableAutoMergeGraphQLError(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Write([]byte(`{"errors": [{"message": "Pull request Auto merge is not allowed for this repository"}]}`))
	}))
	defer server.Close()
	client := newTestClient(t, server)

	err := client.EnableAutoMerge(context.Background(), "PR_node123")
	if err == nil {
		t.Fatal("EnableAutoMerge ignored GraphQL errors")
	}
}

func TestCreateCommentReaction(t *testing.T) {
	var received struct {
		Content string `json:"content"`
	}
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/repos/acme/widgets/issues/comments/987/reactions" {
			t.Errorf("path = %s", request.URL.Path)
		}
		json.NewDecoder(request.Body).Decode(&received)
		writer.WriteHeader(http.StatusCreated)
		json.NewEncoder(writer).Encode(Reaction{ID: 5, Content: "+1"})
	}))
	defer server.Close()
	client := newTestClient(t, server)

	reaction, err := client.CreateCommentReaction(context.Background(), "acme", "widgets", 987, "+1")
	if err != nil {
		t.Fatalf("CreateCommentReaction: %v", err)
	}
	if received.Content != "+1" || reaction.Content != "+1" {
		t.Errorf("content = %q / %q, want +1", received.Content, reaction.Content)
	}
}

func TestInstallationTokenLifecycle(t *testing.T) {
	var mintScope TokenScope
	var revoked bool
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		switch {
		case request.URL.Path == "/app/installations/42/access_tokens" && request.Method == http.MethodPost:
			json.NewDecoder(request.Body).Decode(&mintScope)
			writer.WriteHeader(http.StatusCreated)
			json.NewEncoder(writer).Encode(InstallationToken{Token: "ghs_shortlived"})
		case request.URL.Path == "/installation/token" && request.Method == http.MethodDelete:
			revoked = true
			writer.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected %s %s", request.Method, request.URL.Path)
			writer.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	client := newTestClient(t, server)
	ctx := context.Background()

	token, err := client.CreateInstallationToken(ctx, 42, TokenScope{
		Repositories: []string{"widgets"},
		Permissions:  map[string]string{"contents": "write"},
	})
	if err != nil {
		t.Fatalf("CreateInstallationToken: %v", err)
	}
	if token.Token != "ghs_shortlived" {
		t.Errorf("token = %q", token.Token)
	}
	if len(mintScope.Repositories) != 1 || mintScope.Permissions["contents"] != "write" {
		t.Errorf("scope = %+v, want narrowed scope", mintScope)
	}

	if err := client.RevokeInstallationToken(ctx); err != nil {
		t.Fatalf("RevokeInstallationToken: %v", err)
	}
	if !revoked {
		t.Error("revocation request never reached the server")
	}
}
