// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// GetFileContent fetches a file's bytes at a ref via the contents
// endpoint. Returns an error satisfying IsNotFound when the path does
// not exist at that ref — callers treat that as "no previous
// lockfile" rather than a failure.
func (client *Client) GetFileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	var file ContentFile
	requestPath := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, escapePath(path))
	if ref != "" {
		requestPath += "?ref=" + url.QueryEscape(ref)
	}
	if err := client.get(ctx, requestPath, &file); err != nil {
		return nil, fmt.Errorf("getting contents of %s@%s in %s/%s: %w", path, ref, owner, repo, err)
	}

	if file.Encoding != "base64" {
		return nil, fmt.Errorf("github: unexpected content encoding %q for %s", file.Encoding, path)
	}
	// GitHub wraps base64 content in newlines.
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("github: decoding contents of %s: %w", path, err)
	}
	return decoded, nil
}

// escapePath escapes a repository-relative path for use in a URL,
// preserving the path separators.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// encodeBase64 is a helper for blob uploads.
func encodeBase64(content []byte) string {
	return base64.StdEncoding.EncodeToString(content)
}
