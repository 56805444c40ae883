// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// PageIterator lazily fetches pages from a paginated list endpoint.
// Each Next call fetches one page; it returns nil, nil when all pages
// are consumed. Not safe for concurrent use.
type PageIterator[T any] struct {
	client  *Client
	nextURL string
	done    bool
}

// list creates a PageIterator for a paginated GET endpoint.
func list[T any](client *Client, path string) *PageIterator[T] {
	return &PageIterator[T]{client: client, nextURL: client.baseURL + path}
}

// Next fetches the next page of results, or nil, nil after the last
// page. Each fetch is subject to rate limiting and authentication
// like any other call.
func (iterator *PageIterator[T]) Next(ctx context.Context) ([]T, error) {
	if iterator.done || iterator.nextURL == "" {
		return nil, nil
	}

	body, header, err := iterator.client.doURL(ctx, http.MethodGet, iterator.nextURL, nil, false)
	if err != nil {
		return nil, err
	}

	var items []T
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("github: decoding page: %w", err)
	}

	iterator.nextURL = parseLinkNext(header.Get("Link"))
	if iterator.nextURL == "" {
		iterator.done = true
	}
	return items, nil
}

// Collect fetches all remaining pages and concatenates the items.
func (iterator *PageIterator[T]) Collect(ctx context.Context) ([]T, error) {
	var all []T
	for {
		items, err := iterator.Next(ctx)
		if err != nil {
			return all, err
		}
		if items == nil {
			return all, nil
		}
		all = append(all, items...)
	}
}

// parseLinkNext extracts the rel="next" URL from an RFC 5988 Link
// header, or "" if none. Format:
//
//	<https://api.github.com/...?page=2>; rel="next", <...>; rel="last"
func parseLinkNext(header string) string {
	for part := range strings.SplitSeq(header, ",") {
		urlPart, relPart, ok := strings.Cut(strings.TrimSpace(part), ";")
		if !ok || !strings.Contains(relPart, `rel="next"`) {
			continue
		}
		urlPart = strings.TrimSpace(urlPart)
		if strings.HasPrefix(urlPart, "<") && strings.HasSuffix(urlPart, ">") {
			return urlPart[1 : len(urlPart)-1]
		}
	}
	return ""
}
