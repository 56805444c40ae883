// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relockd/relockd/lib/clock"
)

// writeJSON encodes value into an HTTP response, failing the test on
// encode errors.
func writeJSON(t *testing.T, writer http.ResponseWriter, value any) {
	t.Helper()
	if err := json.NewEncoder(writer).Encode(value); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Token:      "test-token",
		HTTPClient: server.Client(),
		Clock:      clock.Real(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientHTTPSEnforcement(t *testing.T) {
	_, err := NewClient(Config{
		BaseURL: "http://api.github.com",
		Token:   "test",
	})
	if err == nil {
		t.Fatal("expected error for HTTP URL")
	}
}

func TestNewClientAuthValidation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"no_auth", Config{}},
		{"both_modes", Config{Token: "t", AppID: 1, PrivateKey: []byte("k")}},
		{"app_without_key", Config{AppID: 1}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := NewClient(test.config); err == nil {
				t.Fatal("NewClient accepted invalid auth config")
			}
		})
	}
}

func TestClientSendsStandardHeaders(t *testing.T) {
	var gotAuth, gotAccept, gotVersion string
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		gotAuth = request.Header.Get("Authorization")
		gotAccept = request.Header.Get("Accept")
		gotVersion = request.Header.Get("X-GitHub-Api-Version")
		writer.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if err := client.get(context.Background(), "/rate_limit", &struct{}{}); err != nil {
		t.Fatalf("get: %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAccept != "application/vnd.github+json" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if gotVersion != apiVersion {
		t.Errorf("X-GitHub-Api-Version = %q", gotVersion)
	}
}

func TestClientRetriesOnceAfterRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if calls.Add(1) == 1 {
			writer.Header().Set("Retry-After", "30")
			writer.WriteHeader(http.StatusTooManyRequests)
			writer.Write([]byte(`{"message": "API rate limit exceeded"}`))
			return
		}
		writer.Write([]byte(`{"ref": "refs/heads/relock", "object": {"type": "commit", "sha": "abc"}}`))
	}))
	defer server.Close()

	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Token:      "test-token",
		HTTPClient: server.Client(),
		Clock:      fake,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := client.GetRef(context.Background(), "owner", "repo", "heads/relock")
		done <- err
	}()

	fake.WaitForTimers(1)
	fake.Advance(30 * time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("GetRef after backoff: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("client did not retry after backoff")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d calls, want 2", got)
	}
}

func TestClientGivesUpAfterSecondRateLimit(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Retry-After", "1")
		writer.WriteHeader(http.StatusTooManyRequests)
		writer.Write([]byte(`{"message": "API rate limit exceeded"}`))
	}))
	defer server.Close()

	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Token:      "test-token",
		HTTPClient: server.Client(),
		Clock:      fake,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := client.GetRef(context.Background(), "owner", "repo", "heads/relock")
		done <- err
	}()

	fake.WaitForTimers(1)
	fake.Advance(time.Second)

	select {
	case err := <-done:
		var apiError *APIError
		if err == nil {
			t.Fatal("expected rate limit error after single retry")
		}
		if !errors.As(err, &apiError) || apiError.StatusCode != 429 {
			t.Fatalf("error = %v, want 429 APIError", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("client kept retrying past the single-retry budget")
	}
}
