// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/relockd/relockd/lib/clock"
)

// apiVersion is the GitHub REST API version header. Pinning the
// version keeps behavior consistent as GitHub evolves the API.
const apiVersion = "2022-11-28"

// defaultBaseURL is the base URL for the public GitHub API.
const defaultBaseURL = "https://api.github.com"

// maxResponseSize bounds how much of a response body is read. The
// largest responses relockd handles are base64 file contents, well
// under this.
const maxResponseSize = 64 * 1024 * 1024

// Config holds configuration for creating a Client.
//
// Exactly one authentication mode must be set:
//   - Token: a PAT or installation token, for repository operations.
//   - AppID + PrivateKey: GitHub App JWT auth, only for the
//     installation-token endpoints in tokens.go.
type Config struct {
	// BaseURL is the root URL for API requests. Defaults to
	// "https://api.github.com". Must use HTTPS.
	BaseURL string

	// Token is a personal access token or installation token.
	Token string

	// AppID is the GitHub App's numeric ID.
	AppID int64

	// PrivateKey is the PEM-encoded RSA private key for the App.
	PrivateKey []byte

	// HTTPClient is used for all requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Clock provides time operations. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Client is a typed GitHub API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       authenticator
	rateLimit  *rateLimitTracker
	clock      clock.Clock
	logger     *slog.Logger
}

// NewClient creates a client from the given configuration. Returns an
// error if the configuration is invalid (no or ambiguous auth,
// non-HTTPS URL, unparseable private key).
func NewClient(config Config) (*Client, error) {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("github: API client requires HTTPS (got %q)", baseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hasToken := config.Token != ""
	hasApp := config.AppID != 0 || len(config.PrivateKey) > 0
	switch {
	case hasToken && hasApp:
		return nil, fmt.Errorf("github: cannot configure both token auth and App auth")
	case !hasToken && !hasApp:
		return nil, fmt.Errorf("github: no authentication configured (set Token or AppID+PrivateKey)")
	}

	var auth authenticator
	if hasToken {
		auth = staticToken(config.Token)
	} else {
		if config.AppID == 0 || len(config.PrivateKey) == 0 {
			return nil, fmt.Errorf("github: App auth requires both AppID and PrivateKey")
		}
		appAuth, err := newAppJWT(config.AppID, config.PrivateKey, clk)
		if err != nil {
			return nil, err
		}
		auth = appAuth
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		auth:       auth,
		rateLimit:  newRateLimitTracker(clk),
		clock:      clk,
		logger:     logger,
	}, nil
}

// do executes an authenticated request against a path relative to the
// base URL and decodes the JSON response into result (skipped when
// result is nil). On non-2xx responses it returns an *APIError. A
// single retry is attempted after rate-limit backoff.
func (client *Client) do(ctx context.Context, method, path string, requestBody, result any) error {
	body, _, err := client.doURL(ctx, method, client.baseURL+path, requestBody, false)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("github: decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// doURL executes one request against an absolute URL. Used by do and
// by the page iterator (which follows absolute Link URLs).
func (client *Client) doURL(ctx context.Context, method, url string, requestBody any, isRetry bool) ([]byte, http.Header, error) {
	// Preemptive rate limit check: if the quota is known-exhausted,
	// wait out the reset window rather than burning a request.
	if err := client.rateLimit.wait(ctx); err != nil {
		return nil, nil, err
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, nil, fmt.Errorf("github: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("github: creating request: %w", err)
	}

	authHeader, err := client.auth.header(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("github: authentication: %w", err)
	}
	request.Header.Set("Authorization", authHeader)
	request.Header.Set("Accept", "application/vnd.github+json")
	request.Header.Set("X-GitHub-Api-Version", apiVersion)
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, nil, fmt.Errorf("github: %s %s: %w", method, url, err)
	}
	defer response.Body.Close()

	client.rateLimit.update(response.Header)

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, nil, fmt.Errorf("github: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return body, response.Header, nil
	}

	// One retry after rate-limit backoff; never more, to avoid
	// spinning on persistent limiting.
	if !isRetry && isRateLimitResponse(response.StatusCode, body) {
		backoff := client.rateLimit.retryAfter(response.Header)
		if backoff > 0 {
			client.logger.Info("rate limited, backing off",
				"duration", backoff,
				"method", method,
				"url", url,
			)
			select {
			case <-client.clock.After(backoff):
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
			return client.doURL(ctx, method, url, requestBody, true)
		}
	}

	return nil, nil, parseAPIError(response.StatusCode, body)
}

// get, post, patch, put, delete are thin convenience wrappers.

func (client *Client) get(ctx context.Context, path string, result any) error {
	return client.do(ctx, http.MethodGet, path, nil, result)
}

func (client *Client) post(ctx context.Context, path string, requestBody, result any) error {
	return client.do(ctx, http.MethodPost, path, requestBody, result)
}

func (client *Client) patch(ctx context.Context, path string, requestBody, result any) error {
	return client.do(ctx, http.MethodPatch, path, requestBody, result)
}

func (client *Client) delete(ctx context.Context, path string) error {
	return client.do(ctx, http.MethodDelete, path, nil, nil)
}
