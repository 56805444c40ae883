// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/relockd/relockd/lib/clock"
	"github.com/relockd/relockd/lib/github"
)

// Config configures a Broker.
type Config struct {
	// BaseURL is the GitHub API base URL. Defaults to the public API.
	BaseURL string

	// AppID is the GitHub App's numeric identifier.
	AppID int64

	// PrivateKey is the App's RSA private key in PEM form.
	PrivateKey []byte

	// InstallationID identifies the App installation to mint tokens
	// for.
	InstallationID int64

	// HTTPClient is used for all API traffic. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Clock is used for JWT timestamps and rate-limit backoff.
	// Defaults to the real clock.
	Clock clock.Clock

	// Logger receives lease lifecycle events. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Broker mints installation-token leases. Safe for concurrent use.
type Broker struct {
	app            *github.Client
	installationID int64
	baseURL        string
	httpClient     *http.Client
	clk            clock.Clock
	logger         *slog.Logger
}

// NewBroker validates the App credentials and returns a Broker. It
// does not contact GitHub; the first mint happens on Acquire.
func NewBroker(config Config) (*Broker, error) {
	if config.InstallationID == 0 {
		return nil, fmt.Errorf("credential: installation ID is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	app, err := github.NewClient(github.Config{
		BaseURL:    config.BaseURL,
		AppID:      config.AppID,
		PrivateKey: config.PrivateKey,
		HTTPClient: config.HTTPClient,
		Clock:      config.Clock,
		Logger:     config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("credential: building app client: %w", err)
	}
	return &Broker{
		app:            app,
		installationID: config.InstallationID,
		baseURL:        config.BaseURL,
		httpClient:     config.HTTPClient,
		clk:            config.Clock,
		logger:         config.Logger,
	}, nil
}

// Lease is a live installation token bound to an API client. Release
// revokes the token; the zero value is not usable.
type Lease struct {
	// Client is authenticated with the leased token and scoped to
	// whatever the lease's TokenScope granted.
	Client *github.Client

	token     string
	expiresAt time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	released bool
}

// Acquire mints a token scoped to the given repositories and
// permissions and returns a lease around it. The caller owns the
// lease and must Release it — typically in a defer immediately after
// a successful Acquire.
func (broker *Broker) Acquire(ctx context.Context, scope github.TokenScope) (*Lease, error) {
	token, err := broker.app.CreateInstallationToken(ctx, broker.installationID, scope)
	if err != nil {
		return nil, fmt.Errorf("credential: acquiring lease: %w", err)
	}

	leased, err := github.NewClient(github.Config{
		BaseURL:    broker.baseURL,
		Token:      token.Token,
		HTTPClient: broker.httpClient,
		Clock:      broker.clk,
		Logger:     broker.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("credential: building leased client: %w", err)
	}

	broker.logger.Info("credential lease acquired",
		"installation", broker.installationID,
		"repositories", scope.Repositories,
		"expires_at", token.ExpiresAt)

	return &Lease{
		Client:    leased,
		token:     token.Token,
		expiresAt: token.ExpiresAt,
		logger:    broker.logger,
	}, nil
}

// Token returns the raw leased token. Needed for git-over-HTTPS
// operations, which authenticate outside the API client.
func (lease *Lease) Token() string {
	return lease.token
}

// ExpiresAt reports when GitHub will expire the token regardless of
// revocation.
func (lease *Lease) ExpiresAt() time.Time {
	return lease.expiresAt
}

// Release revokes the leased token. Idempotent: the second and later
// calls are no-ops. Revocation failures are returned but the lease is
// marked released either way — the token still dies at its natural
// expiry, so there is nothing useful to retry against a dead run.
func (lease *Lease) Release(ctx context.Context) error {
	lease.mu.Lock()
	if lease.released {
		lease.mu.Unlock()
		return nil
	}
	lease.released = true
	lease.mu.Unlock()

	logger := lease.logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := lease.Client.RevokeInstallationToken(ctx); err != nil {
		logger.Warn("credential lease revocation failed", "error", err)
		return fmt.Errorf("credential: releasing lease: %w", err)
	}
	logger.Info("credential lease released")
	return nil
}
