// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/relockd/relockd/lib/bundle"
	"github.com/relockd/relockd/lib/clock"
	"github.com/relockd/relockd/lib/config"
	"github.com/relockd/relockd/lib/credential"
	"github.com/relockd/relockd/lib/cron"
	"github.com/relockd/relockd/lib/generate"
	"github.com/relockd/relockd/lib/github"
	"github.com/relockd/relockd/lib/manifest"
	"github.com/relockd/relockd/lib/reconcile"
	"github.com/relockd/relockd/lib/run"
	"github.com/relockd/relockd/lib/runlog"
	"github.com/relockd/relockd/lib/trigger"
)

// manifestLeaseTimeout bounds the credential lease taken just to read
// the manifest at run start.
const manifestLeaseTimeout = 30 * time.Second

// service owns the daemon's long-lived state: the credential broker,
// the bundle store, the run log, and the trigger queue. Runs execute
// one at a time off the queue; concurrent runs against the same
// repository would race on the work branch.
type service struct {
	config  *config.Config
	broker  *credential.Broker
	bundles *bundle.Store
	log     *runlog.Store
	clk     clock.Clock
	logger  *slog.Logger

	events chan trigger.Event
}

func newService(cfg *config.Config, logger *slog.Logger) (*service, error) {
	privateKey, err := os.ReadFile(cfg.Forge.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading app private key: %w", err)
	}

	clk := clock.Real()
	broker, err := credential.NewBroker(credential.Config{
		BaseURL:        cfg.Forge.BaseURL,
		AppID:          cfg.Forge.AppID,
		PrivateKey:     privateKey,
		InstallationID: cfg.Forge.InstallationID,
		Clock:          clk,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	log, err := runlog.Open(filepath.Join(cfg.Paths.State, "runlog.db"), logger)
	if err != nil {
		return nil, err
	}

	return &service{
		config:  cfg,
		broker:  broker,
		bundles: bundle.NewStore(filepath.Join(cfg.Paths.State, "bundles")),
		log:     log,
		clk:     clk,
		logger:  logger,
		events:  make(chan trigger.Event, 16),
	}, nil
}

func (service *service) close() {
	if service.log != nil {
		if err := service.log.Close(); err != nil {
			service.logger.Warn("closing run log", "error", err)
		}
	}
}

// serve runs the trigger sources and the run loop until the context is
// cancelled.
func (service *service) serve(ctx context.Context) error {
	cfg := service.config

	if cfg.Schedule.Cron != "" {
		schedule, err := cron.Parse(cfg.Schedule.Cron)
		if err != nil {
			return err
		}
		go service.scheduleLoop(ctx, schedule)
		service.logger.Info("scheduler started", "cron", cfg.Schedule.Cron)
	}

	var serverErr chan error
	if cfg.Dispatch.Listen != "" {
		secret, err := readDispatchSecret(cfg.Dispatch.SecretPath)
		if err != nil {
			return err
		}
		handler := newDispatchHandler(dispatchHandlerConfig{
			Secret:       secret,
			ExpectedRepo: cfg.Target.Owner + "/" + cfg.Target.Repo,
			Clock:        service.clk,
			Logger:       service.logger,
			OnEvent:      service.enqueue,
		})
		server := &http.Server{
			Addr:              cfg.Dispatch.Listen,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		serverErr = make(chan error, 1)
		go func() { serverErr <- server.ListenAndServe() }()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
		service.logger.Info("dispatch listener started", "address", cfg.Dispatch.Listen)
	}

	service.logger.Info("relockd running",
		"target", cfg.Target.Owner+"/"+cfg.Target.Repo,
		"state", cfg.Paths.State)

	for {
		select {
		case <-ctx.Done():
			service.logger.Info("shutting down")
			return nil
		case err := <-serverErr:
			return fmt.Errorf("dispatch listener: %w", err)
		case event := <-service.events:
			service.execute(ctx, event)
		}
	}
}

// scheduleLoop fires a Scheduled trigger at each cron boundary.
func (service *service) scheduleLoop(ctx context.Context, schedule cron.Schedule) {
	for {
		now := service.clk.Now()
		next, err := schedule.Next(now)
		if err != nil {
			service.logger.Error("scheduler stopped", "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-service.clk.After(next.Sub(now)):
			service.enqueue(trigger.Event{Kind: trigger.Scheduled})
		}
	}
}

// enqueue adds an event to the run queue. A full queue drops the
// event: a backlog of queued runs already covers whatever this trigger
// asked for.
func (service *service) enqueue(event trigger.Event) {
	select {
	case service.events <- event:
	default:
		service.logger.Warn("run queue full, dropping trigger", "kind", event.Kind)
	}
}

func (service *service) execute(ctx context.Context, event trigger.Event) {
	report, err := service.runOne(ctx, event)
	if err != nil {
		service.logger.Error("run failed", "trigger", event.Kind, "error", err)
		return
	}
	service.logger.Info("run complete", "run", report.RunID, "outcome", report.Outcome)
}

// runOne fetches the manifest and executes a single run.
func (service *service) runOne(ctx context.Context, event trigger.Event) (*run.Report, error) {
	cfg := service.config

	man, err := service.loadManifest(ctx)
	if err != nil {
		return nil, err
	}

	policy, err := reconcile.ParsePolicy(cfg.DirectPush.ConflictPolicy)
	if err != nil {
		return nil, err
	}

	runner, err := run.New(run.Config{
		Leaser:   service.broker,
		Owner:    cfg.Target.Owner,
		Repo:     cfg.Target.Repo,
		Manifest: man,
		Generator: &generate.CommandGenerator{
			Template: man.Command,
			Logger:   service.logger,
		},
		Bundles:     service.bundles,
		Log:         service.log,
		ScratchDir:  cfg.Paths.State,
		Policy:      policy,
		PushRetries: cfg.DirectPush.PushRetries,
		Clock:       service.clk,
		Logger:      service.logger,
	})
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, event)
}

// loadManifest fetches and parses the repository's manifest from its
// default branch under a short read-only lease.
func (service *service) loadManifest(ctx context.Context) (*manifest.Manifest, error) {
	cfg := service.config

	leaseCtx, cancel := context.WithTimeout(ctx, manifestLeaseTimeout)
	defer cancel()

	lease, err := service.broker.Acquire(leaseCtx, github.TokenScope{
		Repositories: []string{cfg.Target.Repo},
		Permissions:  map[string]string{"contents": "read"},
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), manifestLeaseTimeout)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			service.logger.Warn("manifest lease release failed", "error", err)
		}
	}()

	data, err := lease.Client.GetFileContent(leaseCtx, cfg.Target.Owner, cfg.Target.Repo, cfg.Target.ManifestPath, "")
	if err != nil {
		return nil, fmt.Errorf("fetching manifest %s: %w", cfg.Target.ManifestPath, err)
	}
	return manifest.Parse(data)
}

// readDispatchSecret reads the HMAC secret used to verify dispatch
// payload signatures. The secret must be non-empty.
func readDispatchSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dispatch secret: %w", err)
	}
	secret := []byte(strings.TrimSpace(string(data)))
	if len(secret) == 0 {
		return nil, fmt.Errorf("dispatch secret file %s is empty", path)
	}
	return secret, nil
}
