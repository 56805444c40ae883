// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// Package run drives one complete relock run: route the trigger,
// lease a credential, fan generation out across the variant matrix,
// aggregate the bundle, reconcile it into version control, and apply
// the strategy's follow-up. The runner owns sequencing and the
// credential lifetime; the per-stage logic lives in the stage
// packages.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/relockd/relockd/lib/bundle"
	"github.com/relockd/relockd/lib/clock"
	"github.com/relockd/relockd/lib/credential"
	"github.com/relockd/relockd/lib/generate"
	"github.com/relockd/relockd/lib/github"
	"github.com/relockd/relockd/lib/manifest"
	"github.com/relockd/relockd/lib/matrix"
	"github.com/relockd/relockd/lib/reconcile"
	"github.com/relockd/relockd/lib/runlog"
	"github.com/relockd/relockd/lib/trigger"
)

// Leaser mints per-run credential leases. *credential.Broker is the
// production implementation.
type Leaser interface {
	Acquire(ctx context.Context, scope github.TokenScope) (*credential.Lease, error)
}

// Config wires a Runner. Leaser, Owner, Repo, Manifest, and Generator
// are required.
type Config struct {
	Leaser Leaser

	// Owner and Repo identify the target repository.
	Owner string
	Repo  string

	// Manifest declares the variant matrix and lockfile layout.
	Manifest *manifest.Manifest

	// Generator produces lockfile content per variant.
	Generator generate.Generator

	// Bundles persists completed bundles for post-run inspection.
	// Optional.
	Bundles *bundle.Store

	// Log records run attempts. Optional.
	Log *runlog.Store

	// ScratchDir holds per-run git clones for the direct-push
	// strategy.
	ScratchDir string

	// Policy is the direct-push conflict policy. Zero value is
	// PolicyReject.
	Policy reconcile.ConflictPolicy

	// PushRetries bounds direct-push attempts. Zero means the
	// strategy default.
	PushRetries int

	// CloneURL overrides the authenticated clone URL. Empty means
	// build the standard GitHub URL with the leased token.
	CloneURL string

	// Clock supplies run timestamps. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives run events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Runner executes relock runs. Safe for concurrent use only if runs
// are serialized by the caller; concurrent runs against the same
// repository would race on the work branch.
type Runner struct {
	config Config
}

// New validates the configuration and returns a Runner.
func New(config Config) (*Runner, error) {
	if config.Leaser == nil {
		return nil, fmt.Errorf("run: Leaser is required")
	}
	if config.Owner == "" || config.Repo == "" {
		return nil, fmt.Errorf("run: Owner and Repo are required")
	}
	if config.Manifest == nil {
		return nil, fmt.Errorf("run: Manifest is required")
	}
	if config.Generator == nil {
		return nil, fmt.Errorf("run: Generator is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Runner{config: config}, nil
}

// Report summarizes a completed run.
type Report struct {
	RunID       string
	Strategy    trigger.Strategy
	Outcome     reconcile.Outcome
	Statuses    map[string]matrix.Status
	CommitSHA   string
	PullRequest *github.PullRequest
}

// Run executes one relock run for the given trigger event. The
// credential lease is released on every exit path. Failed runs are
// recorded in the run log before the error returns.
func (runner *Runner) Run(ctx context.Context, event trigger.Event) (*Report, error) {
	config := runner.config
	startedAt := config.Clock.Now()

	strategy, err := trigger.Route(event)
	if err != nil {
		// Fail closed: unroutable events do no work and lease no
		// credential.
		return nil, err
	}

	targetRef := config.Manifest.WorkBranch
	if strategy == trigger.DirectPush {
		targetRef = event.Origin.Ref
	}

	logger := config.Logger.With("trigger", event.Kind, "strategy", strategy)
	logger.Info("run starting", "variants", len(config.Manifest.Variants), "target", targetRef)

	report, runErr := runner.execute(ctx, event, strategy, logger)

	record := runlog.Record{
		TriggerKind: string(event.Kind),
		Strategy:    string(strategy),
		Repo:        config.Owner + "/" + config.Repo,
		TargetRef:   targetRef,
		StartedAt:   startedAt,
		FinishedAt:  config.Clock.Now(),
	}
	if report != nil {
		record.RunID = report.RunID
		record.Outcome = report.Outcome.String()
		record.Variants = statusStrings(report.Statuses)
	}
	if runErr != nil {
		if record.RunID == "" {
			record.RunID = bundle.NewRunID(startedAt)
		}
		record.Outcome = "failed"
		record.Detail = runErr.Error()
		var unavailable *bundle.UnavailableError
		if errors.As(runErr, &unavailable) {
			record.Variants = failedVariantStatuses(unavailable, config.Manifest.Variants)
		}
	}
	if config.Log != nil {
		if err := config.Log.Append(ctx, record); err != nil {
			logger.Warn("recording run failed", "error", err)
		}
	}

	if runErr != nil {
		return nil, runErr
	}
	logger.Info("run finished", "run", report.RunID, "outcome", report.Outcome)
	return report, nil
}

// execute is the leased portion of a run.
func (runner *Runner) execute(ctx context.Context, event trigger.Event, strategy trigger.Strategy, logger *slog.Logger) (*Report, error) {
	config := runner.config

	lease, err := config.Leaser.Acquire(ctx, github.TokenScope{
		Repositories: []string{config.Repo},
		Permissions: map[string]string{
			"contents":      "write",
			"pull_requests": "write",
			"statuses":      "write",
		},
	})
	if err != nil {
		return nil, err
	}
	// Revocation must happen even when the run's context is already
	// cancelled.
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			logger.Warn("credential release failed", "error", err)
		}
	}()

	executor := &matrix.Executor{Generate: config.Generator.Generate, Logger: logger}
	result, err := executor.Run(ctx, config.Manifest.Variants)
	if err != nil {
		return nil, err
	}

	locked, err := bundle.Aggregate(result, runner.lockfilePath, config.Clock.Now())
	if err != nil {
		// No partial bundles: a failed variant halts the run before
		// any write to version control.
		return nil, err
	}

	if config.Bundles != nil {
		if err := config.Bundles.Save(locked); err != nil {
			logger.Warn("persisting bundle failed", "run", locked.RunID, "error", err)
		}
	}

	report := &Report{
		RunID:    locked.RunID,
		Strategy: strategy,
		Statuses: result.Statuses(),
	}

	switch strategy {
	case trigger.ChangeRequest:
		outcome, err := runner.reconcileChangeRequest(ctx, lease, locked, logger)
		if err != nil {
			return report, err
		}
		report.Outcome = outcome.Outcome
		report.CommitSHA = outcome.CommitSHA
		report.PullRequest = outcome.PullRequest

	case trigger.DirectPush:
		outcome, err := runner.reconcileDirectPush(ctx, lease, event, locked, logger)
		if err != nil {
			return report, err
		}
		report.Outcome = outcome.Outcome
		report.CommitSHA = outcome.CommitSHA

		// Dispatch-only acknowledgement, and only when a commit
		// actually landed. A no-change re-run of the same dispatch
		// must leave the comment untouched, exactly as it leaves the
		// branch untouched.
		if event.Origin.CommentID != 0 && outcome.Outcome == reconcile.OutcomeUpdated {
			emitter := &reconcile.NotificationEmitter{
				Client: lease.Client,
				Owner:  config.Owner,
				Repo:   config.Repo,
				Logger: logger,
			}
			if err := emitter.Acknowledge(ctx, event.Origin.CommentID); err != nil {
				// The push landed; a missing reaction is not worth
				// failing the run over.
				logger.Warn("dispatch acknowledgement failed", "error", err)
			}
		}
	}

	return report, nil
}

func (runner *Runner) reconcileChangeRequest(ctx context.Context, lease *credential.Lease, locked *bundle.Bundle, logger *slog.Logger) (*reconcile.Result, error) {
	config := runner.config
	strategy := &reconcile.ChangeRequest{
		Client:        lease.Client,
		Owner:         config.Owner,
		Repo:          config.Repo,
		BaseBranch:    config.Manifest.BaseBranch,
		WorkBranch:    config.Manifest.WorkBranch,
		CommitMessage: config.Manifest.CommitMessage,
		Labels:        config.Manifest.Labels,
		StatusContext: "relock",
		Logger:        logger,
	}
	result, err := strategy.Reconcile(ctx, locked)
	if err != nil {
		return nil, err
	}

	if result.Outcome == reconcile.OutcomeUpdated {
		followup := &reconcile.ApprovalAutomerge{
			Client: lease.Client,
			Owner:  config.Owner,
			Repo:   config.Repo,
			Logger: logger,
		}
		if err := followup.Apply(ctx, result.PullRequest); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (runner *Runner) reconcileDirectPush(ctx context.Context, lease *credential.Lease, event trigger.Event, locked *bundle.Bundle, logger *slog.Logger) (*reconcile.Result, error) {
	config := runner.config
	cloneURL := config.CloneURL
	if cloneURL == "" {
		cloneURL = fmt.Sprintf("https://x-access-token:%s@github.com/%s/%s.git", lease.Token(), config.Owner, config.Repo)
	}
	strategy := &reconcile.DirectPush{
		CloneURL:      cloneURL,
		Branch:        event.Origin.Ref,
		Policy:        config.Policy,
		PushRetries:   config.PushRetries,
		WorkDir:       filepath.Join(config.ScratchDir, "clones"),
		CommitMessage: config.Manifest.CommitMessage,
		AuthorName:    "relockd",
		AuthorEmail:   "relockd@localhost",
		Logger:        logger,
	}
	return strategy.Reconcile(ctx, locked)
}

// lockfilePath resolves the manifest's path template for a variant.
// Template validity was checked at manifest parse time, so expansion
// cannot fail here.
func (runner *Runner) lockfilePath(variant string) string {
	path, err := generate.Expand(runner.config.Manifest.LockfilePath, map[string]string{"VARIANT": variant})
	if err != nil {
		return runner.config.Manifest.LockfilePath
	}
	return path
}

func statusStrings(statuses map[string]matrix.Status) map[string]string {
	if len(statuses) == 0 {
		return nil
	}
	converted := make(map[string]string, len(statuses))
	for variant, status := range statuses {
		converted[variant] = string(status)
	}
	return converted
}

// failedVariantStatuses reconstructs the per-variant outcome from an
// aggregation failure: named variants failed, the rest succeeded.
func failedVariantStatuses(unavailable *bundle.UnavailableError, variants []string) map[string]string {
	failed := make(map[string]bool, len(unavailable.Failed))
	for _, variant := range unavailable.Failed {
		failed[variant] = true
	}
	statuses := make(map[string]string, len(variants))
	for _, variant := range variants {
		if failed[variant] {
			statuses[variant] = string(matrix.Failed)
		} else {
			statuses[variant] = string(matrix.Succeeded)
		}
	}
	return statuses
}
