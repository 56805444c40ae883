// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/relockd/relockd/lib/config"
	"github.com/relockd/relockd/lib/process"
	"github.com/relockd/relockd/lib/trigger"
	"github.com/relockd/relockd/lib/version"
)

func main() {
	if err := runCLI(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

// runCLI dispatches the subcommand. Named to stay clear of the
// lib/run package import used elsewhere in this package.
func runCLI(args []string) error {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return fmt.Errorf("subcommand required")
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:])
	case "run":
		return runOnce(args[1:])
	case "version", "--version":
		fmt.Println(version.Full())
		return nil
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\nRun 'relockd help' for usage.", args[0])
	}
}

func printUsage(out *os.File) {
	fmt.Fprint(out, `relockd maintains pinned lockfiles across runtime-version variants.

Usage:
  relockd serve [--config FILE] [--log-level LEVEL]
  relockd run [--config FILE] [--branch BRANCH [--comment ID]]
  relockd version

serve runs the daemon: scheduled runs per the configured cron
expression, plus an HTTP dispatch listener when one is configured.

run executes a single run and exits. Without flags it behaves like an
operator-initiated refresh of the standing change request. With
--branch it pushes directly onto the named branch, as a dispatch
would.
`)
}

// commonFlags registers the flags shared by serve and run.
func commonFlags(flagSet *pflag.FlagSet) (configPath, logLevel *string) {
	configPath = flagSet.String("config", "", "path to relockd.yaml (overrides RELOCKD_CONFIG)")
	logLevel = flagSet.String("log-level", "info", "log level: debug, info, warn, error")
	return configPath, logLevel
}

func runServe(args []string) error {
	flagSet := pflag.NewFlagSet("relockd serve", pflag.ContinueOnError)
	configPath, logLevel := commonFlags(flagSet)
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := setup(*configPath, *logLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	defer service.close()

	return service.serve(ctx)
}

func runOnce(args []string) error {
	flagSet := pflag.NewFlagSet("relockd run", pflag.ContinueOnError)
	configPath, logLevel := commonFlags(flagSet)
	branch := flagSet.String("branch", "", "push directly onto this branch instead of the change request")
	commentID := flagSet.Int64("comment", 0, "comment ID to acknowledge on success (with --branch)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *commentID != 0 && *branch == "" {
		return fmt.Errorf("--comment requires --branch")
	}

	cfg, logger, err := setup(*configPath, *logLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	defer service.close()

	event := trigger.Event{Kind: trigger.Manual}
	if *branch != "" {
		event = trigger.Event{
			Kind: trigger.Dispatch,
			Origin: trigger.Origin{
				Repo:      cfg.Target.Owner + "/" + cfg.Target.Repo,
				Ref:       *branch,
				CommentID: *commentID,
			},
		}
	}

	report, err := service.runOne(ctx, event)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", report.RunID, report.Outcome)
	if report.PullRequest != nil {
		fmt.Printf("pull request #%d\n", report.PullRequest.Number)
	}
	return nil
}

// setup loads and validates configuration and builds the root logger.
func setup(configPath, logLevel string) (*config.Config, *slog.Logger, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, nil, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	return cfg, logger, nil
}
