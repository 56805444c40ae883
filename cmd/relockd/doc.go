// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// relockd regenerates pinned dependency lockfiles across parallel
// runtime-version variants and reconciles them into version control.
//
// Three subcommands:
//
//	relockd serve    run the daemon: cron-scheduled runs plus an
//	                 optional HTTP dispatch listener
//	relockd run      execute a single run and exit
//	relockd version  print build version information
//
// Configuration comes from a YAML file named by --config or the
// RELOCKD_CONFIG environment variable. The variant matrix itself
// lives in the target repository's .relock.jsonc manifest and is
// fetched fresh at the start of every run.
package main
