// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// Package matrix runs lockfile generation across all runtime variants
// concurrently and joins on every task reaching a terminal state.
//
// The executor is deliberately fail-open: one variant failing does
// not cancel the others, because a complete status map is worth more
// for diagnosis than a fast abort. Whether the run as a whole may
// proceed to reconciliation is decided downstream by lib/bundle,
// which refuses to materialize a bundle from a result with any
// failure.
package matrix
