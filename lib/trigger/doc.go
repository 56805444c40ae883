// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// Package trigger classifies run triggers.
//
// A relock run starts from exactly one of three kinds of event: a
// cron schedule firing, an operator running the CLI, or an external
// dispatch carrying a comment reference. Route maps each kind to the
// reconciliation strategy the rest of the pipeline uses. The mapping
// is pure and total; anything outside the declared kinds fails closed
// with ErrUnknownKind before any work is scheduled.
package trigger
