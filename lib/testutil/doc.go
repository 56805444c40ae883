// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for relockd packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. These are the only
// places in the test suite where real wall-clock timeouts are used;
// everything else goes through lib/clock's FakeClock.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation. Use it instead of time.Now() when tests need unique
// run IDs or branch names.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no relockd-internal dependencies.
package testutil
