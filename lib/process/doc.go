// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides process-level helpers shared by relockd
// binaries.
package process
