// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// Package github provides a typed Go client for the slice of the
// GitHub REST (and GraphQL, for auto-merge) API that relockd uses:
// git data (blob → tree → commit → ref), branch contents, pull
// requests, reviews, commit statuses, and comment reactions.
//
// Authentication is either a static token (a personal access token,
// or a short-lived installation token leased by lib/credential) or a
// GitHub App JWT (used only to mint and revoke installation tokens).
// The client handles rate limiting (X-RateLimit-* headers with
// preemptive backoff), pagination (RFC 5988 Link headers), and
// structured error mapping.
//
// All requests are made over HTTPS. The client refuses non-HTTPS base
// URLs.
package github
