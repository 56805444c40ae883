// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential leases short-lived, narrowly scoped GitHub tokens
// for relock runs. A Broker authenticates as a GitHub App and mints an
// installation token per run, scoped to exactly the repository the run
// touches and the permissions the run's strategy needs. The resulting
// Lease carries a ready-to-use API client; callers must Release the
// lease when the run ends, which revokes the token server-side.
//
// Tokens expire after at most an hour regardless, but revocation on
// release keeps the exposure window as short as the run itself.
package credential
