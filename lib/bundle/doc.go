// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundle assembles and persists the output of a relock run.
//
// Aggregate is the pipeline's join-barrier decision point: it turns a
// fully terminal matrix result into either a Bundle (every variant
// succeeded) or an UnavailableError (any failure). No partial bundle
// is ever constructed, which is what guarantees reconciliation never
// sees an incomplete regeneration.
//
// Store persists completed bundles to the state directory as a CBOR
// index plus compressed, BLAKE3-addressed blobs, so operators can
// inspect what a run produced after the fact.
package bundle
