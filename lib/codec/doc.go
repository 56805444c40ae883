// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides relockd's standard CBOR encoding
// configuration.
//
// Relockd uses two serialization formats with a clear boundary: JSON
// for external interfaces (the GitHub API, webhook payloads, the
// in-repo manifest) and CBOR for internal on-disk state (bundle
// indexes in the state directory).
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items. Same logical data always produces identical bytes.
//
// Types serialized only as CBOR carry `cbor` struct tags; types that
// also cross a JSON boundary carry `json` tags (fxamacker/cbor reads
// them as fallback). Never both on the same field.
package codec
