// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/relockd/relockd/lib/matrix"
)

// Artifact is one generated lockfile within a bundle.
type Artifact struct {
	// Variant is the runtime version the lockfile was generated for.
	Variant string

	// Path is the repository-relative path the lockfile reconciles
	// to (e.g. "locks/3.11.lock").
	Path string

	// Content is the lockfile bytes.
	Content []byte

	// Digest is the BLAKE3 digest of Content, "b3:" + lowercase hex.
	// Used for cheap content comparison and as the blob address in
	// the store.
	Digest string
}

// Bundle is the complete, all-succeeded set of generated lockfiles
// for one run attempt. A bundle exists only if every variant task
// succeeded — partial bundles are never materialized.
type Bundle struct {
	// RunID names this run attempt. Fresh per attempt, so repeated
	// attempts of the same scheduled run never collide.
	RunID string

	// CreatedAt is when the bundle was assembled.
	CreatedAt time.Time

	// Artifacts holds one entry per variant, in matrix request order.
	Artifacts []Artifact
}

// UnavailableError reports that no bundle could be constructed
// because one or more variant tasks failed. The pipeline halts on
// this error before any write to version control.
type UnavailableError struct {
	// Failed lists the failed variants in request order.
	Failed []string
}

func (err *UnavailableError) Error() string {
	return fmt.Sprintf("bundle: unavailable, failed variants: %s", strings.Join(err.Failed, ", "))
}

// PathFunc maps a variant identifier to its repository-relative
// lockfile path.
type PathFunc func(variant string) string

// Aggregate is the join-barrier decision point. The matrix result it
// consumes is already fully terminal (the executor returns only after
// every task finishes), so the decision rule is pure: any Failed task
// means no bundle and an *UnavailableError naming the casualties; all
// Succeeded means a bundle keyed by a fresh run identifier.
func Aggregate(result matrix.Result, path PathFunc, now time.Time) (*Bundle, error) {
	if len(result.Tasks) == 0 {
		return nil, fmt.Errorf("bundle: empty matrix result")
	}
	for _, task := range result.Tasks {
		if !task.Status.Terminal() {
			return nil, fmt.Errorf("bundle: task %q is not terminal (%s)", task.Variant, task.Status)
		}
	}

	if failed := result.Failed(); len(failed) > 0 {
		return nil, &UnavailableError{Failed: failed}
	}

	bundle := &Bundle{
		RunID:     NewRunID(now),
		CreatedAt: now,
		Artifacts: make([]Artifact, 0, len(result.Tasks)),
	}
	for _, task := range result.Tasks {
		bundle.Artifacts = append(bundle.Artifacts, Artifact{
			Variant: task.Variant,
			Path:    path(task.Variant),
			Content: task.Artifact,
			Digest:  Digest(task.Artifact),
		})
	}
	return bundle, nil
}

// Files returns the path → content mapping for reconciliation.
func (b *Bundle) Files() map[string][]byte {
	files := make(map[string][]byte, len(b.Artifacts))
	for _, artifact := range b.Artifacts {
		files[artifact.Path] = artifact.Content
	}
	return files
}

// Variants returns the sorted variant identifiers in the bundle.
func (b *Bundle) Variants() []string {
	variants := make([]string, len(b.Artifacts))
	for i, artifact := range b.Artifacts {
		variants[i] = artifact.Variant
	}
	sort.Strings(variants)
	return variants
}

// Digest computes the BLAKE3 content digest used throughout relockd:
// "b3:" + lowercase hex of the 256-bit hash.
func Digest(content []byte) string {
	sum := blake3.Sum256(content)
	return "b3:" + hex.EncodeToString(sum[:])
}

// NewRunID returns a fresh run-attempt identifier:
// "relock-<UTC timestamp>-<4 random bytes hex>". The random suffix
// keeps two attempts within the same second distinct.
func NewRunID(now time.Time) string {
	var suffix [4]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		// crypto/rand only fails when the platform's entropy source
		// is broken; at that point nothing else works either.
		panic("bundle: reading random suffix: " + err.Error())
	}
	return fmt.Sprintf("relock-%s-%s", now.UTC().Format("20060102T150405"), hex.EncodeToString(suffix[:]))
}
