// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/relockd/relockd/lib/codec"
)

// Store persists completed bundles under a state directory so a run's
// output can be inspected after the fact. Layout:
//
//	<dir>/<runID>/index.cbor        bundle metadata
//	<dir>/<runID>/blobs/<hex>       compressed artifact blobs,
//	                                named by BLAKE3 digest
//
// Attempts never collide because run IDs are fresh per attempt.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created on
// first Save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// storedIndex is the on-disk bundle metadata. CBOR-only.
type storedIndex struct {
	RunID     string         `cbor:"run_id"`
	CreatedAt time.Time      `cbor:"created_at"`
	Artifacts []storedOutput `cbor:"artifacts"`
}

// storedOutput describes one persisted artifact blob.
type storedOutput struct {
	Variant     string         `cbor:"variant"`
	Path        string         `cbor:"path"`
	Digest      string         `cbor:"digest"`
	Size        int64          `cbor:"size"`
	Compression CompressionTag `cbor:"compression"`
}

// Save writes the bundle to the store. Artifacts are zstd-compressed
// (lockfiles are repetitive text) and addressed by digest.
func (store *Store) Save(bundle *Bundle) error {
	runDir := filepath.Join(store.dir, bundle.RunID)
	blobDir := filepath.Join(runDir, "blobs")
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return fmt.Errorf("bundle: creating run directory: %w", err)
	}

	index := storedIndex{
		RunID:     bundle.RunID,
		CreatedAt: bundle.CreatedAt,
	}

	for _, artifact := range bundle.Artifacts {
		compressed, err := compress(CompressionZstd, artifact.Content)
		if err != nil {
			return err
		}
		blobPath := filepath.Join(blobDir, digestHex(artifact.Digest))
		if err := os.WriteFile(blobPath, compressed, 0o644); err != nil {
			return fmt.Errorf("bundle: writing blob for %q: %w", artifact.Variant, err)
		}
		index.Artifacts = append(index.Artifacts, storedOutput{
			Variant:     artifact.Variant,
			Path:        artifact.Path,
			Digest:      artifact.Digest,
			Size:        int64(len(artifact.Content)),
			Compression: CompressionZstd,
		})
	}

	encoded, err := codec.Marshal(index)
	if err != nil {
		return fmt.Errorf("bundle: encoding index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "index.cbor"), encoded, 0o644); err != nil {
		return fmt.Errorf("bundle: writing index: %w", err)
	}
	return nil
}

// Load reads a bundle back from the store by run ID. Every blob's
// digest is verified on read; a mismatch means on-disk corruption.
func (store *Store) Load(runID string) (*Bundle, error) {
	runDir := filepath.Join(store.dir, runID)

	encoded, err := os.ReadFile(filepath.Join(runDir, "index.cbor"))
	if err != nil {
		return nil, fmt.Errorf("bundle: reading index for %q: %w", runID, err)
	}
	var index storedIndex
	if err := codec.Unmarshal(encoded, &index); err != nil {
		return nil, fmt.Errorf("bundle: decoding index for %q: %w", runID, err)
	}

	bundle := &Bundle{
		RunID:     index.RunID,
		CreatedAt: index.CreatedAt,
		Artifacts: make([]Artifact, 0, len(index.Artifacts)),
	}
	for _, stored := range index.Artifacts {
		compressed, err := os.ReadFile(filepath.Join(runDir, "blobs", digestHex(stored.Digest)))
		if err != nil {
			return nil, fmt.Errorf("bundle: reading blob %s: %w", stored.Digest, err)
		}
		content, err := decompress(stored.Compression, compressed, int(stored.Size))
		if err != nil {
			return nil, err
		}
		if got := Digest(content); got != stored.Digest {
			return nil, fmt.Errorf("bundle: blob %s digest mismatch (got %s)", stored.Digest, got)
		}
		bundle.Artifacts = append(bundle.Artifacts, Artifact{
			Variant: stored.Variant,
			Path:    stored.Path,
			Content: content,
			Digest:  stored.Digest,
		})
	}
	return bundle, nil
}

// List returns the run IDs present in the store, sorted by name
// (which sorts by creation time given the timestamp prefix).
func (store *Store) List() ([]string, error) {
	entries, err := os.ReadDir(store.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bundle: listing store: %w", err)
	}
	var runIDs []string
	for _, entry := range entries {
		if entry.IsDir() {
			runIDs = append(runIDs, entry.Name())
		}
	}
	return runIDs, nil
}

// digestHex strips the "b3:" prefix for use as a filename.
func digestHex(digest string) string {
	return strings.TrimPrefix(digest, "b3:")
}
