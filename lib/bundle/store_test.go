// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleBundle() *Bundle {
	content := []byte(strings.Repeat("package==1.2.3\n", 200))
	return &Bundle{
		RunID:     NewRunID(testTime),
		CreatedAt: testTime,
		Artifacts: []Artifact{
			{Variant: "3.9", Path: "locks/3.9.lock", Content: content, Digest: Digest(content)},
			{Variant: "3.10", Path: "locks/3.10.lock", Content: []byte("short"), Digest: Digest([]byte("short"))},
		},
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	original := sampleBundle()

	if err := store.Save(original); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load(original.RunID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.RunID != original.RunID {
		t.Errorf("RunID = %q, want %q", loaded.RunID, original.RunID)
	}
	if len(loaded.Artifacts) != len(original.Artifacts) {
		t.Fatalf("got %d artifacts, want %d", len(loaded.Artifacts), len(original.Artifacts))
	}
	for i, artifact := range loaded.Artifacts {
		want := original.Artifacts[i]
		if artifact.Variant != want.Variant || artifact.Path != want.Path {
			t.Errorf("artifact %d = %q/%q, want %q/%q", i, artifact.Variant, artifact.Path, want.Variant, want.Path)
		}
		if !bytes.Equal(artifact.Content, want.Content) {
			t.Errorf("artifact %q content mismatch after round trip", artifact.Variant)
		}
	}
}

func TestStoreBlobsAreCompressed(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	original := sampleBundle()
	if err := store.Save(original); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// The large repetitive lockfile must shrink on disk.
	big := original.Artifacts[0]
	blobPath := filepath.Join(dir, original.RunID, "blobs", digestHex(big.Digest))
	info, err := os.Stat(blobPath)
	if err != nil {
		t.Fatalf("stat blob: %v", err)
	}
	if info.Size() >= int64(len(big.Content)) {
		t.Errorf("blob size %d not smaller than content %d", info.Size(), len(big.Content))
	}
}

func TestStoreDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	original := sampleBundle()
	if err := store.Save(original); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Replace a blob with differently-valued zstd data of the same
	// original size.
	victim := original.Artifacts[1]
	tampered, err := compress(CompressionZstd, []byte("tampr"))
	if err != nil {
		t.Fatal(err)
	}
	blobPath := filepath.Join(dir, original.RunID, "blobs", digestHex(victim.Digest))
	if err := os.WriteFile(blobPath, tampered, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load(original.RunID); err == nil || !strings.Contains(err.Error(), "digest mismatch") {
		t.Fatalf("Load = %v, want digest mismatch error", err)
	}
}

func TestStoreList(t *testing.T) {
	store := NewStore(t.TempDir())
	if runIDs, err := store.List(); err != nil || runIDs != nil {
		t.Fatalf("List on empty store = %v, %v", runIDs, err)
	}

	first := sampleBundle()
	second := sampleBundle()
	if err := store.Save(first); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(second); err != nil {
		t.Fatal(err)
	}

	runIDs, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runIDs) != 2 {
		t.Errorf("List returned %d runs, want 2", len(runIDs))
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("zope.interface==6.1\n", 50))
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			compressed, err := compress(tag, data)
			if err != nil {
				t.Fatalf("compress: %v", err)
			}
			decompressed, err := decompress(tag, compressed, len(data))
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if !bytes.Equal(decompressed, data) {
				t.Error("round trip mismatch")
			}
		})
	}
}
