// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "runlog.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

	records := []Record{
		{
			RunID:       "relock-20260825T060000Z-aa11bb22",
			TriggerKind: "scheduled",
			Strategy:    "change-request",
			Repo:        "acme/widgets",
			TargetRef:   "relock",
			Outcome:     "updated",
			StartedAt:   base,
			FinishedAt:  base.Add(3 * time.Minute),
			Variants: map[string]string{
				"3.10": "succeeded",
				"3.11": "succeeded",
			},
		},
		{
			RunID:       "relock-20260825T070000Z-cc33dd44",
			TriggerKind: "dispatch",
			Strategy:    "direct-push",
			Repo:        "acme/widgets",
			TargetRef:   "main",
			Outcome:     "failed",
			Detail:      "variant 3.11 failed: resolver exited 1",
			StartedAt:   base.Add(time.Hour),
			FinishedAt:  base.Add(time.Hour + time.Minute),
			Variants: map[string]string{
				"3.10": "succeeded",
				"3.11": "failed",
			},
		},
	}
	for _, record := range records {
		if err := store.Append(ctx, record); err != nil {
			t.Fatalf("Append(%s): %v", record.RunID, err)
		}
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent returned %d records, want 2", len(recent))
	}

	// Most recent first.
	if recent[0].RunID != records[1].RunID {
		t.Errorf("first record = %s, want %s", recent[0].RunID, records[1].RunID)
	}
	if recent[0].Outcome != "failed" || recent[0].Detail == "" {
		t.Errorf("failed run record = %+v", recent[0])
	}
	if recent[0].Variants["3.11"] != "failed" || recent[0].Variants["3.10"] != "succeeded" {
		t.Errorf("variant statuses = %v", recent[0].Variants)
	}
	if !recent[1].StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", recent[1].StartedAt, base)
	}
}

func TestAppendRejectsEmptyRunID(t *testing.T) {
	store := openTestStore(t)
	if err := store.Append(context.Background(), Record{}); err == nil {
		t.Fatal("Append accepted record without run ID")
	}
}

func TestAppendDuplicateRunID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	record := Record{
		RunID:       "relock-20260825T060000Z-aa11bb22",
		TriggerKind: "manual",
		Strategy:    "change-request",
		Repo:        "acme/widgets",
		TargetRef:   "relock",
		Outcome:     "no-op",
		StartedAt:   time.Now(),
		FinishedAt:  time.Now(),
	}
	if err := store.Append(ctx, record); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, record); err == nil {
		t.Fatal("Append accepted duplicate run ID")
	}
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	for index := range 5 {
		record := Record{
			RunID:       "relock-run-" + string(rune('a'+index)),
			TriggerKind: "scheduled",
			Strategy:    "change-request",
			Repo:        "acme/widgets",
			TargetRef:   "relock",
			Outcome:     "no-op",
			StartedAt:   base.Add(time.Duration(index) * time.Hour),
			FinishedAt:  base.Add(time.Duration(index)*time.Hour + time.Minute),
		}
		if err := store.Append(ctx, record); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recent, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("Recent returned %d records, want 3", len(recent))
	}
	if recent[0].RunID != "relock-run-e" {
		t.Errorf("first record = %s, want relock-run-e", recent[0].RunID)
	}
}
