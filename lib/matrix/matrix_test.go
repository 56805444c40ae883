// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func discardExecutor(generate GenerateFunc) *Executor {
	return &Executor{Generate: generate}
}

func TestRunAllSucceed(t *testing.T) {
	executor := discardExecutor(func(_ context.Context, variant string) ([]byte, error) {
		return []byte("lock for " + variant), nil
	})

	result, err := executor.Run(context.Background(), []string{"3.9", "3.10", "3.11"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !result.Succeeded() {
		t.Fatalf("Succeeded() = false, statuses %v", result.Statuses())
	}
	if len(result.Tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(result.Tasks))
	}
	for i, want := range []string{"3.9", "3.10", "3.11"} {
		task := result.Tasks[i]
		if task.Variant != want {
			t.Errorf("task %d variant = %q, want %q (request order preserved)", i, task.Variant, want)
		}
		if string(task.Artifact) != "lock for "+want {
			t.Errorf("task %d artifact = %q", i, task.Artifact)
		}
	}
}

func TestRunPartialFailureDoesNotCancelSiblings(t *testing.T) {
	var completed atomic.Int32
	failure := errors.New("resolver exploded")

	executor := discardExecutor(func(_ context.Context, variant string) ([]byte, error) {
		defer completed.Add(1)
		if variant == "3.10" {
			return nil, failure
		}
		return []byte(variant), nil
	})

	result, err := executor.Run(context.Background(), []string{"3.9", "3.10", "3.11"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := completed.Load(); got != 3 {
		t.Errorf("completed = %d, want 3 (siblings must run to terminal state)", got)
	}
	if result.Succeeded() {
		t.Error("Succeeded() = true with a failed task")
	}
	if failed := result.Failed(); len(failed) != 1 || failed[0] != "3.10" {
		t.Errorf("Failed() = %v, want [3.10]", failed)
	}

	statuses := result.Statuses()
	if statuses["3.9"] != Succeeded || statuses["3.11"] != Succeeded {
		t.Errorf("sibling statuses = %v, want succeeded", statuses)
	}
	for _, task := range result.Tasks {
		if task.Variant == "3.10" && !errors.Is(task.Err, failure) {
			t.Errorf("failed task error = %v, want %v", task.Err, failure)
		}
	}
}

func TestRunTasksExecuteConcurrently(t *testing.T) {
	// Each task blocks until every task has started. If the executor
	// ran tasks sequentially this would deadlock; the wall-clock
	// timeout in the harness would catch that as a hang, so instead
	// use a WaitGroup barrier that only releases under concurrency.
	const variants = 4
	var barrier sync.WaitGroup
	barrier.Add(variants)

	executor := discardExecutor(func(_ context.Context, variant string) ([]byte, error) {
		barrier.Done()
		barrier.Wait()
		return []byte(variant), nil
	})

	names := make([]string, variants)
	for i := range names {
		names[i] = fmt.Sprintf("3.%d", 9+i)
	}

	result, err := executor.Run(context.Background(), names)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Succeeded() {
		t.Errorf("statuses %v, want all succeeded", result.Statuses())
	}
}

func TestRunContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	executor := discardExecutor(func(ctx context.Context, variant string) ([]byte, error) {
		return nil, ctx.Err()
	})

	result, err := executor.Run(ctx, []string{"3.9", "3.10"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The join barrier held: every task is terminal, all failed.
	if got := len(result.Failed()); got != 2 {
		t.Errorf("Failed() has %d entries, want 2", got)
	}
}

func TestRunValidation(t *testing.T) {
	executor := discardExecutor(func(_ context.Context, variant string) ([]byte, error) {
		return nil, nil
	})

	tests := []struct {
		name     string
		variants []string
		wantErr  string
	}{
		{"empty_set", nil, "no variants"},
		{"empty_identifier", []string{"3.9", ""}, "empty variant"},
		{"duplicate", []string{"3.9", "3.9"}, "duplicate variant"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := executor.Run(context.Background(), test.variants)
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Run = %v, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{Pending, false},
		{Running, false},
		{Succeeded, true},
		{Failed, true},
	}
	for _, test := range tests {
		if got := test.status.Terminal(); got != test.want {
			t.Errorf("%s.Terminal() = %v, want %v", test.status, got, test.want)
		}
	}
}

func TestRunReturnsOnlyTerminalTasks(t *testing.T) {
	// Tasks pass through Pending and Running inside Run, but a result
	// must never carry an in-flight slot.
	executor := discardExecutor(func(_ context.Context, variant string) ([]byte, error) {
		if variant == "3.10" {
			return nil, errors.New("boom")
		}
		return []byte(variant), nil
	})

	result, err := executor.Run(context.Background(), []string{"3.9", "3.10", "3.11"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, task := range result.Tasks {
		if !task.Status.Terminal() {
			t.Errorf("task %s status = %s, want terminal", task.Variant, task.Status)
		}
	}
}

func TestRunRequiresGenerate(t *testing.T) {
	executor := &Executor{}
	if _, err := executor.Run(context.Background(), []string{"3.9"}); err == nil {
		t.Fatal("Run without Generate succeeded, want error")
	}
}
