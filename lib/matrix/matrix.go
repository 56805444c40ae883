// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Status is the lifecycle state of one variant task. Tasks move
// Pending → Running → (Succeeded | Failed) and never leave a terminal
// state.
type Status string

const (
	Pending   Status = "pending"
	Running   Status = "running"
	Succeeded Status = "succeeded"
	Failed    Status = "failed"
)

// Terminal reports whether the status is Succeeded or Failed.
func (s Status) Terminal() bool { return s == Succeeded || s == Failed }

// GenerateFunc produces the lockfile content for one variant. It is
// the boundary to the external generator: relockd treats it as an
// opaque, deterministic call that either yields the artifact bytes or
// fails.
type GenerateFunc func(ctx context.Context, variant string) ([]byte, error)

// Task is the terminal record of one variant's generation. Owned
// exclusively by the executor until it reaches a terminal status,
// then read-only.
type Task struct {
	// Variant is the runtime version this task generated for
	// (e.g. "3.11").
	Variant string

	// Status is the terminal status. Always Succeeded or Failed in
	// an executor result.
	Status Status

	// Artifact is the generated lockfile content. Nil unless Status
	// is Succeeded.
	Artifact []byte

	// Err is the generation failure. Nil unless Status is Failed.
	Err error
}

// Result is the full fan-in report of one matrix execution: one
// terminal task per requested variant, in request order.
type Result struct {
	Tasks []Task
}

// Failed returns the variants whose tasks failed, in request order.
func (r Result) Failed() []string {
	var failed []string
	for _, task := range r.Tasks {
		if task.Status == Failed {
			failed = append(failed, task.Variant)
		}
	}
	return failed
}

// Succeeded reports whether every task succeeded.
func (r Result) Succeeded() bool {
	for _, task := range r.Tasks {
		if task.Status != Succeeded {
			return false
		}
	}
	return true
}

// Statuses returns the variant → status map.
func (r Result) Statuses() map[string]Status {
	statuses := make(map[string]Status, len(r.Tasks))
	for _, task := range r.Tasks {
		statuses[task.Variant] = task.Status
	}
	return statuses
}

// Executor fans generation out across all variants concurrently and
// joins on every task reaching a terminal state.
//
// The failure policy is fail-open: a failing variant never cancels
// its siblings. Every task runs to its own terminal state so a
// partially broken resolver input still reports which variants are
// affected. The result as a whole is unusable for reconciliation
// unless all tasks succeeded — that decision belongs to the bundle
// aggregator, not the executor.
type Executor struct {
	// Generate produces the artifact for one variant. Required.
	Generate GenerateFunc

	// Logger receives per-task progress. Defaults to slog.Default().
	Logger *slog.Logger
}

// Run executes all variants concurrently and returns once every task
// is terminal. The returned result preserves the request order of
// variants. Duplicate or empty variant identifiers are rejected
// before any task starts.
//
// Context cancellation propagates to in-flight Generate calls;
// cancelled tasks report Failed with the context error. Run itself
// still waits for every task to return — the join barrier holds even
// under cancellation.
func (executor *Executor) Run(ctx context.Context, variants []string) (Result, error) {
	if executor.Generate == nil {
		return Result{}, fmt.Errorf("matrix: Generate function is required")
	}
	if len(variants) == 0 {
		return Result{}, fmt.Errorf("matrix: no variants to run")
	}
	if err := validateVariants(variants); err != nil {
		return Result{}, err
	}

	logger := executor.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// One slot per task; each goroutine writes only its own index,
	// so no cross-task shared mutable state exists. Slots start
	// Pending and move through Running to a terminal state; the
	// intermediate states never escape Run, which returns only after
	// the join.
	tasks := make([]Task, len(variants))
	for i, variant := range variants {
		tasks[i] = Task{Variant: variant, Status: Pending}
	}

	var waitGroup sync.WaitGroup
	for i, variant := range variants {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()

			tasks[i].Status = Running
			logger.Info("variant generation started", "variant", variant)
			artifact, err := executor.Generate(ctx, variant)
			if err != nil {
				logger.Error("variant generation failed", "variant", variant, "error", err)
				tasks[i] = Task{Variant: variant, Status: Failed, Err: err}
				return
			}
			logger.Info("variant generation succeeded", "variant", variant, "bytes", len(artifact))
			tasks[i] = Task{Variant: variant, Status: Succeeded, Artifact: artifact}
		}()
	}
	waitGroup.Wait()

	return Result{Tasks: tasks}, nil
}

// validateVariants rejects empty and duplicate variant identifiers.
func validateVariants(variants []string) error {
	seen := make(map[string]struct{}, len(variants))
	for _, variant := range variants {
		if variant == "" {
			return fmt.Errorf("matrix: empty variant identifier")
		}
		if _, duplicate := seen[variant]; duplicate {
			return fmt.Errorf("matrix: duplicate variant %q", variant)
		}
		seen[variant] = struct{}{}
	}
	return nil
}

// SortedVariants returns a sorted copy of the variant identifiers in
// a result. Convenience for stable log and report output.
func (r Result) SortedVariants() []string {
	variants := make([]string, len(r.Tasks))
	for i, task := range r.Tasks {
		variants[i] = task.Variant
	}
	sort.Strings(variants)
	return variants
}
