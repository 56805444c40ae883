// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/relockd/relockd/lib/clock"
)

// rateLimitTracker tracks GitHub API rate limit state from response
// headers. Each response updates the latest remaining count and reset
// timestamp. Before a request is sent, the tracker blocks if the
// quota is known-exhausted until the reset window passes.
type rateLimitTracker struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	known     bool
	clock     clock.Clock
}

func newRateLimitTracker(clk clock.Clock) *rateLimitTracker {
	return &rateLimitTracker{clock: clk}
}

// update records rate limit state from response headers.
func (tracker *rateLimitTracker) update(header http.Header) {
	remaining, err := strconv.Atoi(header.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}
	resetUnix, err := strconv.ParseInt(header.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	tracker.remaining = remaining
	tracker.reset = time.Unix(resetUnix, 0)
	tracker.known = true
}

// wait blocks until the rate limit window resets if the tracker knows
// the quota is exhausted. Returns immediately otherwise. Returns an
// error only if the context is cancelled while waiting.
func (tracker *rateLimitTracker) wait(ctx context.Context) error {
	tracker.mu.Lock()
	if !tracker.known || tracker.remaining > 0 {
		tracker.mu.Unlock()
		return nil
	}
	sleep := tracker.reset.Sub(tracker.clock.Now())
	tracker.mu.Unlock()

	if sleep <= 0 {
		return nil
	}
	select {
	case <-tracker.clock.After(sleep):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryAfter computes the backoff from a rate-limited response:
// Retry-After (secondary limits) first, then X-RateLimit-Reset. Zero
// when no backoff information is available.
func (tracker *rateLimitTracker) retryAfter(header http.Header) time.Duration {
	if seconds, err := strconv.Atoi(header.Get("Retry-After")); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if resetUnix, err := strconv.ParseInt(header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		if backoff := time.Unix(resetUnix, 0).Sub(tracker.clock.Now()); backoff > 0 {
			return backoff
		}
	}
	return 0
}
