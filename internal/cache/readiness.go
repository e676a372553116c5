// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

// Package cache holds the session's readiness-gated caches: identity, owned
// games, achievement statistics, playtimes and friends.
//
// The protocol session pushes data in as it arrives; feature methods pull
// with a bounded wait on the cache's Readiness. A Readiness is a broadcast,
// set-once signal: every waiter is released together and it is never cleared.
// Caches that are repopulated on request (statistics, playtimes) install a
// fresh Readiness per import cycle instead of clearing the old one.
//
// Each cache publishes readiness only after the data it describes has been
// written, under the same lock, so a released waiter always observes it.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/steambridge/internal/metrics"
	"github.com/tomtom215/steambridge/internal/models"
)

// Readiness is a set-once broadcast signal.
type Readiness struct {
	once sync.Once
	ch   chan struct{}
}

// NewReadiness returns an unset signal.
func NewReadiness() *Readiness {
	return &Readiness{ch: make(chan struct{})}
}

// Set releases all current and future waiters. Calling it again is a no-op.
func (r *Readiness) Set() {
	r.once.Do(func() { close(r.ch) })
}

// IsSet reports whether Set has been called.
func (r *Readiness) IsSet() bool {
	select {
	case <-r.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the signal is set.
func (r *Readiness) Done() <-chan struct{} {
	return r.ch
}

// Wait blocks until the signal is set, timeout elapses or ctx is done. A
// timeout returns an error wrapping models.ErrBackendTimeout; cancellation
// returns ctx.Err(). A non-positive timeout waits on ctx alone.
func (r *Readiness) Wait(ctx context.Context, timeout time.Duration) error {
	if r.IsSet() {
		return nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-r.ch:
		return nil
	case <-expired:
		return models.Timeoutf("not ready after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitReady wraps Readiness.Wait with the cache name and metrics.
func waitReady(ctx context.Context, name string, r *Readiness, timeout time.Duration) error {
	start := time.Now()
	err := r.Wait(ctx, timeout)
	metrics.RecordCacheWait(name, time.Since(start), err != nil && ctx.Err() == nil)
	if err != nil && ctx.Err() == nil {
		return models.Timeoutf("%s cache not ready after %s", name, timeout)
	}
	return err
}
